// usage.go — статистика использования хранилища.
// Лимит только отображается, загрузки он не ограничивает.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
)

// UsageService считает занятое место. Параллельные запросы одного
// владельца схлопываются в один проход по хранилищу.
type UsageService struct {
	files        repository.FileRepository
	users        repository.UserRepository
	defaultLimit int64
	group        singleflight.Group
	logger       *slog.Logger
}

// NewUsageService создаёт сервис статистики.
func NewUsageService(
	files repository.FileRepository,
	users repository.UserRepository,
	defaultLimit int64,
	logger *slog.Logger,
) *UsageService {
	return &UsageService{
		files:        files,
		users:        users,
		defaultLimit: defaultLimit,
		logger:       logger.With(slog.String("component", "usage")),
	}
}

// Usage возвращает статистику владельца.
func (s *UsageService) Usage(ctx context.Context, ownerID string) (*model.Usage, error) {
	v, err, shared := s.group.Do(ownerID, func() (any, error) {
		return s.compute(ctx, ownerID)
	})
	observe("usage", err)
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("Результат usage разделён между запросами",
			slog.String("owner_id", ownerID),
		)
	}
	u := *v.(*model.Usage)
	return &u, nil
}

func (s *UsageService) compute(ctx context.Context, ownerID string) (*model.Usage, error) {
	total, count, err := s.files.Usage(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("подсчёт использования: %w", err)
	}

	limit := s.defaultLimit
	user, err := s.users.GetByID(ctx, ownerID)
	switch {
	case err == nil:
		if user.StorageLimit > 0 {
			limit = user.StorageLimit
		}
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}

	return &model.Usage{
		TotalSize:    total,
		FileCount:    count,
		StorageLimit: limit,
	}, nil
}
