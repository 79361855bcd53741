// Пакет repository — слой доступа к метаданным File Vault.
// Интерфейсы UserRepository и FileRepository реализованы поверх
// PostgreSQL (этот пакет, чистый SQL через pgx) и badger (пакет kv).
// Все операции с файлами ограничены владельцем: запись чужого
// владельца неотличима от отсутствующей.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена (или принадлежит другому владельцу).
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушение уникальности.
	ErrConflict = errors.New("конфликт: запись уже существует")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository — хранилище учётных записей (Credential Store).
type UserRepository interface {
	// Create сохраняет пользователя. ErrConflict, если email уже занят;
	// в этом случае состояние не меняется.
	Create(ctx context.Context, u *model.User) error
	// GetByEmail ищет пользователя по email (с учётом регистра).
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByID ищет пользователя по UUID.
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// Допустимые поля и направления сортировки списка файлов.
const (
	SortByCreatedAt   = "created_at"
	SortByName        = "name"
	SortBySize        = "size"
	SortByAccessCount = "access_count"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListParams — параметры выборки списка файлов.
// Пустые значения — сортировка по умолчанию (created_at desc).
type ListParams struct {
	SortBy    string
	SortOrder string
}

// FileRepository — хранилище метаданных файлов (File Metadata Store).
type FileRepository interface {
	// Create сохраняет запись. ErrConflict при повторном ID.
	Create(ctx context.Context, f *model.FileRecord) error
	// GetByID возвращает запись владельца или ErrNotFound.
	GetByID(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error)
	// ListByOwner возвращает все записи владельца.
	ListByOwner(ctx context.Context, ownerID string, params ListParams) ([]*model.FileRecord, error)
	// Search возвращает записи владельца, у которых имя или один из тегов
	// содержит query без учёта регистра. query не должен быть пустым.
	Search(ctx context.Context, ownerID, query string) ([]*model.FileRecord, error)
	// RecordAccess атомарно увеличивает счётчик скачиваний и обновляет LastAccessed.
	RecordAccess(ctx context.Context, ownerID, fileID string, at time.Time) error
	// Delete удаляет запись владельца. ErrNotFound, если её нет.
	Delete(ctx context.Context, ownerID, fileID string) error
	// Usage возвращает суммарный размер и количество файлов владельца.
	Usage(ctx context.Context, ownerID string) (totalSize, count int64, err error)
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// NormalizeListParams приводит параметры сортировки к whitelist-значениям.
// Используется обеими реализациями FileRepository.
func NormalizeListParams(p ListParams) ListParams {
	switch p.SortBy {
	case SortByName, SortBySize, SortByAccessCount, SortByCreatedAt:
	default:
		p.SortBy = SortByCreatedAt
	}
	if p.SortOrder != SortAsc {
		p.SortOrder = SortDesc
	}
	return p
}
