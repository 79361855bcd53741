// search.go — поиск файлов владельца по имени и тегам.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
)

// maxQueryLength — самое длинное поле, по которому идёт поиск (имя файла).
// Более длинный запрос не может быть подстрокой ни одного поля.
const maxQueryLength = maxDisplayNameLength

// Prometheus-метрики поиска.
var (
	searchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_search_total",
		Help: "Общее количество поисковых запросов.",
	})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fv_search_duration_seconds",
		Help:    "Длительность поисковых запросов.",
		Buckets: prometheus.DefBuckets,
	})
)

// SearchService — поиск по метаданным.
type SearchService struct {
	fileRepo repository.FileRepository
	logger   *slog.Logger
}

// NewSearchService создаёт сервис поиска.
func NewSearchService(fileRepo repository.FileRepository, logger *slog.Logger) *SearchService {
	return &SearchService{
		fileRepo: fileRepo,
		logger:   logger.With(slog.String("component", "search_service")),
	}
}

// Search ищет подстроку query без учёта регистра в именах и тегах файлов
// владельца. Пустой запрос или запрос длиннее любого поля — пустой
// результат без ошибки. Совпадение по имени приоритетнее совпадения по тегу.
func (s *SearchService) Search(ctx context.Context, ownerID, query string) ([]model.SearchMatch, error) {
	// Пробелы по краям — часть подстроки, обрезка только для проверки на пустоту
	if strings.TrimSpace(query) == "" || utf8.RuneCountInString(query) > maxQueryLength {
		return []model.SearchMatch{}, nil
	}

	start := time.Now()
	searchTotal.Inc()

	records, err := s.fileRepo.Search(ctx, ownerID, query)
	observe("search", err)
	if err != nil {
		return nil, fmt.Errorf("поиск файлов: %w", err)
	}

	lower := strings.ToLower(query)
	matches := make([]model.SearchMatch, 0, len(records))
	for _, rec := range records {
		matches = append(matches, model.SearchMatch{
			File:      rec,
			MatchedOn: matchField(rec, lower),
		})
	}

	duration := time.Since(start)
	searchDuration.Observe(duration.Seconds())

	s.logger.Debug("Поиск выполнен",
		slog.String("owner_id", ownerID),
		slog.Int("returned", len(matches)),
		slog.Duration("duration", duration),
	)
	return matches, nil
}

// matchField определяет поле совпадения для записи, найденной хранилищем.
func matchField(rec *model.FileRecord, lowerQuery string) model.MatchField {
	if strings.Contains(strings.ToLower(rec.OriginalName), lowerQuery) {
		return model.MatchDisplayName
	}
	for _, tag := range rec.Tags {
		if strings.Contains(strings.ToLower(tag), lowerQuery) {
			return model.MatchTag
		}
	}
	// Хранилище могло сравнить регистр иначе (ILIKE и Unicode)
	return model.MatchDisplayName
}
