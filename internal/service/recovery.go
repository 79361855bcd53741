// recovery.go — восстановление после сбоев по журналу намерений.
//
// Для каждой pending-записи старше порога:
//   - upload: если запись о файле есть — коммит, иначе blob удаляется
//     и намерение откатывается;
//   - delete: blob и метаданные дочищаются, намерение коммитится.
//
// Затем завершённые записи журнала удаляются. Выполняется при старте
// и периодически (FV_RECOVERY_INTERVAL).
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/file-vault/internal/repository"
	"github.com/bigkaa/goartstore/file-vault/internal/storage/blob"
	"github.com/bigkaa/goartstore/file-vault/internal/storage/journal"
)

var recoveryDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "fv_recovery_duration_seconds",
	Help:    "Длительность восстановления по журналу в секундах",
	Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
})

// RecoveryResult — результат одного прохода восстановления.
type RecoveryResult struct {
	// Committed — намерения, признанные завершёнными
	Committed int
	// RolledBack — откаченные загрузки
	RolledBack int
	// BlobsRemoved — удалённые осиротевшие blob
	BlobsRemoved int
	// Skipped — записи моложе порога или ещё выполняющиеся
	Skipped int
	// Errors — записи, которые не удалось обработать (останутся pending)
	Errors int
	// Cleaned — удалённые завершённые записи журнала
	Cleaned int
	// Duration — длительность прохода
	Duration time.Duration
}

// RecoveryService — обработка незавершённых операций.
type RecoveryService struct {
	files       repository.FileRepository
	blobs       blob.Store
	journal     *journal.Journal
	interval    time.Duration
	minAge      time.Duration
	maintenance func() error
	now         func() time.Time
	logger      *slog.Logger

	mu sync.Mutex // защита от параллельного RunOnce
}

// NewRecoveryService создаёт сервис восстановления.
// minAge — возраст, после которого pending-запись считается брошенной
// (не меньше максимальной длительности загрузки). maintenance вызывается после каждого
// периодического прохода, может быть nil.
func NewRecoveryService(
	files repository.FileRepository,
	blobs blob.Store,
	j *journal.Journal,
	interval time.Duration,
	minAge time.Duration,
	maintenance func() error,
	logger *slog.Logger,
) *RecoveryService {
	return &RecoveryService{
		files:       files,
		blobs:       blobs,
		journal:     j,
		interval:    interval,
		minAge:      minAge,
		maintenance: maintenance,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "recovery")),
	}
}

// Run выполняет периодическое восстановление до отмены ctx.
func (r *RecoveryService) Run(ctx context.Context) error {
	r.logger.Info("Восстановление по журналу запущено",
		slog.String("interval", r.interval.String()),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Восстановление по журналу остановлено")
			return nil
		case <-ticker.C:
			r.RunOnce(ctx, r.minAge)
			if r.maintenance != nil {
				if err := r.maintenance(); err != nil {
					r.logger.Warn("Ошибка обслуживания хранилища метаданных",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// RunOnce обрабатывает pending-записи старше olderThan.
// При старте вызывается с olderThan = 0: других операций ещё нет.
func (r *RecoveryService) RunOnce(ctx context.Context, olderThan time.Duration) *RecoveryResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	result := &RecoveryResult{}

	pending, err := r.journal.Pending()
	if err != nil {
		r.logger.Error("Ошибка чтения журнала", slog.String("error", err.Error()))
		result.Errors++
	}

	cutoff := r.now().UTC().Add(-olderThan)
	for _, entry := range pending {
		if ctx.Err() != nil {
			break
		}
		// Операция ещё выполняется в этом процессе: её завершит FileService
		if entry.StartedAt.After(cutoff) || r.journal.InFlight(entry.TransactionID) {
			result.Skipped++
			continue
		}

		switch entry.Operation {
		case journal.OpUpload:
			r.recoverUpload(ctx, entry, result)
		case journal.OpDelete:
			r.recoverDelete(ctx, entry, result)
		default:
			r.logger.Warn("Неизвестная операция в журнале",
				slog.String("tx_id", entry.TransactionID),
				slog.String("operation", string(entry.Operation)),
			)
			result.Errors++
		}
	}

	cleaned, err := r.journal.CleanCompleted()
	if err != nil {
		r.logger.Warn("Ошибка очистки журнала", slog.String("error", err.Error()))
	}
	result.Cleaned = cleaned
	result.Duration = time.Since(start)

	recoveryRunsTotal.Inc()
	recoveryBlobsRemovedTotal.Add(float64(result.BlobsRemoved))
	recoveryDurationSeconds.Observe(result.Duration.Seconds())

	level := slog.LevelDebug
	if result.Committed+result.RolledBack+result.Errors > 0 {
		level = slog.LevelInfo
	}
	r.logger.Log(ctx, level, "Восстановление по журналу завершено",
		slog.Int("committed", result.Committed),
		slog.Int("rolled_back", result.RolledBack),
		slog.Int("blobs_removed", result.BlobsRemoved),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
		slog.Int("cleaned", result.Cleaned),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// recoverUpload завершает брошенную загрузку.
func (r *RecoveryService) recoverUpload(ctx context.Context, entry *journal.Entry, result *RecoveryResult) {
	log := r.logger.With(
		slog.String("tx_id", entry.TransactionID),
		slog.String("file_id", entry.FileID),
	)

	_, err := r.files.GetByID(ctx, entry.OwnerID, entry.FileID)
	switch {
	case err == nil:
		// Метаданные записаны, не успели только закоммитить журнал
		if err := r.journal.Commit(entry.TransactionID); err != nil {
			log.Error("Ошибка коммита записи журнала", slog.String("error", err.Error()))
			result.Errors++
			return
		}
		result.Committed++
		return
	case !errors.Is(err, repository.ErrNotFound):
		log.Error("Ошибка проверки метаданных", slog.String("error", err.Error()))
		result.Errors++
		return
	}

	removed, ok := r.removeBlob(ctx, entry.StorageKey, log)
	if !ok {
		result.Errors++
		return
	}
	if removed {
		result.BlobsRemoved++
	}

	if err := r.journal.Rollback(entry.TransactionID); err != nil {
		log.Error("Ошибка отката записи журнала", slog.String("error", err.Error()))
		result.Errors++
		return
	}
	result.RolledBack++
	log.Info("Брошенная загрузка откачена", slog.Bool("blob_removed", removed))
}

// recoverDelete дочищает прерванное удаление.
func (r *RecoveryService) recoverDelete(ctx context.Context, entry *journal.Entry, result *RecoveryResult) {
	log := r.logger.With(
		slog.String("tx_id", entry.TransactionID),
		slog.String("file_id", entry.FileID),
	)

	removed, ok := r.removeBlob(ctx, entry.StorageKey, log)
	if !ok {
		result.Errors++
		return
	}
	if removed {
		result.BlobsRemoved++
	}

	if err := r.files.Delete(ctx, entry.OwnerID, entry.FileID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Error("Ошибка удаления метаданных", slog.String("error", err.Error()))
		result.Errors++
		return
	}

	if err := r.journal.Commit(entry.TransactionID); err != nil {
		log.Error("Ошибка коммита записи журнала", slog.String("error", err.Error()))
		result.Errors++
		return
	}
	result.Committed++
	log.Info("Прерванное удаление завершено")
}

// removeBlob удаляет blob. Отсутствие blob — не ошибка (removed = false).
func (r *RecoveryService) removeBlob(ctx context.Context, key string, log *slog.Logger) (removed, ok bool) {
	err := r.blobs.Delete(ctx, key)
	switch {
	case err == nil:
		return true, true
	case errors.Is(err, blob.ErrNotFound):
		return false, true
	default:
		log.Error("Ошибка удаления blob",
			slog.String("storage_key", key),
			slog.String("error", err.Error()),
		)
		return false, false
	}
}
