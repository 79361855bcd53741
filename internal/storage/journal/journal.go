package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Journal — файловый журнал намерений.
// Сначала создаётся запись со статусом pending, затем выполняется
// операция, затем запись коммитится или откатывается. При рестарте
// pending записи обрабатываются сервисом восстановления.
type Journal struct {
	// dir — директория хранения записей (FV_JOURNAL_DIR)
	dir string
	// mu — мьютекс для потокобезопасности
	mu sync.Mutex
	// active — записи, операции которых ещё выполняются в этом процессе
	active map[string]struct{}
	logger *slog.Logger
}

// New создаёт журнал. Проверяет и создаёт директорию
// если она не существует. Возвращает ошибку при проблемах с FS.
func New(dir string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию журнала %s: %w", dir, err)
	}

	// Проверяем доступность на запись через temp файл
	testFile := filepath.Join(dir, ".journal_write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория журнала %s недоступна для записи: %w", dir, err)
	}
	os.Remove(testFile)

	return &Journal{
		dir:    dir,
		active: make(map[string]struct{}),
		logger: logger.With(slog.String("component", "journal")),
	}, nil
}

// Begin создаёт новую pending-запись для операции op.
// Запись сохраняется атомарно: temp файл → fsync → rename.
func (j *Journal) Begin(op Operation, intent Intent) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := &Entry{
		TransactionID: uuid.New().String(),
		Operation:     op,
		Status:        StatusPending,
		Intent:        intent,
		StartedAt:     time.Now().UTC(),
	}

	if err := j.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("не удалось создать запись журнала: %w", err)
	}
	j.active[entry.TransactionID] = struct{}{}

	j.logger.Debug("Операция начата",
		slog.String("tx_id", entry.TransactionID),
		slog.String("operation", string(op)),
		slog.String("file_id", intent.FileID),
	)

	return entry, nil
}

// Commit помечает операцию как успешно завершённую.
func (j *Journal) Commit(txID string) error {
	return j.complete(txID, StatusCommitted)
}

// Rollback помечает операцию как отменённую.
func (j *Journal) Rollback(txID string) error {
	return j.complete(txID, StatusRolledBack)
}

// complete переводит pending-запись в конечный статус.
func (j *Journal) complete(txID string, status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, err := j.readEntry(txID)
	if err != nil {
		return fmt.Errorf("не удалось прочитать запись журнала %s: %w", txID, err)
	}

	if entry.Status != StatusPending {
		return fmt.Errorf("запись журнала %s имеет статус %s, ожидается %s", txID, entry.Status, StatusPending)
	}

	now := time.Now().UTC()
	entry.Status = status
	entry.CompletedAt = &now

	if err := j.writeEntry(entry); err != nil {
		return fmt.Errorf("не удалось обновить запись журнала %s: %w", txID, err)
	}
	delete(j.active, txID)

	j.logger.Debug("Операция завершена",
		slog.String("tx_id", txID),
		slog.String("status", string(status)),
		slog.String("file_id", entry.FileID),
		slog.Duration("duration", now.Sub(entry.StartedAt)),
	)

	return nil
}

// Release снимает отметку «выполняется» с записи, не меняя её статус.
// Оставшаяся pending-запись переходит к сервису восстановления.
// Повторный вызов и вызов после Commit/Rollback безопасны.
func (j *Journal) Release(txID string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	delete(j.active, txID)
}

// InFlight сообщает, выполняется ли операция записи txID в этом процессе
// (Begin был, а Commit, Rollback или Release ещё нет).
func (j *Journal) InFlight(txID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, ok := j.active[txID]
	return ok
}

// Pending находит и возвращает все записи со статусом pending.
func (j *Journal) Pending() ([]*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var pending []*Entry
	err := j.scan(func(path string, entry *Entry) {
		if entry.Status == StatusPending {
			pending = append(pending, entry)
		}
	})
	return pending, err
}

// Get читает запись по идентификатору.
func (j *Journal) Get(txID string) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.readEntry(txID)
}

// CleanCompleted удаляет все завершённые (committed/rolled_back) записи.
func (j *Journal) CleanCompleted() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cleaned := 0
	err := j.scan(func(path string, entry *Entry) {
		if entry.Status == StatusPending {
			return
		}
		if err := os.Remove(path); err != nil {
			j.logger.Warn("Не удалось удалить завершённую запись журнала",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return
		}
		cleaned++
	})

	if cleaned > 0 {
		j.logger.Info("Очистка журнала завершена",
			slog.Int("cleaned", cleaned),
		)
	}

	return cleaned, err
}

// scan обходит все записи журнала. Нечитаемые записи пропускаются с предупреждением.
func (j *Journal) scan(fn func(path string, entry *Entry)) error {
	paths, err := filepath.Glob(filepath.Join(j.dir, "*.intent.json"))
	if err != nil {
		return fmt.Errorf("не удалось сканировать директорию журнала: %w", err)
	}

	for _, path := range paths {
		txID := strings.TrimSuffix(filepath.Base(path), ".intent.json")
		entry, err := j.readEntry(txID)
		if err != nil {
			j.logger.Warn("Не удалось прочитать запись журнала",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		fn(path, entry)
	}
	return nil
}

// writeEntry атомарно записывает запись на диск.
// Паттерн: temp файл → fsync → atomic rename.
func (j *Journal) writeEntry(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}

	targetPath := filepath.Join(j.dir, entryFileName(entry.TransactionID))
	tmpPath := targetPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// readEntry читает запись из файла.
func (j *Journal) readEntry(txID string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(j.dir, entryFileName(txID)))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("ошибка десериализации: %w", err)
	}

	return &entry, nil
}

// Dir возвращает путь к директории журнала.
func (j *Journal) Dir() string {
	return j.dir
}
