// Пакет kv — реализация репозиториев метаданных поверх встроенного
// key-value хранилища badger. Используется как альтернатива PostgreSQL
// для однонодовых установок и в тестах (in-memory режим).
//
// Схема ключей:
//
//	u:<user_id>            → JSON model.User
//	e:<email>              → user_id (уникальный индекс email)
//	f:<owner_id>:<file_id> → JSON model.FileRecord
//
// Префикс f:<owner_id>: ограничивает любую выборку файлов владельцем.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/bigkaa/goartstore/file-vault/internal/repository"
)

const (
	prefixUser  = "u:"
	prefixEmail = "e:"
	prefixFile  = "f:"

	// maxTxnRetries — количество повторов транзакции при badger.ErrConflict
	maxTxnRetries = 16
)

// Store — badger-хранилище метаданных.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open открывает (или создаёт) базу badger в директории dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None)
	return open(opts, logger)
}

// OpenInMemory открывает базу без записи на диск.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.WARNING)
	return open(opts, logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия badger (%s): %w", opts.Dir, err)
	}
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "badger")),
	}, nil
}

// Close закрывает базу.
func (s *Store) Close() error {
	return s.db.Close()
}

// Users возвращает UserRepository поверх этого хранилища.
func (s *Store) Users() repository.UserRepository {
	return &userRepo{store: s}
}

// Files возвращает FileRepository поверх этого хранилища.
func (s *Store) Files() repository.FileRepository {
	return &fileRepo{store: s}
}

// CheckReady — проверка готовности для /health/ready.
func (s *Store) CheckReady() (status string, message string) {
	if s.db.IsClosed() {
		return "fail", "badger закрыт"
	}
	return "ok", "badger открыт"
}

// RunGC запускает сборку мусора value log. Отсутствие работы для GC
// (ErrNoRewrite, in-memory режим, параллельный запуск) ошибкой не считается.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	switch {
	case err == nil,
		errors.Is(err, badger.ErrNoRewrite),
		errors.Is(err, badger.ErrRejected),
		errors.Is(err, badger.ErrGCInMemoryMode):
		return nil
	}
	return fmt.Errorf("ошибка сборки мусора badger: %w", err)
}

// update выполняет транзакцию на запись, повторяя её при конфликте
// оптимистичной блокировки.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug("Конфликт транзакции badger, повтор",
			slog.Int("attempt", attempt+1),
		)
	}
	return fmt.Errorf("транзакция не завершена после %d попыток: %w", maxTxnRetries, err)
}

// view выполняет транзакцию на чтение.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// getJSON читает значение ключа и декодирует его в dst.
// Отсутствие ключа — repository.ErrNotFound.
func getJSON(txn *badger.Txn, key []byte, dst any) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return repository.ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

// setJSON кодирует src и записывает под ключом key.
func setJSON(txn *badger.Txn, key []byte, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("ошибка сериализации: %w", err)
	}
	return txn.Set(key, data)
}

// exists проверяет наличие ключа.
func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}
