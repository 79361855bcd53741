package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSStore — blob-хранилище на локальной файловой системе.
// Ключ {owner}/{name} отображается в путь {root}/{owner}/{name}.
type FSStore struct {
	// root — корневая директория хранения (FV_DATA_DIR)
	root string
}

// NewFSStore создаёт FSStore. Проверяет и создаёт директорию
// если она не существует.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", root, err)
	}

	// Проверяем доступность на запись через temp файл
	testFile := filepath.Join(root, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("директория данных %s недоступна для записи: %w", root, err)
	}
	_ = os.Remove(testFile)

	return &FSStore{root: filepath.Clean(root)}, nil
}

// Put записывает данные из reader на диск с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) (*PutResult, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	fullPath := s.path(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории: %w", err)
	}

	// Temp файл в той же директории, чтобы rename оставался атомарным.
	// Директорию мог удалить cleanupEmptyDirs параллельного Delete — повторяем один раз.
	f, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*.tmp")
	if errors.Is(err, os.ErrNotExist) {
		if mkErr := os.MkdirAll(filepath.Dir(fullPath), 0o750); mkErr == nil {
			f, err = os.CreateTemp(filepath.Dir(fullPath), ".upload-*.tmp")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(&ctxReader{ctx: ctx, r: r}, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &PutResult{
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Get открывает файл для чтения.
func (s *FSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}
	return f, nil
}

// Delete удаляет файл с диска и пустые родительские директории.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	fullPath := s.path(key)
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("ошибка удаления файла %s: %w", key, err)
	}

	s.cleanupEmptyDirs(fullPath)
	return nil
}

// Exists проверяет существование файла на диске.
func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
}

// Root возвращает путь к корневой директории.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// cleanupEmptyDirs удаляет опустевшие директории владельца после удаления blob.
// Останавливается на корне хранилища или на первой непустой директории.
func (s *FSStore) cleanupEmptyDirs(path string) {
	parent := filepath.Dir(path)
	for parent != s.root && parent != "." && parent != "/" {
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(parent); err != nil {
			return
		}
		parent = filepath.Dir(parent)
	}
}

// Проверка на этапе компиляции
var _ Store = (*FSStore)(nil)
