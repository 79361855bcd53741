package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestFSStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("ошибка создания FSStore: %v", err)
	}
	return s
}

// TestNewFSStore_CreatesDirectory проверяет создание корневой директории.
func TestNewFSStore_CreatesDirectory(t *testing.T) {
	s := newTestFSStore(t)

	info, err := os.Stat(s.Root())
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestFSStore_PutGet проверяет запись с подсчётом SHA-256 и чтение.
func TestFSStore_PutGet(t *testing.T) {
	s := newTestFSStore(t)
	ctx := context.Background()

	content := []byte("Hello, World! Тестовые данные для проверки.")
	key := GenerateKey("owner", "test.txt")

	result, err := s.Put(ctx, key, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}
	expectedHash := sha256.Sum256(content)
	if result.Checksum != hex.EncodeToString(expectedHash[:]) {
		t.Errorf("checksum не совпадает: %s", result.Checksum)
	}

	rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ошибка чтения содержимого: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое не совпадает")
	}

	exists, err := s.Exists(ctx, key)
	if err != nil || !exists {
		t.Errorf("Exists: ожидалось true, получено %v (%v)", exists, err)
	}
}

// TestFSStore_GetNotFound проверяет ErrNotFound для отсутствующего ключа.
func TestFSStore_GetNotFound(t *testing.T) {
	s := newTestFSStore(t)

	_, err := s.Get(context.Background(), "owner/missing.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestFSStore_Delete проверяет удаление и очистку пустых директорий.
func TestFSStore_Delete(t *testing.T) {
	s := newTestFSStore(t)
	ctx := context.Background()
	key := GenerateKey("owner", "a.txt")

	if _, err := s.Put(ctx, key, strings.NewReader("data")); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}

	exists, _ := s.Exists(ctx, key)
	if exists {
		t.Error("blob должен быть удалён")
	}

	// Директория владельца опустела и должна быть удалена
	if _, err := os.Stat(filepath.Join(s.Root(), "owner")); !os.IsNotExist(err) {
		t.Error("пустая директория владельца должна быть удалена")
	}

	// Повторное удаление — ErrNotFound
	if err := s.Delete(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторное удаление: ожидалась ErrNotFound, получено %v", err)
	}

	// Корень хранилища не удаляется
	if _, err := os.Stat(s.Root()); err != nil {
		t.Errorf("корневая директория не должна удаляться: %v", err)
	}
}

// failingReader возвращает ошибку после первой порции данных.
type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("обрыв соединения")
	}
	r.sent = true
	return copy(p, "partial"), nil
}

// TestFSStore_PutFailureLeavesNothing проверяет, что при ошибке чтения
// не остаётся ни blob, ни временного файла.
func TestFSStore_PutFailureLeavesNothing(t *testing.T) {
	s := newTestFSStore(t)
	ctx := context.Background()
	key := "owner/broken.bin"

	if _, err := s.Put(ctx, key, &failingReader{}); err == nil {
		t.Fatal("ожидалась ошибка записи")
	}

	exists, _ := s.Exists(ctx, key)
	if exists {
		t.Error("частично записанный blob не должен быть виден")
	}

	entries, _ := os.ReadDir(filepath.Join(s.Root(), "owner"))
	for _, e := range entries {
		t.Errorf("остался файл после ошибки: %s", e.Name())
	}
}

// slowReader отдаёт данные бесконечно с задержкой.
type slowReader struct{}

func (slowReader) Read(p []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return copy(p, "x"), nil
}

// TestFSStore_PutTimeout проверяет прерывание зависшей передачи по таймауту.
func TestFSStore_PutTimeout(t *testing.T) {
	s := newTestFSStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.Put(ctx, "owner/slow.bin", slowReader{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ожидалась DeadlineExceeded, получено %v", err)
	}
}

// TestFSStore_InvalidKey проверяет отклонение ключей с обходом пути.
func TestFSStore_InvalidKey(t *testing.T) {
	s := newTestFSStore(t)

	_, err := s.Put(context.Background(), "../escape.txt", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("ожидалась ErrInvalidKey, получено %v", err)
	}
}
