// Пакет blob — хранилище содержимого файлов (Blob Store).
// Байты адресуются непрозрачным ключом хранения; метаданные
// о файле живут отдельно в repository.
//
// Реализации:
//   - FSStore — локальная файловая система (temp → fsync → atomic rename)
//   - S3Store — S3-совместимое объектное хранилище (aws-sdk-go-v2)
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Ошибки blob-хранилища.
var (
	// ErrNotFound — blob с указанным ключом не существует.
	ErrNotFound = errors.New("blob не найден")
	// ErrInvalidKey — ключ не прошёл валидацию (пустой, обход пути и т.п.).
	ErrInvalidKey = errors.New("некорректный ключ blob")
)

// maxKeyLength — максимальная длина ключа хранения.
const maxKeyLength = 512

// PutResult — результат записи blob.
type PutResult struct {
	// Size — количество записанных байт
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
}

// Store — абстрактное хранилище байтов по ключу.
// Все методы учитывают отмену и таймаут ctx.
type Store interface {
	// Put записывает содержимое r под ключом key. Частично записанный
	// blob никогда не становится видимым под key.
	Put(ctx context.Context, key string, r io.Reader) (*PutResult, error)
	// Get открывает blob для чтения. ErrNotFound, если ключа нет.
	// Вызывающий код обязан закрыть ReadCloser.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete удаляет blob. ErrNotFound, если ключа нет и бэкенд
	// способен это определить.
	Delete(ctx context.Context, key string) error
	// Exists проверяет наличие blob.
	Exists(ctx context.Context, key string) (bool, error)
}

// GenerateKey генерирует уникальный ключ хранения для файла владельца.
// Формат: {owner}/{timestamp}_{uuid}_{name}{ext}
// Пример: 4b1e.../20261016150405.123456789_a1b2c3d4-..._notes.txt
//
// Наносекундная метка времени вместе с UUID v4 делает коллизию
// практически невозможной.
func GenerateKey(ownerID, originalName string) string {
	ext := sanitizeExt(filepath.Ext(originalName))
	name := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))

	name = sanitize(name)
	owner := sanitize(ownerID)

	// Ограничиваем длину имени для предотвращения проблем с FS
	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}

	ts := time.Now().UTC().Format("20060102150405.000000000")
	return fmt.Sprintf("%s/%s_%s_%s%s", owner, ts, uuid.New().String(), name, ext)
}

// sanitize убирает небезопасные символы из строки для использования в ключе.
// Оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}

// sanitizeExt оставляет расширение, только если оно состоит из безопасных символов.
func sanitizeExt(ext string) string {
	if len(ext) < 2 || len(ext) > 16 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// ValidateKey проверяет ключ хранения перед обращением к бэкенду.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("пустой ключ: %w", ErrInvalidKey)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("длина ключа %d превышает %d: %w", len(key), maxKeyLength, ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") || strings.Contains(key, "//") {
		return fmt.Errorf("недопустимые слэши в ключе: %w", ErrInvalidKey)
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\x00") || strings.Contains(key, "\\") {
		return fmt.Errorf("обход пути в ключе: %w", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("-_./", r) {
			return fmt.Errorf("недопустимый символ %q в позиции %d: %w", r, i, ErrInvalidKey)
		}
	}
	return nil
}

// ctxReader прерывает чтение при отмене контекста, чтобы зависшая
// передача не удерживала обработчик дольше таймаута.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
