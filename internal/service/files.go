// files.go — загрузка, список, скачивание и удаление файлов владельца.
//
// Порядок загрузки: журнал (pending) → blob → метаданные → журнал (committed).
// Запись о файле появляется только после успешной записи blob. Если
// метаданные сохранить не удалось, blob удаляется; если не удалось и это,
// запись журнала остаётся pending и blob уберёт RecoveryService.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
	"github.com/bigkaa/goartstore/file-vault/internal/storage/blob"
	"github.com/bigkaa/goartstore/file-vault/internal/storage/journal"
)

const (
	// maxDisplayNameLength — максимальная длина отображаемого имени (в рунах)
	maxDisplayNameLength = 255
	// maxTags — максимальное количество тегов у файла
	maxTags = 20
	// maxTagLength — максимальная длина тега (в рунах)
	maxTagLength = 50
	// defaultContentType — MIME-тип, если клиент его не передал
	defaultContentType = "application/octet-stream"
)

// FileConfig — параметры FileService.
type FileConfig struct {
	// MaxUploadSize — максимальный размер файла в байтах
	MaxUploadSize int64
	// BlobTimeout — таймаут операций с Blob Store
	BlobTimeout time.Duration
}

// UploadInput — входные данные загрузки.
type UploadInput struct {
	Name        string
	ContentType string
	Tags        []string
	Body        io.Reader
}

// Download — открытый поток скачивания. Вызывающий обязан закрыть Body.
type Download struct {
	File *model.FileRecord
	Body io.ReadCloser
}

// FileService — управление файлами пользователя.
type FileService struct {
	files   repository.FileRepository
	blobs   blob.Store
	journal *journal.Journal
	cache   *CacheService
	cfg     FileConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewFileService создаёт сервис управления файлами.
func NewFileService(
	files repository.FileRepository,
	blobs blob.Store,
	j *journal.Journal,
	cache *CacheService,
	cfg FileConfig,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		files:   files,
		blobs:   blobs,
		journal: j,
		cache:   cache,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "files")),
	}
}

// Upload сохраняет файл и создаёт запись о нём.
func (s *FileService) Upload(ctx context.Context, ownerID string, in UploadInput) (*model.FileRecord, error) {
	rec, err := s.upload(ctx, ownerID, in)
	observe("upload", err)
	return rec, err
}

func (s *FileService) upload(ctx context.Context, ownerID string, in UploadInput) (*model.FileRecord, error) {
	name := SanitizeDisplayName(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: пустое имя файла", ErrInvalidInput)
	}
	tags, err := NormalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	fileID := uuid.NewString()
	key := blob.GenerateKey(ownerID, name)

	entry, err := s.journal.Begin(journal.OpUpload, journal.Intent{
		FileID:     fileID,
		OwnerID:    ownerID,
		StorageKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("журнал загрузки: %w", err)
	}
	defer s.journal.Release(entry.TransactionID)

	// 1. Blob
	blobCtx, cancel := context.WithTimeout(ctx, s.cfg.BlobTimeout)
	defer cancel()

	body := &limitedReader{r: in.Body, remaining: s.cfg.MaxUploadSize}
	res, err := s.blobs.Put(blobCtx, key, body)
	if err != nil {
		s.rollback(entry.TransactionID)
		var maxErr *http.MaxBytesError
		if errors.Is(err, ErrFileTooLarge) || errors.As(err, &maxErr) {
			return nil, ErrFileTooLarge
		}
		s.logger.Error("Ошибка записи blob",
			slog.String("owner_id", ownerID),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}

	// 2. Метаданные
	record := &model.FileRecord{
		ID:            fileID,
		OwnerID:       ownerID,
		OriginalName:  name,
		StorageKey:    key,
		Size:          res.Size,
		ContentType:   contentType,
		Checksum:      res.Checksum,
		CreatedAt:     s.now().UTC(),
		Tags:          tags,
		SchemaVersion: model.FileSchemaVersion,
	}

	// Blob уже записан: отключение клиента не прерывает запись метаданных
	metaCtx, metaCancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.BlobTimeout)
	defer metaCancel()
	if err := s.files.Create(metaCtx, record); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Исход записи неизвестен: решение (коммит или удаление blob)
			// принимает RecoveryService по наличию записи
			s.logger.Error("Таймаут сохранения метаданных, загрузка оставлена восстановлению",
				slog.String("tx_id", entry.TransactionID),
				slog.String("file_id", fileID),
			)
			return nil, fmt.Errorf("сохранение метаданных: %w", err)
		}
		s.discardBlob(ctx, entry.TransactionID, key)
		return nil, fmt.Errorf("сохранение метаданных: %w", err)
	}

	// 3. Журнал. Ошибка коммита не фатальна: запись о файле уже есть,
	// восстановление закоммитит намерение само.
	if err := s.journal.Commit(entry.TransactionID); err != nil {
		s.logger.Warn("Не удалось закоммитить запись журнала",
			slog.String("tx_id", entry.TransactionID),
			slog.String("error", err.Error()),
		)
	}

	uploadBytesTotal.Add(float64(res.Size))
	s.logger.Info("Файл загружен",
		slog.String("owner_id", ownerID),
		slog.String("file_id", fileID),
		slog.Int64("size", res.Size),
	)
	return record, nil
}

// discardBlob удаляет blob после неудачной записи метаданных.
// При неудаче намерение остаётся pending для RecoveryService.
func (s *FileService) discardBlob(ctx context.Context, txID, key string) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.BlobTimeout)
	defer cancel()

	if err := s.blobs.Delete(delCtx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		s.logger.Warn("Не удалось удалить blob после ошибки метаданных, оставлен восстановлению",
			slog.String("tx_id", txID),
			slog.String("storage_key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	s.rollback(txID)
}

func (s *FileService) rollback(txID string) {
	if err := s.journal.Rollback(txID); err != nil {
		s.logger.Warn("Не удалось откатить запись журнала",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}

// List возвращает файлы владельца.
func (s *FileService) List(ctx context.Context, ownerID string, params repository.ListParams) ([]*model.FileRecord, error) {
	records, err := s.files.ListByOwner(ctx, ownerID, params)
	observe("list", err)
	if err != nil {
		return nil, fmt.Errorf("список файлов: %w", err)
	}
	return records, nil
}

// Download открывает файл владельца на чтение и учитывает скачивание.
func (s *FileService) Download(ctx context.Context, ownerID, fileID string) (*Download, error) {
	d, err := s.download(ctx, ownerID, fileID)
	observe("download", err)
	return d, err
}

func (s *FileService) download(ctx context.Context, ownerID, fileID string) (*Download, error) {
	rec, err := s.resolve(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	blobCtx, cancel := context.WithTimeout(ctx, s.cfg.BlobTimeout)
	body, err := s.blobs.Get(blobCtx, rec.StorageKey)
	if err != nil {
		cancel()
		s.cache.Delete(ownerID, fileID)

		if errors.Is(err, blob.ErrNotFound) {
			// Гонка с удалением: если записи уже нет, это обычный NotFound
			if _, rerr := s.files.GetByID(ctx, ownerID, fileID); errors.Is(rerr, repository.ErrNotFound) {
				return nil, ErrNotFound
			}
		}
		s.logger.Error("Ошибка чтения blob",
			slog.String("owner_id", ownerID),
			slog.String("file_id", fileID),
			slog.String("storage_key", rec.StorageKey),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrStorageReadFailed, err)
	}

	// Счётчик — best effort, скачивание не блокирует
	if err := s.files.RecordAccess(ctx, ownerID, fileID, s.now().UTC()); err != nil {
		s.logger.Warn("Не удалось обновить счётчик скачиваний",
			slog.String("owner_id", ownerID),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}

	return &Download{
		File: rec,
		Body: &verifyingReader{
			ctx:      blobCtx,
			rc:       body,
			expected: rec.Size,
			cancel:   cancel,
		},
	}, nil
}

// resolve находит запись владельца: сначала кэш, затем репозиторий.
func (s *FileService) resolve(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error) {
	if rec, ok := s.cache.Get(ownerID, fileID); ok {
		return rec, nil
	}

	rec, err := s.files.GetByID(ctx, ownerID, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи файла: %w", err)
	}
	s.cache.Set(rec)
	return rec, nil
}

// Delete удаляет blob и запись. Ошибка удаления blob не мешает
// удалить метаданные: запись без данных хуже, чем осиротевший blob.
func (s *FileService) Delete(ctx context.Context, ownerID, fileID string) error {
	err := s.delete(ctx, ownerID, fileID)
	observe("delete", err)
	return err
}

func (s *FileService) delete(ctx context.Context, ownerID, fileID string) error {
	rec, err := s.files.GetByID(ctx, ownerID, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("получение записи файла: %w", err)
	}
	s.cache.Delete(ownerID, fileID)

	entry, err := s.journal.Begin(journal.OpDelete, journal.Intent{
		FileID:     rec.ID,
		OwnerID:    ownerID,
		StorageKey: rec.StorageKey,
	})
	if err != nil {
		return fmt.Errorf("журнал удаления: %w", err)
	}
	defer s.journal.Release(entry.TransactionID)

	blobCtx, cancel := context.WithTimeout(ctx, s.cfg.BlobTimeout)
	defer cancel()
	if err := s.blobs.Delete(blobCtx, rec.StorageKey); err != nil {
		s.logger.Warn("Не удалось удалить blob, удаляем метаданные",
			slog.String("owner_id", ownerID),
			slog.String("file_id", fileID),
			slog.String("storage_key", rec.StorageKey),
			slog.String("error", err.Error()),
		)
	}

	if err := s.files.Delete(ctx, ownerID, fileID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Параллельное удаление успело раньше
			s.commit(entry.TransactionID)
			return ErrNotFound
		}
		// Запись журнала остаётся pending: восстановление дочистит метаданные
		return fmt.Errorf("удаление метаданных: %w", err)
	}
	s.cache.Delete(ownerID, fileID)
	s.commit(entry.TransactionID)

	s.logger.Info("Файл удалён",
		slog.String("owner_id", ownerID),
		slog.String("file_id", fileID),
	)
	return nil
}

func (s *FileService) commit(txID string) {
	if err := s.journal.Commit(txID); err != nil {
		s.logger.Warn("Не удалось закоммитить запись журнала",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}
}

// SanitizeDisplayName оставляет только базовое имя без управляющих
// символов. Пустой результат означает недопустимое имя.
func SanitizeDisplayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if name == "." || name == ".." || name == "/" {
		return ""
	}
	if r := []rune(name); len(r) > maxDisplayNameLength {
		name = string(r[:maxDisplayNameLength])
	}
	return name
}

// NormalizeTags разбирает теги (элементы могут содержать несколько тегов
// через запятую), убирает пробелы, пустые значения и дубликаты без учёта регистра.
func NormalizeTags(raw []string) ([]string, error) {
	var tags []string
	seen := make(map[string]struct{})

	for _, item := range raw {
		for _, tag := range strings.Split(item, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if len([]rune(tag)) > maxTagLength {
				return nil, fmt.Errorf("%w: тег длиннее %d символов", ErrInvalidInput, maxTagLength)
			}
			lower := strings.ToLower(tag)
			if _, dup := seen[lower]; dup {
				continue
			}
			seen[lower] = struct{}{}
			tags = append(tags, tag)
		}
	}

	if len(tags) > maxTags {
		return nil, fmt.Errorf("%w: больше %d тегов", ErrInvalidInput, maxTags)
	}
	return tags, nil
}

// limitedReader отдаёт не больше remaining байт. Если за пределом
// остались данные, чтение завершается ErrFileTooLarge.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var peek [1]byte
		n, err := l.r.Read(peek[:])
		if n > 0 {
			return 0, ErrFileTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

// verifyingReader сверяет количество прочитанных байт с размером
// из метаданных. Короткий поток завершается ошибкой, а не io.EOF.
type verifyingReader struct {
	ctx      context.Context
	rc       io.ReadCloser
	expected int64
	read     int64
	cancel   context.CancelFunc
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	if err := v.ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageReadFailed, err)
	}

	n, err := v.rc.Read(p)
	v.read += int64(n)

	if v.read > v.expected {
		return n, fmt.Errorf("%w: размер данных больше ожидаемого (%d)", ErrStorageReadFailed, v.expected)
	}
	if errors.Is(err, io.EOF) && v.read != v.expected {
		return n, fmt.Errorf("%w: прочитано %d из %d байт: %v",
			ErrStorageReadFailed, v.read, v.expected, io.ErrUnexpectedEOF)
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	defer v.cancel()
	downloadBytesTotal.Add(float64(v.read))
	return v.rc.Close()
}
