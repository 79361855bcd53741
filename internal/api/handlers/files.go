// files.go — HTTP handlers для файловых операций File Vault.
// Upload, List, Download, Delete, Usage и производное представление для
// внешних сервисов (catalog). Все операции ограничены владельцем из JWT.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goartstore/file-vault/internal/api/errors"
	"github.com/bigkaa/goartstore/file-vault/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
	"github.com/bigkaa/goartstore/file-vault/internal/service"
)

const (
	// multipartOverhead — запас на заголовки multipart сверх лимита файла
	multipartOverhead = 1 << 20
	// maxTagsFieldSize — ограничение поля tags в multipart
	maxTagsFieldSize = 4 << 10
)

// FileManager — операции FileService, нужные обработчикам.
type FileManager interface {
	Upload(ctx context.Context, ownerID string, in service.UploadInput) (*model.FileRecord, error)
	List(ctx context.Context, ownerID string, params repository.ListParams) ([]*model.FileRecord, error)
	Download(ctx context.Context, ownerID, fileID string) (*service.Download, error)
	Delete(ctx context.Context, ownerID, fileID string) error
}

// UsageProvider — статистика хранилища владельца.
type UsageProvider interface {
	Usage(ctx context.Context, ownerID string) (*model.Usage, error)
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	files         FileManager
	usage         UsageProvider
	maxUploadSize int64
	logger        *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(files FileManager, usage UsageProvider, maxUploadSize int64, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		files:         files,
		usage:         usage,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "files_handler")),
	}
}

type uploadResponse struct {
	Success bool         `json:"success"`
	File    fileResponse `json:"file"`
}

type listResponse struct {
	Files []fileResponse `json:"files"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// listQuery — параметры GET /files.
type listQuery struct {
	SortBy    string `validate:"omitempty,oneof=created_at name size access_count"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

type usageResponse struct {
	TotalSize         int64   `json:"totalSize"`
	FileCount         int64   `json:"fileCount"`
	StorageLimit      int64   `json:"storageLimit"`
	UsedPercent       float64 `json:"usedPercent"`
	TotalSizeHuman    string  `json:"totalSizeHuman"`
	StorageLimitHuman string  `json:"storageLimitHuman"`
}

// catalogEntry — запись производного представления для внешних
// сервисов рекомендаций и поиска дубликатов.
type catalogEntry struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Size         int64   `json:"size"`
	AccessCount  int64   `json:"accessCount"`
	UploadedAt   string  `json:"uploadedAt"`
	LastAccessed *string `json:"lastAccessed"`
	Checksum     string  `json:"checksum"`
}

// UploadFile обрабатывает POST /files/upload.
// Multipart читается потоком: поле tags (опционально, через запятую)
// должно идти до поля file. Теги также принимаются в query (?tags=a,b).
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.InvalidInput(w, "Ожидается multipart/form-data")
		return
	}

	tags := r.URL.Query()["tags"]
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			apierrors.InvalidInput(w, "Поле 'file' обязательно")
			return
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				apierrors.FileTooLarge(w, "Файл превышает допустимый размер "+humanize.IBytes(uint64(h.maxUploadSize)))
				return
			}
			apierrors.InvalidInput(w, "Ошибка разбора multipart: "+err.Error())
			return
		}

		switch part.FormName() {
		case "tags":
			data, err := io.ReadAll(io.LimitReader(part, maxTagsFieldSize))
			part.Close()
			if err != nil {
				apierrors.InvalidInput(w, "Ошибка чтения поля tags")
				return
			}
			tags = append(tags, string(data))
		case "file":
			h.upload(w, r, subject, part.FileName(), part.Header.Get("Content-Type"), tags, part)
			part.Close()
			return
		default:
			part.Close()
		}
	}
}

func (h *FilesHandler) upload(w http.ResponseWriter, r *http.Request, subject, name, contentType string, tags []string, body io.Reader) {
	rec, err := h.files.Upload(r.Context(), subject, service.UploadInput{
		Name:        name,
		ContentType: contentType,
		Tags:        tags,
		Body:        body,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			apierrors.InvalidInput(w, err.Error())
		case errors.Is(err, service.ErrFileTooLarge):
			apierrors.FileTooLarge(w, "Файл превышает допустимый размер "+humanize.IBytes(uint64(h.maxUploadSize)))
		case errors.Is(err, service.ErrStorageWriteFailed):
			apierrors.StorageWriteFailed(w, "Хранилище недоступно, повторите загрузку")
		default:
			h.logger.Error("Ошибка загрузки файла",
				slog.String("owner_id", subject),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Внутренняя ошибка сервера")
		}
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Success: true, File: toFileResponse(rec)})
}

// ListFiles обрабатывает GET /files?sort_by=&sort_order=.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	q := listQuery{
		SortBy:    r.URL.Query().Get("sort_by"),
		SortOrder: r.URL.Query().Get("sort_order"),
	}
	if err := validate.Struct(q); err != nil {
		apierrors.InvalidInput(w, "Допустимые значения: sort_by=created_at|name|size|access_count, sort_order=asc|desc")
		return
	}

	records, err := h.files.List(r.Context(), subject, repository.ListParams{
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	})
	if err != nil {
		h.logger.Error("Ошибка получения списка файлов",
			slog.String("owner_id", subject),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Files: toFileResponses(records)})
}

// DownloadFile обрабатывает GET /files/{file_id}/download.
// Тело отдаётся потоком; Content-Length берётся из метаданных.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	fileID, ok := bindFileID(w, r)
	if !ok {
		return
	}

	d, err := h.files.Download(r.Context(), subject, fileID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			apierrors.NotFound(w, "Файл не найден")
		case errors.Is(err, service.ErrStorageReadFailed):
			apierrors.StorageReadFailed(w, "Хранилище недоступно, повторите позже")
		default:
			h.logger.Error("Ошибка скачивания файла",
				slog.String("owner_id", subject),
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Внутренняя ошибка сервера")
		}
		return
	}
	defer d.Body.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", d.File.ContentType)
	hdr.Set("Content-Length", strconv.FormatInt(d.File.Size, 10))
	hdr.Set("Content-Disposition", contentDisposition(d.File.OriginalName))
	hdr.Set("X-Content-Type-Options", "nosniff")
	if d.File.Checksum != "" {
		hdr.Set("ETag", `"`+d.File.Checksum+`"`)
	}
	w.WriteHeader(http.StatusOK)

	// После заголовков статус уже не изменить: обрыв потока виден клиенту
	// как несовпадение с Content-Length
	if _, err := io.Copy(w, d.Body); err != nil {
		h.logger.Warn("Поток скачивания прерван",
			slog.String("owner_id", subject),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteFile обрабатывает DELETE /files/{file_id}.
// Удаление отсутствующего (или чужого) файла — успех.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	fileID, ok := bindFileID(w, r)
	if !ok {
		return
	}

	if err := h.files.Delete(r.Context(), subject, fileID); err != nil && !errors.Is(err, service.ErrNotFound) {
		h.logger.Error("Ошибка удаления файла",
			slog.String("owner_id", subject),
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// Usage обрабатывает GET /files/usage.
func (h *FilesHandler) Usage(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	u, err := h.usage.Usage(r.Context(), subject)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Пользователь не найден")
			return
		}
		h.logger.Error("Ошибка подсчёта использования",
			slog.String("owner_id", subject),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		TotalSize:         u.TotalSize,
		FileCount:         u.FileCount,
		StorageLimit:      u.StorageLimit,
		UsedPercent:       u.UsedPercent(),
		TotalSizeHuman:    humanize.IBytes(uint64(u.TotalSize)),
		StorageLimitHuman: humanize.IBytes(uint64(u.StorageLimit)),
	})
}

// Catalog обрабатывает GET /files/catalog.
func (h *FilesHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	records, err := h.files.List(r.Context(), subject, repository.ListParams{})
	if err != nil {
		h.logger.Error("Ошибка получения каталога",
			slog.String("owner_id", subject),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	entries := make([]catalogEntry, 0, len(records))
	for _, rec := range records {
		f := toFileResponse(rec)
		entries = append(entries, catalogEntry{
			ID:           f.ID,
			Name:         f.OriginalName,
			Type:         f.MimeType,
			Size:         f.Size,
			AccessCount:  f.AccessCount,
			UploadedAt:   f.UploadedAt,
			LastAccessed: f.LastAccessed,
			Checksum:     f.Checksum,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// bindFileID разбирает {file_id} как UUID. При ошибке пишет 400.
func bindFileID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var fileID openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "file_id", chi.URLParam(r, "file_id"), &fileID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.InvalidInput(w, "Некорректный идентификатор файла: ожидается UUID")
		return "", false
	}
	return fileID.String(), true
}

// contentDisposition формирует заголовок attachment с именем файла.
// Не-ASCII имена кодируются по RFC 2231.
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
