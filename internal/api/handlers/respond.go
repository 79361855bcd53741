package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
)

// validate — общий валидатор DTO (потокобезопасен, кэширует структуры).
var validate = validator.New()

// writeJSON записывает JSON-ответ с указанным статус-кодом.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// formatTime форматирует время в RFC 3339 (UTC).
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// userResponse — представление пользователя в API. Хэш пароля не отдаётся.
type userResponse struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	StorageLimit int64  `json:"storageLimit"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		StorageLimit: u.StorageLimit,
	}
}

// tagResponse — тег в формате SPA: {"tag": "..."}.
type tagResponse struct {
	Tag string `json:"tag"`
}

// fileResponse — представление файла в API. Ключ хранения не отдаётся.
type fileResponse struct {
	ID           string        `json:"_id"`
	OriginalName string        `json:"originalName"`
	MimeType     string        `json:"mimetype"`
	Size         int64         `json:"size"`
	AccessCount  int64         `json:"accessCount"`
	LastAccessed *string       `json:"lastAccessed"`
	UploadedAt   string        `json:"uploadedAt"`
	Tags         []tagResponse `json:"tags"`
	Checksum     string        `json:"checksum"`
}

func toFileResponse(f *model.FileRecord) fileResponse {
	resp := fileResponse{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		MimeType:     f.ContentType,
		Size:         f.Size,
		AccessCount:  f.AccessCount,
		UploadedAt:   formatTime(f.CreatedAt),
		Tags:         make([]tagResponse, 0, len(f.Tags)),
		Checksum:     f.Checksum,
	}
	if f.LastAccessed != nil {
		s := formatTime(*f.LastAccessed)
		resp.LastAccessed = &s
	}
	for _, tag := range f.Tags {
		resp.Tags = append(resp.Tags, tagResponse{Tag: tag})
	}
	return resp
}

func toFileResponses(records []*model.FileRecord) []fileResponse {
	out := make([]fileResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toFileResponse(rec))
	}
	return out
}
