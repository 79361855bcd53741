// handler.go — APIHandler собирает доменные handlers и регистрирует
// их маршруты в chi-роутере.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware — обёртка над http.Handler (совместима с chi.Router.Use).
type Middleware = func(http.Handler) http.Handler

// APIHandler — единая точка регистрации бизнес-маршрутов.
type APIHandler struct {
	auth   *AuthHandler
	files  *FilesHandler
	search *SearchHandler
}

// NewAPIHandler создаёт handler для всех бизнес-endpoints.
func NewAPIHandler(auth *AuthHandler, files *FilesHandler, search *SearchHandler) *APIHandler {
	return &APIHandler{
		auth:   auth,
		files:  files,
		search: search,
	}
}

// Mount регистрирует бизнес-маршруты в r.
// requireAuth защищает всё, кроме signup/login; loginLimit
// применяется только к /auth/login; compress оборачивает JSON-ответы.
// Загрузка и скачивание идут без сжатия: тело файла передаётся как есть.
func (h *APIHandler) Mount(r chi.Router, requireAuth, loginLimit, compress Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(compress)

		r.Post("/auth/signup", h.auth.Signup)
		r.With(loginLimit).Post("/auth/login", h.auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/auth/me", h.auth.Me)
			r.Get("/files", h.files.ListFiles)
			r.Get("/files/usage", h.files.Usage)
			r.Get("/files/catalog", h.files.Catalog)
			r.Delete("/files/{file_id}", h.files.DeleteFile)
			r.Post("/search", h.search.Search)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/files/upload", h.files.UploadFile)
		r.Get("/files/{file_id}/download", h.files.DownloadFile)
	})
}

// JWKS возвращает handler публичных ключей (монтируется без префикса /api).
func (h *APIHandler) JWKS() http.HandlerFunc {
	return h.auth.JWKS
}
