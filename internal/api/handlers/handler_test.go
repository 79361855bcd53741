package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
)

// denyAll — requireAuth, отклоняющий все запросы.
func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func passThrough(next http.Handler) http.Handler { return next }

func TestAPIHandler_Mount(t *testing.T) {
	files := &mockFiles{
		listFn: func(context.Context, string, repository.ListParams) ([]*model.FileRecord, error) {
			return nil, nil
		},
	}
	api := NewAPIHandler(
		NewAuthHandler(&mockIdentity{}, testLogger()),
		NewFilesHandler(files, files, 1<<20, testLogger()),
		NewSearchHandler(&mockSearcher{}, testLogger()),
	)

	r := chi.NewRouter()
	api.Mount(r, denyAll, passThrough, passThrough)
	r.Route("/api", func(r chi.Router) {
		api.Mount(r, passThrough, passThrough, passThrough)
	})

	protected := []struct{ method, path string }{
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/files"},
		{http.MethodGet, "/files/usage"},
		{http.MethodGet, "/files/catalog"},
		{http.MethodPost, "/files/upload"},
		{http.MethodGet, "/files/" + testFileID + "/download"},
		{http.MethodDelete, "/files/" + testFileID},
		{http.MethodPost, "/search"},
	}
	for _, p := range protected {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(p.method, p.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: ожидался статус 401, получен %d", p.method, p.path, rec.Code)
		}
	}

	// signup и login не требуют токена: пустое тело даёт 400, а не 401
	for _, path := range []string{"/auth/signup", "/auth/login"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s: ожидался статус 400, получен %d", path, rec.Code)
		}
	}

	// Префикс /api обслуживает те же маршруты
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/files: ожидался статус 200, получен %d", rec.Code)
	}
}
