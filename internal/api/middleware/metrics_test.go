package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNormalizePath(t *testing.T) {
	var got string
	capture := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			got = normalizePath(r)
		})
	}

	router := chi.NewRouter()
	router.Use(capture)
	router.Get("/files/{file_id}/download", func(http.ResponseWriter, *http.Request) {})
	router.Route("/api", func(r chi.Router) {
		r.Delete("/files/{file_id}", func(http.ResponseWriter, *http.Request) {})
	})

	tests := []struct {
		method   string
		path     string
		expected string
	}{
		{http.MethodGet, "/files/0b8f3c1e-9a7d-4c1b-8e2f-5d6a7b8c9d0e/download", "/files/{file_id}/download"},
		{http.MethodDelete, "/api/files/0b8f3c1e-9a7d-4c1b-8e2f-5d6a7b8c9d0e", "/api/files/{file_id}"},
		{http.MethodGet, "/wp-admin/setup.php", unmatchedPath},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))
			if got != tt.expected {
				t.Errorf("ожидалось %q, получено %q", tt.expected, got)
			}
		})
	}
}

func TestNormalizePath_WithoutRouter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	if got := normalizePath(req); got != unmatchedPath {
		t.Errorf("ожидалось %q, получено %q", unmatchedPath, got)
	}
}

func TestMetricsMiddleware_CapturesStatus(t *testing.T) {
	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("статус должен проходить насквозь, получен %d", rec.Code)
	}
}
