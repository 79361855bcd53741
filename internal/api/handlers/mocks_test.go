package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bigkaa/goartstore/file-vault/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
	"github.com/bigkaa/goartstore/file-vault/internal/service"
)

// testOwner — subject, подставляемый в контекст запросов.
const testOwner = "4b1e6f3a-0c2d-4e5f-8a9b-1c2d3e4f5a6b"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mockIdentity ---

type mockIdentity struct {
	registerFn     func(ctx context.Context, username, email, password string) (*service.AuthResult, error)
	authenticateFn func(ctx context.Context, email, password string) (*service.AuthResult, error)
	currentUserFn  func(ctx context.Context, userID string) (*model.User, error)
	jwksFn         func(ctx context.Context) (json.RawMessage, error)
}

func (m *mockIdentity) Register(ctx context.Context, username, email, password string) (*service.AuthResult, error) {
	return m.registerFn(ctx, username, email, password)
}

func (m *mockIdentity) Authenticate(ctx context.Context, email, password string) (*service.AuthResult, error) {
	return m.authenticateFn(ctx, email, password)
}

func (m *mockIdentity) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	return m.currentUserFn(ctx, userID)
}

func (m *mockIdentity) JWKS(ctx context.Context) (json.RawMessage, error) {
	return m.jwksFn(ctx)
}

// --- mockFiles ---

type mockFiles struct {
	uploadFn   func(ctx context.Context, ownerID string, in service.UploadInput) (*model.FileRecord, error)
	listFn     func(ctx context.Context, ownerID string, params repository.ListParams) ([]*model.FileRecord, error)
	downloadFn func(ctx context.Context, ownerID, fileID string) (*service.Download, error)
	deleteFn   func(ctx context.Context, ownerID, fileID string) error
	usageFn    func(ctx context.Context, ownerID string) (*model.Usage, error)
}

func (m *mockFiles) Upload(ctx context.Context, ownerID string, in service.UploadInput) (*model.FileRecord, error) {
	return m.uploadFn(ctx, ownerID, in)
}

func (m *mockFiles) List(ctx context.Context, ownerID string, params repository.ListParams) ([]*model.FileRecord, error) {
	return m.listFn(ctx, ownerID, params)
}

func (m *mockFiles) Download(ctx context.Context, ownerID, fileID string) (*service.Download, error) {
	return m.downloadFn(ctx, ownerID, fileID)
}

func (m *mockFiles) Delete(ctx context.Context, ownerID, fileID string) error {
	return m.deleteFn(ctx, ownerID, fileID)
}

func (m *mockFiles) Usage(ctx context.Context, ownerID string) (*model.Usage, error) {
	return m.usageFn(ctx, ownerID)
}

// --- mockSearcher ---

type mockSearcher struct {
	searchFn func(ctx context.Context, ownerID, query string) ([]model.SearchMatch, error)
}

func (m *mockSearcher) Search(ctx context.Context, ownerID, query string) ([]model.SearchMatch, error) {
	return m.searchFn(ctx, ownerID, query)
}

// --- helpers ---

// withOwner добавляет testOwner в контекст запроса, как это делает BearerAuth.
func withOwner(r *http.Request) *http.Request {
	return r.WithContext(middleware.WithSubject(r.Context(), testOwner))
}

// decodeBody разбирает JSON-тело ответа.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("ошибка разбора тела %q: %v", rec.Body.String(), err)
	}
}

// errorCode извлекает error.code из тела ответа.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error.Code
}
