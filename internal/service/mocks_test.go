package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
	"github.com/bigkaa/goartstore/file-vault/internal/storage/blob"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock UserRepository ---

// mockUserRepo — in-memory UserRepository с возможностью подмены методов.
type mockUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]string

	getByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return repository.ErrConflict
	}
	cp := *u
	m.byID[u.ID] = &cp
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// --- Mock FileRepository ---

// mockFileRepo — in-memory FileRepository. Поля *Fn подменяют поведение
// отдельных методов для проверки ошибочных сценариев.
type mockFileRepo struct {
	mu      sync.Mutex
	records map[string]*model.FileRecord

	createFn       func(ctx context.Context, f *model.FileRecord) error
	getByIDFn      func(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error)
	searchFn       func(ctx context.Context, ownerID, query string) ([]*model.FileRecord, error)
	recordAccessFn func(ctx context.Context, ownerID, fileID string, at time.Time) error
	deleteFn       func(ctx context.Context, ownerID, fileID string) error
	usageFn        func(ctx context.Context, ownerID string) (int64, int64, error)
}

func newMockFileRepo() *mockFileRepo {
	return &mockFileRepo{records: make(map[string]*model.FileRecord)}
}

func (m *mockFileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	if m.createFn != nil {
		return m.createFn(ctx, f)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[f.ID]; ok {
		return repository.ErrConflict
	}
	cp := *f
	m.records[f.ID] = &cp
	return nil
}

func (m *mockFileRepo) GetByID(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, ownerID, fileID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.records[fileID]
	if !ok || f.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockFileRepo) ListByOwner(_ context.Context, ownerID string, _ repository.ListParams) ([]*model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*model.FileRecord, 0)
	for _, f := range m.records {
		if f.OwnerID == ownerID {
			cp := *f
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *mockFileRepo) Search(ctx context.Context, ownerID, query string) ([]*model.FileRecord, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, ownerID, query)
	}
	all, _ := m.ListByOwner(ctx, ownerID, repository.ListParams{})
	q := strings.ToLower(query)
	result := make([]*model.FileRecord, 0)
	for _, f := range all {
		match := strings.Contains(strings.ToLower(f.OriginalName), q)
		for _, tag := range f.Tags {
			match = match || strings.Contains(strings.ToLower(tag), q)
		}
		if match {
			result = append(result, f)
		}
	}
	return result, nil
}

func (m *mockFileRepo) RecordAccess(ctx context.Context, ownerID, fileID string, at time.Time) error {
	if m.recordAccessFn != nil {
		return m.recordAccessFn(ctx, ownerID, fileID, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.records[fileID]
	if !ok || f.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	f.AccessCount++
	f.LastAccessed = &at
	return nil
}

func (m *mockFileRepo) Delete(ctx context.Context, ownerID, fileID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ownerID, fileID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.records[fileID]
	if !ok || f.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(m.records, fileID)
	return nil
}

func (m *mockFileRepo) Usage(ctx context.Context, ownerID string) (int64, int64, error) {
	if m.usageFn != nil {
		return m.usageFn(ctx, ownerID)
	}
	all, _ := m.ListByOwner(ctx, ownerID, repository.ListParams{})
	var total int64
	for _, f := range all {
		total += f.Size
	}
	return total, int64(len(all)), nil
}

// --- Mock blob.Store ---

// mockBlobStore оборачивает реальный Store и позволяет подменить методы.
type mockBlobStore struct {
	blob.Store

	putFn    func(ctx context.Context, key string, r io.Reader) (*blob.PutResult, error)
	getFn    func(ctx context.Context, key string) (io.ReadCloser, error)
	deleteFn func(ctx context.Context, key string) error
}

func (m *mockBlobStore) Put(ctx context.Context, key string, r io.Reader) (*blob.PutResult, error) {
	if m.putFn != nil {
		return m.putFn(ctx, key, r)
	}
	return m.Store.Put(ctx, key, r)
}

func (m *mockBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return m.Store.Get(ctx, key)
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return m.Store.Delete(ctx, key)
}
