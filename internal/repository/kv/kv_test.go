package kv

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newUser(email string) *model.User {
	return &model.User{
		ID:           uuid.NewString(),
		Username:     "user",
		Email:        email,
		PasswordHash: "$2a$10$hash",
		CreatedAt:    time.Now().UTC(),
	}
}

func newFile(ownerID, name string, size int64, created time.Time, tags ...string) *model.FileRecord {
	return &model.FileRecord{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		OriginalName:  name,
		StorageKey:    ownerID + "/" + name,
		Size:          size,
		ContentType:   "text/plain",
		CreatedAt:     created,
		Tags:          tags,
		SchemaVersion: model.FileSchemaVersion,
	}
}

func TestUserRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	users := newTestStore(t).Users()

	u := newUser("alice@x.com")
	require.NoError(t, users.Create(ctx, u))

	byEmail, err := users.GetByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, u.PasswordHash, byEmail.PasswordHash)

	byID, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", byID.Email)

	_, err = users.GetByEmail(ctx, "ALICE@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound, "email сравнивается с учётом регистра")

	_, err = users.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepo_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	users := newTestStore(t).Users()

	first := newUser("alice@x.com")
	require.NoError(t, users.Create(ctx, first))

	dup := newUser("alice@x.com")
	err := users.Create(ctx, dup)
	require.ErrorIs(t, err, repository.ErrConflict)

	// Состояние не изменилось
	_, err = users.GetByID(ctx, dup.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	got, err := users.GetByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestUserRepo_ConcurrentSignup(t *testing.T) {
	ctx := context.Background()
	users := newTestStore(t).Users()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- users.Create(ctx, newUser("race@x.com"))
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, repository.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok, "ровно одна регистрация должна пройти")
	assert.Equal(t, n-1, conflicts)
}

func TestFileRepo_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	files := newTestStore(t).Files()
	now := time.Now().UTC()

	alice, bob := uuid.NewString(), uuid.NewString()
	a := newFile(alice, "notes.txt", 10, now)
	b := newFile(bob, "notes.txt", 20, now)
	require.NoError(t, files.Create(ctx, a))
	require.NoError(t, files.Create(ctx, b))

	list, err := files.ListByOwner(ctx, alice, repository.ListParams{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	_, err = files.GetByID(ctx, bob, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.ErrorIs(t, files.Delete(ctx, bob, a.ID), repository.ErrNotFound)
	assert.ErrorIs(t, files.Create(ctx, a), repository.ErrConflict)

	// Пустой список — не nil
	empty, err := files.ListByOwner(ctx, uuid.NewString(), repository.ListParams{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestFileRepo_ListSorting(t *testing.T) {
	ctx := context.Background()
	files := newTestStore(t).Files()
	owner := uuid.NewString()
	base := time.Now().UTC()

	old := newFile(owner, "b.txt", 300, base.Add(-2*time.Hour))
	mid := newFile(owner, "a.txt", 100, base.Add(-time.Hour))
	recent := newFile(owner, "c.txt", 200, base)
	for _, f := range []*model.FileRecord{old, mid, recent} {
		require.NoError(t, files.Create(ctx, f))
	}

	tests := []struct {
		name   string
		params repository.ListParams
		want   []string
	}{
		{"по умолчанию created_at desc", repository.ListParams{}, []string{recent.ID, mid.ID, old.ID}},
		{"по имени asc", repository.ListParams{SortBy: "name", SortOrder: "asc"}, []string{mid.ID, old.ID, recent.ID}},
		{"по размеру desc", repository.ListParams{SortBy: "size"}, []string{old.ID, recent.ID, mid.ID}},
		{"неизвестное поле", repository.ListParams{SortBy: "owner_id"}, []string{recent.ID, mid.ID, old.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := files.ListByOwner(ctx, owner, tt.params)
			require.NoError(t, err)
			ids := make([]string, 0, len(list))
			for _, f := range list {
				ids = append(ids, f.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestFileRepo_Search(t *testing.T) {
	ctx := context.Background()
	files := newTestStore(t).Files()
	owner := uuid.NewString()
	now := time.Now().UTC()

	notes := newFile(owner, "Notes.TXT", 10, now, "work")
	photo := newFile(owner, "photo.jpg", 10, now)
	require.NoError(t, files.Create(ctx, notes))
	require.NoError(t, files.Create(ctx, photo))
	require.NoError(t, files.Create(ctx, newFile(uuid.NewString(), "notes.txt", 1, now)))

	found, err := files.Search(ctx, owner, "notes")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, notes.ID, found[0].ID)

	found, err = files.Search(ctx, owner, "WORK")
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = files.Search(ctx, owner, "missing")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFileRepo_RecordAccessConcurrent(t *testing.T) {
	ctx := context.Background()
	files := newTestStore(t).Files()
	owner := uuid.NewString()
	f := newFile(owner, "notes.txt", 10, time.Now().UTC())
	require.NoError(t, files.Create(ctx, f))

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, files.RecordAccess(ctx, owner, f.ID, time.Now().UTC()))
		}()
	}
	wg.Wait()

	got, err := files.GetByID(ctx, owner, f.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, got.AccessCount, "инкременты не должны теряться")
	assert.NotNil(t, got.LastAccessed)

	assert.ErrorIs(t, files.RecordAccess(ctx, owner, uuid.NewString(), time.Now()), repository.ErrNotFound)
}

func TestFileRepo_DeleteAndUsage(t *testing.T) {
	ctx := context.Background()
	files := newTestStore(t).Files()
	owner := uuid.NewString()
	now := time.Now().UTC()

	a := newFile(owner, "a.txt", 10, now)
	b := newFile(owner, "b.txt", 32, now)
	require.NoError(t, files.Create(ctx, a))
	require.NoError(t, files.Create(ctx, b))

	total, count, err := files.Usage(ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 42, total)
	assert.EqualValues(t, 2, count)

	require.NoError(t, files.Delete(ctx, owner, a.ID))
	assert.ErrorIs(t, files.Delete(ctx, owner, a.ID), repository.ErrNotFound)

	total, count, err = files.Usage(ctx, owner)
	require.NoError(t, err)
	assert.EqualValues(t, 32, total)
	assert.EqualValues(t, 1, count)
}

func TestDecodeFile_SchemaVersion(t *testing.T) {
	var f model.FileRecord
	require.NoError(t, decodeFile([]byte(`{"id":"x","original_name":"a.txt"}`), &f))
	assert.Equal(t, 1, f.SchemaVersion, "отсутствующая версия трактуется как 1")

	err := decodeFile([]byte(`{"id":"x","schema_version":99}`), &f)
	assert.Error(t, err)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	s, err := Open(dir, logger)
	require.NoError(t, err)
	u := newUser("persist@x.com")
	require.NoError(t, s.Users().Create(ctx, u))
	require.NoError(t, s.Close())

	s, err = Open(dir, logger)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Users().GetByEmail(ctx, "persist@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	status, _ := s.CheckReady()
	assert.Equal(t, "ok", status)
	assert.NoError(t, s.RunGC())
}

func TestStore_UpdateRetriesOnConflict(t *testing.T) {
	s := newTestStore(t)
	calls := 0
	err := s.update(context.Background(), func(txn *badger.Txn) error {
		calls++
		if calls < 3 {
			return badger.ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.update(ctx, func(*badger.Txn) error { return nil }), context.Canceled)
}
