package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
	"github.com/bigkaa/goartstore/file-vault/internal/storage/blob"
	"github.com/bigkaa/goartstore/file-vault/internal/storage/journal"
)

type recoveryFixture struct {
	svc     *RecoveryService
	files   *mockFileRepo
	blobs   *mockBlobStore
	fsStore *blob.FSStore
	journal *journal.Journal
}

func newRecoveryFixture(t *testing.T) *recoveryFixture {
	t.Helper()

	fsStore, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FSStore: %v", err)
	}
	j, err := journal.New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания журнала: %v", err)
	}
	files := newMockFileRepo()
	blobs := &mockBlobStore{Store: fsStore}

	return &recoveryFixture{
		svc:     NewRecoveryService(files, blobs, j, time.Hour, time.Minute, nil, testLogger()),
		files:   files,
		blobs:   blobs,
		fsStore: fsStore,
		journal: j,
	}
}

// putBlob записывает blob и возвращает намерение для журнала.
func (f *recoveryFixture) putBlob(t *testing.T, fileID string) journal.Intent {
	t.Helper()
	key := blob.GenerateKey(testOwner, "a.txt")
	if _, err := f.fsStore.Put(context.Background(), key, strings.NewReader("data")); err != nil {
		t.Fatalf("ошибка записи blob: %v", err)
	}
	return journal.Intent{FileID: fileID, OwnerID: testOwner, StorageKey: key}
}

func (f *recoveryFixture) begin(t *testing.T, op journal.Operation, intent journal.Intent) string {
	t.Helper()
	entry, err := f.journal.Begin(op, intent)
	if err != nil {
		t.Fatalf("ошибка записи в журнал: %v", err)
	}
	return entry.TransactionID
}

func (f *recoveryFixture) blobExists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := f.fsStore.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("ошибка Exists: %v", err)
	}
	return ok
}

func TestRecovery_AbandonedUploadRemovesBlob(t *testing.T) {
	f := newRecoveryFixture(t)
	intent := f.putBlob(t, "file-1")
	f.begin(t, journal.OpUpload, intent)

	res := f.svc.RunOnce(context.Background(), 0)

	if res.RolledBack != 1 || res.BlobsRemoved != 1 || res.Errors != 0 {
		t.Errorf("ожидалось rolled_back=1 blobs_removed=1 errors=0, получено %+v", res)
	}
	if f.blobExists(t, intent.StorageKey) {
		t.Error("осиротевший blob должен быть удалён")
	}
	if res.Cleaned != 1 {
		t.Errorf("Cleaned: ожидалось 1, получено %d", res.Cleaned)
	}
}

func TestRecovery_UploadWithMetadataIsCommitted(t *testing.T) {
	f := newRecoveryFixture(t)
	intent := f.putBlob(t, "file-1")
	if err := f.files.Create(context.Background(), &model.FileRecord{
		ID: "file-1", OwnerID: testOwner, StorageKey: intent.StorageKey,
	}); err != nil {
		t.Fatalf("ошибка подготовки записи: %v", err)
	}
	f.begin(t, journal.OpUpload, intent)

	res := f.svc.RunOnce(context.Background(), 0)

	if res.Committed != 1 || res.RolledBack != 0 {
		t.Errorf("ожидалось committed=1, получено %+v", res)
	}
	if !f.blobExists(t, intent.StorageKey) {
		t.Error("blob файла с метаданными не должен удаляться")
	}
}

func TestRecovery_UploadWithoutBlob(t *testing.T) {
	f := newRecoveryFixture(t)
	f.begin(t, journal.OpUpload, journal.Intent{
		FileID:     "file-1",
		OwnerID:    testOwner,
		StorageKey: blob.GenerateKey(testOwner, "never-written.txt"),
	})

	res := f.svc.RunOnce(context.Background(), 0)

	if res.RolledBack != 1 || res.BlobsRemoved != 0 || res.Errors != 0 {
		t.Errorf("ожидалось rolled_back=1 blobs_removed=0, получено %+v", res)
	}
}

func TestRecovery_InterruptedDelete(t *testing.T) {
	f := newRecoveryFixture(t)
	ctx := context.Background()
	intent := f.putBlob(t, "file-1")
	if err := f.files.Create(ctx, &model.FileRecord{
		ID: "file-1", OwnerID: testOwner, StorageKey: intent.StorageKey,
	}); err != nil {
		t.Fatalf("ошибка подготовки записи: %v", err)
	}
	f.begin(t, journal.OpDelete, intent)

	res := f.svc.RunOnce(ctx, 0)

	if res.Committed != 1 || res.BlobsRemoved != 1 {
		t.Errorf("ожидалось committed=1 blobs_removed=1, получено %+v", res)
	}
	if _, err := f.files.GetByID(ctx, testOwner, "file-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("метаданные должны быть удалены, получено %v", err)
	}
	if f.blobExists(t, intent.StorageKey) {
		t.Error("blob должен быть удалён")
	}
}

func TestRecovery_SkipsYoungEntries(t *testing.T) {
	f := newRecoveryFixture(t)
	intent := f.putBlob(t, "file-1")
	f.begin(t, journal.OpUpload, intent)

	res := f.svc.RunOnce(context.Background(), time.Hour)

	if res.Skipped != 1 || res.RolledBack != 0 {
		t.Errorf("ожидалось skipped=1, получено %+v", res)
	}
	if !f.blobExists(t, intent.StorageKey) {
		t.Error("blob незавершённой загрузки не должен удаляться")
	}
	pending, err := f.journal.Pending()
	if err != nil {
		t.Fatalf("ошибка чтения журнала: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("запись должна остаться pending, получено %d", len(pending))
	}
}

func TestRecovery_BlobDeleteErrorKeepsPending(t *testing.T) {
	f := newRecoveryFixture(t)
	intent := f.putBlob(t, "file-1")
	f.begin(t, journal.OpUpload, intent)

	f.blobs.deleteFn = func(context.Context, string) error {
		return errors.New("storage down")
	}

	res := f.svc.RunOnce(context.Background(), 0)
	if res.Errors != 1 {
		t.Errorf("ожидалась 1 ошибка, получено %+v", res)
	}

	pending, err := f.journal.Pending()
	if err != nil {
		t.Fatalf("ошибка чтения журнала: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("запись должна остаться pending для следующего прохода, получено %d", len(pending))
	}

	// Хранилище восстановилось: следующий проход дочищает
	f.blobs.deleteFn = nil
	res = f.svc.RunOnce(context.Background(), 0)
	if res.RolledBack != 1 {
		t.Errorf("повторный проход: ожидалось rolled_back=1, получено %+v", res)
	}
}

func TestRecovery_RunCallsMaintenance(t *testing.T) {
	fsStore, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FSStore: %v", err)
	}
	j, err := journal.New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("ошибка создания журнала: %v", err)
	}

	var calls atomic.Int32
	maintenance := func() error {
		calls.Add(1)
		return errors.New("nothing to collect")
	}
	svc := NewRecoveryService(newMockFileRepo(), fsStore, j, 10*time.Millisecond, time.Minute, maintenance, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run вернул ошибку: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
	if calls.Load() < 2 {
		t.Errorf("maintenance должен вызываться на каждом проходе, вызовов %d", calls.Load())
	}
}
