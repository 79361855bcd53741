package kv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
)

func keyFile(ownerID, fileID string) []byte { return []byte(prefixFile + ownerID + ":" + fileID) }
func keyOwnerFiles(ownerID string) []byte   { return []byte(prefixFile + ownerID + ":") }

// fileRepo — FileRepository поверх badger.
type fileRepo struct {
	store *Store
}

// Create сохраняет запись. Повторный ID — repository.ErrConflict.
func (r *fileRepo) Create(ctx context.Context, f *model.FileRecord) error {
	err := r.store.update(ctx, func(txn *badger.Txn) error {
		key := keyFile(f.OwnerID, f.ID)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: файл с таким ID уже зарегистрирован", repository.ErrConflict)
		}
		return setJSON(txn, key, f)
	})
	return wrapErr("ошибка создания записи файла", err)
}

// GetByID возвращает запись владельца. Ключ включает owner_id,
// поэтому чужая запись просто не находится.
func (r *fileRepo) GetByID(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error) {
	var f model.FileRecord
	err := r.store.view(ctx, func(txn *badger.Txn) error {
		return getFile(txn, keyFile(ownerID, fileID), &f)
	})
	if err != nil {
		return nil, wrapErr("ошибка получения файла", err)
	}
	return &f, nil
}

// ListByOwner возвращает записи владельца, отсортированные в памяти.
func (r *fileRepo) ListByOwner(ctx context.Context, ownerID string, params repository.ListParams) ([]*model.FileRecord, error) {
	records, err := r.scan(ctx, ownerID, nil)
	if err != nil {
		return nil, err
	}
	sortRecords(records, params)
	return records, nil
}

// Search — регистронезависимый поиск подстроки в имени и тегах.
func (r *fileRepo) Search(ctx context.Context, ownerID, query string) ([]*model.FileRecord, error) {
	q := strings.ToLower(query)
	records, err := r.scan(ctx, ownerID, func(f *model.FileRecord) bool {
		if strings.Contains(strings.ToLower(f.OriginalName), q) {
			return true
		}
		for _, tag := range f.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	sortRecords(records, repository.ListParams{})
	return records, nil
}

// RecordAccess увеличивает счётчик в транзакции read-modify-write.
// Параллельные инкременты конфликтуют и повторяются, ни один не теряется.
func (r *fileRepo) RecordAccess(ctx context.Context, ownerID, fileID string, at time.Time) error {
	err := r.store.update(ctx, func(txn *badger.Txn) error {
		key := keyFile(ownerID, fileID)
		var f model.FileRecord
		if err := getFile(txn, key, &f); err != nil {
			return err
		}
		f.AccessCount++
		accessed := at
		f.LastAccessed = &accessed
		return setJSON(txn, key, &f)
	})
	return wrapErr("ошибка обновления счётчика скачиваний", err)
}

// Delete удаляет запись владельца.
func (r *fileRepo) Delete(ctx context.Context, ownerID, fileID string) error {
	err := r.store.update(ctx, func(txn *badger.Txn) error {
		key := keyFile(ownerID, fileID)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return repository.ErrNotFound
		}
		return txn.Delete(key)
	})
	return wrapErr("ошибка удаления записи файла", err)
}

// Usage суммирует размеры файлов владельца.
func (r *fileRepo) Usage(ctx context.Context, ownerID string) (totalSize, count int64, err error) {
	records, err := r.scan(ctx, ownerID, nil)
	if err != nil {
		return 0, 0, err
	}
	for _, f := range records {
		totalSize += f.Size
	}
	return totalSize, int64(len(records)), nil
}

// scan перебирает записи владельца по префиксу. match == nil — все записи.
func (r *fileRepo) scan(ctx context.Context, ownerID string, match func(*model.FileRecord) bool) ([]*model.FileRecord, error) {
	result := make([]*model.FileRecord, 0)

	err := r.store.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyOwnerFiles(ownerID)

		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			// Проверяем контекст каждые 100 записей
			if n%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			n++

			f := &model.FileRecord{}
			if err := it.Item().Value(func(val []byte) error {
				return decodeFile(val, f)
			}); err != nil {
				return err
			}
			if match == nil || match(f) {
				result = append(result, f)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки файлов: %w", err)
	}
	return result, nil
}

// getFile читает и декодирует запись о файле.
func getFile(txn *badger.Txn, key []byte, f *model.FileRecord) error {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return repository.ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return decodeFile(val, f)
	})
}

// sortRecords сортирует записи по whitelist-полю, id — вторичный ключ.
func sortRecords(records []*model.FileRecord, params repository.ListParams) {
	p := repository.NormalizeListParams(params)

	less := func(a, b *model.FileRecord) int {
		switch p.SortBy {
		case repository.SortByName:
			return strings.Compare(a.OriginalName, b.OriginalName)
		case repository.SortBySize:
			return compareInt64(a.Size, b.Size)
		case repository.SortByAccessCount:
			return compareInt64(a.AccessCount, b.AccessCount)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		c := less(records[i], records[j])
		if c == 0 {
			return records[i].ID < records[j].ID
		}
		if p.SortOrder == repository.SortAsc {
			return c < 0
		}
		return c > 0
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
