package kv

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/repository"
)

func keyUser(id string) []byte     { return []byte(prefixUser + id) }
func keyEmail(email string) []byte { return []byte(prefixEmail + email) }

// userRepo — UserRepository поверх badger.
type userRepo struct {
	store *Store
}

// Create сохраняет пользователя и индекс email в одной транзакции.
// Параллельная регистрация с тем же email завершается конфликтом
// транзакции, после повтора — repository.ErrConflict.
func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	return r.store.update(ctx, func(txn *badger.Txn) error {
		taken, err := exists(txn, keyEmail(u.Email))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: пользователь с таким email уже существует", repository.ErrConflict)
		}
		if err := txn.Set(keyEmail(u.Email), []byte(u.ID)); err != nil {
			return err
		}
		return setJSON(txn, keyUser(u.ID), u)
	})
}

// GetByEmail ищет пользователя через индекс email.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.store.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(keyEmail(email))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return repository.ErrNotFound
			}
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, keyUser(string(id)), &u)
	})
	if err != nil {
		return nil, wrapErr("ошибка получения пользователя", err)
	}
	return &u, nil
}

// GetByID возвращает пользователя по UUID.
func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.store.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, keyUser(id), &u)
	})
	if err != nil {
		return nil, wrapErr("ошибка получения пользователя", err)
	}
	return &u, nil
}

// wrapErr оборачивает ошибку, сохраняя сентинелы репозитория как есть.
func wrapErr(msg string, err error) error {
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrConflict) {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
