package model

import "time"

// User — зарегистрированный пользователь.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	// Email уникален и сравнивается с учётом регистра, как сохранён
	Email string `json:"email"`
	// PasswordHash — bcrypt-хэш пароля
	PasswordHash string `json:"password_hash"`
	// StorageLimit — отображаемый лимит хранилища в байтах
	StorageLimit int64     `json:"storage_limit"`
	CreatedAt    time.Time `json:"created_at"`
}
