package service

import "errors"

// Ошибки сервисного слоя. HTTP-слой сопоставляет их с кодами ответа.
var (
	// ErrInvalidInput — некорректные входные данные.
	ErrInvalidInput = errors.New("некорректные входные данные")
	// ErrDuplicateIdentity — email уже зарегистрирован.
	ErrDuplicateIdentity = errors.New("пользователь с таким email уже существует")
	// ErrInvalidCredential — неверный пароль.
	ErrInvalidCredential = errors.New("неверные учётные данные")
	// ErrInvalidToken — токен недействителен (любая причина).
	ErrInvalidToken = errors.New("недействительный токен")
	// ErrNotFound — запись отсутствует или принадлежит другому владельцу.
	ErrNotFound = errors.New("не найдено")
	// ErrStorageWriteFailed — не удалось записать blob.
	ErrStorageWriteFailed = errors.New("ошибка записи в хранилище")
	// ErrStorageReadFailed — не удалось прочитать blob существующей записи.
	ErrStorageReadFailed = errors.New("ошибка чтения из хранилища")
	// ErrFileTooLarge — превышен максимальный размер загрузки.
	ErrFileTooLarge = errors.New("файл превышает допустимый размер")
)
