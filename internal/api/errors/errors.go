// Пакет errors — конструкторы стандартных ошибок File Vault.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeDuplicateIdentity  = "DUPLICATE_IDENTITY"
	CodeInvalidCredential  = "INVALID_CREDENTIAL"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeNotFound           = "NOT_FOUND"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeStorageWriteFailed = "STORAGE_WRITE_FAILED"
	CodeStorageReadFailed  = "STORAGE_READ_FAILED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// InvalidInput — 400 некорректные или отсутствующие поля запроса.
func InvalidInput(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidInput, message)
}

// DuplicateIdentity — 400 пользователь с таким email уже существует.
func DuplicateIdentity(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeDuplicateIdentity, message)
}

// InvalidCredential — 400 неверный email или пароль.
// Сообщение не должно раскрывать, какая из частей неверна.
func InvalidCredential(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidCredential, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// InvalidToken — 401 токен не прошёл проверку.
func InvalidToken(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidToken, message)
}

// NotFound — 404 ресурс не найден (или принадлежит другому пользователю).
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// TooManyRequests — 429 превышен лимит запросов.
func TooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeTooManyRequests, message)
}

// StorageWriteFailed — 502 хранилище недоступно при записи.
func StorageWriteFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeStorageWriteFailed, message)
}

// StorageReadFailed — 502 хранилище недоступно при чтении.
func StorageReadFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeStorageReadFailed, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
