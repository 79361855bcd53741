// auth.go — регистрация, вход, профиль и публичный JWKS.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/bigkaa/goartstore/file-vault/internal/api/errors"
	"github.com/bigkaa/goartstore/file-vault/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-vault/internal/domain/model"
	"github.com/bigkaa/goartstore/file-vault/internal/service"
)

// maxJSONBodySize — ограничение тела JSON-запросов.
const maxJSONBodySize = 1 << 20

// invalidCredentialMessage — одинаковое сообщение для неизвестного email
// и неверного пароля.
const invalidCredentialMessage = "Неверный email или пароль"

// IdentityProvider — операции IdentityService, нужные обработчикам.
type IdentityProvider interface {
	Register(ctx context.Context, username, email, password string) (*service.AuthResult, error)
	Authenticate(ctx context.Context, email, password string) (*service.AuthResult, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
	JWKS(ctx context.Context) (json.RawMessage, error)
}

// AuthHandler — обработчик auth endpoints.
type AuthHandler struct {
	identity IdentityProvider
	logger   *slog.Logger
}

// NewAuthHandler создаёт обработчик auth endpoints.
func NewAuthHandler(identity IdentityProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		logger:   logger.With(slog.String("component", "auth_handler")),
	}
}

// signupRequest — тело POST /auth/signup.
// Пароль ограничен 72 байтами: дальше bcrypt не различает пароли.
type signupRequest struct {
	Username string `json:"username" validate:"omitempty,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// loginRequest — тело POST /auth/login.
type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type signupResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

type loginResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

// Signup обрабатывает POST /auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.identity.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateIdentity):
			apierrors.DuplicateIdentity(w, "Пользователь с таким email уже существует")
		case errors.Is(err, service.ErrInvalidInput):
			apierrors.InvalidInput(w, err.Error())
		default:
			h.logger.Error("Ошибка регистрации",
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Внутренняя ошибка сервера")
		}
		return
	}

	writeJSON(w, http.StatusCreated, signupResponse{
		Success: true,
		Message: "User created successfully",
		Token:   res.Token,
		User:    toUserResponse(res.User),
	})
}

// Login обрабатывает POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInvalidCredential) {
			apierrors.InvalidCredential(w, invalidCredentialMessage)
			return
		}
		h.logger.Error("Ошибка входа", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Token:   res.Token,
		User:    toUserResponse(res.User),
	})
}

// Me обрабатывает GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectFromContext(r.Context())

	user, err := h.identity.CurrentUser(r.Context(), subject)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Пользователь не найден")
			return
		}
		h.logger.Error("Ошибка получения профиля",
			slog.String("owner_id", subject),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(user)})
}

// JWKS обрабатывает GET /.well-known/jwks.json.
func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	raw, err := h.identity.JWKS(r.Context())
	if err != nil {
		h.logger.Error("Ошибка формирования JWKS", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// decodeAndValidate читает JSON-тело в dst и валидирует его.
// При ошибке пишет ответ INVALID_INPUT и возвращает false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeJSON(w, r, dst, false)
}

// decodeOptionalAndValidate — как decodeAndValidate, но пустое тело
// равносильно {}.
func decodeOptionalAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeJSON(w, r, dst, true)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize))
	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		apierrors.InvalidInput(w, "Некорректное тело запроса: ожидается JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		apierrors.InvalidInput(w, validationMessage(err))
		return false
	}
	return true
}

// validationMessage превращает ошибки validator в читаемое сообщение.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Некорректные данные запроса"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("поле %s обязательно", field))
		case "email":
			parts = append(parts, fmt.Sprintf("поле %s должно быть email-адресом", field))
		case "max":
			parts = append(parts, fmt.Sprintf("поле %s длиннее %s", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("поле %s не прошло проверку %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
