// auth.go — middleware аутентификации по Bearer-токену.
// Проверка подписи и claims делегируется TokenValidator (IdentityService),
// в контекст запроса помещается sub — UUID владельца.
// Публичные endpoints (auth, health, jwks, metrics) — без аутентификации.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/goartstore/file-vault/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeySubject — ключ для sub из JWT в контексте запроса.
const ContextKeySubject contextKey = "jwt_subject"

// TokenValidator проверяет токен и возвращает subject.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// BearerAuth — middleware для JWT-аутентификации.
type BearerAuth struct {
	validator TokenValidator
	logger    *slog.Logger
}

// NewBearerAuth создаёт middleware поверх validator.
func NewBearerAuth(validator TokenValidator, logger *slog.Logger) *BearerAuth {
	return &BearerAuth{
		validator: validator,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware извлекает Bearer token из заголовка Authorization,
// валидирует его и помещает sub в контекст запроса.
// Все причины отказа валидации дают одинаковый ответ INVALID_TOKEN.
func (a *BearerAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			token = strings.TrimSpace(token)
			if token == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			subject, err := a.validator.ValidateToken(r.Context(), token)
			if err != nil {
				a.logger.Debug("Токен отклонён",
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.InvalidToken(w, "Невалидный или просроченный токен")
				return
			}

			noteOwner(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}

// WithSubject помещает sub в контекст.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если sub не найден.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}
