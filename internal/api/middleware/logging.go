// logging.go — access log File Vault через slog.
// Кроме метода, пути и статуса в запись попадают шаблон маршрута chi,
// объём принятых и отданных байт и владелец (если запрос прошёл BearerAuth).
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// contextKeyAccess — ключ слота access log в контексте запроса.
const contextKeyAccess contextKey = "access_log"

// accessInfo — данные, которые заполняют вложенные middleware.
// Запрос обрабатывается в одной горутине, синхронизация не нужна.
type accessInfo struct {
	ownerID string
}

// noteOwner сообщает access log владельца запроса.
func noteOwner(ctx context.Context, ownerID string) {
	if info, ok := ctx.Value(contextKeyAccess).(*accessInfo); ok {
		info.ownerID = ownerID
	}
}

// RequestLogger возвращает middleware access log.
// Уровень: ERROR для 5xx, WARN для 4xx, DEBUG для /health/* и /metrics,
// иначе INFO.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &accessInfo{}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), contextKeyAccess, info)))

			status := ww.Status()
			if status == 0 {
				// Обработчик ничего не записал — net/http отдаст 200
				status = http.StatusOK
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			case isServiceEndpoint(r.URL.Path):
				level = slog.LevelDebug
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("request_bytes", max(r.ContentLength, 0)),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			}
			if info.ownerID != "" {
				attrs = append(attrs, slog.String("owner_id", info.ownerID))
			}
			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

// routePattern — шаблон маршрута chi; пусто, если маршрут не найден.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// isServiceEndpoint — служебные запросы Kubernetes и Prometheus, которые не нужны в INFO.
func isServiceEndpoint(path string) bool {
	switch path {
	case "/health/live", "/health/ready", "/metrics":
		return true
	}
	return false
}
