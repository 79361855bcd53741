// ratelimit.go — ограничение частоты попыток входа по IP клиента.
// На каждый IP заводится token bucket (x/time/rate). Лимитеры живут
// в expirable LRU: неактивные IP вытесняются, память ограничена.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/goartstore/file-vault/internal/api/errors"
)

const (
	// limiterCacheSize — максимальное количество отслеживаемых IP
	limiterCacheSize = 10000
	// limiterTTL — время жизни лимитера неактивного IP
	limiterTTL = 10 * time.Minute
)

// loginRejectedTotal — отклонённые лимитером попытки входа.
var loginRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fv_login_rejected_total",
	Help: "Количество попыток входа, отклонённых ограничителем частоты",
})

// LoginLimiter — per-IP ограничитель частоты запросов.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewLoginLimiter создаёт ограничитель: perSecond запросов в секунду
// с допустимым всплеском burst.
func NewLoginLimiter(perSecond float64, burst int, logger *slog.Logger) *LoginLimiter {
	return &LoginLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterTTL),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		logger:   logger.With(slog.String("component", "login_limiter")),
	}
}

// Allow проверяет, можно ли обслужить ещё один запрос от ip.
func (l *LoginLimiter) Allow(ip string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters.Add(ip, limiter)
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// Middleware отклоняет запрос с 429, если лимит IP исчерпан.
func (l *LoginLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !l.Allow(ip) {
				loginRejectedTotal.Inc()
				l.logger.Warn("Превышен лимит попыток входа",
					slog.String("remote_ip", ip),
				)
				w.Header().Set("Retry-After", "1")
				apierrors.TooManyRequests(w, "Слишком много попыток входа, повторите позже")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP извлекает IP из RemoteAddr (после chi RealIP — адрес клиента за прокси).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
