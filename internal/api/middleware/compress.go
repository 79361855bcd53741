package middleware

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// Compress сжимает ответ gzip, если клиент это поддерживает.
// Мелкие ответы (меньше gzhttp.DefaultMinSize) отправляются как есть.
func Compress() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return gzhttp.GzipHandler(next)
	}
}
