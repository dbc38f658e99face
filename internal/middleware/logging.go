package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type responseWriter struct {
	http.ResponseWriter
	status int
	length int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(data)
	rw.length += n
	return n, err
}

// ingressDialect reports which wire dialect a request is carrying, from its
// User-Agent header and URL path, so access logs show which translation path
// a request took without depending on the handler package.
func ingressDialect(r *http.Request) string {
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	if strings.Contains(ua, "claude-code") || strings.Contains(ua, "claude-cli") {
		return "claude"
	}
	if strings.HasSuffix(r.URL.Path, "/chat/completions") {
		return "openai"
	}
	return "unknown"
}

func NewLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			logger.Info("HTTP Request",
				"method", r.Method,
				"path", r.URL.Path,
				"dialect", ingressDialect(r),
				"status", wrapped.status,
				"duration", duration,
				"length", wrapped.length,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.Header.Get("User-Agent"),
			)
		})
	}
}