package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
)

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded")
		}
		return next(c)
	}
}

// Instrument records request counts and latency for h. It wraps the final
// handler rather than running as echo middleware so the status code seen
// is the one actually written.
func (s *Server) Instrument(h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.metrics.ObserveRequest(r.Method, routeOf(r.URL.Path), rec.code, time.Since(start))
	})
}

// routeOf collapses ids so label cardinality stays fixed.
func routeOf(path string) string {
	switch {
	case path == "/v1/answers", path == "/healthz", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/v1/answers/"):
		return "/v1/answers/:id"
	case strings.HasPrefix(path, "/v1/"):
		return "other"
	default:
		return "/"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code    int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.code = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.written = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
