// Package httpmw carries the HTTP middleware chain: per-client rate
// limiting, CORS and request logging.
package httpmw

import (
	"net"
	"net/http"
	"time"

	"branchchat/pkg/logger"
	"branchchat/pkg/utils"
)

// SecConfig holds the middleware settings derived from the effective
// config.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
}

// Chain wraps h with logging, CORS and rate limiting (outermost first).
func Chain(cfg SecConfig, h http.Handler) http.Handler {
	wrapped := RateLimit(cfg)(h)
	wrapped = CORS(cfg)(wrapped)
	wrapped = Logging(wrapped)
	return wrapped
}

// RateLimit applies a token-bucket limit per client IP. Zero config keeps
// the defaults (5 rps, burst 10); a negative RPS disables limiting.
func RateLimit(cfg SecConfig) func(http.Handler) http.Handler {
	pool := &limiterPool{cfg: cfg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.RPS < 0 {
				next.ServeHTTP(w, r)
				return
			}
			key := clientIP(r)
			if !pool.Allow(key) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers preflight requests and sets allow-origin headers for the
// configured origins. An empty list allows any origin (single-user local
// deployments).
func CORS(cfg SecConfig) func(http.Handler) http.Handler {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if len(allowed) == 0 {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Logging emits a concise summary per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		logger.Info("request_done",
			"method", r.Method,
			"path", r.URL.Path,
			"status", srw.status,
			"remote", clientIP(r),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func clientIP(r *http.Request) string {
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return h
	}
	return r.RemoteAddr
}

// statusRecorder captures the response status code. Flush is forwarded so
// the streaming chat handler keeps working behind the middleware chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
