// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/savi-ml/savid/internal/log"
	"github.com/savi-ml/savid/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// applyMiddleware installs the canonical ingress stack. Order matters:
// recoverer outermost, then correlation, CORS, metrics, tracing, logging,
// rate limiting.
func (s *Server) applyMiddleware(r chi.Router) {
	r.Use(recoverer)
	r.Use(requestID)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors(s.cfg.AllowedOrigins))
	}
	r.Use(metricsMiddleware)
	r.Use(otelhttp.NewMiddleware("savid-api"))
	r.Use(log.Middleware())
	if s.cfg.RateLimitRPS > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitRPS, time.Second))
	}
}

// recoverer converts handler panics into 500 responses so a single bad
// request cannot take down the process.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				logger := log.WithComponentFromContext(r.Context(), "api")
				logger.Error().
					Str("event", "http.panic").
					Interface("panic", p).
					Str("path", r.URL.Path).
					Msg("handler panicked")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestID assigns every request a correlation id, honoring one supplied by
// a trusted upstream.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
	})
}

func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type metricsWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPInFlightInc()
		defer metrics.HTTPInFlightDec()

		mw := &metricsWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(mw, r)

		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(mw.status), time.Since(start).Seconds())
	})
}
