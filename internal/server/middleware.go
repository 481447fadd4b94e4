package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"larder/internal/apierr"
	applog "larder/internal/log"
	"larder/internal/metrics"
)

const requestIDHeader = "X-Request-Id"

// withMiddleware wraps the router with metrics, request ids, panic
// recovery and request logging, outermost first.
func withMiddleware(next http.Handler) http.Handler {
	return metricsMiddleware(
		requestIDMiddleware(
			panicRecoveryMiddleware(
				loggingMiddleware(next),
			),
		),
	)
}

func withCORS(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(next)
}

// requestIDMiddleware keeps a well formed incoming request id or
// generates one, and attaches it to the log context and response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(applog.WithRequestID(r.Context(), requestID)))
	})
}

func panicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				metrics.PanicRecoveries.Inc()
				applog.Error(r.Context(), "panic recovered",
					"error", fmt.Sprint(recovered),
					"path", r.URL.Path,
					"method", r.Method,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "internal error",
					"code":  apierr.CodeInternal,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		applog.Debug(r.Context(), "request started", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(rw, r)
		applog.Info(r.Context(), "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.Status(),
			"duration", time.Since(start).String(),
		)
	})
}

// metricsMiddleware records RED metrics per route template.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		route := routeLabel(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses identifiers so metric cardinality stays bounded.
func routeLabel(path string) string {
	switch path {
	case "/healthz", "/metrics":
		return path
	}

	trimmed := strings.Trim(path, "/")
	if trimmed != "products" && !strings.HasPrefix(trimmed, "products/") {
		return "other"
	}
	segments := strings.Split(trimmed, "/")
	switch len(segments) {
	case 1:
		return "/products/"
	case 2:
		return "/products/{id}"
	case 3:
		if segments[2] == "nutrition" {
			return "/products/{id}/nutrition"
		}
	}
	return "other"
}
