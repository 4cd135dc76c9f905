package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"candlegate/internal/logging"
	"candlegate/internal/metrics"
)

type requestIDKey struct{}

const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with an ID, reusing the caller's
// X-Request-ID when present, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// AccessLog logs one line per request and records request metrics. Paths
// outside routes are reported under the "other" route label.
func AccessLog(logger logging.Logger, routes ...string) Middleware {
	known := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		known[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			d := time.Since(start)
			route := r.URL.Path
			if _, ok := known[route]; !ok {
				route = "other"
			}
			metrics.ObserveRequest(route, r.Method, strconv.Itoa(rec.status), d)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", d.Milliseconds(),
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}
