package middleware

import (
	"net/http"
	"time"

	"plugin/backend/services/marketplace/internal/metrics"
)

// Metrics records request counts and latency labelled by route pattern.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			// The mux fills in the matched pattern; raw paths would explode label cardinality.
			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			m.ObserveHTTP(r.Method, path, rec.status, time.Since(start))
		})
	}
}
