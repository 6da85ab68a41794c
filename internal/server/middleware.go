package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/campuskit/authgate/internal/shared/logger"
	"github.com/campuskit/authgate/internal/shared/metrics"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging returns middleware that assigns a request id, logs each request,
// and records HTTP metrics.
func Logging(log *logger.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := context.WithValue(r.Context(), logger.RequestIDKey, uuid.New().String())
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r.WithContext(ctx))

			duration := time.Since(start)
			if m != nil {
				m.RecordHTTPRequest(r.Method, r.URL.Path, recorder.status, duration)
			}
			log.WithContext(ctx).Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", duration,
			)
		})
	}
}
