package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/k11v/arframe/internal/metrics"
	"github.com/k11v/arframe/internal/workspace"
)

type requestIDKey struct{}

// requestID returns the id withRequestLog assigned to the request.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	if rec.status == 0 {
		rec.status = status
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// withRequestLog assigns a request id, logs each request once it is
// served and records it in c.
func withRequestLog(log *slog.Logger, c *metrics.Collector, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := workspace.NewID()
		w.Header().Set("X-Request-Id", id)

		rec := &statusRecorder{ResponseWriter: w}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		d := time.Since(start)
		c.ObserveHTTP(r.Method, route, status, d)

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(
			r.Context(),
			level,
			"served request",
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", d),
		)
	})
}

// withRecovery turns a panicking handler into a 500 response.
func withRecovery(log *slog.Logger, version string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}
			log.Error("handler panicked", "request_id", requestID(r.Context()), "panic", v)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"ok":            false,
				"reason":        "server_error",
				"serverVersion": version,
			})
		}()
		next.ServeHTTP(w, r)
	})
}
