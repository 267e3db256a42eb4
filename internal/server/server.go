package server

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/k11v/arframe/internal/build"
	"github.com/k11v/arframe/internal/metrics"
)

type NewParams struct {
	Builder  *build.Builder // required
	Database build.Database // required
	Storage  build.Storage
	Metrics  *metrics.Collector
}

// New returns a new HTTP server.
// It should be started with http.Server's ListenAndServe.
func New(cfg *Config, log *slog.Logger, params *NewParams) *http.Server {
	addr := net.JoinHostPort(cfg.host(), strconv.Itoa(cfg.port()))

	subLogger := log.With("component", "server")
	subLogLogger := slog.NewLogLogger(subLogger.Handler(), slog.LevelError)

	return &http.Server{
		Addr:              addr,
		ErrorLog:          subLogLogger,
		Handler:           NewHandler(cfg, log, params),
		ReadHeaderTimeout: cfg.readHeaderTimeout(),
	}
}

// NewHandler returns the server's routes wrapped in its middleware.
// CORS is outermost so that every response carries its headers.
func NewHandler(cfg *Config, log *slog.Logger, params *NewParams) http.Handler {
	subLogger := log.With("component", "server")

	var h http.Handler = newHandler(cfg, params, subLogger)
	h = withRecovery(subLogger, cfg.version(), h)
	h = withRequestLog(subLogger, params.Metrics, h)
	h = withCORS(newCORSPolicy(cfg), h)
	return h
}
