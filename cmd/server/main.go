// Command server serves the AR archive build API.
//
//	@title			arframe API
//	@version		1.0
//	@description	Builds AR-viewable archives from an image and its physical size.
//	@BasePath		/
package main

//go:generate go run github.com/swaggo/swag/cmd/swag@v1.16.3 init --dir ./,../../internal/server --generalInfo main.go --output ../../internal/docs --outputTypes go

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/k11v/arframe/internal/amqputil"
	"github.com/k11v/arframe/internal/build"
	"github.com/k11v/arframe/internal/build/buildamqp"
	"github.com/k11v/arframe/internal/build/buildpg"
	"github.com/k11v/arframe/internal/build/builds3"
	"github.com/k11v/arframe/internal/build/buildsqlite"
	"github.com/k11v/arframe/internal/metrics"
	"github.com/k11v/arframe/internal/postgresutil"
	"github.com/k11v/arframe/internal/s3util"
	"github.com/k11v/arframe/internal/server"
	"github.com/k11v/arframe/internal/tool"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	run := func() int {
		cfg, err := parseConfig(os.Environ())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		cfg.Server.Version = version

		log := newLogger(cfg.Development)
		slog.SetDefault(log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		database, closeDatabase, err := openDatabase(ctx, cfg)
		if err != nil {
			log.Error("failed to open database", "error", err)
			return 1
		}
		defer closeDatabase()

		var storage build.Storage
		if cfg.S3.DSN != "" {
			client, clientErr := s3util.NewClient(cfg.S3.DSN)
			if clientErr != nil {
				log.Error("failed to create s3 client", "error", clientErr)
				return 1
			}
			storage = builds3.NewStorage(client, cfg.S3.BucketName())
		}

		var broker build.Broker
		if cfg.AMQP.DSN != "" {
			broker = buildamqp.NewBroker(amqputil.NewClient(&cfg.AMQP))
		}

		collector := metrics.NewCollector("arframe")
		builder := build.NewBuilder(&build.NewBuilderParams{
			Config:   &cfg.Build,
			Runner:   tool.NewExecRunner(log),
			Database: database,
			Storage:  storage,
			Broker:   broker,
			Metrics:  collector,
			Log:      log,
		})

		go builder.NewSweeper().Run(ctx)

		srv := server.New(&cfg.Server, log, &server.NewParams{
			Builder:  builder,
			Database: database,
			Storage:  storage,
			Metrics:  collector,
		})

		serveErr := make(chan error, 1)
		go func() {
			log.Info("starting server", "addr", srv.Addr, "version", version, "public_base_url", cfg.Build.PublicBaseURL)
			serveErr <- srv.ListenAndServe()
		}()

		select {
		case err = <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				log.Error("failed to serve", "error", err)
				return 1
			}
		case <-ctx.Done():
			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err = srv.Shutdown(shutdownCtx); err != nil {
				log.Error("failed to shut down server", "error", err)
				return 1
			}
		}

		return 0
	}
	os.Exit(run())
}

func newLogger(development bool) *slog.Logger {
	if development {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

// openDatabase opens PostgreSQL when a DSN is configured and the SQLite
// file otherwise.
func openDatabase(ctx context.Context, cfg *config) (build.Database, func(), error) {
	if cfg.Postgres.DSN != "" {
		pool, err := postgresutil.NewPool(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return buildpg.NewDatabase(pool), pool.Close, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o777); err != nil {
		return nil, nil, err
	}
	db, err := buildsqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return buildsqlite.NewDatabase(db), func() { _ = db.Close() }, nil
}
