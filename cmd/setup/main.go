// Command setup migrates the build database and creates the archive bucket.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/k11v/arframe/internal/build/buildpg"
	"github.com/k11v/arframe/internal/build/buildsqlite"
	"github.com/k11v/arframe/internal/postgresutil"
	"github.com/k11v/arframe/internal/s3util"
)

type config struct {
	WorkDir    string              `env:"ARFRAME_BUILD_WORK_DIR"` // default: "/tmp/ar"
	SQLitePath string              `env:"ARFRAME_SQLITE_PATH"`    // default: "<work dir>/builds.db"
	Postgres   postgresutil.Config `envPrefix:"ARFRAME_POSTGRES_"`
	S3         s3util.Config       `envPrefix:"ARFRAME_S3_"`
}

func main() {
	run := func() int {
		var cfg config
		err := env.ParseWithOptions(&cfg, env.Options{Environment: env.ToMap(os.Environ())})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		if err = setupDatabase(&cfg); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		if cfg.S3.DSN != "" {
			client, clientErr := s3util.NewClient(cfg.S3.DSN)
			if clientErr != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", clientErr)
				return 1
			}
			if err = s3util.Setup(context.Background(), client, cfg.S3.BucketName()); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return 1
			}
		}

		return 0
	}
	os.Exit(run())
}

func setupDatabase(cfg *config) error {
	if cfg.Postgres.DSN != "" {
		return buildpg.Setup(cfg.Postgres.DSN)
	}

	path := cfg.SQLitePath
	if path == "" {
		workDir := cfg.WorkDir
		if workDir == "" {
			workDir = "/tmp/ar"
		}
		path = filepath.Join(workDir, "builds.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	db, err := buildsqlite.Open(path)
	if err != nil {
		return err
	}
	return db.Close()
}
