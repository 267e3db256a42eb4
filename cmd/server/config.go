package main

import (
	"path/filepath"
	"strconv"

	"github.com/caarlos0/env/v11"

	"github.com/k11v/arframe/internal/amqputil"
	"github.com/k11v/arframe/internal/build"
	"github.com/k11v/arframe/internal/postgresutil"
	"github.com/k11v/arframe/internal/s3util"
	"github.com/k11v/arframe/internal/server"
)

// config holds the application configuration.
type config struct {
	Development bool `env:"ARFRAME_DEVELOPMENT"`

	// Unprefixed for compatibility with existing deployments.
	Port             int      `env:"PORT"`
	PublicBaseURL    string   `env:"PUBLIC_BASE_URL"` // default: "http://127.0.0.1:<port>"
	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:","`

	SQLitePath string `env:"ARFRAME_SQLITE_PATH"` // default: "<work dir>/builds.db"

	Build    build.Config        `envPrefix:"ARFRAME_BUILD_"`
	Postgres postgresutil.Config `envPrefix:"ARFRAME_POSTGRES_"`
	S3       s3util.Config       `envPrefix:"ARFRAME_S3_"`
	AMQP     amqputil.Config     `envPrefix:"ARFRAME_AMQP_"`
	Server   server.Config       `envPrefix:"ARFRAME_SERVER_"`
}

// parseConfig parses the application configuration from the environment variables.
func parseConfig(environ []string) (*config, error) {
	var cfg config

	err := env.ParseWithOptions(&cfg, env.Options{
		Environment: env.ToMap(environ),
	})
	if err != nil {
		return nil, err
	}

	if cfg.Port != 0 {
		cfg.Server.Port = cfg.Port
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 10000
	}
	cfg.Server.AllowOrigins = cfg.CORSAllowOrigins
	cfg.Server.Development = cfg.Development

	cfg.Build.PublicBaseURL = cfg.PublicBaseURL
	if cfg.Build.PublicBaseURL == "" {
		cfg.Build.PublicBaseURL = "http://127.0.0.1:" + strconv.Itoa(cfg.Server.Port)
	}
	if cfg.Build.WorkDir == "" {
		cfg.Build.WorkDir = "/tmp/ar"
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.Build.WorkDir, "builds.db")
	}

	return &cfg, nil
}
