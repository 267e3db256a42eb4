package server

import (
	"time"
)

// Config holds the server configuration.
type Config struct {
	Host               string        `env:"HOST"`                 // default: "0.0.0.0"
	Port               int           `env:"PORT"`                 // default: 10000
	ReadHeaderTimeout  time.Duration `env:"READ_HEADER_TIMEOUT"`  // default: 10s
	CORSDomain         string        `env:"CORS_DOMAIN"`          // default: "neonframestudio.com"
	CORSDisableShopify bool          `env:"CORS_DISABLE_SHOPIFY"` // storefront origins are allowed unless set
	AllowOrigins       []string      // set from CORS_ALLOW_ORIGINS
	Development        bool          // set from ARFRAME_DEVELOPMENT
	Version            string        // reported by the root endpoint
}

func (c *Config) host() string {
	h := c.Host
	if h == "" {
		h = "0.0.0.0"
	}
	return h
}

func (c *Config) port() int {
	p := c.Port
	if p == 0 {
		p = 10000
	}
	return p
}

func (c *Config) readHeaderTimeout() time.Duration {
	if c.ReadHeaderTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ReadHeaderTimeout
}

func (c *Config) corsDomain() string {
	if c.CORSDomain == "" {
		return "neonframestudio.com"
	}
	return c.CORSDomain
}

func (c *Config) version() string {
	if c.Version == "" {
		return "dev"
	}
	return c.Version
}
