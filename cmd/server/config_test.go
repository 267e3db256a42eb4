package main

import (
	"slices"
	"testing"
	"time"
)

func TestParseConfig(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		cfg, err := parseConfig(nil)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := cfg.Server.Port, 10000; got != want {
			t.Errorf("got %d, want %d", got, want)
		}
		if got, want := cfg.Build.PublicBaseURL, "http://127.0.0.1:10000"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := cfg.SQLitePath, "/tmp/ar/builds.db"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("reads unprefixed and prefixed variables", func(t *testing.T) {
		cfg, err := parseConfig([]string{
			"PORT=8081",
			"PUBLIC_BASE_URL=https://ar.example.com",
			"CORS_ALLOW_ORIGINS=https://a.example.com,https://b.example.com",
			"ARFRAME_DEVELOPMENT=true",
			"ARFRAME_BUILD_WORK_DIR=/var/ar",
			"ARFRAME_BUILD_TTL=2h",
			"ARFRAME_BUILD_BLENDER=/opt/blender/blender",
			"ARFRAME_BUILD_USDZIP_TIMEOUT=90s",
			"ARFRAME_BUILD_DISABLE_FIXUP=true",
			"ARFRAME_SERVER_CORS_DOMAIN=example.com",
			"ARFRAME_S3_BUCKET=archives",
		})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got, want := cfg.Server.Port, 8081; got != want {
			t.Errorf("got %d, want %d", got, want)
		}
		if got, want := cfg.Build.PublicBaseURL, "https://ar.example.com"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := cfg.Server.AllowOrigins, []string{"https://a.example.com", "https://b.example.com"}; !slices.Equal(got, want) {
			t.Errorf("got %q, want %q", got, want)
		}
		if !cfg.Server.Development {
			t.Error("got Development false")
		}
		if got, want := cfg.SQLitePath, "/var/ar/builds.db"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := cfg.Build.TTL, 2*time.Hour; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if got, want := cfg.Build.Modeler.Blender, "/opt/blender/blender"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := cfg.Build.Pack.UsdzipTimeout, 90*time.Second; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if !cfg.Build.DisableFixup {
			t.Error("got DisableFixup false")
		}
		if got, want := cfg.Server.CORSDomain, "example.com"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if got, want := cfg.S3.BucketName(), "archives"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})
}
