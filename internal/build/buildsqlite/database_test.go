package buildsqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/k11v/arframe/internal/build"
)

func NewTestDatabase(tb testing.TB) *Database {
	tb.Helper()

	db, err := Open(filepath.Join(tb.TempDir(), "builds.db"))
	if err != nil {
		tb.Fatalf("didn't want %q", err)
	}
	tb.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			tb.Errorf("didn't want %q", closeErr)
		}
	})

	return NewDatabase(db)
}

func TestDatabase(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	params := &build.DatabaseCreateBuildParams{
		ID:         "0123456789abcdef0123456789abcdef",
		RequestID:  "r1",
		Format:     build.FormatGLB,
		Status:     build.StatusSucceeded,
		WidthCm:    10.5,
		HeightCm:   20,
		BytesIn:    1000,
		BytesOut:   2000,
		Mirrored:   true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}

	t.Run("creates and gets a build", func(t *testing.T) {
		db := NewTestDatabase(t)

		created, err := db.CreateBuild(ctx, params)
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		got, err := db.GetBuild(ctx, &build.DatabaseGetBuildParams{ID: params.ID})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if *got != *created {
			t.Errorf("got %+v, want %+v", got, created)
		}
		if got.Format != build.FormatGLB || !got.Mirrored || got.WidthCm != 10.5 {
			t.Errorf("got %+v", got)
		}
		if !got.ExpiresAt.Equal(params.ExpiresAt) {
			t.Errorf("got %v, want %v", got.ExpiresAt, params.ExpiresAt)
		}
	})

	t.Run("rejects a duplicate id", func(t *testing.T) {
		db := NewTestDatabase(t)

		if _, err := db.CreateBuild(ctx, params); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		_, err := db.CreateBuild(ctx, params)
		if !errors.Is(err, build.ErrAlreadyExists) {
			t.Fatalf("got %v, want %v", err, build.ErrAlreadyExists)
		}
	})

	t.Run("returns not found for an unknown id", func(t *testing.T) {
		db := NewTestDatabase(t)

		_, err := db.GetBuild(ctx, &build.DatabaseGetBuildParams{ID: params.ID})
		if !errors.Is(err, build.ErrNotFound) {
			t.Fatalf("got %v, want %v", err, build.ErrNotFound)
		}
	})

	t.Run("expires only succeeded builds past their expiry", func(t *testing.T) {
		db := NewTestDatabase(t)

		if _, err := db.CreateBuild(ctx, params); err != nil {
			t.Fatalf("didn't want %q", err)
		}
		failed := *params
		failed.ID = "fedcba9876543210fedcba9876543210"
		failed.Status = build.StatusFailed
		failed.ExpiresAt = now
		if _, err := db.CreateBuild(ctx, &failed); err != nil {
			t.Fatalf("didn't want %q", err)
		}

		n, err := db.ExpireBuilds(ctx, &build.DatabaseExpireBuildsParams{Now: now.Add(30 * time.Minute)})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if n != 0 {
			t.Fatalf("got %d expired, want 0", n)
		}

		n, err = db.ExpireBuilds(ctx, &build.DatabaseExpireBuildsParams{Now: now.Add(time.Hour)})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if n != 1 {
			t.Fatalf("got %d expired, want 1", n)
		}

		got, err := db.GetBuild(ctx, &build.DatabaseGetBuildParams{ID: failed.ID})
		if err != nil {
			t.Fatalf("didn't want %q", err)
		}
		if got.Status != build.StatusFailed {
			t.Errorf("got %q, want %q", got.Status, build.StatusFailed)
		}
	})

	t.Run("reopens a migrated database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "builds.db")
		for range 2 {
			db, err := Open(path)
			if err != nil {
				t.Fatalf("didn't want %q", err)
			}
			if err = db.Close(); err != nil {
				t.Fatalf("didn't want %q", err)
			}
		}
	})
}
