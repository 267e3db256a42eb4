package build

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Database stores build records.
type Database interface {
	CreateBuild(ctx context.Context, params *DatabaseCreateBuildParams) (*Record, error)
	GetBuild(ctx context.Context, params *DatabaseGetBuildParams) (*Record, error)
	ExpireBuilds(ctx context.Context, params *DatabaseExpireBuildsParams) (int, error)
}

type DatabaseCreateBuildParams struct {
	ID         string // required
	RequestID  string // required
	Format     Format // required
	Status     Status // required
	Reason     string
	PackMethod string
	WidthCm    float64
	HeightCm   float64
	BytesIn    int64
	BytesOut   int64
	Mirrored   bool
	CreatedAt  time.Time // required
	ExpiresAt  time.Time // required
}

type DatabaseGetBuildParams struct {
	ID string // required
}

// DatabaseExpireBuildsParams selects succeeded builds whose ExpiresAt is
// not after Now.
type DatabaseExpireBuildsParams struct {
	Now time.Time // required
}
