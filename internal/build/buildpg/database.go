// Package buildpg stores build records in PostgreSQL.
package buildpg

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/k11v/arframe/internal/build"
	"github.com/k11v/arframe/internal/postgresutil"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Setup migrates the database at dsn to the latest schema.
func Setup(dsn string) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return postgresutil.Migrate(dsn, sub)
}

// Querier is implemented by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ build.Database = (*Database)(nil)

type Database struct {
	db Querier // required
}

func NewDatabase(db Querier) *Database {
	return &Database{db: db}
}

const columns = `
	id, request_id, format, status, reason, pack_method,
	width_cm, height_cm, bytes_in, bytes_out, mirrored,
	created_at, expires_at
`

// CreateBuild implements build.Database.
func (d *Database) CreateBuild(ctx context.Context, params *build.DatabaseCreateBuildParams) (*build.Record, error) {
	query := `
		INSERT INTO builds (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + columns
	args := []any{
		params.ID, params.RequestID, string(params.Format), string(params.Status), params.Reason, params.PackMethod,
		params.WidthCm, params.HeightCm, params.BytesIn, params.BytesOut, params.Mirrored,
		params.CreatedAt, params.ExpiresAt,
	}

	rows, _ := d.db.Query(ctx, query, args...)
	r, err := pgx.CollectExactlyOneRow(rows, rowToRecord)
	if err != nil {
		if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, build.ErrAlreadyExists
		}
		return nil, fmt.Errorf("buildpg.CreateBuild: %w", err)
	}

	return r, nil
}

// GetBuild implements build.Database.
func (d *Database) GetBuild(ctx context.Context, params *build.DatabaseGetBuildParams) (*build.Record, error) {
	query := `
		SELECT ` + columns + `
		FROM builds
		WHERE id = $1
	`
	args := []any{params.ID}

	rows, _ := d.db.Query(ctx, query, args...)
	r, err := pgx.CollectExactlyOneRow(rows, rowToRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, build.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("buildpg.GetBuild: %w", err)
	}

	return r, nil
}

// ExpireBuilds implements build.Database.
func (d *Database) ExpireBuilds(ctx context.Context, params *build.DatabaseExpireBuildsParams) (int, error) {
	query := `
		UPDATE builds
		SET status = $1
		WHERE status = $2 AND expires_at <= $3
		RETURNING id
	`
	args := []any{string(build.StatusExpired), string(build.StatusSucceeded), params.Now}

	rows, _ := d.db.Query(ctx, query, args...)
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, fmt.Errorf("buildpg.ExpireBuilds: %w", err)
	}

	return len(ids), nil
}
