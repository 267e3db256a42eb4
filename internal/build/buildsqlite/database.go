// Package buildsqlite stores build records in a SQLite file next to the
// job directories, for single-host deployments without PostgreSQL.
package buildsqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/k11v/arframe/internal/build"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens the SQLite database at path, creating it if needed, and
// migrates it to the latest schema.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("buildsqlite.Open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err = migrateDB(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("buildsqlite.Open: %w", err)
	}

	return db, nil
}

func migrateDB(db *sql.DB) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}

	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}

	databaseDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", databaseDriver)
	if err != nil {
		return err
	}

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

var _ build.Database = (*Database)(nil)

type Database struct {
	db *sql.DB // required
}

func NewDatabase(db *sql.DB) *Database {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + columns
	args := []any{
		params.ID, params.RequestID, string(params.Format), string(params.Status), params.Reason, params.PackMethod,
		params.WidthCm, params.HeightCm, params.BytesIn, params.BytesOut, params.Mirrored,
		params.CreatedAt.UnixMilli(), params.ExpiresAt.UnixMilli(),
	}

	r, err := scanRecord(d.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if sqliteErr := (*sqlitedriver.Error)(nil); errors.As(err, &sqliteErr) {
			switch sqliteErr.Code() {
			case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				return nil, build.ErrAlreadyExists
			}
		}
		return nil, fmt.Errorf("buildsqlite.CreateBuild: %w", err)
	}

	return r, nil
}

// GetBuild implements build.Database.
func (d *Database) GetBuild(ctx context.Context, params *build.DatabaseGetBuildParams) (*build.Record, error) {
	query := `
		SELECT ` + columns + `
		FROM builds
		WHERE id = ?
	`

	r, err := scanRecord(d.db.QueryRowContext(ctx, query, params.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, build.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("buildsqlite.GetBuild: %w", err)
	}

	return r, nil
}

// ExpireBuilds implements build.Database.
func (d *Database) ExpireBuilds(ctx context.Context, params *build.DatabaseExpireBuildsParams) (int, error) {
	query := `
		UPDATE builds
		SET status = ?
		WHERE status = ? AND expires_at <= ?
	`
	args := []any{string(build.StatusExpired), string(build.StatusSucceeded), params.Now.UnixMilli()}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("buildsqlite.ExpireBuilds: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("buildsqlite.ExpireBuilds: %w", err)
	}

	return int(n), nil
}

func scanRecord(row *sql.Row) (*build.Record, error) {
	var (
		r                    build.Record
		format, status       string
		createdAt, expiresAt int64
	)
	err := row.Scan(
		&r.ID, &r.RequestID, &format, &status, &r.Reason, &r.PackMethod,
		&r.WidthCm, &r.HeightCm, &r.BytesIn, &r.BytesOut, &r.Mirrored,
		&createdAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}

	r.Format = build.Format(format)
	r.Status, _ = build.StatusFromString(status)
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &r, nil
}
