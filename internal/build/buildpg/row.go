package buildpg

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/k11v/arframe/internal/build"
)

type row struct {
	ID         string    `db:"id"`
	RequestID  string    `db:"request_id"`
	Format     string    `db:"format"`
	Status     string    `db:"status"`
	Reason     string    `db:"reason"`
	PackMethod string    `db:"pack_method"`
	WidthCm    float64   `db:"width_cm"`
	HeightCm   float64   `db:"height_cm"`
	BytesIn    int64     `db:"bytes_in"`
	BytesOut   int64     `db:"bytes_out"`
	Mirrored   bool      `db:"mirrored"`
	CreatedAt  time.Time `db:"created_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

func rowToRecord(collectableRow pgx.CollectableRow) (*build.Record, error) {
	r, err := pgx.RowToStructByName[row](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to record: %w", err)
	}

	status, known := build.StatusFromString(r.Status)
	if !known {
		slog.Default().Warn("unknown status encountered", "status", r.Status, "build_id", r.ID)
	}

	return &build.Record{
		ID:         r.ID,
		RequestID:  r.RequestID,
		Format:     build.Format(r.Format),
		Status:     status,
		Reason:     r.Reason,
		PackMethod: r.PackMethod,
		WidthCm:    r.WidthCm,
		HeightCm:   r.HeightCm,
		BytesIn:    r.BytesIn,
		BytesOut:   r.BytesOut,
		Mirrored:   r.Mirrored,
		CreatedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
	}, nil
}
