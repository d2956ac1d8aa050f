package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SyncRepo implements storage.SyncReader against the bridge's accounts
// table. The table is owned by the bridge; every statement here is a plain
// read.
type SyncRepo struct {
	db *DB
}

// NewSyncRepo creates a new PostgreSQL sync reader.
func NewSyncRepo(db *DB) *SyncRepo {
	return &SyncRepo{db: db}
}

// LastSyncedAt returns the most recent sync write for a target, or the zero
// time when the target has no rows.
func (r *SyncRepo) LastSyncedAt(ctx context.Context, targetID string) (time.Time, error) {
	query := `SELECT MAX(synced_at) FROM accounts WHERE bridge_id = $1`

	var last sql.NullTime
	if err := r.db.GetContext(ctx, &last, query, targetID); err != nil {
		return time.Time{}, fmt.Errorf("failed to read last sync time: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

// SyncCoverage counts accounts synced at or after cutoff against the total.
func (r *SyncRepo) SyncCoverage(ctx context.Context, targetID string, cutoff time.Time) (int, int, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE synced_at >= $2) AS fresh,
		       COUNT(*) AS total
		FROM accounts
		WHERE bridge_id = $1
	`
	var row struct {
		Fresh int `db:"fresh"`
		Total int `db:"total"`
	}
	if err := r.db.GetContext(ctx, &row, query, targetID, cutoff); err != nil {
		return 0, 0, fmt.Errorf("failed to read sync coverage: %w", err)
	}
	return row.Fresh, row.Total, nil
}
