package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
)

var (
	// ErrStatusNotFound is returned when no record exists for a target
	ErrStatusNotFound = errors.New("watchdog status not found")
)

// StatusRepository persists the per-target watchdog record.
type StatusRepository interface {
	// Get retrieves the status record for a target
	Get(ctx context.Context, targetID string) (*domain.WatchdogStatus, error)

	// Save inserts or replaces the status record
	Save(ctx context.Context, status *domain.WatchdogStatus) error

	// List retrieves all status records
	List(ctx context.Context) ([]*domain.WatchdogStatus, error)
}

// SyncReader reads the bridge's sync output store. The store belongs to the
// bridge; the watchdog never writes to it.
type SyncReader interface {
	// LastSyncedAt returns the most recent sync write for a target,
	// or the zero time when the store holds no records for it
	LastSyncedAt(ctx context.Context, targetID string) (time.Time, error)

	// SyncCoverage counts records synced at or after cutoff against the total
	SyncCoverage(ctx context.Context, targetID string, cutoff time.Time) (fresh, total int, err error)
}
