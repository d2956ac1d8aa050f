package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
	"github.com/ledgerops/bridgewatch/internal/infra/storage"
)

// StatusRepo implements storage.StatusRepository on Redis. Each target's
// record is one JSON document under bridgewatch:status:<target_id>.
type StatusRepo struct {
	client *Client
}

// NewStatusRepo creates a Redis-backed status repository.
func NewStatusRepo(client *Client) *StatusRepo {
	return &StatusRepo{client: client}
}

// Get retrieves the status record for a target.
func (r *StatusRepo) Get(ctx context.Context, targetID string) (*domain.WatchdogStatus, error) {
	data, err := r.client.rdb.Get(ctx, statusKey(targetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watchdog status: %w", err)
	}
	return decodeStatus(data)
}

// Save inserts or replaces the status record. No TTL: the record lives as
// long as the target is configured.
func (r *StatusRepo) Save(ctx context.Context, status *domain.WatchdogStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode watchdog status: %w", err)
	}
	if err := r.client.rdb.Set(ctx, statusKey(status.TargetID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save watchdog status: %w", err)
	}
	return nil
}

// List retrieves all status records ordered by target id.
func (r *StatusRepo) List(ctx context.Context) ([]*domain.WatchdogStatus, error) {
	var out []*domain.WatchdogStatus

	iter := r.client.rdb.Scan(ctx, 0, statusKeyPattern, 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			// Deleted between scan and read.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", iter.Val(), err)
		}
		status, err := decodeStatus(data)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan watchdog statuses: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

func decodeStatus(data []byte) (*domain.WatchdogStatus, error) {
	var status domain.WatchdogStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode watchdog status: %w", err)
	}
	if status.LastAlertAt == nil {
		status.LastAlertAt = make(map[domain.Severity]time.Time)
	}
	return &status, nil
}
