package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
	"github.com/ledgerops/bridgewatch/internal/infra/storage"
)

// MemoryStorage backs the watchdog with in-process maps. Used in dev mode
// and tests; nothing survives a restart.
type MemoryStorage struct {
	statuses map[string]*domain.WatchdogStatus
	synced   map[string][]time.Time
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		statuses: make(map[string]*domain.WatchdogStatus),
		synced:   make(map[string][]time.Time),
	}
}

// SeedSyncTimes records synthetic sync writes for a target (tests only).
func (s *MemoryStorage) SeedSyncTimes(targetID string, times ...time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced[targetID] = append(s.synced[targetID], times...)
}

// -----------------------------------------------------------------------------
// Status Repository
// -----------------------------------------------------------------------------

type StatusRepo struct {
	store *MemoryStorage
}

func NewStatusRepo(store *MemoryStorage) *StatusRepo {
	return &StatusRepo{store: store}
}

func (r *StatusRepo) Get(ctx context.Context, targetID string) (*domain.WatchdogStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if st, ok := r.store.statuses[targetID]; ok {
		return st.Clone(), nil
	}
	return nil, storage.ErrStatusNotFound
}

func (r *StatusRepo) Save(ctx context.Context, status *domain.WatchdogStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.statuses[status.TargetID] = status.Clone()
	return nil
}

func (r *StatusRepo) List(ctx context.Context) ([]*domain.WatchdogStatus, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.WatchdogStatus, 0, len(r.store.statuses))
	for _, st := range r.store.statuses {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

// -----------------------------------------------------------------------------
// Sync Reader
// -----------------------------------------------------------------------------

type SyncRepo struct {
	store *MemoryStorage
}

func NewSyncRepo(store *MemoryStorage) *SyncRepo {
	return &SyncRepo{store: store}
}

func (r *SyncRepo) LastSyncedAt(ctx context.Context, targetID string) (time.Time, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var latest time.Time
	for _, at := range r.store.synced[targetID] {
		if at.After(latest) {
			latest = at
		}
	}
	return latest, nil
}

func (r *SyncRepo) SyncCoverage(ctx context.Context, targetID string, cutoff time.Time) (int, int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	fresh, total := 0, 0
	for _, at := range r.store.synced[targetID] {
		total++
		if !at.Before(cutoff) {
			fresh++
		}
	}
	return fresh, total, nil
}
