package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"QuoteHub/internal/domain/models"
	drepo "QuoteHub/internal/domain/repository"
	"QuoteHub/pkg/cache"
)

// ErrSnapshotNotFound is returned by Load when nothing was saved.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore keeps last-known snapshots in a shared cache.Store (Redis in
// production, memory in tests).
type SnapshotStore struct {
	store cache.Store
}

func NewSnapshotStore(store cache.Store) *SnapshotStore {
	return &SnapshotStore{store: store}
}

func snapshotKey(symbol string, class models.RequestClass) string {
	return cache.GenerateKeyWithParams("snapshot", class, symbol)
}

func (s *SnapshotStore) Save(ctx context.Context, snap models.Snapshot, ttl time.Duration) error {
	if err := s.store.Set(ctx, snapshotKey(snap.Symbol, snap.Class), snap, ttl); err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", snap.Class, snap.Symbol, err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, symbol string, class models.RequestClass) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := s.store.Get(ctx, snapshotKey(symbol, class), &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.Snapshot{}, ErrSnapshotNotFound
		}
		return models.Snapshot{}, fmt.Errorf("load snapshot %s/%s: %w", class, symbol, err)
	}
	return snap, nil
}

// Delete drops every class for symbol.
func (s *SnapshotStore) Delete(ctx context.Context, symbol string) error {
	return s.store.Delete(ctx,
		snapshotKey(symbol, models.ClassQuote),
		snapshotKey(symbol, models.ClassMetadata),
	)
}

var _ drepo.SnapshotStore = (*SnapshotStore)(nil)
