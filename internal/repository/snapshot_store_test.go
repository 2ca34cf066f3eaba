package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuoteHub/internal/domain/models"
	"QuoteHub/pkg/cache"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore(cache.NewMemoryStore())

	snap := models.Snapshot{
		Symbol: "AAPL",
		Class:  models.ClassMetadata,
		Values: map[models.Field]any{
			models.FieldSector:    "Technology",
			models.FieldMarketCap: 3e12,
		},
		ProducedAt: time.Date(2024, 7, 2, 14, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(ctx, snap, time.Hour))

	got, err := s.Load(ctx, "AAPL", models.ClassMetadata)
	require.NoError(t, err)
	assert.Equal(t, "Technology", got.Values[models.FieldSector])
	assert.Equal(t, 3e12, got.Values[models.FieldMarketCap])
	assert.True(t, got.ProducedAt.Equal(snap.ProducedAt))

	_, err = s.Load(ctx, "AAPL", models.ClassQuote)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, s.Delete(ctx, "AAPL"))
	_, err = s.Load(ctx, "AAPL", models.ClassMetadata)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}
