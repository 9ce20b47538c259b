package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trader/internal/domain"
	"solana-trader/internal/storage"
)

func TestExitStateStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExitStateStore(pool)

	_, err := store.Get(ctx, "MintA")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	st := domain.NewExitState("MintA", dec("2.5"), 100)
	st.Fired[0] = true
	st.Fired[2] = true
	st.TrailingArmed = true
	st.HighWater = dec("4.2")
	require.NoError(t, store.Put(ctx, st))

	got, err := store.Get(ctx, "MintA")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, got.FiredIndexes())
	assert.True(t, got.OriginalQuantity.Equal(dec("2.5")))
	assert.True(t, got.TrailingArmed)
	assert.True(t, got.HighWater.Equal(dec("4.2")))
	assert.Equal(t, int64(100), got.UpdatedAt)

	// Upsert replaces.
	st.Fired[1] = true
	st.UpdatedAt = 200
	require.NoError(t, store.Put(ctx, st))
	got, err = store.Get(ctx, "MintA")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got.FiredIndexes())

	require.NoError(t, store.Put(ctx, domain.NewExitState("MintB", dec("1"), 300)))
	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "MintA", list[0].Asset)
	assert.Equal(t, "MintB", list[1].Asset)

	require.NoError(t, store.Delete(ctx, "MintA"))
	require.NoError(t, store.Delete(ctx, "MintA"))
	_, err = store.Get(ctx, "MintA")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
