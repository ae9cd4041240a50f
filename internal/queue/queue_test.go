package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pixelhawk/hawk/internal/geometry"
	"github.com/pixelhawk/hawk/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestComputeBucketSizesSumsToNAndHottestAtLeastFive(t *testing.T) {
	for _, n := range []int{0, 1, 4, 5, 6, 10, 20, 57, 200, 1000} {
		sizes := computeBucketSizes(n)
		require.Equal(t, n, sum(sizes), "n=%d", n)
		if n > 0 {
			require.GreaterOrEqual(t, sizes[0], minOf(5, n), "n=%d sizes=%v", n, sizes)
		}
	}
}

func minOf(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestQueueFairnessVisitsEveryNonEmptyBucket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Three temperature buckets with distinct heats, one burning tile.
	require.NoError(t, s.UpsertTile(ctx, store.Tile{ID: geometry.Tile{X: 0, Y: 0}.ID(), X: 0, Y: 0, Heat: store.BurningHeat}))
	require.NoError(t, s.UpsertTile(ctx, store.Tile{ID: geometry.Tile{X: 1, Y: 0}.ID(), X: 1, Y: 0, Heat: 1}))
	require.NoError(t, s.UpsertTile(ctx, store.Tile{ID: geometry.Tile{X: 2, Y: 0}.ID(), X: 2, Y: 0, Heat: 2}))
	require.NoError(t, s.UpsertTile(ctx, store.Tile{ID: geometry.Tile{X: 3, Y: 0}.ID(), X: 3, Y: 0, Heat: 3}))

	q := New(s)
	seenHeats := make(map[int]bool)
	nonEmptyBuckets := 4 // burning, 1, 2, 3
	for i := 0; i < nonEmptyBuckets+1; i++ {
		tile, err := q.Next(ctx)
		require.NoError(t, err)
		seenHeats[tile.Heat] = true
	}
	require.Len(t, seenHeats, nonEmptyBuckets)
}

func TestQueueBurningPriorityFirstEachPass(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertTile(ctx, store.Tile{ID: geometry.Tile{X: 0, Y: 0}.ID(), X: 0, Y: 0, Heat: store.BurningHeat}))
	require.NoError(t, s.UpsertTile(ctx, store.Tile{ID: geometry.Tile{X: 1, Y: 0}.ID(), X: 1, Y: 0, Heat: 1}))

	q := New(s)
	first, err := q.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, store.BurningHeat, first.Heat)

	second, err := q.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, second.Heat)

	// Second pass: burning must lead again.
	third, err := q.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, store.BurningHeat, third.Heat)
}

func TestQueueEmptyReturnsErrEmpty(t *testing.T) {
	s := newTestStore(t)
	q := New(s)
	_, err := q.Next(context.Background())
	require.ErrorIs(t, err, ErrEmpty)
}
