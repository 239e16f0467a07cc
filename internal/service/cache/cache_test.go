package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantBridge/internal/domain/models"
)

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	c := NewTTLCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetBytes(ctx, "a", []byte("x"), time.Minute))
	require.NoError(t, c.SetBytes(ctx, "forever", []byte("y"), 0))

	b, ok, err := c.GetBytes(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", string(b))

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.GetBytes(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.GetBytes(ctx, "forever")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestPairKey(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{4, 5, 6}
	assert.Equal(t, PairKey(a, b), PairKey([]float64{1, 2, 3}, []float64{4, 5, 6}))
	assert.NotEqual(t, PairKey(a, b), PairKey(b, a))
	// the split point matters, not just the concatenation
	assert.NotEqual(t, PairKey([]float64{1, 2}, []float64{3, 4, 5, 6}), PairKey([]float64{1, 2, 3}, []float64{4, 5, 6}))
}

func TestCointegrationCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewTTLCache()
	c := NewCointegrationCache(store, time.Minute)
	key := PairKey([]float64{1}, []float64{2})

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := models.CointegrationResult{ADFPValue: 0.01, TraceStatistic: 25.3, MaxEigenStatistic: 21.7}
	require.NoError(t, c.Set(ctx, key, want))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, store.SetBytes(ctx, key, []byte("not json"), 0))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
