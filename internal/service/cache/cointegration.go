package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"QuantBridge/internal/domain/models"
)

// CointegrationCache memoises pair test results keyed by a digest of the
// input series.
type CointegrationCache struct {
	store BytesCache
	ttl   time.Duration
}

func NewCointegrationCache(store BytesCache, ttl time.Duration) *CointegrationCache {
	return &CointegrationCache{store: store, ttl: ttl}
}

// PairKey is order-sensitive: (a, b) and (b, a) are different keys.
func PairKey(a, b []float64) string {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(a)))
	h.Write(buf[:])
	for _, s := range [][]float64{a, b} {
		for _, v := range s {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}
	return "coint:" + hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached result. Decode failures count as misses.
func (c *CointegrationCache) Get(ctx context.Context, key string) (models.CointegrationResult, bool, error) {
	var res models.CointegrationResult
	b, ok, err := c.store.GetBytes(ctx, key)
	if err != nil || !ok {
		return res, false, err
	}
	if err := json.Unmarshal(b, &res); err != nil {
		return res, false, nil
	}
	return res, true, nil
}

func (c *CointegrationCache) Set(ctx context.Context, key string, res models.CointegrationResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.store.SetBytes(ctx, key, b, c.ttl)
}
