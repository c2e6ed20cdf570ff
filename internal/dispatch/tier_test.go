package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierByName(t *testing.T) {
	tests := []struct {
		name      string
		cap       int
		unlimited bool
	}{
		{"TIER_250", 250, false},
		{"TIER_1K", 1000, false},
		{"TIER_10K", 10000, false},
		{"TIER_100K", 100000, false},
		{"TIER_UNLIMITED", 0, true},
		{"TIER_FUTURE", 250, false},
	}
	for _, tt := range tests {
		tier := tierByName(tt.name)
		assert.Equal(t, tt.cap, tier.Cap, tt.name)
		assert.Equal(t, tt.unlimited, tier.Unlimited, tt.name)
	}
}

func TestTierAllows(t *testing.T) {
	tier := Tier{Name: "TIER_250", Cap: 250}
	assert.True(t, tier.Allows(250))
	assert.False(t, tier.Allows(251))

	unlimited := Tier{Name: "TIER_UNLIMITED", Unlimited: true}
	assert.True(t, unlimited.Allows(10_000_000))
}

func TestTierResolver_NoCache(t *testing.T) {
	r := NewTierResolver(&fakeTierSource{tier: "TIER_1K"}, nil, "123", time.Minute)
	tier := r.Resolve(context.Background())
	assert.Equal(t, "TIER_1K", tier.Name)
	assert.Equal(t, 1000, tier.Cap)
}

func TestTierResolver_FallbackOnError(t *testing.T) {
	r := NewTierResolver(&fakeTierSource{err: errors.New("connection refused")}, nil, "123", time.Minute)
	tier := r.Resolve(context.Background())
	assert.Equal(t, fallbackTier, tier)
}

func TestTierResolver_FallbackOnEmptyTier(t *testing.T) {
	r := NewTierResolver(&fakeTierSource{tier: ""}, nil, "123", time.Minute)
	tier := r.Resolve(context.Background())
	assert.Equal(t, fallbackTier, tier)
}

func TestTierResolver_Cache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	source := &fakeTierSource{tier: "TIER_10K"}
	r := NewTierResolver(source, cache, "123", time.Minute)

	tier := r.Resolve(context.Background())
	assert.Equal(t, "TIER_10K", tier.Name)

	got, err := mr.Get("provider:tier:123")
	require.NoError(t, err)
	assert.Equal(t, "TIER_10K", got)

	// Cached value wins even if the provider now reports differently.
	source.tier = "TIER_250"
	tier = r.Resolve(context.Background())
	assert.Equal(t, "TIER_10K", tier.Name)

	// Expiry forces a fresh fetch.
	mr.FastForward(2 * time.Minute)
	tier = r.Resolve(context.Background())
	assert.Equal(t, "TIER_250", tier.Name)
}

func TestTierResolver_CacheDownDegradesToSource(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()
	mr.Close()

	r := NewTierResolver(&fakeTierSource{tier: "TIER_1K"}, cache, "123", time.Minute)
	tier := r.Resolve(context.Background())
	assert.Equal(t, "TIER_1K", tier.Name)
}
