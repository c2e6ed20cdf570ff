package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaygate-platform/relaygate/internal/provider"
)

// Tier is the provider-assigned ceiling on distinct template recipients
// within a rolling 24-hour window. Not persisted; resolved per dispatch
// cycle, optionally through a short-TTL cache.
type Tier struct {
	Name      string
	Cap       int
	Unlimited bool
}

// Allows reports whether count distinct recipients fit under the tier.
func (t Tier) Allows(count int) bool {
	return t.Unlimited || count <= t.Cap
}

var tierCaps = map[string]int{
	"TIER_250":  250,
	"TIER_1K":   1000,
	"TIER_10K":  10000,
	"TIER_100K": 100000,
}

const tierUnlimited = "TIER_UNLIMITED"

// fallbackTier is the smallest known cap. Resolution failures must never
// yield an over-generous cap.
var fallbackTier = Tier{Name: "TIER_250", Cap: 250}

// TierResolver queries the provider's account-status endpoint for the
// current tier, caching the name in Redis under a short TTL. Every
// failure path degrades to the fallback tier.
type TierResolver struct {
	source   provider.TierSource
	cache    redis.Cmdable
	cacheKey string
	ttl      time.Duration
}

// NewTierResolver builds a resolver. cache may be nil to disable caching.
func NewTierResolver(source provider.TierSource, cache redis.Cmdable, phoneID string, ttl time.Duration) *TierResolver {
	return &TierResolver{
		source:   source,
		cache:    cache,
		cacheKey: "provider:tier:" + phoneID,
		ttl:      ttl,
	}
}

// Resolve never fails: on any network, parse or cache error it returns
// the fallback tier.
func (r *TierResolver) Resolve(ctx context.Context) Tier {
	if r.cache != nil {
		name, err := r.cache.Get(ctx, r.cacheKey).Result()
		if err == nil {
			return tierByName(name)
		}
		if err != redis.Nil {
			slog.Warn("tier cache read failed", "error", err)
		}
	}

	name, err := r.source.MessagingTier(ctx)
	if err != nil {
		slog.Warn("tier fetch failed, using fallback", "error", err, "fallback", fallbackTier.Name)
		return fallbackTier
	}
	if name == "" {
		return fallbackTier
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, r.cacheKey, name, r.ttl).Err(); err != nil {
			slog.Warn("tier cache write failed", "error", err)
		}
	}

	return tierByName(name)
}

func tierByName(name string) Tier {
	if name == tierUnlimited {
		return Tier{Name: name, Unlimited: true}
	}
	if cap, ok := tierCaps[name]; ok {
		return Tier{Name: name, Cap: cap}
	}
	// Unknown tier names degrade to the conservative default cap.
	return Tier{Name: name, Cap: fallbackTier.Cap}
}
