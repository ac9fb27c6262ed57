// Package ratelimit throttles inbound websocket intents per connection and
// natural-language queries per principal.
package ratelimit

import (
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

type Config struct {
	// PerSecond is the sustained rate. Zero or less disables limiting.
	PerSecond float64
	Burst     int
}

func (c Config) enabled() bool { return c.PerSecond > 0 }

func (c Config) burst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	if b := int(c.PerSecond * 2); b > 0 {
		return b
	}
	return 1
}

// NewBucket returns a single token bucket, or nil when cfg disables limiting.
// A nil *rate.Limiter must be checked with Allow below.
func NewBucket(cfg Config) *rate.Limiter {
	if !cfg.enabled() {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.burst())
}

// Allow reports whether one event may pass. A nil limiter always allows.
func Allow(l *rate.Limiter) bool {
	return l == nil || l.Allow()
}

// Keyed holds one bucket per key. Buckets idle for longer than the cache
// expiry are forgotten, which resets them to full.
type Keyed struct {
	cfg     Config
	buckets *cache.Cache
}

func NewKeyed(cfg Config, idle time.Duration) *Keyed {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Keyed{cfg: cfg, buckets: cache.New(idle, idle)}
}

func (k *Keyed) Allow(key string) bool {
	if k == nil || !k.cfg.enabled() {
		return true
	}
	if v, ok := k.buckets.Get(key); ok {
		k.buckets.SetDefault(key, v)
		return v.(*rate.Limiter).Allow()
	}
	l := NewBucket(k.cfg)
	if err := k.buckets.Add(key, l, cache.DefaultExpiration); err != nil {
		// Lost the race to another caller; use theirs.
		if v, ok := k.buckets.Get(key); ok {
			l = v.(*rate.Limiter)
		}
	}
	return l.Allow()
}
