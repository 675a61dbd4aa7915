package slowstorage

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"ocpihub/internal/assets"
)

// Cached wraps a lookup with a short-lived negative-and-positive cache so a
// burst of misses for the same key hits the backend once. Entries expire
// after ttl; the in-memory store above already caches positive hits forever,
// so this mostly shields the backend from repeated misses.
func Cached[T assets.Entity](lookup assets.Lookup[T], ttl time.Duration) assets.Lookup[T] {
	type result struct {
		value T
		found bool
	}
	c := gocache.New(ttl, 2*ttl)

	return func(ctx context.Context, key string) (T, bool, error) {
		if v, ok := c.Get(key); ok {
			r := v.(result)
			return r.value, r.found, nil
		}
		value, found, err := lookup(ctx, key)
		if err != nil {
			var zero T
			return zero, false, err
		}
		c.SetDefault(key, result{value: value, found: found})
		return value, found, nil
	}
}
