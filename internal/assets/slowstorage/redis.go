// Package slowstorage provides the optional durable backends behind the
// in-memory asset stores: lookups consulted on a cache miss, and mirrors that
// subscribe to domain events and write changes through. The in-memory store
// stays the source of truth for liveness; these backends only have to be
// eventually right.
package slowstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ocpihub/internal/events"
	"ocpihub/internal/ocpi"
)

// RedisStore mirrors token statuses and tariffs into Redis and serves them
// back on lookup misses. Small, hot, TTL-friendly entities go here; the bulky
// ones go to Postgres.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore builds the store. A zero TTL keeps entries until evicted.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "ocpihub"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (s *RedisStore) tokenKey(uid string) string { return fmt.Sprintf("%s:token:%s", s.prefix, uid) }
func (s *RedisStore) tariffKey(id string) string { return fmt.Sprintf("%s:tariff:%s", s.prefix, id) }

// TokenStatusLookup resolves a token status by UID.
func (s *RedisStore) TokenStatusLookup(ctx context.Context, uid string) (ocpi.TokenStatus, bool, error) {
	raw, err := s.rdb.Get(ctx, s.tokenKey(uid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ocpi.TokenStatus{}, false, nil
	}
	if err != nil {
		return ocpi.TokenStatus{}, false, fmt.Errorf("redis get token status %s: %w", uid, err)
	}
	var ts ocpi.TokenStatus
	if err := json.Unmarshal(raw, &ts); err != nil {
		return ocpi.TokenStatus{}, false, fmt.Errorf("decode token status %s: %w", uid, err)
	}
	return ts, true, nil
}

// TariffLookup resolves the tariff version effective at the given instant.
// All versions of one id live under a single key as a JSON array.
func (s *RedisStore) TariffLookup(ctx context.Context, id string, at time.Time) (ocpi.Tariff, bool, error) {
	raw, err := s.rdb.Get(ctx, s.tariffKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ocpi.Tariff{}, false, nil
	}
	if err != nil {
		return ocpi.Tariff{}, false, fmt.Errorf("redis get tariff %s: %w", id, err)
	}
	var versions []ocpi.Tariff
	if err := json.Unmarshal(raw, &versions); err != nil {
		return ocpi.Tariff{}, false, fmt.Errorf("decode tariff %s: %w", id, err)
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].EffectiveAt(at, 0) {
			return versions[i], true, nil
		}
	}
	return ocpi.Tariff{}, false, nil
}

func (s *RedisStore) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("marshal for redis mirror", "key", key, "error", err)
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("redis mirror write failed", "key", key, "error", err)
	}
}

func (s *RedisStore) del(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("redis mirror delete failed", "key", key, "error", err)
	}
}

// Subscribe registers write-through mirroring on the notifier. Mirror
// failures are logged, never propagated: the mutation already succeeded.
func (s *RedisStore) Subscribe(n *events.Notifier, tariffVersions func(id string) []ocpi.Tariff) {
	n.OnTokenStatusAdded(func(ctx context.Context, ts ocpi.TokenStatus) {
		s.set(ctx, s.tokenKey(ts.Key()), ts)
	})
	n.OnTokenStatusChanged(func(ctx context.Context, _, updated ocpi.TokenStatus) {
		s.set(ctx, s.tokenKey(updated.Key()), updated)
	})
	n.OnTokenStatusRemoved(func(ctx context.Context, ts ocpi.TokenStatus) {
		s.del(ctx, s.tokenKey(ts.Key()))
	})

	syncTariff := func(ctx context.Context, id string) {
		versions := tariffVersions(id)
		if len(versions) == 0 {
			s.del(ctx, s.tariffKey(id))
			return
		}
		s.set(ctx, s.tariffKey(id), versions)
	}
	n.OnTariffAdded(func(ctx context.Context, t ocpi.Tariff) { syncTariff(ctx, t.ID) })
	n.OnTariffChanged(func(ctx context.Context, _, updated ocpi.Tariff) { syncTariff(ctx, updated.ID) })
	n.OnTariffRemoved(func(ctx context.Context, t ocpi.Tariff) { syncTariff(ctx, t.ID) })
}

// Ping verifies connectivity; called once at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
