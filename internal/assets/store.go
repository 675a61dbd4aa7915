// Package assets implements the versioned, concurrent stores behind the OCPI
// receiver endpoints. Every entity carries a LastUpdated timestamp, and one
// law governs all of them: an update whose timestamp is not strictly newer
// than the stored one is rejected unless downgrades are explicitly allowed.
// That ordering rule is the application-level substitute for a global
// sequence number across independently clocked OCPI peers.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ocpihub/internal/commandlog"
	"ocpihub/pkg/platform/sentinel"
)

// Entity is anything the versioned store can hold.
type Entity interface {
	Key() string
	Updated() time.Time
}

// Lookup is an optional slow-storage fallback consulted on a cache miss.
// Its failure is non-fatal: the store logs and reports "not found".
type Lookup[T Entity] func(ctx context.Context, key string) (T, bool, error)

// Hooks are the domain-event callbacks a store fires after a mutation has
// been applied and logged.
type Hooks[T Entity] struct {
	Added   func(context.Context, T)
	Changed func(context.Context, T, T)
	Removed func(context.Context, T)
}

// Commands names the command-log tags for one entity kind.
type Commands struct {
	Add            commandlog.Command
	AddIfNotExists commandlog.Command
	AddOrUpdate    commandlog.Command
	Update         commandlog.Command
	Remove         commandlog.Command
	RemoveAll      commandlog.Command
}

type entry[T Entity] struct {
	value T
	rev   uint64
}

// Store is one entity kind's concurrency domain: no lock is shared across
// kinds, so a Location update never blocks a Tariff update.
type Store[T Entity] struct {
	mu    sync.RWMutex
	items map[string]entry[T]

	kind            string
	commands        Commands
	log             *commandlog.Log
	logger          *slog.Logger
	hooks           Hooks[T]
	lookup          Lookup[T]
	allowDowngrades bool
}

// Option configures a Store.
type Option[T Entity] func(*Store[T])

// WithAllowDowngrades sets the store-wide default for the downgrade law.
func WithAllowDowngrades[T Entity](allow bool) Option[T] {
	return func(s *Store[T]) { s.allowDowngrades = allow }
}

// WithLookup installs the slow-storage fallback.
func WithLookup[T Entity](lookup Lookup[T]) Option[T] {
	return func(s *Store[T]) { s.lookup = lookup }
}

// WithHooks installs the domain-event callbacks.
func WithHooks[T Entity](hooks Hooks[T]) Option[T] {
	return func(s *Store[T]) { s.hooks = hooks }
}

// NewStore builds a store for one entity kind.
func NewStore[T Entity](kind string, commands Commands, log *commandlog.Log, logger *slog.Logger, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		items:    make(map[string]entry[T]),
		kind:     kind,
		commands: commands,
		log:      log,
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// downgrades resolves the per-call override against the store default.
func (s *Store[T]) downgrades(override *bool) bool {
	if override != nil {
		return *override
	}
	return s.allowDowngrades
}

// checkNewer enforces the downgrade law against a stored value.
func checkNewer[T Entity](kind string, stored, incoming T, allow bool) error {
	if allow {
		return nil
	}
	if !incoming.Updated().After(stored.Updated()) {
		return fmt.Errorf("%s %s: stored lastUpdated %s, incoming %s: %w",
			kind, incoming.Key(),
			stored.Updated().Format(time.RFC3339Nano),
			incoming.Updated().Format(time.RFC3339Nano),
			sentinel.ErrDowngrade)
	}
	return nil
}

// Get returns the entity by key, consulting the slow-storage fallback on a
// miss. A resolved fallback value is cached but neither logged nor notified.
func (s *Store[T]) Get(ctx context.Context, key string) (T, bool) {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return e.value, true
	}

	var zero T
	if s.lookup == nil {
		return zero, false
	}
	v, found, err := s.lookup(ctx, key)
	if err != nil {
		s.logger.Warn("slow storage lookup failed", "kind", s.kind, "key", key, "error", err)
		return zero, false
	}
	if !found {
		return zero, false
	}

	s.mu.Lock()
	if cur, ok := s.items[key]; ok {
		// Raced with a writer; the in-memory value wins.
		s.mu.Unlock()
		return cur.value, true
	}
	s.items[key] = entry[T]{value: v}
	s.mu.Unlock()
	return v, true
}

// Values returns a point-in-time snapshot of all stored entities.
func (s *Store[T]) Values() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e.value)
	}
	return out
}

// Count returns the number of stored entities.
func (s *Store[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Add inserts a new entity; fails with ErrConflict if the key is taken.
func (s *Store[T]) Add(ctx context.Context, v T) error {
	s.mu.Lock()
	if _, ok := s.items[v.Key()]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", s.kind, v.Key(), sentinel.ErrConflict)
	}
	s.items[v.Key()] = entry[T]{value: v}
	s.mu.Unlock()

	if err := s.log.Append(ctx, s.commands.Add, v); err != nil {
		return err
	}
	if s.hooks.Added != nil {
		s.hooks.Added(ctx, v)
	}
	return nil
}

// AddIfNotExists inserts unless present; the existing value wins and the
// call is a successful no-op.
func (s *Store[T]) AddIfNotExists(ctx context.Context, v T) (bool, error) {
	s.mu.Lock()
	if _, ok := s.items[v.Key()]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.items[v.Key()] = entry[T]{value: v}
	s.mu.Unlock()

	if err := s.log.Append(ctx, s.commands.AddIfNotExists, v); err != nil {
		return true, err
	}
	if s.hooks.Added != nil {
		s.hooks.Added(ctx, v)
	}
	return true, nil
}

// AddOrUpdate upserts, applying the downgrade law when replacing.
func (s *Store[T]) AddOrUpdate(ctx context.Context, v T, allowDowngrades *bool) (Outcome, error) {
	s.mu.Lock()
	old, existed := s.items[v.Key()]
	if existed {
		if err := checkNewer(s.kind, old.value, v, s.downgrades(allowDowngrades)); err != nil {
			s.mu.Unlock()
			return 0, err
		}
	}
	s.items[v.Key()] = entry[T]{value: v, rev: old.rev + 1}
	s.mu.Unlock()

	if err := s.log.Append(ctx, s.commands.AddOrUpdate, v); err != nil {
		return 0, err
	}
	if existed {
		if s.hooks.Changed != nil {
			s.hooks.Changed(ctx, old.value, v)
		}
		return OutcomeUpdated, nil
	}
	if s.hooks.Added != nil {
		s.hooks.Added(ctx, v)
	}
	return OutcomeCreated, nil
}

// Update replaces an existing entity, applying the downgrade law; fails with
// ErrNotFound when the key is absent.
func (s *Store[T]) Update(ctx context.Context, v T, allowDowngrades *bool) error {
	s.mu.Lock()
	old, ok := s.items[v.Key()]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", s.kind, v.Key(), sentinel.ErrNotFound)
	}
	if err := checkNewer(s.kind, old.value, v, s.downgrades(allowDowngrades)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.items[v.Key()] = entry[T]{value: v, rev: old.rev + 1}
	s.mu.Unlock()

	if err := s.log.Append(ctx, s.commands.Update, v); err != nil {
		return err
	}
	if s.hooks.Changed != nil {
		s.hooks.Changed(ctx, old.value, v)
	}
	return nil
}

// getEntry exposes value plus revision for compare-and-swap callers within
// the package (the Location projections).
func (s *Store[T]) getEntry(key string) (T, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	return e.value, e.rev, ok
}

// casUpdate replaces the entity only if its revision is still expectedRev.
// The loser of a concurrent race gets ErrCASMismatch and must retry; nothing
// is auto-merged.
func (s *Store[T]) casUpdate(ctx context.Context, v T, expectedRev uint64, allowDowngrades *bool) error {
	s.mu.Lock()
	old, ok := s.items[v.Key()]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", s.kind, v.Key(), sentinel.ErrNotFound)
	}
	if old.rev != expectedRev {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", s.kind, v.Key(), sentinel.ErrCASMismatch)
	}
	if err := checkNewer(s.kind, old.value, v, s.downgrades(allowDowngrades)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.items[v.Key()] = entry[T]{value: v, rev: old.rev + 1}
	s.mu.Unlock()

	if err := s.log.Append(ctx, s.commands.Update, v); err != nil {
		return err
	}
	if s.hooks.Changed != nil {
		s.hooks.Changed(ctx, old.value, v)
	}
	return nil
}

// TryPatch applies a partial-update function to the stored entity. The
// patched result is itself subject to the downgrade law, and the write is a
// compare-and-swap against the revision the patch was computed from.
func (s *Store[T]) TryPatch(ctx context.Context, key string, apply func(T) (T, error), allowDowngrades *bool) (T, error) {
	var zero T
	cur, rev, ok := s.getEntry(key)
	if !ok {
		return zero, fmt.Errorf("%s %s: %w", s.kind, key, sentinel.ErrNotFound)
	}
	patched, err := apply(cur)
	if err != nil {
		return zero, err
	}
	if patched.Key() != key {
		return zero, fmt.Errorf("%s patch changes key %s -> %s: %w", s.kind, key, patched.Key(), sentinel.ErrConflict)
	}
	if err := s.casUpdate(ctx, patched, rev, allowDowngrades); err != nil {
		return zero, err
	}
	return patched, nil
}

// Remove deletes and returns the entity.
func (s *Store[T]) Remove(ctx context.Context, key string) (T, error) {
	var zero T
	s.mu.Lock()
	e, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		return zero, fmt.Errorf("%s %s: %w", s.kind, key, sentinel.ErrNotFound)
	}
	delete(s.items, key)
	s.mu.Unlock()

	if err := s.log.Append(ctx, s.commands.Remove, key); err != nil {
		return e.value, err
	}
	if s.hooks.Removed != nil {
		s.hooks.Removed(ctx, e.value)
	}
	return e.value, nil
}

// RemoveAll removes every entity matching the predicate; a nil predicate
// clears the store. The result partitions removed from failed items and
// never hard-fails a mixed outcome.
func (s *Store[T]) RemoveAll(ctx context.Context, match func(T) bool) RemoveAllResult[T] {
	var result RemoveAllResult[T]

	if match == nil {
		s.mu.Lock()
		for _, e := range s.items {
			result.Removed = append(result.Removed, e.value)
		}
		clear(s.items)
		s.mu.Unlock()

		if err := s.log.Append(ctx, s.commands.RemoveAll, len(result.Removed)); err != nil {
			result.Failed = append(result.Failed, RemoveFailure{Key: "*", Err: err})
		}
		for _, v := range result.Removed {
			if s.hooks.Removed != nil {
				s.hooks.Removed(ctx, v)
			}
		}
		return result
	}

	s.mu.Lock()
	var removed []T
	for key, e := range s.items {
		if match(e.value) {
			removed = append(removed, e.value)
			delete(s.items, key)
		}
	}
	s.mu.Unlock()

	for _, v := range removed {
		if err := s.log.Append(ctx, s.commands.Remove, v.Key()); err != nil {
			result.Failed = append(result.Failed, RemoveFailure{Key: v.Key(), Err: err})
			continue
		}
		result.Removed = append(result.Removed, v)
		if s.hooks.Removed != nil {
			s.hooks.Removed(ctx, v)
		}
	}
	return result
}

// replaySet, replaySetIfAbsent, replayRemove and replayClear are the startup
// counterparts of the mutations above: no logging, no events.

func (s *Store[T]) replaySet(v T) {
	s.mu.Lock()
	old := s.items[v.Key()]
	s.items[v.Key()] = entry[T]{value: v, rev: old.rev + 1}
	s.mu.Unlock()
}

func (s *Store[T]) replaySetIfAbsent(v T) {
	s.mu.Lock()
	if _, ok := s.items[v.Key()]; !ok {
		s.items[v.Key()] = entry[T]{value: v}
	}
	s.mu.Unlock()
}

func (s *Store[T]) replayRemove(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

func (s *Store[T]) replayClear() {
	s.mu.Lock()
	clear(s.items)
	s.mu.Unlock()
}
