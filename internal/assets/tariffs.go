package assets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ocpihub/internal/commandlog"
	"ocpihub/internal/events"
	"ocpihub/internal/ocpi"
	"ocpihub/pkg/platform/sentinel"
)

// TariffLookup is the slow-storage fallback for tariffs: resolves a tariff
// id at a point in time.
type TariffLookup func(ctx context.Context, id string, ts time.Time) (ocpi.Tariff, bool, error)

// TariffStore is the time-ranged collection: several versions of one tariff
// id may coexist, distinguished by NotBefore, and point-in-time lookups
// resolve the version effective at that instant. Versions of one id are kept
// sorted by NotBefore.
type TariffStore struct {
	mu       sync.RWMutex
	versions map[string][]ocpi.Tariff

	log             *commandlog.Log
	logger          *slog.Logger
	notifier        *events.Notifier
	lookup          TariffLookup
	allowDowngrades bool
}

// NewTariffStore builds the time-ranged tariff store.
func NewTariffStore(log *commandlog.Log, logger *slog.Logger, notifier *events.Notifier,
	allowDowngrades bool, lookup TariffLookup) *TariffStore {

	return &TariffStore{
		versions:        make(map[string][]ocpi.Tariff),
		log:             log,
		logger:          logger,
		notifier:        notifier,
		lookup:          lookup,
		allowDowngrades: allowDowngrades,
	}
}

func (s *TariffStore) downgrades(override *bool) bool {
	if override != nil {
		return *override
	}
	return s.allowDowngrades
}

// effectiveAt returns the index of the version effective at ts, or -1. With
// sorted versions that is the last one whose window contains the instant.
func effectiveAt(versions []ocpi.Tariff, ts time.Time, tolerance time.Duration) int {
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].EffectiveAt(ts, tolerance) {
			return i
		}
	}
	return -1
}

// TryGet resolves the tariff version effective at the given instant; a zero
// timestamp means now. Zero tolerance means exact window containment. On a
// full miss the slow-storage fallback is consulted; its failure is logged
// and reported as not found.
func (s *TariffStore) TryGet(ctx context.Context, id string, ts time.Time, tolerance time.Duration) (ocpi.Tariff, bool) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	s.mu.RLock()
	versions := s.versions[id]
	idx := effectiveAt(versions, ts, tolerance)
	if idx >= 0 {
		t := versions[idx]
		s.mu.RUnlock()
		return t, true
	}
	s.mu.RUnlock()

	if s.lookup == nil {
		return ocpi.Tariff{}, false
	}
	t, found, err := s.lookup(ctx, id, ts)
	if err != nil {
		s.logger.Warn("slow storage lookup failed", "kind", "tariff", "key", id, "error", err)
		return ocpi.Tariff{}, false
	}
	if !found {
		return ocpi.Tariff{}, false
	}
	s.mu.Lock()
	s.insertLocked(t)
	s.mu.Unlock()
	return t, true
}

// Versions returns all stored versions of one tariff id, NotBefore-ordered.
func (s *TariffStore) Versions(id string) []ocpi.Tariff {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ocpi.Tariff, len(s.versions[id]))
	copy(out, s.versions[id])
	return out
}

// Values returns a snapshot of every stored tariff version.
func (s *TariffStore) Values() []ocpi.Tariff {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ocpi.Tariff
	for _, versions := range s.versions {
		out = append(out, versions...)
	}
	return out
}

// insertLocked places t into its id's version list, replacing an equal
// NotBefore or inserting sorted.
func (s *TariffStore) insertLocked(t ocpi.Tariff) {
	versions := s.versions[t.ID]
	for i := range versions {
		if versions[i].NotBefore.Equal(t.NotBefore) {
			versions[i] = t
			return
		}
	}
	versions = append(versions, t)
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].NotBefore.Before(versions[j].NotBefore)
	})
	s.versions[t.ID] = versions
}

// versionAt returns the stored version with exactly the given NotBefore.
func (s *TariffStore) versionAt(id string, notBefore time.Time) (ocpi.Tariff, bool) {
	for _, v := range s.versions[id] {
		if v.NotBefore.Equal(notBefore) {
			return v, true
		}
	}
	return ocpi.Tariff{}, false
}

// Add inserts a new tariff version; fails when a version of the same id with
// the same NotBefore already exists.
func (s *TariffStore) Add(ctx context.Context, t ocpi.Tariff) error {
	s.mu.Lock()
	if _, ok := s.versionAt(t.ID, t.NotBefore); ok {
		s.mu.Unlock()
		return fmt.Errorf("tariff %s@%s: %w", t.ID, t.NotBefore.Format(time.RFC3339), sentinel.ErrConflict)
	}
	s.insertLocked(t)
	s.mu.Unlock()

	if err := s.log.Append(ctx, commandlog.AddTariff, t); err != nil {
		return err
	}
	s.notifier.TariffAdded(ctx, t)
	return nil
}

// AddIfNotExists inserts unless the exact version exists; the stored version
// wins and the call is a successful no-op.
func (s *TariffStore) AddIfNotExists(ctx context.Context, t ocpi.Tariff) (bool, error) {
	s.mu.Lock()
	if _, ok := s.versionAt(t.ID, t.NotBefore); ok {
		s.mu.Unlock()
		return false, nil
	}
	s.insertLocked(t)
	s.mu.Unlock()

	if err := s.log.Append(ctx, commandlog.AddIfNotExistsTariff, t); err != nil {
		return true, err
	}
	s.notifier.TariffAdded(ctx, t)
	return true, nil
}

// AddOrUpdate upserts one tariff version. The downgrade law compares against
// the version sharing the incoming tariff's own NotBefore, never against the
// one active now, so inserting a future-dated version cannot collide with
// the currently active one.
func (s *TariffStore) AddOrUpdate(ctx context.Context, t ocpi.Tariff, allowDowngrades *bool) (Outcome, error) {
	s.mu.Lock()
	existing, existed := s.versionAt(t.ID, t.NotBefore)
	if existed && !s.downgrades(allowDowngrades) && !t.LastUpdated.After(existing.LastUpdated) {
		s.mu.Unlock()
		return 0, fmt.Errorf("tariff %s@%s: stored lastUpdated %s, incoming %s: %w",
			t.ID, t.NotBefore.Format(time.RFC3339),
			existing.LastUpdated.Format(time.RFC3339Nano),
			t.LastUpdated.Format(time.RFC3339Nano),
			sentinel.ErrDowngrade)
	}
	s.insertLocked(t)
	s.mu.Unlock()

	if err := s.log.Append(ctx, commandlog.AddOrUpdateTariff, t); err != nil {
		return 0, err
	}
	if existed {
		s.notifier.TariffChanged(ctx, existing, t)
		return OutcomeUpdated, nil
	}
	s.notifier.TariffAdded(ctx, t)
	return OutcomeCreated, nil
}

// Update replaces an existing tariff version; fails with ErrNotFound when
// no version of the id shares the incoming NotBefore.
func (s *TariffStore) Update(ctx context.Context, t ocpi.Tariff, allowDowngrades *bool) error {
	s.mu.Lock()
	existing, ok := s.versionAt(t.ID, t.NotBefore)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("tariff %s@%s: %w", t.ID, t.NotBefore.Format(time.RFC3339), sentinel.ErrNotFound)
	}
	if !s.downgrades(allowDowngrades) && !t.LastUpdated.After(existing.LastUpdated) {
		s.mu.Unlock()
		return fmt.Errorf("tariff %s@%s: stored lastUpdated %s, incoming %s: %w",
			t.ID, t.NotBefore.Format(time.RFC3339),
			existing.LastUpdated.Format(time.RFC3339Nano),
			t.LastUpdated.Format(time.RFC3339Nano),
			sentinel.ErrDowngrade)
	}
	s.insertLocked(t)
	s.mu.Unlock()

	if err := s.log.Append(ctx, commandlog.UpdateTariff, t); err != nil {
		return err
	}
	s.notifier.TariffChanged(ctx, existing, t)
	return nil
}

// TryPatch applies a partial update to the version active now, subject to
// the downgrade law on the patched result.
func (s *TariffStore) TryPatch(ctx context.Context, id string, apply func(ocpi.Tariff) (ocpi.Tariff, error), allowDowngrades *bool) (ocpi.Tariff, error) {
	now := time.Now().UTC()

	s.mu.RLock()
	versions := s.versions[id]
	idx := effectiveAt(versions, now, 0)
	if idx < 0 {
		s.mu.RUnlock()
		return ocpi.Tariff{}, fmt.Errorf("tariff %s: %w", id, sentinel.ErrNotFound)
	}
	current := versions[idx]
	s.mu.RUnlock()

	patched, err := apply(current)
	if err != nil {
		return ocpi.Tariff{}, err
	}
	if patched.ID != id || !patched.NotBefore.Equal(current.NotBefore) {
		return ocpi.Tariff{}, fmt.Errorf("tariff patch changes version identity: %w", sentinel.ErrConflict)
	}
	if err := s.Update(ctx, patched, allowDowngrades); err != nil {
		return ocpi.Tariff{}, err
	}
	return patched, nil
}

// Remove deletes every version of the tariff id and returns them.
func (s *TariffStore) Remove(ctx context.Context, id string) ([]ocpi.Tariff, error) {
	s.mu.Lock()
	removed, ok := s.versions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("tariff %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.versions, id)
	s.mu.Unlock()

	if err := s.log.Append(ctx, commandlog.RemoveTariff, id); err != nil {
		return removed, err
	}
	for _, t := range removed {
		s.notifier.TariffRemoved(ctx, t)
	}
	return removed, nil
}

// tariffVersionRef identifies one stored version of a tariff id: the unit of
// version-precise removal records.
type tariffVersionRef struct {
	ID        string    `json:"id"`
	NotBefore time.Time `json:"not_before"`
}

// RemoveAll removes every version matching the predicate; a nil predicate
// clears the store. Predicate removals are logged per version, so replay
// deletes exactly the versions the predicate matched and nothing else.
func (s *TariffStore) RemoveAll(ctx context.Context, match func(ocpi.Tariff) bool) RemoveAllResult[ocpi.Tariff] {
	var result RemoveAllResult[ocpi.Tariff]

	if match == nil {
		s.mu.Lock()
		for _, versions := range s.versions {
			result.Removed = append(result.Removed, versions...)
		}
		clear(s.versions)
		s.mu.Unlock()

		if err := s.log.Append(ctx, commandlog.RemoveAllTariffs, len(result.Removed)); err != nil {
			result.Failed = append(result.Failed, RemoveFailure{Key: "*", Err: err})
		}
		for _, t := range result.Removed {
			s.notifier.TariffRemoved(ctx, t)
		}
		return result
	}

	s.mu.Lock()
	var removed []ocpi.Tariff
	for id, versions := range s.versions {
		var kept []ocpi.Tariff
		for _, v := range versions {
			if match(v) {
				removed = append(removed, v)
			} else {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(s.versions, id)
		} else {
			s.versions[id] = kept
		}
	}
	s.mu.Unlock()

	for _, t := range removed {
		ref := tariffVersionRef{ID: t.ID, NotBefore: t.NotBefore}
		if err := s.log.Append(ctx, commandlog.RemoveTariffVersion, ref); err != nil {
			result.Failed = append(result.Failed, RemoveFailure{Key: t.ID, Err: err})
			continue
		}
		result.Removed = append(result.Removed, t)
		s.notifier.TariffRemoved(ctx, t)
	}
	return result
}

// replaySet and friends rebuild state from the command log: no logging, no
// events.

func (s *TariffStore) replaySet(t ocpi.Tariff) {
	s.mu.Lock()
	s.insertLocked(t)
	s.mu.Unlock()
}

func (s *TariffStore) replaySetIfAbsent(t ocpi.Tariff) {
	s.mu.Lock()
	if _, ok := s.versionAt(t.ID, t.NotBefore); !ok {
		s.insertLocked(t)
	}
	s.mu.Unlock()
}

func (s *TariffStore) replayRemove(id string) {
	s.mu.Lock()
	delete(s.versions, id)
	s.mu.Unlock()
}

func (s *TariffStore) replayRemoveVersion(id string, notBefore time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.versions[id]
	for i, v := range versions {
		if v.NotBefore.Equal(notBefore) {
			versions = append(versions[:i], versions[i+1:]...)
			break
		}
	}
	if len(versions) == 0 {
		delete(s.versions, id)
		return
	}
	s.versions[id] = versions
}

func (s *TariffStore) replayClear() {
	s.mu.Lock()
	clear(s.versions)
	s.mu.Unlock()
}
