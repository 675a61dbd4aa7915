package party

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ocpihub/internal/commandlog"
	"ocpihub/pkg/platform/sentinel"
)

// Registry is the thread-safe map of RemoteParty records keyed by
// (CountryCode, PartyId, Role). Values are shared pointers: readers must
// treat them as immutable and writers go through Clone + Swap, which gives
// at-most-one-writer-per-key semantics via compare-and-swap.
type Registry struct {
	mu      sync.RWMutex
	parties map[ID]*RemoteParty
	log     *commandlog.Log
	logger  *slog.Logger
}

// NewRegistry builds an empty registry appending to the given command log.
func NewRegistry(log *commandlog.Log, logger *slog.Logger) *Registry {
	return &Registry{
		parties: make(map[ID]*RemoteParty),
		log:     log,
		logger:  logger,
	}
}

// Add inserts a new party; fails with ErrConflict when the key exists.
func (r *Registry) Add(ctx context.Context, p *RemoteParty) error {
	r.mu.Lock()
	if _, ok := r.parties[p.ID()]; ok {
		r.mu.Unlock()
		return fmt.Errorf("remote party %s: %w", p.ID(), sentinel.ErrConflict)
	}
	r.parties[p.ID()] = p
	r.mu.Unlock()

	return r.log.Append(ctx, commandlog.AddRemoteParty, p)
}

// AddIfNotExists inserts the party unless the key exists; the existing record
// wins and the call is a successful no-op.
func (r *Registry) AddIfNotExists(ctx context.Context, p *RemoteParty) (bool, error) {
	r.mu.Lock()
	if _, ok := r.parties[p.ID()]; ok {
		r.mu.Unlock()
		return false, nil
	}
	r.parties[p.ID()] = p
	r.mu.Unlock()

	return true, r.log.Append(ctx, commandlog.AddIfNotExistsRemoteParty, p)
}

// AddOrUpdate upserts unconditionally and reports whether the record was
// created rather than replaced.
func (r *Registry) AddOrUpdate(ctx context.Context, p *RemoteParty) (bool, error) {
	r.mu.Lock()
	_, existed := r.parties[p.ID()]
	r.parties[p.ID()] = p
	r.mu.Unlock()

	return !existed, r.log.Append(ctx, commandlog.AddOrUpdateRemoteParty, p)
}

// Swap replaces old with updated if and only if old is still the stored
// record for its key: the optimistic-concurrency update. The loser of a race
// gets ErrCASMismatch and must re-read and retry.
func (r *Registry) Swap(ctx context.Context, old, updated *RemoteParty) error {
	if old.ID() != updated.ID() {
		return fmt.Errorf("swap changes party identity %s -> %s: %w", old.ID(), updated.ID(), sentinel.ErrConflict)
	}

	r.mu.Lock()
	stored, ok := r.parties[old.ID()]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("remote party %s: %w", old.ID(), sentinel.ErrNotFound)
	}
	if stored != old {
		r.mu.Unlock()
		return fmt.Errorf("remote party %s: %w", old.ID(), sentinel.ErrCASMismatch)
	}
	r.parties[old.ID()] = updated
	r.mu.Unlock()

	return r.log.Append(ctx, commandlog.UpdateRemoteParty, updated)
}

// Remove deletes the party by key.
func (r *Registry) Remove(ctx context.Context, id ID) error {
	r.mu.Lock()
	if _, ok := r.parties[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("remote party %s: %w", id, sentinel.ErrNotFound)
	}
	delete(r.parties, id)
	r.mu.Unlock()

	return r.log.Append(ctx, commandlog.RemoveRemoteParty, string(id))
}

// RevokeToken removes the local access entry carrying the token. Removing the
// last entry removes the party itself. Returns the resulting record, or nil
// when the party was deleted.
func (r *Registry) RevokeToken(ctx context.Context, token string) (*RemoteParty, error) {
	r.mu.Lock()
	var owner *RemoteParty
	var idx int
	for _, p := range r.parties {
		if i := p.LocalAccessByToken(token); i >= 0 {
			if owner != nil {
				r.mu.Unlock()
				return nil, fmt.Errorf("token resolves to multiple parties: %w", sentinel.ErrAmbiguous)
			}
			owner, idx = p, i
		}
	}
	if owner == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("no remote party with this token: %w", sentinel.ErrNotFound)
	}

	if len(owner.LocalAccess) == 1 {
		id := owner.ID()
		delete(r.parties, id)
		r.mu.Unlock()
		return nil, r.log.Append(ctx, commandlog.RemoveRemoteParty, string(id))
	}

	updated := owner.Clone()
	updated.LocalAccess = append(updated.LocalAccess[:idx], updated.LocalAccess[idx+1:]...)
	updated.LastUpdated = time.Now().UTC()
	r.parties[updated.ID()] = updated
	r.mu.Unlock()

	return updated, r.log.Append(ctx, commandlog.UpdateRemoteParty, updated)
}

// RemoveAll deletes every party matching the predicate; a nil predicate
// clears the registry. Returns the removed keys.
func (r *Registry) RemoveAll(ctx context.Context, match func(*RemoteParty) bool) ([]ID, error) {
	r.mu.Lock()
	var removed []ID
	if match == nil {
		for id := range r.parties {
			removed = append(removed, id)
		}
		clear(r.parties)
		r.mu.Unlock()
		return removed, r.log.Append(ctx, commandlog.RemoveAllRemoteParties, len(removed))
	}

	for id, p := range r.parties {
		if match(p) {
			removed = append(removed, id)
			delete(r.parties, id)
		}
	}
	r.mu.Unlock()

	for _, id := range removed {
		if err := r.log.Append(ctx, commandlog.RemoveRemoteParty, string(id)); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Get returns the stored record for the key. Callers must not mutate it.
func (r *Registry) Get(id ID) (*RemoteParty, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parties[id]
	return p, ok
}

// All returns a snapshot of every stored record.
func (r *Registry) All() []*RemoteParty {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RemoteParty, 0, len(r.parties))
	for _, p := range r.parties {
		out = append(out, p)
	}
	return out
}

// Find returns every record matching the predicate.
func (r *Registry) Find(match func(*RemoteParty) bool) []*RemoteParty {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*RemoteParty
	for _, p := range r.parties {
		if match(p) {
			out = append(out, p)
		}
	}
	return out
}

// ByLocalToken resolves an inbound access token, optionally with a one-time
// code, to the owning party and access entry. Tokens outside their validity
// window resolve to ErrExpired; entries requiring TOTP reject a missing or
// stale code. A token legitimately matching more than one party is rejected
// with ErrAmbiguous rather than picked arbitrarily.
func (r *Registry) ByLocalToken(now time.Time, token, oneTimeCode string) (*RemoteParty, LocalAccessInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type hit struct {
		p  *RemoteParty
		li LocalAccessInfo
	}
	var hits []hit
	sawExpired := false

	for _, p := range r.parties {
		for _, li := range p.LocalAccess {
			if li.AccessToken != token {
				continue
			}
			if !li.ValidAt(now) {
				sawExpired = true
				continue
			}
			if li.TOTP != nil && !li.TOTP.Matches(now, oneTimeCode) {
				continue
			}
			hits = append(hits, hit{p: p, li: li})
		}
	}

	switch len(hits) {
	case 0:
		if sawExpired {
			return nil, LocalAccessInfo{}, fmt.Errorf("access token: %w", sentinel.ErrExpired)
		}
		return nil, LocalAccessInfo{}, fmt.Errorf("access token: %w", sentinel.ErrNotFound)
	case 1:
		return hits[0].p, hits[0].li, nil
	default:
		return nil, LocalAccessInfo{}, fmt.Errorf("access token matches %d parties: %w", len(hits), sentinel.ErrAmbiguous)
	}
}

// Apply replays one persisted mutation without logging or notifying; it is
// the startup counterpart of the runtime mutations above.
func (r *Registry) Apply(rec commandlog.Record) error {
	switch rec.Command {
	case commandlog.AddRemoteParty, commandlog.AddOrUpdateRemoteParty, commandlog.UpdateRemoteParty:
		var p RemoteParty
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("replay %s: %w", rec.Command, err)
		}
		r.mu.Lock()
		r.parties[p.ID()] = &p
		r.mu.Unlock()
		return nil
	case commandlog.AddIfNotExistsRemoteParty:
		var p RemoteParty
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return fmt.Errorf("replay %s: %w", rec.Command, err)
		}
		r.mu.Lock()
		if _, ok := r.parties[p.ID()]; !ok {
			r.parties[p.ID()] = &p
		}
		r.mu.Unlock()
		return nil
	case commandlog.RemoveRemoteParty:
		var id string
		if err := json.Unmarshal(rec.Payload, &id); err != nil {
			return fmt.Errorf("replay %s: %w", rec.Command, err)
		}
		r.mu.Lock()
		delete(r.parties, ID(id))
		r.mu.Unlock()
		return nil
	case commandlog.RemoveAllRemoteParties:
		r.mu.Lock()
		clear(r.parties)
		r.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("unknown remote party command %q", rec.Command)
	}
}
