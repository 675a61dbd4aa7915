package assets

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"ocpihub/internal/commandlog"
	"ocpihub/internal/events"
	"ocpihub/internal/ocpi"
	"ocpihub/pkg/platform/sentinel"
)

// KeepRemovedEVSEs decides whether an EVSE that reached status REMOVED stays
// in its parent Location's active set or is purged from it.
type KeepRemovedEVSEs func(ocpi.EVSE) bool

// LocationStore wraps the generic store with the EVSE/Connector projections.
// The Location is the unit of storage and concurrency: every nested mutation
// computes a new Location value and performs one compare-and-swap on the
// parent, so EVSE-level APIs stay atomic per Location.
type LocationStore struct {
	*Store[ocpi.Location]
	notifier    *events.Notifier
	keepRemoved KeepRemovedEVSEs
}

var locationCommands = Commands{
	Add:            commandlog.AddLocation,
	AddIfNotExists: commandlog.AddIfNotExistsLocation,
	AddOrUpdate:    commandlog.AddOrUpdateLocation,
	Update:         commandlog.UpdateLocation,
	Remove:         commandlog.RemoveLocation,
	RemoveAll:      commandlog.RemoveAllLocations,
}

// NewLocationStore builds the location store. A nil keepRemoved predicate
// retains REMOVED EVSEs.
func NewLocationStore(log *commandlog.Log, logger *slog.Logger, notifier *events.Notifier,
	keepRemoved KeepRemovedEVSEs, opts ...Option[ocpi.Location]) *LocationStore {

	ls := &LocationStore{notifier: notifier, keepRemoved: keepRemoved}
	if ls.keepRemoved == nil {
		ls.keepRemoved = func(ocpi.EVSE) bool { return true }
	}

	hooks := Hooks[ocpi.Location]{
		Added: func(ctx context.Context, l ocpi.Location) {
			notifier.LocationAdded(ctx, l)
			for _, e := range l.EVSEs {
				notifier.EVSEAdded(ctx, l.ID, e)
			}
		},
		Changed: func(ctx context.Context, old, updated ocpi.Location) {
			notifier.LocationChanged(ctx, old, updated)
			ls.diffEVSEs(ctx, old, updated)
		},
		Removed: func(ctx context.Context, l ocpi.Location) {
			for _, e := range l.EVSEs {
				notifier.EVSERemoved(ctx, l.ID, e)
			}
			notifier.LocationRemoved(ctx, l)
		},
	}

	opts = append([]Option[ocpi.Location]{WithHooks(hooks)}, opts...)
	ls.Store = NewStore("location", locationCommands, log, logger, opts...)
	return ls
}

// diffEVSEs walks the union of old and new EVSE UIDs and emits exactly one
// of Added / Changed(+StatusChanged) / Removed per affected EVSE, regardless
// of which API the caller used to change the Location.
func (ls *LocationStore) diffEVSEs(ctx context.Context, old, updated ocpi.Location) {
	seen := make(map[string]bool)

	for _, oldEVSE := range old.EVSEs {
		seen[oldEVSE.UID] = true
		newEVSE, stillThere := updated.EVSE(oldEVSE.UID)
		if !stillThere {
			ls.notifier.EVSERemoved(ctx, updated.ID, oldEVSE)
			continue
		}
		if !reflect.DeepEqual(oldEVSE, newEVSE) {
			ls.notifier.EVSEChanged(ctx, updated.ID, oldEVSE, newEVSE)
			if oldEVSE.Status != newEVSE.Status {
				ls.notifier.EVSEStatusChanged(ctx, updated.ID, newEVSE, oldEVSE.Status, newEVSE.Status)
			}
		}
	}

	for _, newEVSE := range updated.EVSEs {
		if !seen[newEVSE.UID] {
			ls.notifier.EVSEAdded(ctx, updated.ID, newEVSE)
		}
	}
}

// project reads the parent, computes the next Location value, and writes it
// back with a single compare-and-swap. The loser of a concurrent race on the
// same Location gets ErrCASMismatch and must retry.
func (ls *LocationStore) project(ctx context.Context, locationID string,
	compute func(ocpi.Location) (ocpi.Location, error)) error {

	loc, rev, ok := ls.getEntry(locationID)
	if !ok {
		return fmt.Errorf("location %s: %w", locationID, sentinel.ErrNotFound)
	}
	next, err := compute(loc)
	if err != nil {
		return err
	}
	if !next.LastUpdated.After(loc.LastUpdated) {
		next.LastUpdated = time.Now().UTC()
	}
	// The projection already enforced per-EVSE ordering; the parent swap
	// carries a fresh timestamp, so downgrades are allowed here.
	allow := true
	return ls.casUpdate(ctx, next, rev, &allow)
}

// applyRetention drops the EVSE from the active set when it is REMOVED and
// the retention policy says not to keep it.
func (ls *LocationStore) applyRetention(loc ocpi.Location, e ocpi.EVSE) ocpi.Location {
	if e.Status == ocpi.EVSERemoved && !ls.keepRemoved(e) {
		return loc.WithoutEVSE(e.UID)
	}
	return loc.WithEVSE(e)
}

// AddEVSE inserts a new EVSE into the Location; fails if the UID is taken.
func (ls *LocationStore) AddEVSE(ctx context.Context, locationID string, e ocpi.EVSE) error {
	return ls.project(ctx, locationID, func(loc ocpi.Location) (ocpi.Location, error) {
		if _, exists := loc.EVSE(e.UID); exists {
			return loc, fmt.Errorf("evse %s: %w", e.UID, sentinel.ErrConflict)
		}
		next := ls.applyRetention(loc, e)
		if e.LastUpdated.After(next.LastUpdated) {
			next.LastUpdated = e.LastUpdated
		}
		return next, nil
	})
}

// AddOrUpdateEVSE upserts one EVSE, applying the downgrade law against the
// existing EVSE's own LastUpdated.
func (ls *LocationStore) AddOrUpdateEVSE(ctx context.Context, locationID string, e ocpi.EVSE, allowDowngrades *bool) (Outcome, error) {
	outcome := OutcomeCreated
	err := ls.project(ctx, locationID, func(loc ocpi.Location) (ocpi.Location, error) {
		if existing, ok := loc.EVSE(e.UID); ok {
			outcome = OutcomeUpdated
			if !ls.downgrades(allowDowngrades) && !e.LastUpdated.After(existing.LastUpdated) {
				return loc, fmt.Errorf("evse %s: stored lastUpdated %s, incoming %s: %w",
					e.UID,
					existing.LastUpdated.Format(time.RFC3339Nano),
					e.LastUpdated.Format(time.RFC3339Nano),
					sentinel.ErrDowngrade)
			}
		}
		next := ls.applyRetention(loc, e)
		if e.LastUpdated.After(next.LastUpdated) {
			next.LastUpdated = e.LastUpdated
		}
		return next, nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// UpdateEVSE replaces an existing EVSE; fails with ErrNotFound when absent.
func (ls *LocationStore) UpdateEVSE(ctx context.Context, locationID string, e ocpi.EVSE, allowDowngrades *bool) error {
	return ls.project(ctx, locationID, func(loc ocpi.Location) (ocpi.Location, error) {
		existing, ok := loc.EVSE(e.UID)
		if !ok {
			return loc, fmt.Errorf("evse %s: %w", e.UID, sentinel.ErrNotFound)
		}
		if !ls.downgrades(allowDowngrades) && !e.LastUpdated.After(existing.LastUpdated) {
			return loc, fmt.Errorf("evse %s: stored lastUpdated %s, incoming %s: %w",
				e.UID,
				existing.LastUpdated.Format(time.RFC3339Nano),
				e.LastUpdated.Format(time.RFC3339Nano),
				sentinel.ErrDowngrade)
		}
		next := ls.applyRetention(loc, e)
		if e.LastUpdated.After(next.LastUpdated) {
			next.LastUpdated = e.LastUpdated
		}
		return next, nil
	})
}

// PatchEVSE applies a partial update to one EVSE through the parent swap.
func (ls *LocationStore) PatchEVSE(ctx context.Context, locationID, evseUID string,
	apply func(ocpi.EVSE) (ocpi.EVSE, error), allowDowngrades *bool) error {

	return ls.project(ctx, locationID, func(loc ocpi.Location) (ocpi.Location, error) {
		existing, ok := loc.EVSE(evseUID)
		if !ok {
			return loc, fmt.Errorf("evse %s: %w", evseUID, sentinel.ErrNotFound)
		}
		patched, err := apply(existing)
		if err != nil {
			return loc, err
		}
		if patched.UID != evseUID {
			return loc, fmt.Errorf("evse patch changes uid %s -> %s: %w", evseUID, patched.UID, sentinel.ErrConflict)
		}
		if !ls.downgrades(allowDowngrades) && !patched.LastUpdated.After(existing.LastUpdated) {
			return loc, fmt.Errorf("evse %s: stored lastUpdated %s, incoming %s: %w",
				evseUID,
				existing.LastUpdated.Format(time.RFC3339Nano),
				patched.LastUpdated.Format(time.RFC3339Nano),
				sentinel.ErrDowngrade)
		}
		next := ls.applyRetention(loc, patched)
		if patched.LastUpdated.After(next.LastUpdated) {
			next.LastUpdated = patched.LastUpdated
		}
		return next, nil
	})
}

// AddOrUpdateEVSEs applies a batch of EVSEs to a Location, creating the
// parent when absent. The outcome reports Created only when this call
// created the parent Location itself, Updated otherwise.
func (ls *LocationStore) AddOrUpdateEVSEs(ctx context.Context, location ocpi.Location, evses []ocpi.EVSE, allowDowngrades *bool) (Outcome, error) {
	createdParent, err := ls.AddIfNotExists(ctx, location)
	if err != nil {
		return 0, err
	}
	for _, e := range evses {
		if _, err := ls.AddOrUpdateEVSE(ctx, location.ID, e, allowDowngrades); err != nil {
			if createdParent {
				return OutcomeCreated, err
			}
			return OutcomeUpdated, err
		}
	}
	if createdParent {
		return OutcomeCreated, nil
	}
	return OutcomeUpdated, nil
}

// RemoveEVSE marks the EVSE REMOVED; the retention policy decides whether it
// stays in the active set or is purged. Removal is logical unless the
// predicate says otherwise.
func (ls *LocationStore) RemoveEVSE(ctx context.Context, locationID, evseUID string) error {
	return ls.project(ctx, locationID, func(loc ocpi.Location) (ocpi.Location, error) {
		existing, ok := loc.EVSE(evseUID)
		if !ok {
			return loc, fmt.Errorf("evse %s: %w", evseUID, sentinel.ErrNotFound)
		}
		existing.Status = ocpi.EVSERemoved
		existing.LastUpdated = time.Now().UTC()
		return ls.applyRetention(loc, existing), nil
	})
}

// AddOrUpdateConnector upserts one connector through the parent swap.
func (ls *LocationStore) AddOrUpdateConnector(ctx context.Context, locationID, evseUID string, c ocpi.Connector, allowDowngrades *bool) error {
	return ls.project(ctx, locationID, func(loc ocpi.Location) (ocpi.Location, error) {
		evse, ok := loc.EVSE(evseUID)
		if !ok {
			return loc, fmt.Errorf("evse %s: %w", evseUID, sentinel.ErrNotFound)
		}
		if existing, found := evse.Connector(c.ID); found {
			if !ls.downgrades(allowDowngrades) && !c.LastUpdated.After(existing.LastUpdated) {
				return loc, fmt.Errorf("connector %s: stored lastUpdated %s, incoming %s: %w",
					c.ID,
					existing.LastUpdated.Format(time.RFC3339Nano),
					c.LastUpdated.Format(time.RFC3339Nano),
					sentinel.ErrDowngrade)
			}
		}
		next := evse.WithConnector(c)
		if c.LastUpdated.After(next.LastUpdated) {
			next.LastUpdated = c.LastUpdated
		}
		return loc.WithEVSE(next), nil
	})
}

// RemoveConnector removes one connector through the parent swap.
func (ls *LocationStore) RemoveConnector(ctx context.Context, locationID, evseUID, connectorID string) error {
	return ls.project(ctx, locationID, func(loc ocpi.Location) (ocpi.Location, error) {
		evse, ok := loc.EVSE(evseUID)
		if !ok {
			return loc, fmt.Errorf("evse %s: %w", evseUID, sentinel.ErrNotFound)
		}
		if _, found := evse.Connector(connectorID); !found {
			return loc, fmt.Errorf("connector %s: %w", connectorID, sentinel.ErrNotFound)
		}
		next := evse.WithoutConnector(connectorID)
		next.LastUpdated = time.Now().UTC()
		return loc.WithEVSE(next), nil
	})
}
