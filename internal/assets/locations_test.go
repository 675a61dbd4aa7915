package assets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ocpihub/internal/events"
	"ocpihub/internal/ocpi"
	"ocpihub/pkg/platform/sentinel"
)

// evseEvent is one recorded fan-out for assertions on kind and order.
type evseEvent struct {
	kind string
	uid  string
}

type eventRecorder struct {
	events []evseEvent
}

func (r *eventRecorder) subscribe(n *events.Notifier) {
	n.OnEVSEAdded(func(_ context.Context, _ string, e ocpi.EVSE) {
		r.events = append(r.events, evseEvent{"added", e.UID})
	})
	n.OnEVSEChanged(func(_ context.Context, _ string, _, e ocpi.EVSE) {
		r.events = append(r.events, evseEvent{"changed", e.UID})
	})
	n.OnEVSEStatusChanged(func(_ context.Context, _ string, e ocpi.EVSE, _, _ ocpi.EVSEStatus) {
		r.events = append(r.events, evseEvent{"status", e.UID})
	})
	n.OnEVSERemoved(func(_ context.Context, _ string, e ocpi.EVSE) {
		r.events = append(r.events, evseEvent{"removed", e.UID})
	})
}

func (r *eventRecorder) byKind(kind string) []string {
	var uids []string
	for _, e := range r.events {
		if e.kind == kind {
			uids = append(uids, e.uid)
		}
	}
	return uids
}

func evse(uid string, status ocpi.EVSEStatus, updated time.Time) ocpi.EVSE {
	return ocpi.EVSE{
		UID:         uid,
		EVSEID:      "DE*ABC*E" + uid,
		Status:      status,
		LastUpdated: updated,
	}
}

func location(id string, updated time.Time, evses ...ocpi.EVSE) ocpi.Location {
	return ocpi.Location{
		CountryCode: "DE",
		PartyID:     "ABC",
		ID:          id,
		Address:     "Hauptstrasse 1",
		City:        "Berlin",
		Country:     "DEU",
		EVSEs:       evses,
		LastUpdated: updated,
	}
}

type LocationStoreSuite struct {
	suite.Suite
	store    *LocationStore
	recorder *eventRecorder
	ctx      context.Context
	now      time.Time
}

func TestLocationStoreSuite(t *testing.T) {
	suite.Run(t, new(LocationStoreSuite))
}

func (s *LocationStoreSuite) SetupTest() {
	notifier := events.NewNotifier(discardLogger())
	s.recorder = &eventRecorder{}
	s.recorder.subscribe(notifier)
	s.store = NewLocationStore(noopLog(s.T()), discardLogger(), notifier, nil)
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Second)
}

func (s *LocationStoreSuite) TestEVSEDiffOnLocationReplace() {
	// Old set {A, B}, new set {B', C}: exactly one removal for A, one change
	// (plus a status change) for B, one addition for C.
	old := location("LOC1", s.now,
		evse("A", ocpi.EVSEAvailable, s.now),
		evse("B", ocpi.EVSEAvailable, s.now),
	)
	s.Require().NoError(s.store.Add(s.ctx, old))
	s.recorder.events = nil

	updated := location("LOC1", s.now.Add(time.Second),
		evse("B", ocpi.EVSECharging, s.now.Add(time.Second)),
		evse("C", ocpi.EVSEAvailable, s.now.Add(time.Second)),
	)
	_, err := s.store.AddOrUpdate(s.ctx, updated, nil)
	s.Require().NoError(err)

	s.Equal([]string{"A"}, s.recorder.byKind("removed"))
	s.Equal([]string{"B"}, s.recorder.byKind("changed"))
	s.Equal([]string{"B"}, s.recorder.byKind("status"))
	s.Equal([]string{"C"}, s.recorder.byKind("added"))
}

func (s *LocationStoreSuite) TestEVSEDiffIgnoresUnchanged() {
	old := location("LOC1", s.now, evse("A", ocpi.EVSEAvailable, s.now))
	s.Require().NoError(s.store.Add(s.ctx, old))
	s.recorder.events = nil

	updated := location("LOC1", s.now.Add(time.Second), evse("A", ocpi.EVSEAvailable, s.now))
	updated.Name = "renamed"
	_, err := s.store.AddOrUpdate(s.ctx, updated, nil)
	s.Require().NoError(err)

	s.Empty(s.recorder.byKind("added"))
	s.Empty(s.recorder.byKind("changed"))
	s.Empty(s.recorder.byKind("removed"))
}

func (s *LocationStoreSuite) TestAddEVSE() {
	s.Run("inserts into an existing location", func() {
		s.Require().NoError(s.store.Add(s.ctx, location("LOC1", s.now)))
		s.Require().NoError(s.store.AddEVSE(s.ctx, "LOC1", evse("A", ocpi.EVSEAvailable, s.now.Add(time.Second))))

		loc, ok := s.store.Get(s.ctx, "LOC1")
		s.Require().True(ok)
		_, found := loc.EVSE("A")
		s.True(found)
	})

	s.Run("duplicate uid conflicts", func() {
		err := s.store.AddEVSE(s.ctx, "LOC1", evse("A", ocpi.EVSEAvailable, s.now.Add(time.Minute)))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing location is not found", func() {
		err := s.store.AddEVSE(s.ctx, "NOPE", evse("A", ocpi.EVSEAvailable, s.now))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *LocationStoreSuite) TestAddOrUpdateEVSE() {
	s.Require().NoError(s.store.Add(s.ctx, location("LOC1", s.now)))

	s.Run("creates when absent", func() {
		outcome, err := s.store.AddOrUpdateEVSE(s.ctx, "LOC1", evse("A", ocpi.EVSEAvailable, s.now.Add(time.Second)), nil)
		s.Require().NoError(err)
		s.Equal(OutcomeCreated, outcome)
	})

	s.Run("updates when strictly newer", func() {
		outcome, err := s.store.AddOrUpdateEVSE(s.ctx, "LOC1", evse("A", ocpi.EVSECharging, s.now.Add(2*time.Second)), nil)
		s.Require().NoError(err)
		s.Equal(OutcomeUpdated, outcome)
	})

	s.Run("stale write is a downgrade", func() {
		_, err := s.store.AddOrUpdateEVSE(s.ctx, "LOC1", evse("A", ocpi.EVSEBlocked, s.now), nil)
		s.Require().ErrorIs(err, sentinel.ErrDowngrade)

		loc, _ := s.store.Get(s.ctx, "LOC1")
		got, _ := loc.EVSE("A")
		s.Equal(ocpi.EVSECharging, got.Status)
	})

	s.Run("parent timestamp follows the newest evse", func() {
		e := evse("B", ocpi.EVSEAvailable, s.now.Add(time.Hour))
		_, err := s.store.AddOrUpdateEVSE(s.ctx, "LOC1", e, nil)
		s.Require().NoError(err)

		loc, _ := s.store.Get(s.ctx, "LOC1")
		s.Equal(e.LastUpdated, loc.LastUpdated)
	})
}

func (s *LocationStoreSuite) TestPatchEVSE() {
	s.Require().NoError(s.store.Add(s.ctx, location("LOC1", s.now, evse("A", ocpi.EVSEAvailable, s.now))))

	s.Run("patches status through the parent", func() {
		err := s.store.PatchEVSE(s.ctx, "LOC1", "A", func(e ocpi.EVSE) (ocpi.EVSE, error) {
			e.Status = ocpi.EVSEInoperative
			e.LastUpdated = s.now.Add(time.Second)
			return e, nil
		}, nil)
		s.Require().NoError(err)

		loc, _ := s.store.Get(s.ctx, "LOC1")
		got, _ := loc.EVSE("A")
		s.Equal(ocpi.EVSEInoperative, got.Status)
	})

	s.Run("patch may not change the uid", func() {
		err := s.store.PatchEVSE(s.ctx, "LOC1", "A", func(e ocpi.EVSE) (ocpi.EVSE, error) {
			e.UID = "Z"
			e.LastUpdated = s.now.Add(time.Minute)
			return e, nil
		}, nil)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unchanged timestamp is a downgrade", func() {
		err := s.store.PatchEVSE(s.ctx, "LOC1", "A", func(e ocpi.EVSE) (ocpi.EVSE, error) {
			e.FloorLevel = "2"
			return e, nil
		}, nil)
		s.Require().ErrorIs(err, sentinel.ErrDowngrade)
	})
}

func (s *LocationStoreSuite) TestRemoveEVSERetention() {
	s.Run("default policy keeps the tombstone", func() {
		s.Require().NoError(s.store.Add(s.ctx, location("LOC1", s.now, evse("A", ocpi.EVSEAvailable, s.now))))
		s.Require().NoError(s.store.RemoveEVSE(s.ctx, "LOC1", "A"))

		loc, _ := s.store.Get(s.ctx, "LOC1")
		got, found := loc.EVSE("A")
		s.Require().True(found, "removed evse stays in the active set")
		s.Equal(ocpi.EVSERemoved, got.Status)
	})

	s.Run("purging policy drops it", func() {
		notifier := events.NewNotifier(discardLogger())
		purging := NewLocationStore(noopLog(s.T()), discardLogger(), notifier,
			func(ocpi.EVSE) bool { return false })
		s.Require().NoError(purging.Add(s.ctx, location("LOC2", s.now, evse("A", ocpi.EVSEAvailable, s.now))))
		s.Require().NoError(purging.RemoveEVSE(s.ctx, "LOC2", "A"))

		loc, _ := purging.Get(s.ctx, "LOC2")
		_, found := loc.EVSE("A")
		s.False(found)
	})

	s.Run("upsert to REMOVED goes through the same policy", func() {
		notifier := events.NewNotifier(discardLogger())
		purging := NewLocationStore(noopLog(s.T()), discardLogger(), notifier,
			func(ocpi.EVSE) bool { return false })
		s.Require().NoError(purging.Add(s.ctx, location("LOC3", s.now, evse("A", ocpi.EVSEAvailable, s.now))))

		_, err := purging.AddOrUpdateEVSE(s.ctx, "LOC3", evse("A", ocpi.EVSERemoved, s.now.Add(time.Second)), nil)
		s.Require().NoError(err)

		loc, _ := purging.Get(s.ctx, "LOC3")
		_, found := loc.EVSE("A")
		s.False(found)
	})
}

func (s *LocationStoreSuite) TestAddOrUpdateEVSEs() {
	s.Run("created only when the parent is new", func() {
		outcome, err := s.store.AddOrUpdateEVSEs(s.ctx, location("LOC1", s.now),
			[]ocpi.EVSE{evse("A", ocpi.EVSEAvailable, s.now.Add(time.Second))}, nil)
		s.Require().NoError(err)
		s.Equal(OutcomeCreated, outcome)
	})

	s.Run("updated when the parent already exists", func() {
		outcome, err := s.store.AddOrUpdateEVSEs(s.ctx, location("LOC1", s.now),
			[]ocpi.EVSE{evse("B", ocpi.EVSEAvailable, s.now.Add(time.Second))}, nil)
		s.Require().NoError(err)
		s.Equal(OutcomeUpdated, outcome)

		loc, _ := s.store.Get(s.ctx, "LOC1")
		s.Len(loc.EVSEs, 2)
	})
}

func (s *LocationStoreSuite) TestConnectors() {
	conn := func(id string, updated time.Time) ocpi.Connector {
		return ocpi.Connector{
			ID:          id,
			Standard:    "IEC_62196_T2",
			Format:      "SOCKET",
			PowerType:   "AC_3_PHASE",
			Voltage:     400,
			Amperage:    32,
			LastUpdated: updated,
		}
	}

	s.Require().NoError(s.store.Add(s.ctx, location("LOC1", s.now, evse("A", ocpi.EVSEAvailable, s.now))))

	s.Run("upsert creates", func() {
		err := s.store.AddOrUpdateConnector(s.ctx, "LOC1", "A", conn("1", s.now.Add(time.Second)), nil)
		s.Require().NoError(err)

		loc, _ := s.store.Get(s.ctx, "LOC1")
		e, _ := loc.EVSE("A")
		_, found := e.Connector("1")
		s.True(found)
	})

	s.Run("stale upsert is a downgrade", func() {
		err := s.store.AddOrUpdateConnector(s.ctx, "LOC1", "A", conn("1", s.now), nil)
		s.Require().ErrorIs(err, sentinel.ErrDowngrade)
	})

	s.Run("remove deletes the connector", func() {
		s.Require().NoError(s.store.RemoveConnector(s.ctx, "LOC1", "A", "1"))

		loc, _ := s.store.Get(s.ctx, "LOC1")
		e, _ := loc.EVSE("A")
		_, found := e.Connector("1")
		s.False(found)
	})

	s.Run("missing connector is not found", func() {
		err := s.store.RemoveConnector(s.ctx, "LOC1", "A", "99")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("missing evse is not found", func() {
		err := s.store.AddOrUpdateConnector(s.ctx, "LOC1", "Z", conn("1", s.now), nil)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *LocationStoreSuite) TestLocationRemoveEmitsPerEVSE() {
	s.Require().NoError(s.store.Add(s.ctx, location("LOC1", s.now,
		evse("A", ocpi.EVSEAvailable, s.now),
		evse("B", ocpi.EVSEAvailable, s.now),
	)))
	s.recorder.events = nil

	_, err := s.store.Remove(s.ctx, "LOC1")
	s.Require().NoError(err)

	s.ElementsMatch([]string{"A", "B"}, s.recorder.byKind("removed"))
}
