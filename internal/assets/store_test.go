package assets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"pgregory.net/rapid"

	"ocpihub/internal/commandlog"
	"ocpihub/internal/ocpi"
	"ocpihub/pkg/platform/sentinel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noopLog(t *testing.T) *commandlog.Log {
	t.Helper()
	log, err := commandlog.Open("")
	if err != nil {
		t.Fatalf("open no-op log: %v", err)
	}
	return log
}

func session(id string, updated time.Time) ocpi.Session {
	return ocpi.Session{
		CountryCode: "DE",
		PartyID:     "ABC",
		ID:          id,
		StartTime:   updated.Add(-time.Hour),
		KWH:         12.5,
		AuthID:      "AUTH-" + id,
		AuthMethod:  "AUTH_REQUEST",
		LocationID:  "LOC1",
		Currency:    "EUR",
		Status:      ocpi.SessionActive,
		LastUpdated: updated,
	}
}

type StoreSuite struct {
	suite.Suite
	store *Store[ocpi.Session]
	ctx   context.Context
	now   time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *StoreSuite) SetupTest() {
	s.store = NewStore[ocpi.Session]("session", sessionCommands, noopLog(s.T()), discardLogger())
	s.ctx = context.Background()
	s.now = time.Now().UTC().Truncate(time.Second)
}

func (s *StoreSuite) TestAdd() {
	s.Run("inserts a new entity", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("S1", s.now)))
		got, ok := s.store.Get(s.ctx, "S1")
		s.Require().True(ok)
		s.Equal("S1", got.ID)
	})

	s.Run("duplicate key conflicts", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("S2", s.now)))
		err := s.store.Add(s.ctx, session("S2", s.now.Add(time.Minute)))
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *StoreSuite) TestAddIfNotExists() {
	s.Run("inserts when absent", func() {
		created, err := s.store.AddIfNotExists(s.ctx, session("S1", s.now))
		s.Require().NoError(err)
		s.True(created)
	})

	s.Run("existing value wins", func() {
		first := session("S2", s.now)
		first.KWH = 1
		_, err := s.store.AddIfNotExists(s.ctx, first)
		s.Require().NoError(err)

		second := session("S2", s.now.Add(time.Hour))
		second.KWH = 99
		created, err := s.store.AddIfNotExists(s.ctx, second)
		s.Require().NoError(err)
		s.False(created)

		got, ok := s.store.Get(s.ctx, "S2")
		s.Require().True(ok)
		s.Equal(float64(1), got.KWH)
	})
}

func (s *StoreSuite) TestAddOrUpdate() {
	s.Run("creates when absent", func() {
		outcome, err := s.store.AddOrUpdate(s.ctx, session("S1", s.now), nil)
		s.Require().NoError(err)
		s.Equal(OutcomeCreated, outcome)
	})

	s.Run("updates when strictly newer", func() {
		_, err := s.store.AddOrUpdate(s.ctx, session("S2", s.now), nil)
		s.Require().NoError(err)

		outcome, err := s.store.AddOrUpdate(s.ctx, session("S2", s.now.Add(time.Second)), nil)
		s.Require().NoError(err)
		s.Equal(OutcomeUpdated, outcome)
	})

	s.Run("equal timestamp is a downgrade", func() {
		_, err := s.store.AddOrUpdate(s.ctx, session("S3", s.now), nil)
		s.Require().NoError(err)

		_, err = s.store.AddOrUpdate(s.ctx, session("S3", s.now), nil)
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrDowngrade)
	})

	s.Run("older timestamp is a downgrade", func() {
		_, err := s.store.AddOrUpdate(s.ctx, session("S4", s.now), nil)
		s.Require().NoError(err)

		_, err = s.store.AddOrUpdate(s.ctx, session("S4", s.now.Add(-time.Minute)), nil)
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrDowngrade)
	})

	s.Run("per-call override admits older data", func() {
		_, err := s.store.AddOrUpdate(s.ctx, session("S5", s.now), nil)
		s.Require().NoError(err)

		allow := true
		outcome, err := s.store.AddOrUpdate(s.ctx, session("S5", s.now.Add(-time.Minute)), &allow)
		s.Require().NoError(err)
		s.Equal(OutcomeUpdated, outcome)

		got, ok := s.store.Get(s.ctx, "S5")
		s.Require().True(ok)
		s.Equal(s.now.Add(-time.Minute), got.LastUpdated)
	})

	s.Run("per-call override can re-enable the check", func() {
		permissive := NewStore[ocpi.Session]("session", sessionCommands, noopLog(s.T()), discardLogger(),
			WithAllowDowngrades[ocpi.Session](true))
		_, err := permissive.AddOrUpdate(s.ctx, session("S6", s.now), nil)
		s.Require().NoError(err)

		// Store default allows; the explicit override forbids.
		deny := false
		_, err = permissive.AddOrUpdate(s.ctx, session("S6", s.now), &deny)
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrDowngrade)

		// Without the override the store default applies.
		_, err = permissive.AddOrUpdate(s.ctx, session("S6", s.now), nil)
		s.NoError(err)
	})
}

func (s *StoreSuite) TestUpdate() {
	s.Run("missing key is not found", func() {
		err := s.store.Update(s.ctx, session("NOPE", s.now), nil)
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("replaces with a newer version", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("S1", s.now)))

		next := session("S1", s.now.Add(time.Second))
		next.KWH = 42
		s.Require().NoError(s.store.Update(s.ctx, next, nil))

		got, ok := s.store.Get(s.ctx, "S1")
		s.Require().True(ok)
		s.Equal(float64(42), got.KWH)
	})

	s.Run("rejected update leaves the stored value untouched", func() {
		stored := session("S2", s.now)
		s.Require().NoError(s.store.Add(s.ctx, stored))

		stale := session("S2", s.now.Add(-time.Hour))
		stale.KWH = 0
		err := s.store.Update(s.ctx, stale, nil)
		s.Require().ErrorIs(err, sentinel.ErrDowngrade)

		got, ok := s.store.Get(s.ctx, "S2")
		s.Require().True(ok)
		s.Equal(stored, got)
	})
}

func (s *StoreSuite) TestTryPatch() {
	s.Run("patches an existing entity", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("S1", s.now)))

		patched, err := s.store.TryPatch(s.ctx, "S1", func(cur ocpi.Session) (ocpi.Session, error) {
			cur.Status = ocpi.SessionCompleted
			cur.LastUpdated = s.now.Add(time.Second)
			return cur, nil
		}, nil)
		s.Require().NoError(err)
		s.Equal(ocpi.SessionCompleted, patched.Status)
	})

	s.Run("missing key is not found", func() {
		_, err := s.store.TryPatch(s.ctx, "NOPE", func(cur ocpi.Session) (ocpi.Session, error) {
			return cur, nil
		}, nil)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("patch may not change the key", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("S2", s.now)))

		_, err := s.store.TryPatch(s.ctx, "S2", func(cur ocpi.Session) (ocpi.Session, error) {
			cur.ID = "SOMETHING-ELSE"
			cur.LastUpdated = s.now.Add(time.Second)
			return cur, nil
		}, nil)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("patched result is subject to the downgrade law", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("S3", s.now)))

		_, err := s.store.TryPatch(s.ctx, "S3", func(cur ocpi.Session) (ocpi.Session, error) {
			cur.Status = ocpi.SessionInvalid
			return cur, nil // LastUpdated unchanged
		}, nil)
		s.Require().ErrorIs(err, sentinel.ErrDowngrade)
	})

	s.Run("apply errors pass through", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("S4", s.now)))

		boom := errors.New("boom")
		_, err := s.store.TryPatch(s.ctx, "S4", func(ocpi.Session) (ocpi.Session, error) {
			return ocpi.Session{}, boom
		}, nil)
		s.Require().ErrorIs(err, boom)
	})
}

func (s *StoreSuite) TestRemove() {
	s.Run("returns the removed entity", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("S1", s.now)))

		removed, err := s.store.Remove(s.ctx, "S1")
		s.Require().NoError(err)
		s.Equal("S1", removed.ID)

		_, ok := s.store.Get(s.ctx, "S1")
		s.False(ok)
	})

	s.Run("missing key is not found", func() {
		_, err := s.store.Remove(s.ctx, "NOPE")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StoreSuite) TestRemoveAll() {
	s.Run("predicate removes only matching entities", func() {
		ids := []string{"A", "B", "C", "D", "E"}
		for i, id := range ids {
			sess := session(id, s.now.Add(time.Duration(i)*time.Second))
			if id == "B" || id == "D" {
				sess.Status = ocpi.SessionCompleted
			}
			s.Require().NoError(s.store.Add(s.ctx, sess))
		}

		result := s.store.RemoveAll(s.ctx, func(v ocpi.Session) bool {
			return v.Status == ocpi.SessionCompleted
		})
		s.Require().True(result.AllSucceeded())
		s.Len(result.Removed, 2)

		s.Equal(3, s.store.Count())
		for _, id := range []string{"A", "C", "E"} {
			_, ok := s.store.Get(s.ctx, id)
			s.True(ok, "survivor %s must stay retrievable", id)
		}
		for _, id := range []string{"B", "D"} {
			_, ok := s.store.Get(s.ctx, id)
			s.False(ok, "%s must be gone", id)
		}
	})

	s.Run("nil predicate clears the store", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("X", s.now)))
		s.Require().NoError(s.store.Add(s.ctx, session("Y", s.now)))

		result := s.store.RemoveAll(s.ctx, nil)
		s.Require().True(result.AllSucceeded())
		s.Len(result.Removed, 2)
		s.Equal(0, s.store.Count())
	})

	s.Run("no matches is a no-op", func() {
		s.Require().NoError(s.store.Add(s.ctx, session("Z", s.now)))

		result := s.store.RemoveAll(s.ctx, func(ocpi.Session) bool { return false })
		s.True(result.NoneMatched())
		s.Equal(1, s.store.Count())
	})
}

func (s *StoreSuite) TestGetWithLookup() {
	s.Run("lookup fills a miss and is cached", func() {
		calls := 0
		lookup := func(ctx context.Context, key string) (ocpi.Session, bool, error) {
			calls++
			if key == "COLD" {
				return session("COLD", s.now), true, nil
			}
			return ocpi.Session{}, false, nil
		}
		store := NewStore[ocpi.Session]("session", sessionCommands, noopLog(s.T()), discardLogger(),
			WithLookup(lookup))

		got, ok := store.Get(s.ctx, "COLD")
		s.Require().True(ok)
		s.Equal("COLD", got.ID)

		_, ok = store.Get(s.ctx, "COLD")
		s.True(ok)
		s.Equal(1, calls, "second hit must be served from memory")
	})

	s.Run("lookup failure reads as not found", func() {
		lookup := func(context.Context, string) (ocpi.Session, bool, error) {
			return ocpi.Session{}, false, errors.New("backend down")
		}
		store := NewStore[ocpi.Session]("session", sessionCommands, noopLog(s.T()), discardLogger(),
			WithLookup(lookup))

		_, ok := store.Get(s.ctx, "ANY")
		s.False(ok)
	})
}

func (s *StoreSuite) TestHooksFire() {
	var added, changed, removed []string
	store := NewStore[ocpi.Session]("session", sessionCommands, noopLog(s.T()), discardLogger(),
		WithHooks(Hooks[ocpi.Session]{
			Added:   func(_ context.Context, v ocpi.Session) { added = append(added, v.ID) },
			Changed: func(_ context.Context, _, v ocpi.Session) { changed = append(changed, v.ID) },
			Removed: func(_ context.Context, v ocpi.Session) { removed = append(removed, v.ID) },
		}))

	s.Require().NoError(store.Add(s.ctx, session("S1", s.now)))
	_, err := store.AddOrUpdate(s.ctx, session("S1", s.now.Add(time.Second)), nil)
	s.Require().NoError(err)
	_, err = store.Remove(s.ctx, "S1")
	s.Require().NoError(err)

	s.Equal([]string{"S1"}, added)
	s.Equal([]string{"S1"}, changed)
	s.Equal([]string{"S1"}, removed)
}

// TestDowngradeLawProperty drives random timestamp pairs through AddOrUpdate:
// with downgrades disallowed the write must succeed exactly when the incoming
// timestamp is strictly newer than the stored one.
func TestDowngradeLawProperty(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		base := time.Unix(1_700_000_000, 0).UTC()
		storedOffset := rapid.Int64Range(0, 1_000_000).Draw(r, "stored_offset")
		incomingOffset := rapid.Int64Range(0, 1_000_000).Draw(r, "incoming_offset")

		store := NewStore[ocpi.Session]("session", sessionCommands, &commandlog.Log{}, discardLogger())
		ctx := context.Background()

		stored := session("S", base.Add(time.Duration(storedOffset)*time.Second))
		if err := store.Add(ctx, stored); err != nil {
			t.Fatalf("seed: %v", err)
		}

		incoming := session("S", base.Add(time.Duration(incomingOffset)*time.Second))
		_, err := store.AddOrUpdate(ctx, incoming, nil)

		if incomingOffset > storedOffset {
			if err != nil {
				t.Fatalf("strictly newer write rejected: %v", err)
			}
			got, _ := store.Get(ctx, "S")
			if !got.LastUpdated.Equal(incoming.LastUpdated) {
				t.Fatalf("stored timestamp %v, want %v", got.LastUpdated, incoming.LastUpdated)
			}
		} else {
			if !errors.Is(err, sentinel.ErrDowngrade) {
				t.Fatalf("non-newer write accepted, err=%v", err)
			}
			got, _ := store.Get(ctx, "S")
			if !got.LastUpdated.Equal(stored.LastUpdated) {
				t.Fatalf("rejected write mutated state: %v", got.LastUpdated)
			}
		}
	})
}
