package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ocpihub/internal/commandlog"
	"ocpihub/internal/events"
	"ocpihub/internal/ocpi"
)

var (
	sessionCommands = Commands{
		Add:            commandlog.AddSession,
		AddIfNotExists: commandlog.AddIfNotExistsSession,
		AddOrUpdate:    commandlog.AddOrUpdateSession,
		Update:         commandlog.UpdateSession,
		Remove:         commandlog.RemoveSession,
		RemoveAll:      commandlog.RemoveAllSessions,
	}

	tokenStatusCommands = Commands{
		Add:            commandlog.AddTokenStatus,
		AddIfNotExists: commandlog.AddIfNotExistsTokenStatus,
		AddOrUpdate:    commandlog.AddOrUpdateTokenStatus,
		Update:         commandlog.UpdateTokenStatus,
		Remove:         commandlog.RemoveTokenStatus,
		RemoveAll:      commandlog.RemoveAllTokenStatuses,
	}

	// CDRs are write-once: there is no dedicated update command, so the
	// upsert tag doubles as the replacement tag.
	cdrCommands = Commands{
		Add:            commandlog.AddCDR,
		AddIfNotExists: commandlog.AddIfNotExistsCDR,
		AddOrUpdate:    commandlog.AddOrUpdateCDR,
		Update:         commandlog.AddOrUpdateCDR,
		Remove:         commandlog.RemoveCDR,
		RemoveAll:      commandlog.RemoveAllCDRs,
	}
)

// Lookups bundles the optional slow-storage fallbacks per entity kind.
type Lookups struct {
	Location    Lookup[ocpi.Location]
	Tariff      TariffLookup
	Session     Lookup[ocpi.Session]
	TokenStatus Lookup[ocpi.TokenStatus]
	CDR         Lookup[ocpi.CDR]
}

// Config carries the shared wiring for all asset stores.
type Config struct {
	Log             *commandlog.Log
	Logger          *slog.Logger
	Notifier        *events.Notifier
	AllowDowngrades bool
	KeepRemoved     KeepRemovedEVSEs
	TariffTolerance time.Duration
	Lookups         Lookups
}

// Assets aggregates the per-kind stores. Each store is its own concurrency
// domain; the aggregate only shares the command log and the notifier.
type Assets struct {
	Locations *LocationStore
	Tariffs   *TariffStore
	Sessions  *Store[ocpi.Session]
	Tokens    *Store[ocpi.TokenStatus]
	CDRs      *Store[ocpi.CDR]

	logger *slog.Logger
}

// New builds all asset stores on one command log.
func New(cfg Config) *Assets {
	n := cfg.Notifier

	a := &Assets{logger: cfg.Logger}

	a.Locations = NewLocationStore(cfg.Log, cfg.Logger, n, cfg.KeepRemoved,
		WithAllowDowngrades[ocpi.Location](cfg.AllowDowngrades),
		WithLookup(cfg.Lookups.Location))

	a.Tariffs = NewTariffStore(cfg.Log, cfg.Logger, n, cfg.AllowDowngrades, cfg.Lookups.Tariff)

	a.Sessions = NewStore("session", sessionCommands, cfg.Log, cfg.Logger,
		WithAllowDowngrades[ocpi.Session](cfg.AllowDowngrades),
		WithLookup(cfg.Lookups.Session),
		WithHooks(Hooks[ocpi.Session]{
			Added:   n.SessionAdded,
			Changed: n.SessionChanged,
			Removed: n.SessionRemoved,
		}))

	a.Tokens = NewStore("token status", tokenStatusCommands, cfg.Log, cfg.Logger,
		WithAllowDowngrades[ocpi.TokenStatus](cfg.AllowDowngrades),
		WithLookup(cfg.Lookups.TokenStatus),
		WithHooks(Hooks[ocpi.TokenStatus]{
			Added:   n.TokenStatusAdded,
			Changed: n.TokenStatusChanged,
			Removed: n.TokenStatusRemoved,
		}))

	a.CDRs = NewStore("cdr", cdrCommands, cfg.Log, cfg.Logger,
		WithAllowDowngrades[ocpi.CDR](cfg.AllowDowngrades),
		WithLookup(cfg.Lookups.CDR),
		WithHooks(Hooks[ocpi.CDR]{
			Added:   n.CDRAdded,
			Changed: n.CDRChanged,
			Removed: n.CDRRemoved,
		}))

	return a
}

// Replay rebuilds the stores from the command log, silently: no records are
// written and no events fire. Corrupt lines and unknown commands are logged
// and skipped.
func (a *Assets) Replay(ctx context.Context, log *commandlog.Log) (int, error) {
	replayed := 0
	err := log.Replay(ctx, func(rec commandlog.Record) error {
		if err := a.Apply(rec); err != nil {
			return err
		}
		replayed++
		return nil
	}, func(line string, err error) {
		a.logger.Warn("skipping unreplayable asset command", "error", err, "line", line)
	})
	return replayed, err
}

func decode[T any](rec commandlog.Record) (T, error) {
	var v T
	if err := json.Unmarshal(rec.Payload, &v); err != nil {
		return v, fmt.Errorf("replay %s: %w", rec.Command, err)
	}
	return v, nil
}

func applySet[T Entity](s *Store[T], rec commandlog.Record) error {
	v, err := decode[T](rec)
	if err != nil {
		return err
	}
	s.replaySet(v)
	return nil
}

func applySetIfAbsent[T Entity](s *Store[T], rec commandlog.Record) error {
	v, err := decode[T](rec)
	if err != nil {
		return err
	}
	s.replaySetIfAbsent(v)
	return nil
}

func applyRemove[T Entity](s *Store[T], rec commandlog.Record) error {
	key, err := decode[string](rec)
	if err != nil {
		return err
	}
	s.replayRemove(key)
	return nil
}

// Apply dispatches one persisted record to the store it belongs to. The
// switch is exhaustive over the known command set; anything else is an error
// for the caller to log and skip.
func (a *Assets) Apply(rec commandlog.Record) error {
	switch rec.Command {
	case commandlog.AddLocation, commandlog.AddOrUpdateLocation, commandlog.UpdateLocation:
		return applySet(a.Locations.Store, rec)
	case commandlog.AddIfNotExistsLocation:
		return applySetIfAbsent(a.Locations.Store, rec)
	case commandlog.RemoveLocation:
		return applyRemove(a.Locations.Store, rec)
	case commandlog.RemoveAllLocations:
		a.Locations.replayClear()
		return nil

	case commandlog.AddTariff, commandlog.AddOrUpdateTariff, commandlog.UpdateTariff:
		t, err := decode[ocpi.Tariff](rec)
		if err != nil {
			return err
		}
		a.Tariffs.replaySet(t)
		return nil
	case commandlog.AddIfNotExistsTariff:
		t, err := decode[ocpi.Tariff](rec)
		if err != nil {
			return err
		}
		a.Tariffs.replaySetIfAbsent(t)
		return nil
	case commandlog.RemoveTariff:
		id, err := decode[string](rec)
		if err != nil {
			return err
		}
		a.Tariffs.replayRemove(id)
		return nil
	case commandlog.RemoveTariffVersion:
		ref, err := decode[tariffVersionRef](rec)
		if err != nil {
			return err
		}
		a.Tariffs.replayRemoveVersion(ref.ID, ref.NotBefore)
		return nil
	case commandlog.RemoveAllTariffs:
		a.Tariffs.replayClear()
		return nil

	case commandlog.AddSession, commandlog.AddOrUpdateSession, commandlog.UpdateSession:
		return applySet(a.Sessions, rec)
	case commandlog.AddIfNotExistsSession:
		return applySetIfAbsent(a.Sessions, rec)
	case commandlog.RemoveSession:
		return applyRemove(a.Sessions, rec)
	case commandlog.RemoveAllSessions:
		a.Sessions.replayClear()
		return nil

	case commandlog.AddTokenStatus, commandlog.AddOrUpdateTokenStatus, commandlog.UpdateTokenStatus:
		return applySet(a.Tokens, rec)
	case commandlog.AddIfNotExistsTokenStatus:
		return applySetIfAbsent(a.Tokens, rec)
	case commandlog.RemoveTokenStatus:
		return applyRemove(a.Tokens, rec)
	case commandlog.RemoveAllTokenStatuses:
		a.Tokens.replayClear()
		return nil

	case commandlog.AddCDR, commandlog.AddOrUpdateCDR:
		return applySet(a.CDRs, rec)
	case commandlog.AddIfNotExistsCDR:
		return applySetIfAbsent(a.CDRs, rec)
	case commandlog.RemoveCDR:
		return applyRemove(a.CDRs, rec)
	case commandlog.RemoveAllCDRs:
		a.CDRs.replayClear()
		return nil

	default:
		return fmt.Errorf("unknown asset command %q", rec.Command)
	}
}
