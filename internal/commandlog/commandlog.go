// Package commandlog implements the append-only persistence behind the party
// registry and the asset stores. Every mutation is written as one JSON-lines
// record; on startup the streams are replayed through the same mutation
// handlers that serve live traffic.
package commandlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Command tags one log record with the mutation it captures. The set is
// closed; replay dispatches through an exhaustive switch and logs-and-skips
// anything it does not recognize.
type Command string

const (
	AddRemoteParty            Command = "addRemoteParty"
	AddIfNotExistsRemoteParty Command = "addRemotePartyIfNotExists"
	AddOrUpdateRemoteParty    Command = "addOrUpdateRemoteParty"
	UpdateRemoteParty         Command = "updateRemoteParty"
	RemoveRemoteParty         Command = "removeRemoteParty"
	RemoveAllRemoteParties    Command = "removeAllRemoteParties"

	AddLocation            Command = "addLocation"
	AddIfNotExistsLocation Command = "addLocationIfNotExists"
	AddOrUpdateLocation    Command = "addOrUpdateLocation"
	UpdateLocation         Command = "updateLocation"
	RemoveLocation         Command = "removeLocation"
	RemoveAllLocations     Command = "removeAllLocations"

	AddTariff            Command = "addTariff"
	AddIfNotExistsTariff Command = "addTariffIfNotExists"
	AddOrUpdateTariff    Command = "addOrUpdateTariff"
	UpdateTariff         Command = "updateTariff"
	RemoveTariff         Command = "removeTariff"
	RemoveTariffVersion  Command = "removeTariffVersion"
	RemoveAllTariffs     Command = "removeAllTariffs"

	AddSession            Command = "addSession"
	AddIfNotExistsSession Command = "addSessionIfNotExists"
	AddOrUpdateSession    Command = "addOrUpdateSession"
	UpdateSession         Command = "updateSession"
	RemoveSession         Command = "removeSession"
	RemoveAllSessions     Command = "removeAllSessions"

	AddTokenStatus            Command = "addTokenStatus"
	AddIfNotExistsTokenStatus Command = "addTokenStatusIfNotExists"
	AddOrUpdateTokenStatus    Command = "addOrUpdateTokenStatus"
	UpdateTokenStatus         Command = "updateTokenStatus"
	RemoveTokenStatus         Command = "removeTokenStatus"
	RemoveAllTokenStatuses    Command = "removeAllTokenStatuses"

	AddCDR            Command = "addCDR"
	AddIfNotExistsCDR Command = "addCDRIfNotExists"
	AddOrUpdateCDR    Command = "addOrUpdateCDR"
	RemoveCDR         Command = "removeCDR"
	RemoveAllCDRs     Command = "removeAllCDRs"
)

// Record is one persisted mutation. Payload is the JSON form of the mutated
// entity, the removed key, or a plain number for bulk clears.
type Record struct {
	Command         Command         `json:"command"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	EventTrackingID string          `json:"event_tracking_id"`
	UserID          string          `json:"user_id,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Log is one append-only JSONL stream. A deployment holds two: one for
// remote parties, one for assets. Safe for concurrent appenders.
type Log struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open opens (creating if needed) the stream at path. An empty path yields a
// no-op log, which keeps tests and ephemeral deployments simple.
func Open(path string) (*Log, error) {
	if path == "" {
		return &Log{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open command log %s: %w", path, err)
	}
	return &Log{path: path, f: f}, nil
}

// Append writes one record and syncs it before returning. The payload may be
// any JSON-marshalable value, including a bare number for bulk clears.
func (l *Log) Append(ctx context.Context, cmd Command, payload any) error {
	if l.f == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", cmd, err)
	}
	rec := Record{
		Command:         cmd,
		Payload:         raw,
		EventTrackingID: uuid.NewString(),
		UserID:          UserID(ctx),
		Timestamp:       time.Now().UTC(),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", cmd, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", cmd, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", cmd, err)
	}
	return nil
}

// Replay streams every decodable record, in order, to fn. A missing file is
// a fresh start. A corrupt line is skipped, never fatal; fn errors likewise
// only stop the replay when the context is done.
func (l *Log) Replay(ctx context.Context, fn func(Record) error, onSkip func(line string, err error)) error {
	if l.path == "" {
		return nil
	}
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open command log %s for replay: %w", l.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			if onSkip != nil {
				onSkip(string(line), err)
			}
			continue
		}
		if err := fn(rec); err != nil {
			if onSkip != nil {
				onSkip(string(line), err)
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("scan command log %s: %w", l.path, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

type userIDKey struct{}

// WithUserID tags the context with the acting user recorded on appended
// records. The HTTP layer feeds the authenticated party or admin through.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the acting user from the context, if any.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey{}).(string)
	return v
}
