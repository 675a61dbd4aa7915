package slowstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ocpihub/internal/events"
	"ocpihub/internal/ocpi"
)

// PostgresStore mirrors locations and CDRs into Postgres as jsonb documents
// and serves them back on lookup misses. The documents are immutable wire
// payloads, so a document column beats a normalized schema here.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// EnsureSchema creates the mirror tables when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS locations (
			id           TEXT PRIMARY KEY,
			doc          JSONB NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS cdrs (
			id           TEXT PRIMARY KEY,
			doc          JSONB NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure slow storage schema: %w", err)
	}
	return nil
}

// LocationLookup resolves a location by id.
func (s *PostgresStore) LocationLookup(ctx context.Context, id string) (ocpi.Location, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM locations WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ocpi.Location{}, false, nil
	}
	if err != nil {
		return ocpi.Location{}, false, fmt.Errorf("select location %s: %w", id, err)
	}
	var loc ocpi.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return ocpi.Location{}, false, fmt.Errorf("decode location %s: %w", id, err)
	}
	return loc, true, nil
}

// CDRLookup resolves a charge detail record by id.
func (s *PostgresStore) CDRLookup(ctx context.Context, id string) (ocpi.CDR, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM cdrs WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ocpi.CDR{}, false, nil
	}
	if err != nil {
		return ocpi.CDR{}, false, fmt.Errorf("select cdr %s: %w", id, err)
	}
	var cdr ocpi.CDR
	if err := json.Unmarshal(raw, &cdr); err != nil {
		return ocpi.CDR{}, false, fmt.Errorf("decode cdr %s: %w", id, err)
	}
	return cdr, true, nil
}

func (s *PostgresStore) write(ctx context.Context, table, id string, doc any, lastUpdated any) {
	raw, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("marshal for postgres mirror", "table", table, "key", id, "error", err)
		return
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, doc, last_updated) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, last_updated = EXCLUDED.last_updated`, table)
	if _, err := s.pool.Exec(ctx, q, id, raw, lastUpdated); err != nil {
		s.logger.Warn("postgres mirror write failed", "table", table, "key", id, "error", err)
	}
}

func (s *PostgresStore) delete(ctx context.Context, table, id string) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table)
	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		s.logger.Warn("postgres mirror delete failed", "table", table, "key", id, "error", err)
	}
}

// Subscribe registers write-through mirroring on the notifier. Failures are
// logged, never propagated.
func (s *PostgresStore) Subscribe(n *events.Notifier) {
	n.OnLocationAdded(func(ctx context.Context, l ocpi.Location) {
		s.write(ctx, "locations", l.Key(), l, l.LastUpdated)
	})
	n.OnLocationChanged(func(ctx context.Context, _, updated ocpi.Location) {
		s.write(ctx, "locations", updated.Key(), updated, updated.LastUpdated)
	})
	n.OnLocationRemoved(func(ctx context.Context, l ocpi.Location) {
		s.delete(ctx, "locations", l.Key())
	})

	n.OnCDRAdded(func(ctx context.Context, c ocpi.CDR) {
		s.write(ctx, "cdrs", c.Key(), c, c.LastUpdated)
	})
	n.OnCDRChanged(func(ctx context.Context, _, updated ocpi.CDR) {
		s.write(ctx, "cdrs", updated.Key(), updated, updated.LastUpdated)
	})
	n.OnCDRRemoved(func(ctx context.Context, c ocpi.CDR) {
		s.delete(ctx, "cdrs", c.Key())
	})
}

// Ping verifies connectivity; called once at startup.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
