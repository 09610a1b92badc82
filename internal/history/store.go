// Package history persists neighbor sightings in SQLite.
//
// Each successful neighbor query is recorded as an upsert keyed by address and
// interface, so the table holds one row per neighbor with first and last
// sighting times and a sighting count. Rows older than the retention window
// are pruned by the daemon.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"proxima/internal/protocol"
)

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// Sighting is one neighbor's aggregated history.
type Sighting struct {
	Address      string    `json:"address"`
	Interface    string    `json:"interface,omitempty"`
	HardwareAddr string    `json:"hardware_addr,omitempty"`
	LastState    string    `json:"last_state,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	TimesSeen    int64     `json:"times_seen"`
}

// Store manages the sightings database.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record upserts one sighting per neighbor at the given time.
func (s *Store) Record(ctx context.Context, neighbors []protocol.Neighbor, at time.Time) error {
	if len(neighbors) == 0 {
		return nil
	}
	ts := at.UTC().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sightings (
            address, interface, hardware_addr, last_state, first_seen, last_seen, times_seen
        ) VALUES (?, ?, ?, ?, ?, ?, 1)
        ON CONFLICT(address, interface) DO UPDATE SET
            hardware_addr = CASE WHEN excluded.hardware_addr <> '' THEN excluded.hardware_addr ELSE sightings.hardware_addr END,
            last_state = excluded.last_state,
            last_seen = MAX(sightings.last_seen, excluded.last_seen),
            times_seen = sightings.times_seen + 1`)
	if err != nil {
		return fmt.Errorf("prepare sighting upsert: %w", err)
	}
	defer stmt.Close()

	for _, n := range neighbors {
		if n.Address == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, n.Address, n.Interface, n.HardwareAddr, n.State, ts, ts); err != nil {
			return fmt.Errorf("record sighting %s: %w", n.Address, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sightings: %w", err)
	}
	return nil
}

// List returns up to limit sightings, most recently seen first.
func (s *Store) List(ctx context.Context, limit int) ([]Sighting, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT address, interface, hardware_addr, last_state, first_seen, last_seen, times_seen
        FROM sightings ORDER BY last_seen DESC, address ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var (
			sighting    Sighting
			first, last int64
		)
		if err := rows.Scan(&sighting.Address, &sighting.Interface, &sighting.HardwareAddr, &sighting.LastState, &first, &last, &sighting.TimesSeen); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		sighting.FirstSeen = time.Unix(0, first).UTC()
		sighting.LastSeen = time.Unix(0, last).UTC()
		out = append(out, sighting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sightings: %w", err)
	}
	return out, nil
}

// Prune deletes sightings last seen before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sightings WHERE last_seen < ?", cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune sightings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return n, nil
}
