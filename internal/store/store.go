// Package store persists signals, device locations, detected events, and
// the official feed dataset in SQLite. It is the only mutable shared
// state in the service; every other component derives its data per call.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite handle together with the service time source.
// The clock is injected so window and cooldown queries are deterministic
// under test.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Open opens (creating if necessary) the SQLite database at path and
// applies pending schema migrations.
func Open(path string, clock clockwork.Clock) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, clock: clock}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CheckReadiness reports whether the database answers a ping.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
