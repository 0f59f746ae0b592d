// Package store provides the shared SQLite database plugins keep their
// tables in. Telemetry, session history and schema bookkeeping all live in
// one file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/HerbHall/aquabot/pkg/plugin"
	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // pure-Go driver registered as "sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNewerSchema is returned when the database was last opened by a newer
// AquaBot binary than the running one.
var ErrNewerSchema = errors.New("database was written by a newer aquabot")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

var _ plugin.Store = (*SQLiteStore)(nil)

// SQLiteStore implements plugin.Store on modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex // serializes Migrate
	once sync.Once
	err  error // result of the one-time bookkeeping setup
}

// New opens or creates the database at path. Use MemoryPath for a
// throwaway database.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Tx runs fn in a transaction, committing when fn returns nil.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

// Migrate applies the migrations of pluginName that are not recorded yet,
// each in its own transaction. A failure stops the run; earlier
// migrations stay applied.
func (s *SQLiteStore) Migrate(ctx context.Context, pluginName string, migrations []plugin.Migration) error {
	if err := s.bookkeeping(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	applied, err := s.Applied(ctx, pluginName)
	if err != nil {
		return err
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		err := s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO _migrations (plugin_name, version, description) VALUES (?, ?, ?)",
				pluginName, m.Version, m.Description,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", pluginName, m.Version, m.Description, err)
		}
	}
	return nil
}

// Applied returns the migration versions recorded for pluginName in
// ascending order.
func (s *SQLiteStore) Applied(ctx context.Context, pluginName string) ([]int, error) {
	if err := s.bookkeeping(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT version FROM _migrations WHERE plugin_name = ? ORDER BY version", pluginName)
	if err != nil {
		return nil, fmt.Errorf("list migrations of %s: %w", pluginName, err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CheckVersion records the running binary version and refuses to continue
// when the database was written by a newer one. "dev" always passes in
// either position.
func (s *SQLiteStore) CheckVersion(ctx context.Context, current string) error {
	if err := s.bookkeeping(ctx); err != nil {
		return err
	}

	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.setVersion(ctx, current)
	case err != nil:
		return fmt.Errorf("query schema version: %w", err)
	}

	if stored == "dev" || current == "dev" {
		return s.setVersion(ctx, current)
	}
	switch semver.Compare(canonical(current), canonical(stored)) {
	case -1:
		return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, current)
	case 1:
		return s.setVersion(ctx, current)
	}
	return nil
}

func (s *SQLiteStore) setVersion(ctx context.Context, v string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _schema_meta (id, app_version, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET app_version = excluded.app_version, updated_at = CURRENT_TIMESTAMP`,
		v,
	)
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// bookkeeping creates the _migrations and _schema_meta tables once.
func (s *SQLiteStore) bookkeeping(ctx context.Context) error {
	s.once.Do(func() {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS _migrations (
				plugin_name TEXT     NOT NULL,
				version     INTEGER  NOT NULL,
				description TEXT     NOT NULL,
				applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (plugin_name, version)
			)`,
			`CREATE TABLE IF NOT EXISTS _schema_meta (
				id          INTEGER  PRIMARY KEY CHECK (id = 1),
				app_version TEXT     NOT NULL,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.err = fmt.Errorf("create bookkeeping tables: %w", err)
				return
			}
		}
	})
	return s.err
}

// canonical prefixes v with "v" for semver.Compare.
func canonical(v string) string {
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}
