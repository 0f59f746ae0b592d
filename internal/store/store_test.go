package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/HerbHall/aquabot/pkg/plugin"
)

func tempDB(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New(%q): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTable(name string) func(tx *sql.Tx) error {
	return func(tx *sql.Tx) error {
		_, err := tx.Exec("CREATE TABLE " + name + " (id INTEGER PRIMARY KEY, value REAL)")
		return err
	}
}

func TestNew_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file missing: %v", err)
	}
}

func TestNew_InvalidPath(t *testing.T) {
	if _, err := New("/nonexistent/dir/aquabot.db"); err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestNew_MemoryKeepsState(t *testing.T) {
	s, err := New(MemoryPath)
	if err != nil {
		t.Fatalf("New(memory): %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Migrate(ctx, "telemetry", []plugin.Migration{{Version: 1, Description: "t", Up: createTable("readings")}}); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, "INSERT INTO readings (id, value) VALUES (1, 7.2)"); err != nil {
		t.Fatalf("insert into in-memory table: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	var mode string
	if err := s.DB().QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	var fk int
	if err := s.DB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestTx(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	if _, err := s.DB().ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('site', 'tanque-1')")
		return err
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err := s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('device', 'esp32')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Tx error = %v, want boom", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1 (rollback kept the second insert out)", count)
	}
}

func TestMigrate(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	calls := 0
	migs := []plugin.Migration{
		{Version: 1, Description: "documents", Up: func(tx *sql.Tx) error {
			calls++
			return createTable("docs")(tx)
		}},
		{Version: 2, Description: "unit column", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("ALTER TABLE docs ADD COLUMN unit TEXT")
			return err
		}},
	}
	for range 2 {
		if err := s.Migrate(ctx, "telemetry", migs); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("first migration ran %d times, want 1", calls)
	}

	got, err := s.Applied(ctx, "telemetry")
	if err != nil {
		t.Fatalf("Applied: %v", err)
	}
	if !slices.Equal(got, []int{1, 2}) {
		t.Errorf("Applied = %v, want [1 2]", got)
	}

	other, err := s.Applied(ctx, "assistant")
	if err != nil {
		t.Fatalf("Applied(assistant): %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Applied(assistant) = %v, want none", other)
	}
}

func TestMigrate_FailureKeepsEarlier(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	migs := []plugin.Migration{
		{Version: 1, Description: "ok", Up: createTable("partial")},
		{Version: 2, Description: "broken", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("NOT SQL")
			return err
		}},
	}
	if err := s.Migrate(ctx, "partial", migs); err == nil {
		t.Fatal("expected error from broken migration")
	}
	got, err := s.Applied(ctx, "partial")
	if err != nil {
		t.Fatalf("Applied: %v", err)
	}
	if !slices.Equal(got, []int{1}) {
		t.Errorf("Applied = %v, want [1]", got)
	}
}

func TestClose(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "close.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.DB().PingContext(context.Background()); err == nil {
		t.Error("expected ping to fail after Close")
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name    string
		steps   []string
		wantErr error
		stored  string
	}{
		{"first run", []string{"0.3.0"}, nil, "0.3.0"},
		{"same version", []string{"0.3.0", "0.3.0"}, nil, "0.3.0"},
		{"upgrade", []string{"0.3.0", "0.4.0"}, nil, "0.4.0"},
		{"patch upgrade", []string{"0.3.0", "0.3.1"}, nil, "0.3.1"},
		{"downgrade rejected", []string{"0.4.0", "0.3.0"}, ErrNewerSchema, "0.4.0"},
		{"dev passes", []string{"dev", "0.4.0", "dev"}, nil, "dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tempDB(t)
			ctx := context.Background()
			var err error
			for _, v := range tt.steps {
				err = s.CheckVersion(ctx, v)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckVersion error = %v, want %v", err, tt.wantErr)
			}
			var stored string
			if err := s.DB().QueryRowContext(ctx, "SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&stored); err != nil {
				t.Fatalf("read stored version: %v", err)
			}
			if stored != tt.stored {
				t.Errorf("stored = %q, want %q", stored, tt.stored)
			}
		})
	}
}
