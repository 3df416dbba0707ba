package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/reqsync/internal/request"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE partial index on origin events (is_exit, request_id)
const currentSchemaVersion = 1

// ErrNoRole is returned when a layer database was never initialized with a role.
var ErrNoRole = errors.New("layer role not initialized")

// Store provides durable storage for one layer's state.
// Uses SQLite with WAL mode for concurrent read access.
//
// Store implements ledger.State.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; one connection also keeps
	// :memory: databases from splitting into several empty databases.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InitRole records the layer's role. A layer's role never changes: calling
// InitRole again with the same role is a no-op, with a different role an error.
func (s *Store) InitRole(ctx context.Context, role request.Role) error {
	if role != request.Root && role != request.Child {
		return fmt.Errorf("init role: invalid role %s", role)
	}
	existing, err := s.Role(ctx)
	switch {
	case err == nil && existing == role:
		return nil
	case err == nil:
		return fmt.Errorf("init role: layer is already %s", existing)
	case !errors.Is(err, ErrNoRole):
		return fmt.Errorf("init role: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO layer_meta (id, role) VALUES (1, ?)`, role.String()); err != nil {
		return fmt.Errorf("init role: %w", err)
	}
	return nil
}

// Role returns the layer's recorded role, or ErrNoRole.
func (s *Store) Role(ctx context.Context) (request.Role, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM layer_meta WHERE id = 1`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoRole
	}
	if err != nil {
		return 0, fmt.Errorf("read role: %w", err)
	}
	return request.ParseRole(name)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 makes (direction, id) unique among origin events of a layer.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_events_origin_unique
		ON events(is_exit, request_id) WHERE phase = 'origin'
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
