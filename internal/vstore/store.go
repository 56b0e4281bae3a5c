// Package vstore is the vault's keyed record store: a transactional SQLite
// database holding vault metadata, encrypted entries, settings, the unlock
// throttle, and the audit log. Every exported repository function takes an
// explicit *sql.Tx so callers can compose multi-table writes (e.g. setup
// writing metadata + settings + throttle) into one commit.
package vstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
	_ "modernc.org/sqlite"
)

// Store wraps the vault's SQLite connection pool.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the data directory if needed, opens the SQLite file at
// dataDir/vault.db, applies pragmas, and runs schema migration.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("vstore: create data dir: %w", err)
	}
	if err := ensureWritable(dataDir); err != nil {
		return nil, err
	}

	path := filepath.Join(dataDir, "vault.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("vstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the underlying database file.
func (s *Store) Path() string {
	return s.path
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on any error, including a panic that fn re-raises.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vstore: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("vstore: commit tx: %w", err)
	}
	return nil
}

func configurePragmas(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=FULL;`,
		`PRAGMA foreign_keys=ON;`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("vstore: pragma %q: %w", stmt, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("vstore: begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vault_metadata (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL,
			hint TEXT,
			argon2_salt BLOB NOT NULL,
			memory_cost INTEGER NOT NULL,
			time_cost INTEGER NOT NULL,
			parallelism INTEGER NOT NULL,
			pw_verifier TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS entries (
			id TEXT PRIMARY KEY,
			nonce BLOB NOT NULL,
			ciphertext BLOB NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			auto_lock_minutes INTEGER NOT NULL CHECK (auto_lock_minutes BETWEEN 1 AND 120),
			clipboard_clear_seconds INTEGER NOT NULL CHECK (clipboard_clear_seconds BETWEEN 5 AND 120),
			require_reauth_for_copy INTEGER NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS unlock_throttle (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			failed_attempts INTEGER NOT NULL DEFAULT 0,
			next_allowed_at DATETIME,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			ts DATETIME NOT NULL,
			type TEXT NOT NULL,
			outcome TEXT NOT NULL CHECK (outcome IN ('SUCCESS','FAILURE')),
			meta TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_log(type);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_outcome ON audit_log(outcome);`,
	}
	for _, stmt := range stmts {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("vstore: migrate: %w", err)
		}
	}
	err = tx.Commit()
	return err
}

// ensureWritable rejects a data directory mounted read-only, mirroring the
// read-only-mount guard the teacher applies before trusting a volume.
func ensureWritable(dir string) error {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return fmt.Errorf("vstore: statfs %s: %w", dir, err)
	}
	if st.Flags&unix.ST_RDONLY != 0 {
		return fmt.Errorf("vstore: data directory %s is read-only", dir)
	}
	return nil
}
