// Package store persists linked accounts and their last-known login status.
// The automation core treats persistence as an external collaborator; the
// SQLite implementation here is the reference store consumed through the
// Accounts interface.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chatdeck/chatdeck/internal/browser"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// ErrNotFound is returned when an account does not exist.
var ErrNotFound = errors.New("store: account not found")

// Account identifies one (profile, service) pairing.
type Account struct {
	ID            string
	Profile       string
	Service       browser.Service
	Enabled       bool
	Status        string
	LastCheckedAt time.Time
	CreatedAt     time.Time
}

// AccountID builds the canonical account id for a (profile, service) pair.
func AccountID(profile string, service browser.Service) string {
	return profile + "/" + string(service)
}

// Accounts is the narrow persistence contract the scheduler and web surface
// consume.
type Accounts interface {
	List(ctx context.Context) ([]Account, error)
	Get(ctx context.Context, id string) (Account, error)
	Upsert(ctx context.Context, a Account) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	UpdateStatus(ctx context.Context, id, status string, checkedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// DB wraps a SQLite database holding account state.
// Thread-safe for concurrent use within one process; WAL mode plus a busy
// timeout keeps concurrent access from other processes safe too.
type DB struct {
	db *sql.DB
}

// Open creates or opens the database at dbPath.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: busy timeout: %w", err)
	}

	return &DB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *DB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Migrate creates tables if they don't exist.
func (s *DB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id              TEXT PRIMARY KEY,
			profile         TEXT NOT NULL,
			service         TEXT NOT NULL,
			enabled         INTEGER NOT NULL DEFAULT 1,
			status          TEXT NOT NULL DEFAULT 'unknown',
			last_checked_at INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			UNIQUE(profile, service)
		)
	`); err != nil {
		return fmt.Errorf("store: create accounts: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("store: set schema version: %w", err)
	}

	return tx.Commit()
}

// List returns all accounts ordered by profile then service.
func (s *DB) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile, service, enabled, status, last_checked_at, created_at
		FROM accounts ORDER BY profile, service
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns the account with the given id.
func (s *DB) Get(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, profile, service, enabled, status, last_checked_at, created_at
		FROM accounts WHERE id = ?
	`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

// Upsert inserts or replaces an account.
func (s *DB) Upsert(ctx context.Context, a Account) error {
	if a.ID == "" {
		a.ID = AccountID(a.Profile, a.Service)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = "unknown"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts
			(id, profile, service, enabled, status, last_checked_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Profile, string(a.Service), boolToInt(a.Enabled), a.Status,
		unixOrZero(a.LastCheckedAt), a.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store: upsert account: %w", err)
	}
	return nil
}

// SetEnabled flips the enabled flag.
func (s *DB) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("store: set enabled: %w", err)
	}
	return requireRow(res)
}

// UpdateStatus records the outcome of a completed check.
func (s *DB) UpdateStatus(ctx context.Context, id, status string, checkedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET status = ?, last_checked_at = ? WHERE id = ?`,
		status, checkedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	return requireRow(res)
}

// Delete removes the account.
func (s *DB) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete account: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		a           Account
		service     string
		enabled     int
		lastChecked int64
		createdUnix int64
	)
	if err := row.Scan(&a.ID, &a.Profile, &service, &enabled, &a.Status, &lastChecked, &createdUnix); err != nil {
		return Account{}, err
	}
	a.Service = browser.Service(service)
	a.Enabled = enabled != 0
	if lastChecked > 0 {
		a.LastCheckedAt = time.Unix(lastChecked, 0)
	}
	a.CreatedAt = time.Unix(createdUnix, 0)
	return a, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
