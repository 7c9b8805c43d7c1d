// Package statedb persists recents and process coordination state in SQLite.
package statedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is bumped whenever Migrate learns a new table or column.
const SchemaVersion = 1

// StateDB wraps the SQLite database. It is safe for concurrent use, and several
// vpn-deck processes may share one file thanks to WAL mode and the busy timeout.
type StateDB struct {
	db  *sql.DB
	pid int
	now func() time.Time
}

// RecentRow is one stored recent.
type RecentRow struct {
	ID              string
	UserID          string
	IntentKey       string
	IntentData      []byte
	LastConnectedAt time.Time
	Pinned          bool
	PinnedAt        time.Time
}

// Open opens or creates the database at dbPath.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("statedb: %s: %w", pragma, err)
		}
	}
	return &StateDB{db: db, pid: os.Getpid(), now: time.Now}, nil
}

// Close checkpoints the WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *StateDB) DB() *sql.DB { return s.db }

// Migrate creates missing tables and records the schema version.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []struct{ name, sql string }{
		{"metadata", `
			CREATE TABLE IF NOT EXISTS metadata (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
		{"recents", `
			CREATE TABLE IF NOT EXISTS recents (
				id                TEXT PRIMARY KEY,
				user_id           TEXT NOT NULL,
				intent_key        TEXT NOT NULL,
				intent_data       TEXT NOT NULL,
				last_connected_at INTEGER NOT NULL,
				is_pinned         INTEGER NOT NULL DEFAULT 0,
				pinned_at         INTEGER NOT NULL DEFAULT 0,
				UNIQUE (user_id, intent_key)
			)`},
		{"recents index", `
			CREATE INDEX IF NOT EXISTS recents_user_order
			ON recents (user_id, is_pinned DESC, pinned_at DESC, last_connected_at DESC)`},
		{"validator_instances", `
			CREATE TABLE IF NOT EXISTS validator_instances (
				pid        INTEGER PRIMARY KEY,
				started    INTEGER NOT NULL,
				heartbeat  INTEGER NOT NULL,
				is_primary INTEGER NOT NULL DEFAULT 0
			)`},
	}
	for _, st := range stmts {
		if _, err := tx.Exec(st.sql); err != nil {
			return fmt.Errorf("statedb: create %s: %w", st.name, err)
		}
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)",
		strconv.Itoa(SchemaVersion),
	); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}
	return tx.Commit()
}

// --- Recents ---

const recentColumns = "id, user_id, intent_key, intent_data, last_connected_at, is_pinned, pinned_at"

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LoadRecents returns the user's recents, pinned first (latest pin first), then the
// rest by last connection, newest first.
func (s *StateDB) LoadRecents(ctx context.Context, userID string) ([]RecentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recentColumns+` FROM recents
		WHERE user_id = ?
		ORDER BY is_pinned DESC,
		         CASE WHEN is_pinned = 1 THEN pinned_at ELSE last_connected_at END DESC,
		         id`, userID)
	if err != nil {
		return nil, fmt.Errorf("statedb: load recents: %w", err)
	}
	defer rows.Close()

	var out []RecentRow
	for rows.Next() {
		var r RecentRow
		var data string
		var last, pinnedAt int64
		var pinned int
		if err := rows.Scan(&r.ID, &r.UserID, &r.IntentKey, &data, &last, &pinned, &pinnedAt); err != nil {
			return nil, fmt.Errorf("statedb: scan recent: %w", err)
		}
		r.IntentData = []byte(data)
		r.LastConnectedAt = fromMillis(last)
		r.Pinned = pinned == 1
		r.PinnedAt = fromMillis(pinnedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveRecent inserts or replaces a recent and bumps the change stamp in one transaction.
// A different row of the same user with the same intent key is replaced as well.
func (s *StateDB) SaveRecent(ctx context.Context, r RecentRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("statedb: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO recents (`+recentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.IntentKey, string(r.IntentData),
		toMillis(r.LastConnectedAt), boolInt(r.Pinned), toMillis(r.PinnedAt))
	if err != nil {
		return fmt.Errorf("statedb: save recent %s: %w", r.ID, err)
	}
	if err := s.touch(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteRecents removes recents by id in one transaction: either all go or none.
func (s *StateDB) DeleteRecents(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("statedb: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM recents WHERE id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("statedb: delete recents: %w", err)
	}
	if err := s.touch(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// RecentUsers lists every user with at least one stored recent.
func (s *StateDB) RecentUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM recents ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("statedb: recent users: %w", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Metadata ---

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setMeta(ctx context.Context, e execer, key, value string) error {
	if _, err := e.ExecContext(ctx, "INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("statedb: set %s: %w", key, err)
	}
	return nil
}

// SetMeta stores a metadata value.
func (s *StateDB) SetMeta(key, value string) error {
	return setMeta(context.Background(), s.db, key, value)
}

// GetMeta returns a metadata value, or "" when unset.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// touch bumps the change stamp other processes poll through LastModified.
func (s *StateDB) touch(ctx context.Context, e execer) error {
	return setMeta(ctx, e, "last_modified", strconv.FormatInt(s.now().UnixNano(), 10))
}

// LastModified returns the change stamp, or 0 before the first write.
func (s *StateDB) LastModified() (int64, error) {
	val, err := s.GetMeta("last_modified")
	if err != nil || val == "" {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
