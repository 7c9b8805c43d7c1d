package statedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Several "vpn-deck watch" processes may share one database. Each registers itself here
// and only the elected primary runs the recents validator.

// RegisterValidator records this process as a running validator.
func (s *StateDB) RegisterValidator(ctx context.Context) error {
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO validator_instances (pid, started, heartbeat, is_primary)
		VALUES (?, ?, ?, 0)`, s.pid, now, now)
	if err != nil {
		return fmt.Errorf("statedb: register validator: %w", err)
	}
	return nil
}

// Heartbeat marks this process alive.
func (s *StateDB) Heartbeat(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE validator_instances SET heartbeat = ? WHERE pid = ?", s.now().Unix(), s.pid)
	return err
}

// UnregisterValidator removes this process, giving up primary if held.
func (s *StateDB) UnregisterValidator(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM validator_instances WHERE pid = ?", s.pid)
	return err
}

// CleanDeadValidators drops processes whose heartbeat is older than timeout.
func (s *StateDB) CleanDeadValidators(ctx context.Context, timeout time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM validator_instances WHERE heartbeat < ?", s.now().Add(-timeout).Unix())
	return err
}

// AliveValidators counts processes with a heartbeat newer than timeout.
func (s *StateDB) AliveValidators(ctx context.Context, timeout time.Duration) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM validator_instances WHERE heartbeat >= ?",
		s.now().Add(-timeout).Unix()).Scan(&n)
	return n, err
}

// ElectPrimary claims the primary role unless another live process holds it. A primary
// whose heartbeat is older than timeout loses the role. It reports whether this process
// is primary afterwards.
func (s *StateDB) ElectPrimary(ctx context.Context, timeout time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("statedb: begin elect: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := s.now().Add(-timeout).Unix()
	if _, err := tx.ExecContext(ctx,
		"UPDATE validator_instances SET is_primary = 0 WHERE is_primary = 1 AND heartbeat < ?", cutoff,
	); err != nil {
		return false, fmt.Errorf("statedb: clear stale primary: %w", err)
	}

	var holder int
	err = tx.QueryRowContext(ctx,
		"SELECT pid FROM validator_instances WHERE is_primary = 1 AND heartbeat >= ? LIMIT 1", cutoff,
	).Scan(&holder)
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("statedb: commit elect: %w", err)
		}
		return holder == s.pid, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("statedb: read primary: %w", err)
	}

	res, err := tx.ExecContext(ctx, "UPDATE validator_instances SET is_primary = 1 WHERE pid = ?", s.pid)
	if err != nil {
		return false, fmt.Errorf("statedb: claim primary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("statedb: commit elect: %w", err)
	}
	return true, nil
}

// ResignPrimary gives up the primary role.
func (s *StateDB) ResignPrimary(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "UPDATE validator_instances SET is_primary = 0 WHERE pid = ?", s.pid)
	return err
}
