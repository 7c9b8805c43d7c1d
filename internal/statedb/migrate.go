package statedb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// exportFile is the portable JSON form of the recents table.
type exportFile struct {
	ExportedAt time.Time      `json:"exported_at"`
	Recents    []exportRecent `json:"recents"`
}

type exportRecent struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	IntentKey       string          `json:"intent_key"`
	Intent          json.RawMessage `json:"intent"`
	LastConnectedAt time.Time       `json:"last_connected_at"`
	Pinned          bool            `json:"pinned,omitempty"`
	PinnedAt        time.Time       `json:"pinned_at,omitzero"`
}

// ExportRecents writes every user's recents as JSON.
func (s *StateDB) ExportRecents(ctx context.Context, w io.Writer) (int, error) {
	users, err := s.RecentUsers(ctx)
	if err != nil {
		return 0, err
	}
	out := exportFile{ExportedAt: s.now().UTC(), Recents: []exportRecent{}}
	for _, u := range users {
		rows, err := s.LoadRecents(ctx, u)
		if err != nil {
			return 0, err
		}
		for _, r := range rows {
			out.Recents = append(out.Recents, exportRecent{
				ID:              r.ID,
				UserID:          r.UserID,
				IntentKey:       r.IntentKey,
				Intent:          json.RawMessage(r.IntentData),
				LastConnectedAt: r.LastConnectedAt.UTC(),
				Pinned:          r.Pinned,
				PinnedAt:        r.PinnedAt.UTC(),
			})
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 0, fmt.Errorf("statedb: encode export: %w", err)
	}
	return len(out.Recents), nil
}

// ImportRecents reads a file written by ExportRecents and stores its rows in one
// transaction. Rows are stored verbatim; callers validate intents on load.
func (s *StateDB) ImportRecents(ctx context.Context, jsonPath string) (int, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("statedb: read import: %w", err)
	}
	var in exportFile
	if err := json.Unmarshal(data, &in); err != nil {
		return 0, fmt.Errorf("statedb: parse import: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("statedb: begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO recents (`+recentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("statedb: prepare import: %w", err)
	}
	defer stmt.Close()

	for _, r := range in.Recents {
		if r.ID == "" || r.UserID == "" || r.IntentKey == "" || len(r.Intent) == 0 {
			return 0, fmt.Errorf("statedb: import: incomplete recent %q", r.ID)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.UserID, r.IntentKey, string(r.Intent),
			toMillis(r.LastConnectedAt), boolInt(r.Pinned), toMillis(r.PinnedAt),
		); err != nil {
			return 0, fmt.Errorf("statedb: import %s: %w", r.ID, err)
		}
	}
	if err := s.touch(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("statedb: commit import: %w", err)
	}
	return len(in.Recents), nil
}
