package recents

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/asheshgoplani/vpn-deck/internal/statedb"
)

// Record is the stored form of an Item. Data holds the serialized intent, which may be
// unreadable if it was written by a newer version.
type Record struct {
	ID              string
	UserID          string
	Key             string
	Data            []byte
	LastConnectedAt time.Time
	Pinned          bool
	PinnedAt        time.Time
}

// Persistence is the storage the Store writes through. Upsert replaces both a record with
// the same id and one of the same user with the same key. Delete removes all given ids in
// one transaction or none of them.
type Persistence interface {
	Load(ctx context.Context, userID string) ([]Record, error)
	Upsert(ctx context.Context, r Record) error
	Delete(ctx context.Context, ids ...string) error
	Users(ctx context.Context) ([]string, error)
}

// SQLPersistence stores recents in the SQLite state database.
type SQLPersistence struct {
	db *statedb.StateDB
}

// NewSQLPersistence wraps an opened and migrated database.
func NewSQLPersistence(db *statedb.StateDB) *SQLPersistence {
	return &SQLPersistence{db: db}
}

func (p *SQLPersistence) Load(ctx context.Context, userID string) ([]Record, error) {
	rows, err := p.db.LoadRecents(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = Record{
			ID:              r.ID,
			UserID:          r.UserID,
			Key:             r.IntentKey,
			Data:            r.IntentData,
			LastConnectedAt: r.LastConnectedAt,
			Pinned:          r.Pinned,
			PinnedAt:        r.PinnedAt,
		}
	}
	return out, nil
}

func (p *SQLPersistence) Upsert(ctx context.Context, r Record) error {
	return p.db.SaveRecent(ctx, statedb.RecentRow{
		ID:              r.ID,
		UserID:          r.UserID,
		IntentKey:       r.Key,
		IntentData:      r.Data,
		LastConnectedAt: r.LastConnectedAt,
		Pinned:          r.Pinned,
		PinnedAt:        r.PinnedAt,
	})
}

func (p *SQLPersistence) Delete(ctx context.Context, ids ...string) error {
	return p.db.DeleteRecents(ctx, ids...)
}

func (p *SQLPersistence) Users(ctx context.Context) ([]string, error) {
	return p.db.RecentUsers(ctx)
}

// MemoryPersistence keeps recents in memory. Used by tests and when no state directory
// is available.
type MemoryPersistence struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{records: make(map[string]Record)}
}

func (m *MemoryPersistence) Load(ctx context.Context, userID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.UserID == userID {
			r.Data = slices.Clone(r.Data)
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Record) int { return compareItems(a.item(), b.item()) })
	return out, nil
}

func (m *MemoryPersistence) Upsert(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ID == "" || r.UserID == "" || r.Key == "" {
		return fmt.Errorf("recents: incomplete record %q", r.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, old := range m.records {
		if id != r.ID && old.UserID == r.UserID && old.Key == r.Key {
			delete(m.records, id)
		}
	}
	r.Data = slices.Clone(r.Data)
	m.records[r.ID] = r
	return nil
}

func (m *MemoryPersistence) Delete(ctx context.Context, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *MemoryPersistence) Users(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var users []string
	for _, r := range m.records {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			users = append(users, r.UserID)
		}
	}
	slices.Sort(users)
	return users, nil
}

// item exposes the ordering fields of a record without decoding its intent.
func (r Record) item() Item {
	return Item{ID: r.ID, UserID: r.UserID, LastConnectedAt: r.LastConnectedAt, Pinned: r.Pinned, PinnedAt: r.PinnedAt}
}
