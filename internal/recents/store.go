package recents

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
)

var recentsLog = logging.ForComponent(logging.CompRecents)

// Store owns the recents of every user. All read-modify-write operations are serialized,
// and every committed write is announced to subscribers.
type Store struct {
	p     Persistence
	newID func() string

	mu sync.Mutex // serializes writes

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// NewStore returns a store writing through p.
func NewStore(p Persistence) *Store {
	return &Store{p: p, newID: uuid.NewString, subs: make(map[int]chan struct{})}
}

// Subscribe returns a channel signalled after every committed write. Signals coalesce:
// a slow reader sees one pending signal, never a backlog. The func unsubscribes.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan struct{}, 1)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

// Notify signals subscribers about a change made outside this Store, for example by
// another process sharing the database.
func (s *Store) Notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// load decodes the user's records. Records whose intent cannot be read are skipped.
func (s *Store) load(ctx context.Context, userID string) ([]Item, error) {
	recs, err := s.p.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recents: load %s: %w", userID, err)
	}
	items := make([]Item, 0, len(recs))
	for _, r := range recs {
		in, err := intent.Unmarshal(r.Data)
		if err != nil {
			recentsLog.Warn("recent_record_skipped",
				slog.String("id", r.ID),
				slog.String("user", userID),
				slog.String("error", err.Error()))
			continue
		}
		items = append(items, Item{
			ID:              r.ID,
			UserID:          r.UserID,
			Intent:          in,
			LastConnectedAt: r.LastConnectedAt,
			Pinned:          r.Pinned,
			PinnedAt:        r.PinnedAt,
		})
	}
	sortItems(items)
	return items, nil
}

func (s *Store) save(ctx context.Context, it Item) error {
	data, err := intent.Marshal(it.Intent)
	if err != nil {
		return fmt.Errorf("recents: encode %s: %w", it.ID, err)
	}
	if err := s.p.Upsert(ctx, Record{
		ID:              it.ID,
		UserID:          it.UserID,
		Key:             it.Key(),
		Data:            data,
		LastConnectedAt: it.LastConnectedAt,
		Pinned:          it.Pinned,
		PinnedAt:        it.PinnedAt,
	}); err != nil {
		return fmt.Errorf("recents: save %s: %w", it.ID, err)
	}
	return nil
}

// List returns the user's recents: pinned first, most recently pinned first, then
// unpinned, most recently connected first.
func (s *Store) List(ctx context.Context, userID string) ([]Item, error) {
	return s.load(ctx, userID)
}

// Get returns one recent of the user.
func (s *Store) Get(ctx context.Context, userID, id string) (Item, error) {
	items, err := s.load(ctx, userID)
	if err != nil {
		return Item{}, err
	}
	i := slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
	if i < 0 {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return items[i], nil
}

// InsertOrUpdateForConnection records a connection to in at t. An existing recent with the
// same intent key gets the new timestamp and keeps its id and pin state.
func (s *Store) InsertOrUpdateForConnection(ctx context.Context, userID string, in intent.ConnectIntent, t time.Time) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx, userID)
	if err != nil {
		return Item{}, err
	}
	key := intent.Key(in)
	it := Item{ID: s.newID(), UserID: userID}
	if i := slices.IndexFunc(items, func(it Item) bool { return it.Key() == key }); i >= 0 {
		it = items[i]
	}
	it.Intent = in
	it.LastConnectedAt = t
	if err := s.save(ctx, it); err != nil {
		return Item{}, err
	}
	recentsLog.Debug("recent_connected",
		slog.String("id", it.ID),
		slog.String("user", userID),
		slog.String("intent", in.String()))
	s.Notify()
	return it, nil
}

func (s *Store) modify(ctx context.Context, userID, id string, fn func(*Item)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	fn(&it)
	if err := s.save(ctx, it); err != nil {
		return err
	}
	s.Notify()
	return nil
}

// Pin moves the recent to the pinned group, stamped with t.
func (s *Store) Pin(ctx context.Context, userID, id string, t time.Time) error {
	return s.modify(ctx, userID, id, func(it *Item) {
		it.Pinned = true
		it.PinnedAt = t
	})
}

// Unpin returns the recent to the unpinned group at the position of its last connection.
func (s *Store) Unpin(ctx context.Context, userID, id string) error {
	return s.modify(ctx, userID, id, func(it *Item) {
		it.Pinned = false
		it.PinnedAt = time.Time{}
	})
}

// Remove deletes one recent of the user.
func (s *Store) Remove(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.p.Delete(ctx, id); err != nil {
		return fmt.Errorf("recents: remove %s: %w", id, err)
	}
	s.Notify()
	return nil
}

// MostRecent returns the user's most recently connected recent regardless of pinning.
func (s *Store) MostRecent(ctx context.Context, userID string) (Item, bool, error) {
	items, err := s.load(ctx, userID)
	if err != nil || len(items) == 0 {
		return Item{}, false, err
	}
	return slices.MinFunc(items, byLastConnected), true, nil
}

// UnpinnedCount returns how many of the user's recents are not pinned.
func (s *Store) UnpinnedCount(ctx context.Context, userID string) (int, error) {
	items, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if !it.Pinned {
			n++
		}
	}
	return n, nil
}

// Users lists every user with stored recents.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	users, err := s.p.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("recents: users: %w", err)
	}
	return users, nil
}

// evict runs plan against every user's current recents and deletes the ids it returns in
// one transaction, all under the write lock. check runs after planning and before the
// delete; an error from it aborts the pass with nothing removed.
func (s *Store) evict(ctx context.Context, plan func(userID string, items []Item) ([]string, error), check func() error) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.Users(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, u := range users {
		items, err := s.load(ctx, u)
		if err != nil {
			return nil, err
		}
		drop, err := plan(u, items)
		if err != nil {
			return nil, err
		}
		ids = append(ids, drop...)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := check(); err != nil {
		return nil, err
	}
	if err := s.p.Delete(ctx, ids...); err != nil {
		return nil, fmt.Errorf("recents: evict %d: %w", len(ids), err)
	}
	s.Notify()
	return ids, nil
}
