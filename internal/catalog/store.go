package catalog

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asheshgoplani/vpn-deck/internal/logging"
)

var catalogLog = logging.ForComponent(logging.CompCatalog)

// Snapshot is one immutable version of the catalog. Callers must not modify Servers.
type Snapshot struct {
	Version   uint64
	Servers   []Server
	UpdatedAt time.Time

	byID map[string]int
}

func newSnapshot(version uint64, servers []Server, updatedAt time.Time) *Snapshot {
	byID := make(map[string]int, len(servers))
	for i, s := range servers {
		byID[s.ID] = i
	}
	return &Snapshot{Version: version, Servers: servers, UpdatedAt: updatedAt, byID: byID}
}

// Server looks up a server by id.
func (s *Snapshot) Server(id string) (Server, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Server{}, false
	}
	return s.Servers[i], true
}

// HasServer reports whether id is part of this snapshot.
func (s *Snapshot) HasServer(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of servers.
func (s *Snapshot) Len() int { return len(s.Servers) }

// Store publishes full catalog snapshots. Readers get the latest snapshot without locking;
// subscribers receive every new snapshot through a channel that only ever holds the latest.
type Store struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time

	mu      sync.Mutex
	version uint64
	subs    map[int]chan *Snapshot
	nextSub int
}

// NewStore returns a store holding an empty version-0 snapshot.
func NewStore() *Store {
	s := &Store{now: time.Now, subs: make(map[int]chan *Snapshot)}
	s.current.Store(newSnapshot(0, nil, time.Time{}))
	return s
}

// Current returns the latest snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Replace publishes servers as a new snapshot and returns it. The slice is copied.
func (s *Store) Replace(servers []Server) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	snap := newSnapshot(s.version, append([]Server(nil), servers...), s.now())
	s.current.Store(snap)
	for _, ch := range s.subs {
		offer(ch, snap)
	}
	catalogLog.Debug("catalog_published",
		slog.Uint64("version", snap.Version),
		slog.Int("servers", snap.Len()),
		slog.Int("subscribers", len(s.subs)))
	return snap
}

// Subscribe returns a channel receiving the current snapshot followed by every later one.
// A slow subscriber skips intermediate versions but never sees them out of order.
// The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan *Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan *Snapshot, 1)
	ch <- s.current.Load()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// offer replaces whatever is buffered in ch with snap. Only the publisher sends on ch and
// it holds Store.mu, so the send after draining cannot block.
func offer(ch chan *Snapshot, snap *Snapshot) {
	select {
	case <-ch:
	default:
	}
	ch <- snap
}
