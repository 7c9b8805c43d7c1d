package servers

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
)

var indexLog = logging.ForComponent(logging.CompIndex)

// Provider keeps an Index in step with a catalog Store.
type Provider struct {
	store   *catalog.Store
	current atomic.Pointer[Index]
	group   singleflight.Group
}

// NewProvider indexes the store's current snapshot.
func NewProvider(store *catalog.Store) *Provider {
	p := &Provider{store: store}
	p.current.Store(Build(store.Current()))
	return p
}

// Index returns an index of the latest snapshot, rebuilding first if the catalog moved on.
func (p *Provider) Index() *Index {
	snap := p.store.Current()
	if ix := p.current.Load(); ix.Version() >= snap.Version {
		return ix
	}
	return p.rebuild(snap)
}

func (p *Provider) rebuild(snap *catalog.Snapshot) *Index {
	v, _, _ := p.group.Do(strconv.FormatUint(snap.Version, 10), func() (any, error) {
		ix := Build(snap)
		for {
			old := p.current.Load()
			if old.Version() >= ix.Version() {
				return old, nil
			}
			if p.current.CompareAndSwap(old, ix) {
				logging.Aggregate(logging.CompIndex, "index_rebuilt", slog.Uint64("version", ix.Version()))
				return ix, nil
			}
		}
	})
	return v.(*Index)
}

// Run rebuilds the index on every published snapshot until ctx is done.
func (p *Provider) Run(ctx context.Context) error {
	ch, cancel := p.store.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			ix := p.rebuild(snap)
			indexLog.Debug("index_current", slog.Uint64("version", ix.Version()), slog.Int("servers", snap.Len()))
		}
	}
}
