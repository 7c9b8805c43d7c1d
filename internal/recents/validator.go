package recents

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
)

// MustHaveSource names the recents that must never be evicted by the size cap, such as
// the one behind the current connection.
type MustHaveSource interface {
	MustHave(ctx context.Context, userID string) ([]string, error)
}

// MustHaveFunc adapts a function to MustHaveSource.
type MustHaveFunc func(ctx context.Context, userID string) ([]string, error)

func (f MustHaveFunc) MustHave(ctx context.Context, userID string) ([]string, error) {
	return f(ctx, userID)
}

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	// MaxRecents caps the unpinned recents per user. Zero or less disables truncation.
	MaxRecents int
	// RetryInterval is the delay before a failed pass is retried. Default 30s.
	RetryInterval time.Duration
	// MustHave protects ids from truncation. Optional.
	MustHave MustHaveSource
	// External signals changes written by other processes. Optional.
	External <-chan struct{}
}

// Report describes what one validation pass removed.
type Report struct {
	CatalogVersion uint64
	MissingServer  []string // recents pointing at servers no longer in the catalog
	Truncated      []string // recents over the size cap
}

// Removed returns how many recents the pass deleted.
func (r Report) Removed() int { return len(r.MissingServer) + len(r.Truncated) }

// Validator keeps the recents consistent with the catalog and within the size cap.
type Validator struct {
	store   *Store
	catalog *catalog.Store
	cfg     ValidatorConfig
}

// NewValidator returns a validator for store against cat.
func NewValidator(store *Store, cat *catalog.Store, cfg ValidatorConfig) *Validator {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	return &Validator{store: store, catalog: cat, cfg: cfg}
}

// ErrCatalogMoved is returned when the catalog kept changing while a pass was planned.
var ErrCatalogMoved = errors.New("recents: catalog changed during validation")

const maxValidateAttempts = 3

// Validate runs one pass against the latest catalog snapshot. The snapshot is read under
// the recents write lock, and the pass is re-planned if a newer one is published before
// its evictions commit. Every eviction of the pass is applied in one transaction; on error
// nothing is removed and the pass can be re-run. Server recents are only checked once a
// catalog has been published.
func (v *Validator) Validate(ctx context.Context) (Report, error) {
	for range maxValidateAttempts {
		rep, err := v.validate(ctx)
		if !errors.Is(err, ErrCatalogMoved) {
			return rep, err
		}
		recentsLog.Debug("recents_validation_replanned", slog.Uint64("catalog_version", rep.CatalogVersion))
	}
	return Report{CatalogVersion: v.catalog.Current().Version}, ErrCatalogMoved
}

func (v *Validator) validate(ctx context.Context) (Report, error) {
	var rep Report
	var snap *catalog.Snapshot

	_, err := v.store.evict(ctx, func(userID string, items []Item) ([]string, error) {
		var protected []string
		if v.cfg.MustHave != nil && v.cfg.MaxRecents > 0 {
			ids, err := v.cfg.MustHave.MustHave(ctx, userID)
			if err != nil {
				return nil, err
			}
			protected = ids
		}
		if snap == nil {
			snap = v.catalog.Current()
		}
		missing, truncated := plan(items, snap, v.cfg.MaxRecents, protected)
		rep.MissingServer = append(rep.MissingServer, missing...)
		rep.Truncated = append(rep.Truncated, truncated...)
		return append(missing, truncated...), nil
	}, func() error {
		if v.catalog.Current().Version != snap.Version {
			return ErrCatalogMoved
		}
		return nil
	})
	if snap == nil {
		snap = v.catalog.Current()
	}
	if err != nil {
		return Report{CatalogVersion: snap.Version}, err
	}
	rep.CatalogVersion = snap.Version
	return rep, nil
}

// plan picks the recents of one user to delete: Server recents whose server is gone,
// then the oldest unpinned, unprotected recents beyond limit.
func plan(items []Item, snap *catalog.Snapshot, limit int, protected []string) (missing, truncated []string) {
	var rest []Item
	for _, it := range items {
		if id, ok := it.ServerID(); ok && snap.Version > 0 && !snap.HasServer(id) {
			missing = append(missing, it.ID)
			continue
		}
		rest = append(rest, it)
	}
	if limit <= 0 {
		return missing, nil
	}

	var candidates []Item
	for _, it := range rest {
		if !it.Pinned && !slices.Contains(protected, it.ID) {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) <= limit {
		return missing, nil
	}
	slices.SortFunc(candidates, byLastConnected)
	for _, it := range candidates[limit:] {
		truncated = append(truncated, it.ID)
	}
	return missing, truncated
}

// Run validates after every catalog snapshot and every recents change until ctx is done.
// A failed pass is logged and retried after RetryInterval or on the next trigger.
func (v *Validator) Run(ctx context.Context) error {
	snaps, unsubCatalog := v.catalog.Subscribe()
	defer unsubCatalog()
	changes, unsubChanges := v.store.Subscribe()
	defer unsubChanges()

	retry := time.NewTimer(v.cfg.RetryInterval)
	retry.Stop()
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-snaps:
			if !ok {
				return nil
			}
		case <-changes:
		case <-v.cfg.External:
		case <-retry.C:
		}

		rep, err := v.Validate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			recentsLog.Error("recents_validation_failed",
				slog.Uint64("catalog_version", rep.CatalogVersion),
				slog.Duration("retry_in", v.cfg.RetryInterval),
				slog.String("error", err.Error()))
			retry.Reset(v.cfg.RetryInterval)
			continue
		}
		retry.Stop()
		if rep.Removed() > 0 {
			recentsLog.Info("recents_validated",
				slog.Uint64("catalog_version", rep.CatalogVersion),
				slog.Int("missing_server", len(rep.MissingServer)),
				slog.Int("truncated", len(rep.Truncated)))
		}
	}
}
