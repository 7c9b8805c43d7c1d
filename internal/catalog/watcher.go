package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/vpn-deck/internal/logging"
)

// WatcherConfig configures a file Watcher.
type WatcherConfig struct {
	// ReloadsPerSecond caps how often the file is re-read. Default 2.
	ReloadsPerSecond float64
	// Debounce is how long to wait after the last change event. Default 200ms.
	Debounce time.Duration
}

// Watcher keeps a Store in sync with a catalog file.
type Watcher struct {
	store   *Store
	path    string
	cfg     WatcherConfig
	limiter *rate.Limiter
	group   singleflight.Group

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher returns a watcher for path publishing into store.
func NewWatcher(store *Store, path string, cfg WatcherConfig) *Watcher {
	if cfg.ReloadsPerSecond <= 0 {
		cfg.ReloadsPerSecond = 2
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	return &Watcher{
		store:   store,
		path:    path,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.ReloadsPerSecond), 1),
	}
}

// Reload reads the file and publishes it. Concurrent callers share one read.
func (w *Watcher) Reload(ctx context.Context) (*Snapshot, error) {
	v, err, shared := w.group.Do("reload", func() (any, error) {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		servers, err := LoadFile(w.path)
		if err != nil {
			return nil, err
		}
		return w.store.Replace(servers), nil
	})
	if err != nil {
		return nil, err
	}
	snap := v.(*Snapshot)
	logging.Aggregate(logging.CompCatalog, "catalog_reload",
		slog.Uint64("version", snap.Version),
		slog.Int("servers", snap.Len()),
		slog.Bool("shared", shared))
	return snap, nil
}

// Start loads the file once and then reloads it whenever it changes, until ctx is done
// or Close is called. A missing file is not fatal: the store stays empty until the file
// appears.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.Reload(ctx); err != nil && !errors.Is(err, ErrNoCatalog) {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watcher: %w", err)
	}
	// Watch the directory: editors and SaveFile replace the file by rename.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("catalog: watch %s: %w", filepath.Dir(w.path), err)
	}
	w.fsw = fsw

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(w.cfg.Debounce)
			} else {
				debounce.Reset(w.cfg.Debounce)
			}
			fire = debounce.C
		case <-fire:
			fire = nil
			if _, err := w.Reload(ctx); err != nil && ctx.Err() == nil {
				catalogLog.Warn("catalog_reload_failed", slog.String("path", w.path), slog.String("error", err.Error()))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			catalogLog.Warn("catalog_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	w.wg.Wait()
	return err
}
