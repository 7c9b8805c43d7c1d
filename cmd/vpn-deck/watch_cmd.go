package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/config"
	"github.com/asheshgoplani/vpn-deck/internal/recents"
)

const (
	heartbeatInterval = 10 * time.Second
	primaryTimeout    = 30 * time.Second
)

// handleWatch runs until interrupted: it follows the catalog file, keeps the index
// current and, when elected primary among concurrent watchers, validates recents.
func handleWatch(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	poll := fs.Duration("poll", 2*time.Second, "How often to check for recents written by other processes")
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 1
	}
	out := NewCLIOutput(env, false)

	a, err := newApp(env.user)
	if err != nil {
		return out.Error(fmt.Sprintf("failed to load catalog: %v", err), ErrCodeNoCatalog)
	}
	defer a.Close()
	if err := a.openRecents(); err != nil {
		return out.Error(fmt.Sprintf("failed to open state: %v", err), ErrCodeStorage)
	}

	settings := config.GetCatalogSettings()
	if settings.GetWatch() {
		w := catalog.NewWatcher(a.catalog, a.catalogPath, catalog.WatcherConfig{ReloadsPerSecond: settings.ReloadPerSecond})
		if err := w.Start(ctx); err != nil {
			return out.Error(fmt.Sprintf("failed to watch catalog: %v", err), ErrCodeNoCatalog)
		}
		defer w.Close()
	}

	fmt.Fprintf(env.stdout, "%s Watching %s (Ctrl+C to stop)\n", bulletSymbol, a.catalogPath)
	dumpOnSignal(ctx)

	poller := recents.NewPoller(a.db, *poll)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.index.Run(gctx) })
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return a.runPrimary(gctx, a.validator(poller.C())) })
	if settings.URL != "" {
		g.Go(func() error { return newUpdater("").Run(gctx) })
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return out.Error(fmt.Sprintf("watch stopped: %v", err), ErrCodeStorage)
	}
	fmt.Fprintf(env.stdout, "%s Stopped\n", successSymbol)
	return 0
}

// runPrimary registers this process, heartbeats, and runs v only while it holds the
// primary role. Losing the role cancels the validator until it is won back.
func (a *app) runPrimary(ctx context.Context, v *recents.Validator) error {
	if err := a.db.RegisterValidator(ctx); err != nil {
		return err
	}
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.db.ResignPrimary(cleanup)
		_ = a.db.UnregisterValidator(cleanup)
	}()

	var (
		stopValidator context.CancelFunc
		done          chan error
	)
	defer func() {
		if stopValidator != nil {
			stopValidator()
			<-done
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		if err := a.db.Heartbeat(ctx); err != nil && ctx.Err() == nil {
			cliLog.Warn("heartbeat_failed", slog.String("error", err.Error()))
		}
		_ = a.db.CleanDeadValidators(ctx, primaryTimeout)
		primary, err := a.db.ElectPrimary(ctx, primaryTimeout)
		if err != nil && ctx.Err() == nil {
			cliLog.Warn("elect_primary_failed", slog.String("error", err.Error()))
		}

		switch {
		case primary && stopValidator == nil:
			cliLog.Info("validator_primary", slog.String("user", a.user))
			var vctx context.Context
			vctx, stopValidator = context.WithCancel(ctx)
			ch := make(chan error, 1)
			done = ch
			go func() { ch <- v.Run(vctx) }()
		case !primary && stopValidator != nil:
			cliLog.Info("validator_secondary")
			stopValidator()
			<-done
			stopValidator = nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			stopValidator()
			stopValidator = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		case <-ticker.C:
		}
	}
}
