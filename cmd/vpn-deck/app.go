package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/config"
	"github.com/asheshgoplani/vpn-deck/internal/geo"
	"github.com/asheshgoplani/vpn-deck/internal/intent"
	"github.com/asheshgoplani/vpn-deck/internal/logging"
	"github.com/asheshgoplani/vpn-deck/internal/recents"
	"github.com/asheshgoplani/vpn-deck/internal/resolver"
	"github.com/asheshgoplani/vpn-deck/internal/search"
	"github.com/asheshgoplani/vpn-deck/internal/servers"
	"github.com/asheshgoplani/vpn-deck/internal/statedb"
)

var cliLog = logging.ForComponent(logging.CompCLI)

// app wires the components one command needs.
type app struct {
	user        string
	locale      language.Tag
	catalogPath string
	hasCatalog  bool

	catalog  *catalog.Store
	index    *servers.Provider
	engine   *search.Engine
	resolver *resolver.Resolver
	home     intent.CountryID

	db      *statedb.StateDB
	recents *recents.Store
}

// newApp loads the catalog and builds the read side. A missing catalog file leaves the
// catalog empty; commands decide whether that is an error.
func newApp(user string) (*app, error) {
	a := &app{
		user:        user,
		locale:      config.GetSearchSettings().Tag(),
		catalogPath: config.GetCatalogSettings().Path,
		catalog:     catalog.NewStore(),
	}
	list, err := catalog.LoadFile(a.catalogPath)
	switch {
	case err == nil:
		a.catalog.Replace(list)
		a.hasCatalog = true
	case errors.Is(err, catalog.ErrNoCatalog):
		cliLog.Info("catalog_missing", slog.String("path", a.catalogPath))
	default:
		return nil, err
	}

	a.home = detectHome()
	a.index = servers.NewProvider(a.catalog)
	a.engine = search.NewEngine(a.index)
	a.resolver = resolver.New(a.index,
		resolver.WithMaxTier(config.GetUserSettings().Tier()),
		resolver.WithHomeCountry(a.home))
	return a, nil
}

// detectHome returns the home country, or CountryFastest when it is unknown.
func detectHome() intent.CountryID {
	settings := config.GetGeoSettings()
	d, err := geo.Open(geo.Config{
		DBPath:      settings.GeoIPDB,
		HomeCountry: settings.HomeCountry,
		HomeIP:      settings.HomeIP,
	})
	if err != nil {
		cliLog.Warn("geo_open_failed", slog.String("error", err.Error()))
		return intent.CountryFastest
	}
	defer d.Close()
	home, err := d.HomeCountry()
	if err != nil {
		cliLog.Debug("home_country_unknown", slog.String("error", err.Error()))
		return intent.CountryFastest
	}
	return home
}

// openRecents opens the state database and the recents store on top of it.
func (a *app) openRecents() error {
	if a.recents != nil {
		return nil
	}
	path, err := config.GetStateDBPath()
	if err != nil {
		return err
	}
	db, err := statedb.Open(path)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	a.db = db
	a.recents = recents.NewStore(recents.NewSQLPersistence(db))
	return nil
}

// validator builds the recents validator. The user's most recent connection stands in
// for the current connection and is never truncated.
func (a *app) validator(external <-chan struct{}) *recents.Validator {
	settings := config.GetRecentsSettings()
	return recents.NewValidator(a.recents, a.catalog, recents.ValidatorConfig{
		MaxRecents:    settings.MaxRecents,
		RetryInterval: settings.RetryInterval(),
		MustHave:      recents.MustHaveFunc(a.mostRecentID),
		External:      external,
	})
}

func (a *app) mostRecentID(ctx context.Context, userID string) ([]string, error) {
	it, ok, err := a.recents.MostRecent(ctx, userID)
	if err != nil || !ok {
		return nil, err
	}
	return []string{it.ID}, nil
}

// Close releases the database.
func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
