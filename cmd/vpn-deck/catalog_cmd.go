package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/asheshgoplani/vpn-deck/internal/config"
	"github.com/asheshgoplani/vpn-deck/internal/update"
)

func newUpdater(url string) *update.Updater {
	settings := config.GetCatalogSettings()
	if url == "" {
		url = settings.URL
	}
	return update.New(update.Config{
		URL:         url,
		CatalogPath: settings.Path,
		Interval:    settings.CheckInterval(),
	})
}

// handleCatalog dispatches catalog subcommands.
func handleCatalog(ctx context.Context, env *cliEnv, args []string) int {
	if len(args) == 0 || args[0] != "update" {
		fmt.Fprintln(env.stderr, "Usage: vpn-deck catalog update [--url URL] [--force] [--json]")
		return 1
	}
	fs := flag.NewFlagSet("catalog update", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	url := fs.String("url", "", "Catalog URL (default from config)")
	force := fs.Bool("force", false, "Download even if checked recently")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(normalizeArgs(fs, args[1:])); err != nil {
		return 1
	}
	out := NewCLIOutput(env, *jsonOutput)

	res, err := newUpdater(*url).Check(ctx, *force)
	if err != nil {
		return out.Error(err.Error(), ErrCodeNoCatalog)
	}
	switch {
	case res.Skipped:
		out.Success(fmt.Sprintf("Catalog checked at %s; use --force to download again",
			res.CheckedAt.Local().Format("2006-01-02 15:04")), res)
	case res.Updated:
		out.Success(fmt.Sprintf("Downloaded catalog with %d servers", res.Servers), res)
	default:
		out.Success("Catalog is up to date", res)
	}
	return 0
}
