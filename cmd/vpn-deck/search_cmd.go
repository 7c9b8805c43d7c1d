package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/asheshgoplani/vpn-deck/internal/config"
	"github.com/asheshgoplani/vpn-deck/internal/search"
	"github.com/asheshgoplani/vpn-deck/internal/servers"
)

type matchJSON struct {
	Kind  string            `json:"kind"`
	Label string            `json:"label"`
	Code  string            `json:"code,omitempty"`
	Match *search.TextMatch `json:"match,omitempty"`
}

type searchJSON struct {
	Query       string                 `json:"query"`
	Results     map[string][]matchJSON `json:"results"`
	Suggestions []search.Suggestion    `json:"suggestions,omitempty"`
}

// handleSearch runs a query across every filter and prints the hits grouped by filter.
func handleSearch(ctx context.Context, env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	only := fs.String("filter", "", "Only show one filter: all, secure-core, p2p, tor")
	locale := fs.String("locale", "", "Locale for names and ordering (default from config)")
	fs.Usage = func() {
		fmt.Fprintln(env.stderr, "Usage: vpn-deck search <term> [--filter name] [--json]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 1
	}
	out := NewCLIOutput(env, *jsonOutput)
	term := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(term) == "" {
		return out.Error("search term is required", ErrCodeInvalidArgs)
	}
	filters := servers.FilterTypes
	if *only != "" {
		f, err := servers.ParseFilterType(*only)
		if err != nil {
			return out.Error(err.Error(), ErrCodeInvalidArgs)
		}
		filters = []servers.FilterType{f}
	}

	a, err := newApp(env.user)
	if err != nil {
		return out.Error(fmt.Sprintf("failed to load catalog: %v", err), ErrCodeNoCatalog)
	}
	defer a.Close()
	if *locale != "" {
		tag, err := language.Parse(*locale)
		if err != nil {
			return out.Error(fmt.Sprintf("invalid locale %q", *locale), ErrCodeInvalidArgs)
		}
		a.locale = tag
	}

	byFilter, err := a.engine.Search(ctx, term, a.locale)
	if err != nil {
		return out.Error(fmt.Sprintf("search interrupted: %v", err), ErrCodeInterrupted)
	}

	result := searchJSON{Query: term, Results: map[string][]matchJSON{}}
	var sb strings.Builder
	total := 0
	for _, f := range filters {
		res := byFilter[f]
		if res.Len() == 0 {
			continue
		}
		res.Sort(search.SearchOrder(a.locale))
		total += res.Len()
		result.Results[f.String()] = toMatchJSON(res)

		fmt.Fprintf(&sb, "%s\n", strings.ToUpper(f.String()))
		for _, c := range res.Countries {
			fmt.Fprintf(&sb, "  %s country  %s %s\n", StatusSymbol(c.InMaintenance), cell(c.Exit.Code(), 3), out.highlight(c.Name, c.Match))
		}
		for _, c := range res.Cities {
			fmt.Fprintf(&sb, "  %s city     %s %s\n", StatusSymbol(c.InMaintenance), cell(c.Country.Code(), 3), out.highlight(c.Name, c.Match))
		}
		for _, c := range res.States {
			fmt.Fprintf(&sb, "  %s state    %s %s\n", StatusSymbol(c.InMaintenance), cell(c.Country.Code(), 3), out.highlight(c.Name, c.Match))
		}
		for _, s := range res.Servers {
			fmt.Fprintf(&sb, "  %s server   %s %s\n", StatusSymbol(!s.Online), cell(s.ExitCountry, 3), out.highlight(s.Name, s.Match))
		}
		for _, g := range res.Gateways {
			fmt.Fprintf(&sb, "  %s gateway  %s %s\n", StatusSymbol(g.InMaintenance), cell("", 3), out.highlight(g.Name, g.Match))
		}
	}

	if total == 0 {
		if limit := config.GetSearchSettings().Suggestions; limit > 0 {
			result.Suggestions = a.engine.Suggest(term, a.locale, limit)
		}
		fmt.Fprintf(&sb, "No results for '%s'.\n", term)
		if len(result.Suggestions) > 0 {
			sb.WriteString("Did you mean:\n")
			for _, s := range result.Suggestions {
				fmt.Fprintf(&sb, "  %s %s (%s)\n", bulletSymbol, s.Label, s.Kind)
			}
		}
	}
	out.Print(sb.String(), result)
	return 0
}

func toMatchJSON(res search.Results) []matchJSON {
	rows := make([]matchJSON, 0, res.Len())
	for _, c := range res.Countries {
		rows = append(rows, matchJSON{Kind: "country", Label: c.Name, Code: c.Exit.Code(), Match: c.Match})
	}
	for _, c := range res.Cities {
		rows = append(rows, matchJSON{Kind: "city", Label: c.Name, Code: c.Country.Code(), Match: c.Match})
	}
	for _, c := range res.States {
		rows = append(rows, matchJSON{Kind: "state", Label: c.Name, Code: c.Country.Code(), Match: c.Match})
	}
	for _, s := range res.Servers {
		rows = append(rows, matchJSON{Kind: "server", Label: s.Name, Code: s.ExitCountry, Match: s.Match})
	}
	for _, g := range res.Gateways {
		rows = append(rows, matchJSON{Kind: "gateway", Label: g.Name, Match: g.Match})
	}
	return rows
}
