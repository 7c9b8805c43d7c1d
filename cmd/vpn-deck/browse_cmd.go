package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/intent"
	"github.com/asheshgoplani/vpn-deck/internal/search"
	"github.com/asheshgoplani/vpn-deck/internal/servers"
)

// Table column widths for browse output
const (
	tableColCode    = 6
	tableColName    = 24
	tableColEntry   = 8
	tableColTier    = 6
	tableColServers = 8
	tableColCity    = 16
)

type browseFlags struct {
	filter     string
	jsonOutput bool
}

func (b *browseFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&b.filter, "filter", "all", "Filter: all, secure-core, p2p, tor")
	fs.StringVar(&b.filter, "f", "all", "Filter (short)")
	fs.BoolVar(&b.jsonOutput, "json", false, "Output as JSON")
}

// parseBrowse parses args for a browse command and opens the app.
func parseBrowse(env *cliEnv, name, usage string, args []string) (*app, *CLIOutput, servers.FilterType, []string, int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	var bf browseFlags
	bf.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(env.stderr, "Usage: vpn-deck %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return nil, nil, 0, nil, 1
	}
	out := NewCLIOutput(env, bf.jsonOutput)
	filter, err := servers.ParseFilterType(bf.filter)
	if err != nil {
		return nil, nil, 0, nil, out.Error(err.Error(), ErrCodeInvalidArgs)
	}
	a, err := newApp(env.user)
	if err != nil {
		return nil, nil, 0, nil, out.Error(fmt.Sprintf("failed to load catalog: %v", err), ErrCodeNoCatalog)
	}
	return a, out, filter, fs.Args(), 0
}

type countryJSON struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Entry         string `json:"entry,omitempty"`
	Tier          int    `json:"tier"`
	InMaintenance bool   `json:"in_maintenance"`
	Servers       int    `json:"servers"`
}

func handleCountries(env *cliEnv, args []string) int {
	a, out, filter, _, code := parseBrowse(env, "countries", "countries [--filter all|secure-core|p2p|tor] [--json]", args)
	if a == nil {
		return code
	}
	defer a.Close()

	res := a.engine.Browse(filter, intent.CountryFastest, a.locale)
	search.Sort(res.Countries, search.ByCollation(a.locale))

	rows := make([]countryJSON, len(res.Countries))
	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s %s %s %s %s\n", cell("CODE", tableColCode), cell("NAME", tableColName),
		cell("ENTRY", tableColEntry), cell("TIER", tableColTier), "SERVERS")
	for i, c := range res.Countries {
		rows[i] = countryJSON{
			Code:          c.Exit.Code(),
			Name:          c.Name,
			Tier:          int(c.Tier),
			InMaintenance: c.InMaintenance,
			Servers:       c.ServerCount,
		}
		if filter == servers.FilterSecureCore {
			rows[i].Entry = c.Entry.String()
		}
		fmt.Fprintf(&sb, "%s %s %s %s %s %d\n", StatusSymbol(c.InMaintenance), cell(c.Exit.Code(), tableColCode),
			cell(c.Name, tableColName), cell(rows[i].Entry, tableColEntry), cell(c.Tier.String(), tableColTier), c.ServerCount)
	}
	fmt.Fprintf(&sb, "\nTotal: %d countries (%s)\n", len(rows), filter)
	out.Print(sb.String(), rows)
	return 0
}

type cityJSON struct {
	Name          string `json:"name"`
	English       string `json:"english"`
	IsState       bool   `json:"is_state"`
	Tier          int    `json:"tier"`
	InMaintenance bool   `json:"in_maintenance"`
	Servers       int    `json:"servers"`
}

func handleCityStates(env *cliEnv, args []string, states bool) int {
	name := "cities"
	if states {
		name = "states"
	}
	a, out, filter, rest, code := parseBrowse(env, name, name+" <country> [--filter ...] [--json]", args)
	if a == nil {
		return code
	}
	defer a.Close()
	if len(rest) != 1 {
		return out.Error("country code is required", ErrCodeInvalidArgs)
	}
	country := intent.NewCountryID(rest[0])
	if country.IsSentinel() {
		return out.Error("a real country code is required", ErrCodeInvalidArgs)
	}

	res := a.engine.Browse(filter, country, a.locale)
	list := res.Cities
	if states {
		list = res.States
	}
	search.Sort(list, search.ByCollation(a.locale))

	rows := make([]cityJSON, len(list))
	var sb strings.Builder
	for i, c := range list {
		rows[i] = cityJSON{
			Name:          c.Name,
			English:       c.ID.Name,
			IsState:       c.ID.IsState,
			Tier:          int(c.Tier),
			InMaintenance: c.InMaintenance,
			Servers:       c.ServerCount,
		}
		fmt.Fprintf(&sb, "%s %s %s %d\n", StatusSymbol(c.InMaintenance), cell(c.Name, tableColName),
			cell(c.Tier.String(), tableColTier), c.ServerCount)
	}
	if len(list) == 0 {
		fmt.Fprintf(&sb, "No %s in %s (%s).\n", name, country, filter)
	}
	out.Print(sb.String(), rows)
	return 0
}

type serverJSON struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Exit    string   `json:"exit_country"`
	Entry   string   `json:"entry_country,omitempty"`
	City    string   `json:"city,omitempty"`
	State   string   `json:"state,omitempty"`
	Tier    int      `json:"tier"`
	Online  bool     `json:"online"`
	Load    int      `json:"load"`
	Gateway string   `json:"gateway,omitempty"`
	Feature []string `json:"features,omitempty"`
}

func toServerJSON(s catalog.Server) serverJSON {
	j := serverJSON{
		ID: s.ID, Name: s.Name, Exit: s.ExitCountry, City: s.City, State: s.State,
		Tier: int(s.Tier), Online: s.Online, Load: s.Load, Gateway: s.GatewayName(),
		Feature: s.Features.Intent().Names(),
	}
	if s.IsSecureCore() {
		j.Entry = s.EntryCountry
	}
	if len(j.Feature) == 0 {
		j.Feature = nil
	}
	return j
}

func handleServers(env *cliEnv, args []string) int {
	fs := flag.NewFlagSet("servers", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	var bf browseFlags
	bf.register(fs)
	city := fs.String("city", "", "Only servers in this city")
	state := fs.String("state", "", "Only servers in this state")
	gateway := fs.String("gateway", "", "List the servers of a gateway")
	fs.Usage = func() {
		fmt.Fprintln(env.stderr, "Usage: vpn-deck servers [country] [--city name|--state name] [--gateway name] [--filter ...] [--json]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return 1
	}
	out := NewCLIOutput(env, bf.jsonOutput)
	filter, err := servers.ParseFilterType(bf.filter)
	if err != nil {
		return out.Error(err.Error(), ErrCodeInvalidArgs)
	}
	q := servers.ServerQuery{Filter: filter, Gateway: *gateway}
	if fs.NArg() > 0 {
		q.Country = intent.NewCountryID(fs.Arg(0))
	}
	switch {
	case *city != "" && *state != "":
		return out.Error("use either --city or --state", ErrCodeInvalidArgs)
	case *city != "":
		q.Location = &intent.CityStateID{Name: *city}
	case *state != "":
		q.Location = &intent.CityStateID{Name: *state, IsState: true}
	}

	a, err := newApp(env.user)
	if err != nil {
		return out.Error(fmt.Sprintf("failed to load catalog: %v", err), ErrCodeNoCatalog)
	}
	defer a.Close()

	list := a.index.Index().Servers(q)
	rows := make([]serverJSON, len(list))
	var sb strings.Builder
	for i, s := range list {
		rows[i] = toServerJSON(s)
		fmt.Fprintf(&sb, "%s %s %s %s %3d%%  %s\n", StatusSymbol(!s.Online), cell(s.Name, tableColName),
			cell(s.City, tableColCity), cell(s.Tier.String(), tableColTier), s.Load, s.Features.Intent())
	}
	fmt.Fprintf(&sb, "\nTotal: %d servers\n", len(rows))
	out.Print(sb.String(), rows)
	return 0
}

type gatewayJSON struct {
	Name          string `json:"name"`
	Tier          int    `json:"tier"`
	InMaintenance bool   `json:"in_maintenance"`
	Servers       int    `json:"servers"`
}

func handleGateways(env *cliEnv, args []string) int {
	a, out, _, _, code := parseBrowse(env, "gateways", "gateways [--json]", args)
	if a == nil {
		return code
	}
	defer a.Close()

	gws := a.index.Index().Gateways()
	rows := make([]gatewayJSON, len(gws))
	var sb strings.Builder
	for i, g := range gws {
		rows[i] = gatewayJSON{Name: g.Name, Tier: int(g.Tier), InMaintenance: g.InMaintenance, Servers: g.ServerCount}
		fmt.Fprintf(&sb, "%s %s %s %d\n", StatusSymbol(g.InMaintenance), cell(g.Name, tableColName),
			cell(g.Tier.String(), tableColTier), g.ServerCount)
	}
	if len(gws) == 0 {
		sb.WriteString("No gateways.\n")
	}
	out.Print(sb.String(), rows)
	return 0
}

func handleEntries(env *cliEnv, args []string) int {
	a, out, _, rest, code := parseBrowse(env, "entries", "entries <exit-country> [--json]", args)
	if a == nil {
		return code
	}
	defer a.Close()
	if len(rest) != 1 {
		return out.Error("exit country code is required", ErrCodeInvalidArgs)
	}
	entries := a.index.Index().EntryCountries(intent.NewCountryID(rest[0]))
	codes := make([]string, len(entries))
	var sb strings.Builder
	for i, e := range entries {
		codes[i] = e.Code()
		fmt.Fprintf(&sb, "%s %s\n", bulletSymbol, codes[i])
	}
	out.Print(sb.String(), codes)
	return 0
}

func handleTypes(env *cliEnv, args []string) int {
	a, out, _, rest, code := parseBrowse(env, "types", "types [country] [--json]", args)
	if a == nil {
		return code
	}
	defer a.Close()
	country := intent.CountryFastest
	if len(rest) > 0 {
		country = intent.NewCountryID(rest[0])
	}
	types := a.index.Index().AvailableTypes(country)
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	out.Print(strings.Join(names, " ")+"\n", names)
	return 0
}
