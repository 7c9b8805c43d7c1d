package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
	"github.com/asheshgoplani/vpn-deck/internal/config"
)

func testServers() []catalog.Server {
	return []catalog.Server{
		{ID: "pl1", Name: "PL#1", ExitCountry: "PL", EntryCountry: "PL", City: "Warsaw", Tier: catalog.TierPlus, Online: true, Load: 20, Features: catalog.Features(catalog.FeatureP2P)},
		{ID: "pl2", Name: "PL#2", ExitCountry: "PL", EntryCountry: "PL", City: "Krakow", Tier: catalog.TierBasic, Online: true, Load: 70},
		{ID: "ch1", Name: "CH#1", ExitCountry: "CH", EntryCountry: "CH", City: "Zurich", Tier: catalog.TierPlus, Online: true, Load: 40},
		{ID: "sc1", Name: "CH-IS#1", ExitCountry: "CH", EntryCountry: "IS", Tier: catalog.TierPlus, Online: true, Features: catalog.Features(catalog.FeatureSecureCore)},
		{ID: "us1", Name: "US-CA#1", ExitCountry: "US", EntryCountry: "US", City: "Los Angeles", State: "California", Tier: catalog.TierPlus, Online: false},
	}
}

// setupHome points vpn-deck at a temporary directory holding servers.
func setupHome(t *testing.T, servers []catalog.Server) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.HomeEnv, dir)
	t.Setenv("VPNDECK_USER", "")
	t.Setenv("VPNDECK_DEBUG", "")
	config.ClearUserConfigCache()
	t.Cleanup(config.ClearUserConfigCache)
	if servers != nil {
		require.NoError(t, catalog.SaveFile(filepath.Join(dir, config.CatalogFileName), servers))
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	code, stdout, stderr := runCLI(t, append(args, "--json")...)
	require.Equal(t, 0, code, "stderr: %s stdout: %s", stderr, stdout)
	require.NoError(t, json.Unmarshal([]byte(stdout), v), stdout)
}

func TestExtractGlobalFlags(t *testing.T) {
	user, verbose, rest := extractGlobalFlags([]string{"-u", "alice", "recents", "list", "--verbose", "--json"})
	assert.Equal(t, "alice", user)
	assert.True(t, verbose)
	assert.Equal(t, []string{"recents", "list", "--json"}, rest)

	user, _, rest = extractGlobalFlags([]string{"--user=bob", "countries"})
	assert.Equal(t, "bob", user)
	assert.Equal(t, []string{"countries"}, rest)
}

func TestRunVersionAndHelp(t *testing.T) {
	setupHome(t, nil)
	code, stdout, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "vpn-deck v"+Version)

	code, stdout, _ = runCLI(t)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Browse Commands:")

	code, _, stderr := runCLI(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")
}

func TestCountries(t *testing.T) {
	setupHome(t, testServers())

	var rows []countryJSON
	runJSON(t, &rows, "countries")
	var codes []string
	for _, r := range rows {
		codes = append(codes, r.Code)
	}
	assert.ElementsMatch(t, []string{"CH", "PL", "US"}, codes)

	var sc []countryJSON
	runJSON(t, &sc, "countries", "--filter", "secure-core")
	require.Len(t, sc, 1)
	assert.Equal(t, "CH", sc[0].Code)

	code, _, stderr := runCLI(t, "countries", "--filter", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown filter")
}

func TestCitiesAndStates(t *testing.T) {
	setupHome(t, testServers())

	var cities []cityJSON
	runJSON(t, &cities, "cities", "PL")
	var names []string
	for _, c := range cities {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Krakow", "Warsaw"}, names)

	var states []cityJSON
	runJSON(t, &states, "states", "us")
	require.Len(t, states, 1)
	assert.Equal(t, "California", states[0].English)
	assert.True(t, states[0].InMaintenance)

	code, _, _ := runCLI(t, "cities", "fastest")
	assert.Equal(t, 1, code)
}

func TestSearchHighlightsMatch(t *testing.T) {
	setupHome(t, testServers())

	code, stdout, stderr := runCLI(t, "search", "wars")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "[Wars]aw")

	var res searchJSON
	runJSON(t, &res, "search", "zur")
	require.NotEmpty(t, res.Results["all"])
	assert.Equal(t, "Zurich", res.Results["all"][0].Label)
}

func TestSearchSuggestsOnMiss(t *testing.T) {
	setupHome(t, testServers())

	var res searchJSON
	runJSON(t, &res, "search", "wrsw")
	assert.Empty(t, res.Results)
	if assert.NotEmpty(t, res.Suggestions) {
		assert.Equal(t, "Warsaw", res.Suggestions[0].Label)
	}
}

func TestResolveGeneralizesUnknownCity(t *testing.T) {
	setupHome(t, testServers())

	var res resolveJSON
	runJSON(t, &res, "resolve", "-c", "PL", "--city", "Gdansk")
	assert.Equal(t, 1, res.Steps)
	assert.False(t, res.Unsatisfiable)
	assert.Equal(t, "no-servers", res.Availability)
	require.NotNil(t, res.Server)
	assert.Equal(t, "PL", res.Server.Exit)
}

func TestResolveWithoutCatalogIsUnsatisfiable(t *testing.T) {
	setupHome(t, nil)

	code, stdout, _ := runCLI(t, "resolve", "-c", "PL")
	assert.Equal(t, 2, code)
	assert.Contains(t, stdout, "cannot be satisfied")
}

func TestRecentsLifecycle(t *testing.T) {
	setupHome(t, testServers())

	var connected struct {
		Recent recentJSON `json:"recent"`
	}
	runJSON(t, &connected, "recents", "connect", "-c", "PL")
	first := connected.Recent.ID
	require.NotEmpty(t, first)

	runJSON(t, &connected, "recents", "connect", "-c", "CH", "--city", "Zurich")
	runJSON(t, &connected, "recents", "connect", "-c", "PL")
	assert.Equal(t, first, connected.Recent.ID, "same intent reuses the recent")

	var list []recentJSON
	runJSON(t, &list, "recents", "list")
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].ID)

	zurich := list[1].ID
	code, _, stderr := runCLI(t, "recents", "pin", zurich[:8])
	require.Equal(t, 0, code, stderr)

	runJSON(t, &list, "recents", "list")
	require.Len(t, list, 2)
	assert.Equal(t, zurich, list[0].ID, "pinned recents come first")
	assert.True(t, list[0].Pinned)

	code, _, stderr = runCLI(t, "recents", "remove", first)
	require.Equal(t, 0, code, stderr)
	runJSON(t, &list, "recents", "list")
	require.Len(t, list, 1)

	code, _, stderr = runCLI(t, "recents", "pin", "zzzzzzzz")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")
}

func TestRecentsUsersAreSeparate(t *testing.T) {
	setupHome(t, testServers())

	code, _, stderr := runCLI(t, "-u", "alice", "recents", "connect", "-c", "PL")
	require.Equal(t, 0, code, stderr)

	var list []recentJSON
	runJSON(t, &list, "recents", "list")
	assert.Empty(t, list)
	runJSON(t, &list, "-u", "alice", "recents", "list")
	assert.Len(t, list, 1)
}

func TestRecentsValidateDropsRemovedServer(t *testing.T) {
	dir := setupHome(t, testServers())

	code, _, stderr := runCLI(t, "recents", "connect", "--server", "pl2", "-c", "PL")
	require.Equal(t, 0, code, stderr)
	code, _, stderr = runCLI(t, "recents", "connect", "-c", "CH")
	require.Equal(t, 0, code, stderr)

	servers := testServers()
	require.NoError(t, catalog.SaveFile(filepath.Join(dir, config.CatalogFileName), servers[:1]))

	var rep reportJSON
	runJSON(t, &rep, "recents", "validate")
	assert.Len(t, rep.MissingServer, 1)
	assert.Empty(t, rep.Truncated)

	var list []recentJSON
	runJSON(t, &list, "recents", "list")
	require.Len(t, list, 1)
	assert.Contains(t, list[0].Intent, "CH")
}

func TestRecentsValidateTruncates(t *testing.T) {
	dir := setupHome(t, testServers())
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.UserConfigFileName),
		[]byte("[recents]\nmax_recents = 1\n"), 0o600))
	config.ClearUserConfigCache()

	for _, cc := range []string{"PL", "CH", "US"} {
		code, _, stderr := runCLI(t, "recents", "connect", "-c", cc)
		require.Equal(t, 0, code, stderr)
	}

	var rep reportJSON
	runJSON(t, &rep, "recents", "validate")
	require.Len(t, rep.Truncated, 1, "one kept under the cap plus the most recent connection")

	var list []recentJSON
	runJSON(t, &list, "recents", "list")
	require.Len(t, list, 2)
	for _, it := range list {
		assert.NotEqual(t, rep.Truncated[0], it.ID)
	}
}

func TestRecentsExportImport(t *testing.T) {
	setupHome(t, testServers())
	code, _, stderr := runCLI(t, "recents", "connect", "-c", "PL")
	require.Equal(t, 0, code, stderr)

	exportPath := filepath.Join(t.TempDir(), "recents.json")
	code, _, stderr = runCLI(t, "recents", "export", exportPath)
	require.Equal(t, 0, code, stderr)

	setupHome(t, testServers())
	code, stdout, stderr := runCLI(t, "recents", "import", exportPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Imported 1 recent(s)")

	var list []recentJSON
	runJSON(t, &list, "recents", "list")
	require.Len(t, list, 1)
	assert.True(t, strings.Contains(list[0].Intent, "PL"))
}

func TestCatalogUpdate(t *testing.T) {
	dir := setupHome(t, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(catalog.File{Servers: testServers()})
	}))
	defer srv.Close()

	code, _, stderr := runCLI(t, "catalog", "update")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no catalog url")

	code, stdout, stderr := runCLI(t, "catalog", "update", "--url", srv.URL)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "5 servers")
	_, err := os.Stat(filepath.Join(dir, config.CatalogFileName))
	require.NoError(t, err)

	var rows []countryJSON
	runJSON(t, &rows, "countries")
	assert.Len(t, rows, 3)
}
