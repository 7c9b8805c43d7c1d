package main

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/vpn-deck/internal/intent"
)

func parseIntent(t *testing.T, args ...string) (intent.ConnectIntent, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var f intentFlags
	f.register(fs)
	require.NoError(t, fs.Parse(args))
	return f.build()
}

func TestIntentFlagsBuild(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want intent.ConnectIntent
	}{
		{"no flags", nil, intent.FastestInCountry{Country: intent.CountryFastest}},
		{"country", []string{"-c", "pl"}, intent.FastestInCountry{Country: "PL"}},
		{"excluding home", []string{"--country", "fastest-excluding-home"}, intent.FastestInCountry{Country: intent.CountryFastestExcludingHome}},
		{"city with features", []string{"-c", "US", "--city", "New York", "--feature", "tor", "--feature", "p2p"},
			intent.FastestInCity{Country: "US", CityEn: "New York", Features: intent.Features(intent.FeatureTor, intent.FeatureP2P)}},
		{"state", []string{"-c", "US", "--state", "California"}, intent.FastestInState{Country: "US", StateEn: "California"}},
		{"secure core", []string{"-c", "CH", "--entry", "IS"}, intent.SecureCore{ExitCountry: "CH", EntryCountry: "IS"}},
		{"secure core any entry", []string{"--secure-core"}, intent.SecureCore{ExitCountry: intent.CountryFastest, EntryCountry: intent.CountryFastest}},
		{"server", []string{"--server", "pl1", "-c", "PL"}, intent.Server{ServerID: "pl1", ExitCountry: "PL"}},
		{"gateway", []string{"--gateway", "ACME", "--server", "gw2"}, intent.Gateway{GatewayName: "ACME", ServerID: "gw2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntent(t, tt.args...)
			require.NoError(t, err)
			assert.True(t, intent.Equal(tt.want, got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestIntentFlagsProfile(t *testing.T) {
	got, err := parseIntent(t, "-c", "PL", "--profile", "7")
	require.NoError(t, err)
	id, ok := intent.ProfileID(got)
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestIntentFlagsRejectsConflicts(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"gateway with city", []string{"--gateway", "ACME", "-c", "DE", "--city", "Berlin"}},
		{"secure core with feature", []string{"--secure-core", "--feature", "tor"}},
		{"server with city", []string{"--server", "pl1", "-c", "PL", "--city", "Warsaw"}},
		{"city and state", []string{"-c", "US", "--city", "Austin", "--state", "Texas"}},
		{"city without country", []string{"--city", "Warsaw"}},
		{"unknown feature", []string{"--feature", "streaming"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseIntent(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
