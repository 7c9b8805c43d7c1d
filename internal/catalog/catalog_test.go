package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestGatewayName(t *testing.T) {
	tests := []struct {
		name   string
		server Server
		want   string
	}{
		{"regular server", Server{Name: "PL#1"}, ""},
		{"raw name wins", Server{Name: "ACME#3", RawGatewayName: "Acme Corp", Features: Features(FeatureRestricted)}, "Acme Corp"},
		{"derived from name prefix", Server{Name: "ACME#3", Features: Features(FeatureRestricted)}, "ACME"},
		{"raw name ignored without restricted bit", Server{Name: "X#1", RawGatewayName: "X"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.server.GatewayName())
			assert.Equal(t, tt.want != "", tt.server.IsGateway())
		})
	}
}

func TestLocalizedNames(t *testing.T) {
	s := Server{
		City:  "Warsaw",
		State: "Masovia",
		Translations: map[string]Translation{
			"pl":    {City: "Warszawa", State: "Mazowsze"},
			"pt-BR": {City: "Varsóvia"},
		},
	}
	assert.Equal(t, "Warszawa", s.LocalizedCity(language.MustParse("pl-PL")))
	assert.Equal(t, "Mazowsze", s.LocalizedState(language.Polish))
	assert.Equal(t, "Varsóvia", s.LocalizedCity(language.BrazilianPortuguese))
	assert.Equal(t, "Masovia", s.LocalizedState(language.BrazilianPortuguese))
	assert.Equal(t, "Warsaw", s.LocalizedCity(language.German))
}

func TestFeaturesIntent(t *testing.T) {
	f := Features(FeatureP2P) | Features(FeatureStreaming) | Features(FeatureTor)
	set := f.Intent()
	assert.Equal(t, []string{"tor", "p2p"}, set.Names())
}

func TestDecodeNormalizes(t *testing.T) {
	servers, err := Decode([]byte(`{"servers":[
		{"id":"a","name":"PL#1","exit_country":"pl","tier":2,"online":true},
		{"id":"b","name":"CH-IS#1","exit_country":"ch","entry_country":"is","features":1}
	]}`))
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "PL", servers[0].EntryCountry)
	assert.Equal(t, "IS", servers[1].EntryCountry)
	assert.True(t, servers[1].IsSecureCore())
}

func TestDecodeRejects(t *testing.T) {
	for name, data := range map[string]string{
		"missing id":      `{"servers":[{"exit_country":"PL"}]}`,
		"duplicate id":    `{"servers":[{"id":"a","exit_country":"PL"},{"id":"a","exit_country":"CH"}]}`,
		"missing country": `{"servers":[{"id":"a"}]}`,
		"not json":        `[`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "servers.json"))
	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestSaveLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "servers.json")
	in := []Server{{ID: "a", Name: "PL#1", ExitCountry: "PL", EntryCountry: "PL", Tier: TierPlus, Online: true}}
	require.NoError(t, SaveFile(path, in))
	out, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestStoreReplaceVersions(t *testing.T) {
	s := NewStore()
	assert.Zero(t, s.Current().Version)

	snap := s.Replace([]Server{{ID: "a", ExitCountry: "PL"}})
	assert.EqualValues(t, 1, snap.Version)
	assert.Same(t, snap, s.Current())
	assert.True(t, snap.HasServer("a"))
	_, ok := snap.Server("b")
	assert.False(t, ok)
}

func TestStoreSubscribeConflates(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	first := <-ch
	assert.Zero(t, first.Version)

	s.Replace(nil)
	s.Replace(nil)
	s.Replace([]Server{{ID: "x", ExitCountry: "CH"}})

	latest := <-ch
	assert.EqualValues(t, 3, latest.Version)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered snapshot %d", extra.Version)
	default:
	}
}

func TestStoreUnsubscribeCloses(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	<-ch
	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	s.Replace(nil)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	require.NoError(t, SaveFile(path, []Server{{ID: "a", ExitCountry: "PL", EntryCountry: "PL"}}))

	store := NewStore()
	w := NewWatcher(store, path, WatcherConfig{ReloadsPerSecond: 100, Debounce: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	require.Equal(t, 1, store.Current().Len())

	require.NoError(t, SaveFile(path, []Server{
		{ID: "a", ExitCountry: "PL", EntryCountry: "PL"},
		{ID: "b", ExitCountry: "CH", EntryCountry: "CH"},
	}))
	assert.Eventually(t, func() bool { return store.Current().Len() == 2 }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcherStartsWithoutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	store := NewStore()
	w := NewWatcher(store, path, WatcherConfig{ReloadsPerSecond: 100, Debounce: 10 * time.Millisecond})
	require.NoError(t, w.Start(context.Background()))
	defer w.Close()
	assert.Zero(t, store.Current().Len())

	require.NoError(t, SaveFile(path, []Server{{ID: "a", ExitCountry: "PL", EntryCountry: "PL"}}))
	assert.Eventually(t, func() bool { return store.Current().Len() == 1 }, 5*time.Second, 20*time.Millisecond)
}
