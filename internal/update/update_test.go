package update

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/vpn-deck/internal/catalog"
)

const catalogJSON = `{"servers": [
	{"id": "pl1", "name": "PL#1", "exit_country": "pl", "city": "Warsaw", "tier": 2, "online": true},
	{"id": "ch1", "name": "CH#1", "exit_country": "CH", "tier": 1, "online": true}
]}`

type catalogServer struct {
	*httptest.Server
	body     atomic.Value
	requests atomic.Int32
}

func newCatalogServer(t *testing.T, body string) *catalogServer {
	t.Helper()
	cs := &catalogServer{}
	cs.body.Store(body)
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.requests.Add(1)
		body := cs.body.Load().(string)
		etag := fmt.Sprintf(`"%d"`, len(body))
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newTestUpdater(t *testing.T, url string) (*Updater, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servers.json")
	return New(Config{URL: url, CatalogPath: path, Interval: time.Hour}), path
}

func TestCheckDownloadsCatalog(t *testing.T) {
	cs := newCatalogServer(t, catalogJSON)
	u, path := newTestUpdater(t, cs.URL)

	res, err := u.Check(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 2, res.Servers)

	servers, err := catalog.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "PL", servers[0].ExitCountry)
}

func TestCheckRespectsInterval(t *testing.T) {
	cs := newCatalogServer(t, catalogJSON)
	u, _ := newTestUpdater(t, cs.URL)

	_, err := u.Check(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, u.Due())

	res, err := u.Check(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, int32(1), cs.requests.Load())

	u.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.True(t, u.Due())
}

func TestCheckNotModifiedKeepsFile(t *testing.T) {
	cs := newCatalogServer(t, catalogJSON)
	u, path := newTestUpdater(t, cs.URL)

	_, err := u.Check(context.Background(), true)
	require.NoError(t, err)
	before, err := os.Stat(path)
	require.NoError(t, err)

	res, err := u.Check(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, 2, res.Servers)
	assert.Equal(t, int32(2), cs.requests.Load())

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestCheckRejectsInvalidCatalog(t *testing.T) {
	cs := newCatalogServer(t, catalogJSON)
	u, path := newTestUpdater(t, cs.URL)
	_, err := u.Check(context.Background(), true)
	require.NoError(t, err)

	cs.body.Store(`{"servers": [{"id": "x1"}]}`)
	_, err = u.Check(context.Background(), true)
	require.Error(t, err)

	servers, err := catalog.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, servers, 2, "a bad download never replaces the catalog")
}

func TestCheckErrors(t *testing.T) {
	u, _ := newTestUpdater(t, "")
	_, err := u.Check(context.Background(), true)
	assert.Error(t, err)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	u, path := newTestUpdater(t, failing.URL)
	_, err = u.Check(context.Background(), true)
	assert.ErrorContains(t, err, "503")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheckCancelled(t *testing.T) {
	cs := newCatalogServer(t, catalogJSON)
	u, _ := newTestUpdater(t, cs.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := u.Check(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
}
