package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec), "line %q", sc.Text())
		out = append(out, rec)
	}
	return out
}

func TestInitWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir})
	defer Shutdown()

	Logger().Info("catalog_loaded", "servers", 3)

	recs := readRecords(t, filepath.Join(dir, LogFileName))
	require.Len(t, recs, 1)
	assert.Equal(t, "catalog_loaded", recs[0]["msg"])
	assert.EqualValues(t, 3, recs[0]["servers"])
}

func TestComponentLoggerCreatedBeforeInit(t *testing.T) {
	Shutdown()
	log := ForComponent(CompRecents).With("user", "alice")

	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "debug"})
	defer Shutdown()

	log.Debug("recent_pinned", "id", "r1")

	recs := readRecords(t, filepath.Join(dir, LogFileName))
	require.Len(t, recs, 1)
	assert.Equal(t, CompRecents, recs[0]["component"])
	assert.Equal(t, "alice", recs[0]["user"])
	assert.Equal(t, "r1", recs[0]["id"])
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "warn"})
	defer Shutdown()

	log := ForComponent(CompSearch)
	log.Info("search_query")
	log.Warn("search_slow")

	recs := readRecords(t, filepath.Join(dir, LogFileName))
	require.Len(t, recs, 1)
	assert.Equal(t, "search_slow", recs[0]["msg"])
}

func TestDiscardWithoutOutput(t *testing.T) {
	Init(Config{})
	defer Shutdown()

	assert.Same(t, discard, Logger())
	ForComponent(CompCLI).Info("ignored")
	Aggregate(CompCatalog, "catalog_reload")
}

func TestDumpRingBuffer(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir})
	defer Shutdown()

	ForComponent(CompResolver).Info("intent_resolved")
	dump := filepath.Join(dir, "crash.log")
	require.NoError(t, DumpRingBuffer(dump))

	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Contains(t, string(data), "intent_resolved")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
