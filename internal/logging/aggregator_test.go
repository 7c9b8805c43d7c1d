package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func TestAggregatorSummarizes(t *testing.T) {
	var out syncBuffer
	agg := NewAggregator(slog.New(slog.NewJSONHandler(&out, nil)), 3600)

	agg.Record(CompCatalog, "catalog_reload", slog.Int("servers", 10))
	agg.Record(CompCatalog, "catalog_reload", slog.Int("servers", 12))
	agg.Record(CompSearch, "search_query")
	assert.EqualValues(t, 2, agg.Pending(CompCatalog, "catalog_reload"))

	agg.Flush()
	assert.Zero(t, agg.Pending(CompCatalog, "catalog_reload"))

	summaries := map[string]map[string]any{}
	for _, line := range out.lines() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		assert.Equal(t, "event_summary", rec["msg"])
		summaries[rec["event"].(string)] = rec
	}
	require.Len(t, summaries, 2)
	assert.EqualValues(t, 2, summaries["catalog_reload"]["count"])
	assert.EqualValues(t, 12, summaries["catalog_reload"]["servers"])
	assert.EqualValues(t, 1, summaries["search_query"]["count"])
}

func TestAggregatorStopFlushes(t *testing.T) {
	var out syncBuffer
	agg := NewAggregator(slog.New(slog.NewJSONHandler(&out, nil)), 3600)
	agg.Start()
	agg.Record(CompIndex, "index_rebuilt")
	agg.Stop()
	agg.Stop()

	assert.Contains(t, strings.Join(out.lines(), "\n"), "index_rebuilt")
}

func TestAggregatorNilLogger(t *testing.T) {
	agg := NewAggregator(nil, 0)
	agg.Record(CompGeo, "lookup")
	agg.Flush()
	assert.Zero(t, agg.Pending(CompGeo, "lookup"))
}
