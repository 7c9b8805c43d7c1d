package statedb

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *StateDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func recent(id, user, key string, last int64) RecentRow {
	return RecentRow{
		ID:              id,
		UserID:          user,
		IntentKey:       key,
		IntentData:      []byte(`{"type":"FASTEST"}`),
		LastConnectedAt: time.UnixMilli(last),
	}
}

func ids(rows []RecentRow) []string {
	var out []string
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func TestOpenReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	ctx := context.Background()

	db1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db1.Migrate())
	require.NoError(t, db1.SaveRecent(ctx, recent("a", "u", "k1", 10)))
	require.NoError(t, db1.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()
	require.NoError(t, db2.Migrate())
	rows, err := db2.LoadRecents(ctx, "u")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "k1", rows[0].IntentKey)
	assert.JSONEq(t, `{"type":"FASTEST"}`, string(rows[0].IntentData))

	v, err := db2.GetMeta("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestLoadRecentsOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	pinnedOld := recent("pinned-old", "u", "k1", 50)
	pinnedOld.Pinned, pinnedOld.PinnedAt = true, time.UnixMilli(100)
	pinnedNew := recent("pinned-new", "u", "k2", 10)
	pinnedNew.Pinned, pinnedNew.PinnedAt = true, time.UnixMilli(200)
	for _, r := range []RecentRow{
		recent("old", "u", "k3", 20),
		pinnedOld,
		recent("new", "u", "k4", 300),
		pinnedNew,
		recent("other-user", "v", "k1", 999),
	} {
		require.NoError(t, db.SaveRecent(ctx, r))
	}

	rows, err := db.LoadRecents(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"pinned-new", "pinned-old", "new", "old"}, ids(rows))
	assert.True(t, rows[0].Pinned)
	assert.Equal(t, int64(200), rows[0].PinnedAt.UnixMilli())
	assert.True(t, rows[3].PinnedAt.IsZero())

	users, err := db.RecentUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u", "v"}, users)
}

func TestSaveRecentReplacesSameKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveRecent(ctx, recent("a", "u", "same", 1)))
	require.NoError(t, db.SaveRecent(ctx, recent("b", "u", "same", 2)))
	require.NoError(t, db.SaveRecent(ctx, recent("c", "v", "same", 3)))

	rows, err := db.LoadRecents(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(rows))
}

func TestDeleteRecentsIsAtomic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.SaveRecent(ctx, recent(id, "u", id, int64(i))))
	}
	require.NoError(t, db.DeleteRecents(ctx, "a", "c", "missing"))
	rows, err := db.LoadRecents(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(rows))

	require.NoError(t, db.DeleteRecents(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, db.DeleteRecents(cancelled, "b"))
	rows, err = db.LoadRecents(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTouchAdvancesLastModified(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ts, err := db.LastModified()
	require.NoError(t, err)
	assert.Zero(t, ts)

	tick := time.Unix(1000, 0)
	db.now = func() time.Time { return tick }
	require.NoError(t, db.SaveRecent(ctx, recent("a", "u", "k", 1)))
	first, err := db.LastModified()
	require.NoError(t, err)
	assert.Equal(t, tick.UnixNano(), first)

	tick = tick.Add(time.Second)
	require.NoError(t, db.DeleteRecents(ctx, "a"))
	second, err := db.LastModified()
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func TestExportImportRecents(t *testing.T) {
	src := newTestDB(t)
	ctx := context.Background()
	pinned := recent("p", "u", "k1", 5)
	pinned.Pinned, pinned.PinnedAt = true, time.UnixMilli(7)
	require.NoError(t, src.SaveRecent(ctx, pinned))
	require.NoError(t, src.SaveRecent(ctx, recent("q", "v", "k2", 6)))

	var buf bytes.Buffer
	n, err := src.ExportRecents(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	path := filepath.Join(t.TempDir(), "recents.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	dst := newTestDB(t)
	n, err = dst.ImportRecents(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := dst.LoadRecents(ctx, "u")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Pinned)
	assert.Equal(t, int64(7), rows[0].PinnedAt.UnixMilli())
	assert.Equal(t, int64(5), rows[0].LastConnectedAt.UnixMilli())
}

func TestImportRejectsIncompleteRows(t *testing.T) {
	db := newTestDB(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"recents":[{"id":"a","user_id":"u"}]}`), 0o600))
	_, err := db.ImportRecents(context.Background(), path)
	assert.Error(t, err)

	users, err := db.RecentUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestElectPrimary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	a, err := Open(path)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Migrate())
	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()
	b.pid = a.pid + 1

	require.NoError(t, a.RegisterValidator(ctx))
	require.NoError(t, b.RegisterValidator(ctx))

	ok, err := a.ElectPrimary(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.ElectPrimary(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "re-election keeps the role")

	ok, err = b.ElectPrimary(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := b.AliveValidators(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, a.ResignPrimary(ctx))
	ok, err = b.ElectPrimary(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// A primary that stops heartbeating loses the role.
	b.now = func() time.Time { return time.Now().Add(-time.Hour) }
	require.NoError(t, b.Heartbeat(ctx))
	ok, err = a.ElectPrimary(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.CleanDeadValidators(ctx, 30*time.Second))
	n, err = a.AliveValidators(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, a.UnregisterValidator(ctx))
	n, err = a.AliveValidators(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestElectPrimaryUnregistered(t *testing.T) {
	db := newTestDB(t)
	ok, err := db.ElectPrimary(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveRecentIsAtomicWithChangeStamp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Without the metadata table the stamp cannot be written.
	_, err := db.db.ExecContext(ctx, "ALTER TABLE metadata RENAME TO metadata_gone")
	require.NoError(t, err)
	require.Error(t, db.SaveRecent(ctx, recent("a", "u", "k", 1)))

	rows, err := db.LoadRecents(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = db.db.ExecContext(ctx, "ALTER TABLE metadata_gone RENAME TO metadata")
	require.NoError(t, err)
	require.NoError(t, db.SaveRecent(ctx, recent("a", "u", "k", 1)))
	ts, err := db.LastModified()
	require.NoError(t, err)
	assert.NotZero(t, ts)
}
