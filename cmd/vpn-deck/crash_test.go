package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/vpn-deck/internal/logging"
)

func TestRecoverCrashWritesDump(t *testing.T) {
	dir := setupHome(t, nil)
	logging.Init(logging.Config{LogDir: t.TempDir()})
	t.Cleanup(logging.Shutdown)

	cliLog.Info("recent_connected")

	var stderr bytes.Buffer
	code := func() (code int) {
		defer recoverCrash(&stderr, &code)
		panic("index out of range")
	}()
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "vpn-deck crashed: index out of range")

	dumps, err := filepath.Glob(filepath.Join(dir, "crash-dump-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, dumps, 1)
	data, err := os.ReadFile(dumps[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "recent_connected")
	assert.Contains(t, string(data), `"msg":"panic"`)
	assert.Contains(t, string(data), "panic: index out of range")
}

func TestRecoverCrashWithoutPanic(t *testing.T) {
	dir := setupHome(t, nil)

	var stderr bytes.Buffer
	code := func() (code int) {
		defer recoverCrash(&stderr, &code)
		return 0
	}()
	assert.Zero(t, code)
	assert.Empty(t, stderr.String())

	dumps, err := filepath.Glob(filepath.Join(dir, "crash-dump-*.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, dumps)
}
