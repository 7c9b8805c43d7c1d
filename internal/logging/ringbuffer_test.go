package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferKeepsTail(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []string
		want   string
	}{
		{"fits", 16, []string{"abc", "def"}, "abcdef"},
		{"exact fill then wrap", 10, []string{"abcdefghij", "12345"}, "fghij12345"},
		{"split write", 8, []string{"abcdef", "WXYZ"}, "cdefWXYZ"},
		{"oversized write", 4, []string{"ab", "0123456789"}, "6789"},
		{"empty write", 4, []string{"ab", ""}, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer(tt.size)
			for _, w := range tt.writes {
				n, err := rb.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			assert.Equal(t, tt.want, string(rb.Bytes()))
			assert.Equal(t, len(tt.want), rb.Len())
		})
	}
}

func TestRingBufferDump(t *testing.T) {
	rb := NewRingBuffer(32)
	_, _ = rb.Write([]byte("tail"))
	path := filepath.Join(t.TempDir(), "dump.log")
	require.NoError(t, rb.DumpToFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))
}
