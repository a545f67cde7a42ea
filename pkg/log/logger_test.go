package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"error", ErrorLevel, false},
		{"INFO", InfoLevel, false},
		{"debug", DebugLevel, false},
		{"trace", TraceLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	l := Discard()
	l.level = InfoLevel
	var out, errOut bytes.Buffer
	l.SetOutput(&out, &errOut)

	l.Info("loaded %d files", 3)
	l.Debug("hidden")
	l.Error("boom")

	assert.Equal(t, "loaded 3 files\n", out.String())
	assert.Contains(t, errOut.String(), "boom")
}

func TestSafeLogWritesOnlyToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cov.log")
	l, err := Open(DebugLevel, path)
	require.NoError(t, err)
	var out bytes.Buffer
	l.SetOutput(&out, &out)

	l.SafeLog("Coverage resultset timestamp missing; defaulted to 0.")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timestamp missing")
	assert.Empty(t, out.String())
	assert.Equal(t, path, l.Path())
}

func TestSafeLogNilAndClosed(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.SafeLog("x") })

	d := Discard()
	require.NoError(t, d.Close())
	assert.NotPanics(t, func() { d.SafeLog("x") })
}
