package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".resultset.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	var calls int32
	w, err := New(path, func() { atomic.AddInt32(&calls, 1) }, WithDebounce(200*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"a":{}}`), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0644))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWatcherSeesReplacement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".resultset.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	fired := make(chan struct{}, 1)
	w, err := New(path, func() { fired <- struct{}{} }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	tmp := filepath.Join(dir, "tmp.json")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"b":{}}`), 0644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("no notification after rename")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", ".resultset.json"), func() {})
	assert.Error(t, err)
}
