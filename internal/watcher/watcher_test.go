package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16)}
}

func (r *recorder) record(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	r.ch <- path
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func newWatcher(t *testing.T) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher(50*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	fw.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = fw.Close()
	})
	return fw
}

func TestWatchDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "model.glb")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))

	fw := newWatcher(t)
	rec := newRecorder()
	require.NoError(t, fw.Watch([]string{file}, rec.record))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte("v2"), 0o644))
	}

	select {
	case got := <-rec.ch:
		want, _ := filepath.Abs(file)
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestWatchIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "studio.hdr")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o644))

	fw := newWatcher(t)
	rec := newRecorder()
	require.NoError(t, fw.Watch([]string{file}, rec.record))

	require.NoError(t, os.WriteFile(other, []byte("b"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestUnwatchStopsCallbacks(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "model.glb")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o644))

	fw := newWatcher(t)
	rec := newRecorder()
	require.NoError(t, fw.Watch([]string{file}, rec.record))
	require.NoError(t, fw.Unwatch(file))
	require.NoError(t, fw.Unwatch(file))

	require.NoError(t, os.WriteFile(file, []byte("b"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestWatchAfterClose(t *testing.T) {
	fw, err := NewFileWatcher(time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	require.NoError(t, fw.Close())
	assert.Error(t, fw.Watch([]string{"model.glb"}, func(string) {}))
}
