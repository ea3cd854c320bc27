package indexer

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

// TestMonitor_Run verifies passes repeat until the context is canceled
func TestMonitor_Run(t *testing.T) {
	idx, _, _ := setupIndexer(t)
	dir := t.TempDir()
	createTestFile(t, dir, "a.cpp", nestedSource)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var passes atomic.Int32
	var firstIndexed atomic.Int32
	m := NewMonitor(idx, []string{dir},
		WithInterval(10*time.Millisecond),
		WithRunHook(func(s *Statistics) {
			if passes.Add(1) == 1 {
				firstIndexed.Store(int32(s.FilesIndexed))
			}
			if passes.Load() >= 3 {
				cancel()
			}
		}))

	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, passes.Load(), int32(3))
	assert.Equal(t, int32(1), firstIndexed.Load())
}

// TestMonitor_SkipsBusyPass verifies a pass is skipped while another run holds the lock
func TestMonitor_SkipsBusyPass(t *testing.T) {
	idx, _, _ := setupIndexer(t)
	dir := t.TempDir()

	var passes atomic.Int32
	m := NewMonitor(idx, []string{dir}, WithRunHook(func(*Statistics) { passes.Add(1) }))

	require.True(t, idx.runLock.TryAcquire())
	m.pass(context.Background())
	idx.runLock.Release()
	assert.Zero(t, passes.Load())

	m.pass(context.Background())
	assert.Equal(t, int32(1), passes.Load())
}

// TestWatcher_DebouncesWrites verifies repeated writes collapse into one call
func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var indexed atomic.Int32
	indexedPath := make(chan string, 4)
	w := NewWatcher([]string{dir}, DiscoverOptions{}, func(path string) {
		indexed.Add(1)
		indexedPath <- path
	}, nil, WithDebounce(200*time.Millisecond))
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(path, []byte("void a();\n"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("void a() {}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	select {
	case got := <-indexedPath:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no index callback")
	}

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), indexed.Load())
	assert.Zero(t, w.pending())
}

// TestWatcher_Remove verifies deleting a source file reports it
func TestWatcher_Remove(t *testing.T) {
	dir := t.TempDir()
	path := createTestFile(t, dir, "a.hpp", "void a();\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	removed := make(chan string, 1)
	changed := make(chan string, 1)
	w := NewWatcher([]string{dir}, DiscoverOptions{}, nil, func(p string) { removed <- p },
		WithChangeHook(func(p string) { changed <- p }))
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.Remove(path))

	select {
	case got := <-removed:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no remove callback")
	}

	select {
	case got := <-changed:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change callback")
	}
}

// TestWatcher_SkipsExcluded verifies excluded and hidden paths are ignored
func TestWatcher_SkipsExcluded(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher([]string{dir}, DiscoverOptions{Exclude: []string{"build", "*.pb.h"}}, nil, nil)

	assert.True(t, w.skipped(filepath.Join(dir, "build", "x.cpp")))
	assert.True(t, w.skipped(filepath.Join(dir, "src", "msg.pb.h")))
	assert.True(t, w.skipped(filepath.Join(dir, ".git", "x.cpp")))
	assert.False(t, w.skipped(filepath.Join(dir, "src", "x.cpp")))
	assert.False(t, w.skipped(dir))
}

// TestIndexer_Watch verifies the watcher feeds the indexer
func TestIndexer_Watch(t *testing.T) {
	idx, store, _ := setupIndexer(t)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := idx.Watch(ctx, []string{dir}, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	path := createTestFile(t, dir, "live.cpp", "namespace live {\nvoid tick() {}\n}\n")

	assert.Eventually(t, func() bool {
		_, err := store.LookupEntityByQualifiedName(context.Background(), "live::tick")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, err := store.GetFileByPath(context.Background(), path)
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)
}
