package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWatcherBatchesSettledChanges(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.clp")
	other := filepath.Join(dir, "other.clp")
	writeFile(t, rules, "(deftemplate a)")
	writeFile(t, other, "(deftemplate b)")

	batches := make(chan []string, 4)
	w, err := New([]string{rules}, 50*time.Millisecond, func(_ context.Context, paths []string) {
		batches <- paths
	}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// Several quick writes settle into one batch; unwatched files are ignored.
	writeFile(t, rules, "(deftemplate a (slot x))")
	writeFile(t, rules, "(deftemplate a (slot y))")
	writeFile(t, other, "(deftemplate b (slot z))")

	select {
	case got := <-batches:
		assert.Equal(t, []string{rules}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.Events, 1)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, rules, stats.LastEventPath)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{filepath.Join(dir, "x.clp")}, 0, func(context.Context, []string) {}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
	assert.Equal(t, []string{filepath.Join(dir, "x.clp")}, w.Files())
}

func TestWatcherStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	w, err := New([]string{filepath.Join(dir, "x.clp")}, 10*time.Millisecond, func(context.Context, []string) {}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("event loop still running")
	}
	w.Stop()
}
