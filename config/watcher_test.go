package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// touch rewrites path and moves its mtime forward so the poller notices
// even on filesystems with coarse timestamps.
func touch(t *testing.T, path, content string, offset time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	ts := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func TestNewFileWatcher_Defaults(t *testing.T) {
	f := writeConfig(t, "log:\n  level: info\n")

	w, err := NewFileWatcher([]string{f})
	require.NoError(t, err)
	assert.Equal(t, []string{f}, w.Paths())
	assert.False(t, w.IsRunning())
	assert.Equal(t, 100*time.Millisecond, w.debounceDelay)
	assert.Equal(t, time.Second, w.pollInterval)
}

func TestNewFileWatcher_MissingPathIsWatched(t *testing.T) {
	w, err := NewFileWatcher([]string{"/nonexistent/ragnar.yaml"})
	require.NoError(t, err)
	require.NotNil(t, w)
}

func TestFileWatcher_Lifecycle(t *testing.T) {
	f := writeConfig(t, "a: 1\n")
	w, err := NewFileWatcher([]string{f})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "second start fails")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop())
}

func TestFileWatcher_DetectsWrite(t *testing.T) {
	f := writeConfig(t, "v: 1\n")
	w, err := NewFileWatcher([]string{f},
		WithPollInterval(20*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	got := make(chan FileEvent, 10)
	w.OnChange(func(ev FileEvent) { got <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	touch(t, f, "v: 2\n", time.Minute)

	select {
	case ev := <-got:
		assert.Equal(t, f, ev.Path)
		assert.Equal(t, FileOpWrite, ev.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event")
	}
}

func TestFileWatcher_CoalescesEventsPerPath(t *testing.T) {
	f := writeConfig(t, "v: 0\n")
	w, err := NewFileWatcher([]string{f},
		WithPollInterval(time.Hour),
		WithDebounceDelay(50*time.Millisecond))
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	w.OnChange(func(FileEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	for i := 0; i < 3; i++ {
		w.eventChan <- FileEvent{Path: f, Op: FileOpWrite, Timestamp: time.Now()}
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestReloader_PublishesValidConfigs(t *testing.T) {
	f := writeConfig(t, "log:\n  level: info\n")
	loader := NewLoader().WithConfigPath(f)
	initial, err := loader.Load()
	require.NoError(t, err)

	r, err := NewReloader(loader, initial, zaptest.NewLogger(t),
		WithPollInterval(20*time.Millisecond),
		WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	levels := make(chan string, 10)
	r.OnReload(func(prev, next *Config) {
		levels <- prev.Log.Level + "->" + next.Log.Level
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	touch(t, f, "log:\n  level: debug\n", time.Minute)
	select {
	case got := <-levels:
		assert.Equal(t, "info->debug", got)
	case <-time.After(2 * time.Second):
		t.Fatal("config was not reloaded")
	}
	assert.Equal(t, "debug", r.Current().Log.Level)
}

func TestReloader_RejectsInvalidConfig(t *testing.T) {
	f := writeConfig(t, "log:\n  level: info\n")
	loader := NewLoader().WithConfigPath(f)
	initial, err := loader.Load()
	require.NoError(t, err)

	r, err := NewReloader(loader, initial, nil)
	require.NoError(t, err)

	called := false
	r.OnReload(func(_, _ *Config) { called = true })

	require.NoError(t, os.WriteFile(f, []byte("log:\n  level: loud\n"), 0o644))
	assert.Error(t, r.Reload())
	assert.False(t, called)
	assert.Same(t, initial, r.Current())
}

func TestNewReloader_RequiresPath(t *testing.T) {
	_, err := NewReloader(NewLoader(), DefaultConfig(), nil)
	assert.Error(t, err)
}
