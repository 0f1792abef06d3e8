// FILE: lixenwraith/iniconf/watch_test.go
package iniconf

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWatchOptions() WatchOptions {
	return WatchOptions{
		PollInterval:  MinPollInterval,
		Debounce:      50 * time.Millisecond,
		MaxWatchers:   4,
		ReloadTimeout: time.Second,
	}
}

// waitFor returns the next notification or fails after timeout.
func waitFor(t *testing.T, ch <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscriber channel closed")
		return msg
	case <-time.After(timeout):
		t.Fatal("timed out waiting for watcher notification")
	}
	return ""
}

func TestWatchStatic(t *testing.T) {
	for _, mode := range []struct {
		name          string
		disableEvents bool
	}{
		{"Polling", true},
		{"Events", false},
	} {
		t.Run(mode.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "static.toml")
			require.NoError(t, WriteStaticFile(path, map[string]string{"tst.tst_service": "first"}))

			host := NewMemoryHost(WithThreads())
			m := newTestManager(t, host)
			host.FinishStartup()

			opts := testWatchOptions()
			opts.DisableEvents = mode.disableEvents
			w, err := m.WatchStatic(host, path, opts)
			require.NoError(t, err)
			defer w.Stop()
			assert.True(t, w.IsWatching())
			assert.Equal(t, path, w.Path())

			table := host.StartThread()
			require.NoError(t, m.RequestInit(table))
			require.Equal(t, "first", m.Get(table, optService))
			m.RequestShutdown(table)
			host.Deactivate(table)

			changes := w.Subscribe()
			// Ensure the new mtime differs on coarse-grained filesystems.
			time.Sleep(10 * time.Millisecond)
			require.NoError(t, WriteStaticFile(path, map[string]string{
				"tst.tst_service": "second-value",
				"tst.tst_limit":   "20",
			}))

			got := map[string]bool{}
			deadline := 2*time.Second + debounceSettleMultiplier*opts.Debounce
			for len(got) < 2 {
				got[waitFor(t, changes, deadline)] = true
			}
			assert.True(t, got["tst.tst_service"])
			assert.True(t, got["tst.tst_limit"])

			require.NoError(t, m.RequestInit(table))
			assert.Equal(t, "second-value", m.Get(table, optService))
			assert.Equal(t, int64(20), m.Get(table, optLimit))
			assert.Equal(t, SourceFile, m.Source(table, optLimit))
		})
	}
}

func TestWatchStaticDeleted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "static.toml")
	require.NoError(t, WriteStaticFile(path, map[string]string{"tst.tst_service": "first"}))

	host := NewMemoryHost()
	m := newTestManager(t, host)
	opts := testWatchOptions()
	opts.DisableEvents = true
	w, err := m.WatchStatic(host, path, opts)
	require.NoError(t, err)
	defer w.Stop()

	changes := w.Subscribe()
	require.NoError(t, os.Remove(path))
	assert.Equal(t, EventFileDeleted, waitFor(t, changes, 2*time.Second))

	v, ok := host.Static("tst.tst_service")
	assert.True(t, ok, "static values survive file deletion")
	assert.Equal(t, "first", v)
}

func TestWatchStaticPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not supported")
	}
	path := filepath.Join(t.TempDir(), "static.toml")
	require.NoError(t, WriteStaticFile(path, map[string]string{"tst.tst_service": "first"}))

	host := NewMemoryHost()
	m := newTestManager(t, host)
	opts := testWatchOptions()
	opts.DisableEvents = true
	opts.VerifyPermissions = true
	w, err := m.WatchStatic(host, path, opts)
	require.NoError(t, err)
	defer w.Stop()

	changes := w.Subscribe()
	require.NoError(t, os.Chmod(path, 0666))
	assert.Equal(t, EventPermissionsChanged, waitFor(t, changes, 2*time.Second))

	// The mode change is reported once and later edits still reload.
	time.Sleep(3 * opts.PollInterval)
	require.NoError(t, os.WriteFile(path, []byte("[tst]\ntst_service = \"second\"\n"), 0666))
	assert.Equal(t, "tst.tst_service", waitFor(t, changes, 2*time.Second+debounceSettleMultiplier*opts.Debounce))

	v, _ := host.Static("tst.tst_service")
	assert.Equal(t, "second", v)
}

func TestWatchStaticErrors(t *testing.T) {
	t.Run("Missing File", func(t *testing.T) {
		host := NewMemoryHost()
		m := newTestManager(t, host)
		_, err := m.WatchStatic(host, filepath.Join(t.TempDir(), "none.toml"), testWatchOptions())
		assert.ErrorIs(t, err, ErrStaticNotFound)
	})

	t.Run("Not Initialized", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "static.toml")
		require.NoError(t, WriteStaticFile(path, map[string]string{"a": "1"}))
		_, err := New(NewRegistry()).WatchStatic(NewMemoryHost(), path, testWatchOptions())
		assert.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("Reload Error Reported", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "static.toml")
		require.NoError(t, WriteStaticFile(path, map[string]string{"tst.tst_service": "first"}))
		host := NewMemoryHost()
		m := newTestManager(t, host)
		opts := testWatchOptions()
		opts.DisableEvents = true
		w, err := m.WatchStatic(host, path, opts)
		require.NoError(t, err)
		defer w.Stop()

		changes := w.Subscribe()
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, os.WriteFile(path, []byte("broken = = toml"), 0644))

		msg := waitFor(t, changes, 2*time.Second)
		assert.Contains(t, msg, EventReloadErrorPrefix)
		v, _ := host.Static("tst.tst_service")
		assert.Equal(t, "first", v)
	})
}

func TestWatcherSubscribers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "static.toml")
	require.NoError(t, WriteStaticFile(path, map[string]string{"a": "1"}))

	host := NewMemoryHost()
	m := newTestManager(t, host)
	opts := testWatchOptions()
	opts.MaxWatchers = 2
	w, err := m.WatchStatic(host, path, opts)
	require.NoError(t, err)

	first := w.Subscribe()
	w.Subscribe()
	assert.Equal(t, 2, w.SubscriberCount())

	_, ok := <-w.Subscribe()
	assert.False(t, ok, "subscription beyond the limit is closed")

	w.Stop()
	assert.Eventually(t, func() bool { return !w.IsWatching() }, time.Second, SpinWaitInterval)

	select {
	case _, ok := <-first:
		assert.False(t, ok, "stop closes subscriber channels")
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed after stop")
	}
	assert.Eventually(t, func() bool { return w.SubscriberCount() == 0 }, time.Second, SpinWaitInterval)
}
