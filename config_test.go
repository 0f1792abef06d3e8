// FILE: lixenwraith/iniconf/config_test.go
package iniconf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModule = 7

// Option IDs used by newTestManager.
const (
	optTrace ID = iota
	optService
	optWorkers
	optLimit
)

// testOptions declares a bool with two aliases, a string, a system-only int
// and an int guarded by a change hook.
func testOptions() []Option {
	return []Option{
		{ID: optTrace, Names: []string{"TST_TRACE_ENABLED", "TST_TRACE"}, Type: TypeBool, Default: "true"},
		{ID: optService, Names: []string{"TST_SERVICE", "TST_SERVICE_NAME"}, Type: TypeString, Default: "web"},
		{ID: optWorkers, Names: []string{"TST_WORKERS"}, Type: TypeInt, Default: "2", System: true},
		{
			ID: optLimit, Names: []string{"TST_LIMIT"}, Type: TypeInt, Default: "10",
			IniChange: func(old, new any) bool { return new.(int64) <= 100 },
		},
	}
}

func newTestManager(t *testing.T, host *MemoryHost, mopts ...ManagerOption) *Manager {
	t.Helper()
	r := NewRegistry()
	for _, opt := range testOptions() {
		require.NoError(t, r.Register(opt))
	}
	m := New(r, mopts...)
	require.NoError(t, m.ModuleInit(host, PrefixMapper("tst"), testModule))
	return m
}

// startRequest finishes startup if needed and runs RequestInit on a new worker table.
func startRequest(t *testing.T, m *Manager, host *MemoryHost) *Table {
	t.Helper()
	if host.InStartup() {
		host.FinishStartup()
	}
	table := host.StartThread()
	require.NoError(t, m.RequestInit(table))
	return table
}

func TestModuleInit(t *testing.T) {
	t.Run("Creates One Directive Per Alias", func(t *testing.T) {
		host := NewMemoryHost()
		m := newTestManager(t, host)

		assert.Equal(t, []string{
			"tst.tst_limit",
			"tst.tst_service",
			"tst.tst_service_name",
			"tst.tst_trace",
			"tst.tst_trace_enabled",
			"tst.tst_workers",
		}, host.Template().Names())

		name, ok := m.DirectiveName(optService, 1)
		require.True(t, ok)
		assert.Equal(t, "tst.tst_service_name", name)

		id, ok := m.Lookup("tst.tst_trace")
		require.True(t, ok)
		assert.Equal(t, optTrace, id)

		d := host.Template().Find("tst.tst_workers")
		require.NotNil(t, d)
		assert.Equal(t, AccessSystem, d.Access)
		assert.Equal(t, testModule, d.Module)
		assert.Equal(t, "On", host.Template().Find("tst.tst_trace").String())
	})

	t.Run("Twice", func(t *testing.T) {
		host := NewMemoryHost()
		m := newTestManager(t, host)
		assert.Error(t, m.ModuleInit(host, PrefixMapper("tst"), testModule))
	})

	t.Run("Registry Frozen", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Option{ID: 0, Names: []string{"TST_A"}}))
		m := New(r)
		require.NoError(t, m.ModuleInit(NewMemoryHost(), PrefixMapper(""), testModule))
		assert.Error(t, r.Register(Option{ID: 1, Names: []string{"TST_B"}}))
	})

	t.Run("Schema Error Logged", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Option{ID: 0, Names: []string{"TST_A"}}))
		host := NewMemoryHost()
		m := New(r)
		require.NoError(t, m.ModuleInit(host, func(string) string { return "" }, testModule))
		assert.Equal(t, 0, host.Template().Len())
	})

	t.Run("Schema Error Panics In Debug", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Option{ID: 0, Names: []string{"TST_A"}}))
		m := New(r, WithSettings(Settings{Debug: true}))
		assert.Panics(t, func() {
			_ = m.ModuleInit(NewMemoryHost(), func(string) string { return "bad name" }, testModule)
		})
	})

	t.Run("Hook Option Must Be String", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Option{ID: 0, Names: []string{"TST_N"}, Type: TypeInt, Default: "1"}))
		m := New(r, WithRequestInitHook(0))
		assert.Error(t, m.ModuleInit(NewMemoryHost(), PrefixMapper(""), testModule))
	})
}

func TestLifecycleState(t *testing.T) {
	host := NewMemoryHost()
	m := New(NewRegistry())
	table := host.StartThread()

	assert.Equal(t, StateUninitialized, m.State(table))
	assert.ErrorIs(t, m.RequestInit(table), ErrNotInitialized)
	assert.ErrorIs(t, m.Reconcile(), ErrNotInitialized)

	require.NoError(t, m.ModuleInit(host, PrefixMapper(""), testModule))
	assert.Equal(t, StateModuleReady, m.State(table))

	host.FinishStartup()
	require.NoError(t, m.RequestInit(table))
	assert.Equal(t, StateRequestReady, m.State(table))
	assert.Equal(t, "request-ready", m.State(table).String())

	m.RequestShutdown(table)
	assert.Equal(t, StateModuleReady, m.State(table))
}

func TestResolutionPrecedence(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		host := NewMemoryHost()
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		assert.Equal(t, true, m.Get(table, optTrace))
		assert.Equal(t, "web", m.Get(table, optService))
		assert.Equal(t, SourceDefault, m.Source(table, optTrace))
		assert.False(t, m.IsModified(table, optTrace))
		assert.Nil(t, m.Get(table, 99))
	})

	t.Run("First Alias Wins", func(t *testing.T) {
		t.Setenv("TST_TRACE_ENABLED", "0")
		t.Setenv("TST_TRACE", "1")

		host := NewMemoryHost()
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		assert.Equal(t, false, m.Get(table, optTrace))
		assert.Equal(t, SourceEnv, m.Source(table, optTrace))
		assert.Equal(t, "0", table.Find("tst.tst_trace_enabled").Value)
		assert.Equal(t, "0", table.Find("tst.tst_trace").Value, "every alias shows the winning value")
		assert.True(t, m.IsModified(table, optTrace))
	})

	t.Run("Second Alias", func(t *testing.T) {
		t.Setenv("TST_SERVICE_NAME", "billing")

		host := NewMemoryHost()
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		assert.Equal(t, "billing", m.Get(table, optService))
		assert.Equal(t, "billing", table.Find("tst.tst_service").Value)
	})

	t.Run("Static File", func(t *testing.T) {
		host := NewMemoryHost(WithStaticValues(map[string]string{"tst.tst_service": "static"}))
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		assert.Equal(t, "static", m.Get(table, optService))
		assert.Equal(t, SourceFile, m.Source(table, optService))
		assert.Equal(t, "static", table.Find("tst.tst_service_name").Value, "static value mirrored to every alias")
		assert.True(t, m.IsModified(table, optService))
	})

	t.Run("Environment Beats Static", func(t *testing.T) {
		t.Setenv("TST_SERVICE_NAME", "env")

		host := NewMemoryHost(WithStaticValues(map[string]string{"tst.tst_service": "static"}))
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		assert.Equal(t, "env", m.Get(table, optService))
		assert.Equal(t, SourceEnv, m.Source(table, optService))
		assert.Equal(t, "static", table.Find("tst.tst_service").Base(), "base text keeps the static value")
	})

	t.Run("System Stage Beats Static", func(t *testing.T) {
		host := NewMemoryHost(WithStaticValues(map[string]string{"tst.tst_service": "static"}))
		m := newTestManager(t, host)
		require.NoError(t, host.Alter(host.Template(), "tst.tst_service_name", "perdir", AccessSystem, StageActivate))

		table := startRequest(t, m, host)
		assert.Equal(t, "perdir", m.Get(table, optService))
		assert.Equal(t, SourceRuntime, m.Source(table, optService))
		assert.Equal(t, "perdir", table.Find("tst.tst_service").Value)
	})

	t.Run("Environment Beats System Stage", func(t *testing.T) {
		t.Setenv("TST_SERVICE", "env")

		host := NewMemoryHost()
		m := newTestManager(t, host)
		require.NoError(t, host.Alter(host.Template(), "tst.tst_service_name", "perdir", AccessSystem, StageActivate))

		table := startRequest(t, m, host)
		assert.Equal(t, "env", m.Get(table, optService))
	})

	t.Run("Undecodable Environment Ignored", func(t *testing.T) {
		t.Setenv("TST_TRACE_ENABLED", "maybe")
		t.Setenv("TST_LIMIT", "lots")

		host := NewMemoryHost()
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		assert.Equal(t, true, m.Get(table, optTrace))
		assert.Equal(t, int64(10), m.Get(table, optLimit))
		assert.Equal(t, "true", table.Find("tst.tst_trace_enabled").Value)
		assert.False(t, m.IsModified(table, optLimit))
	})

	t.Run("Undecodable Alias Falls Through", func(t *testing.T) {
		t.Setenv("TST_TRACE_ENABLED", "maybe")
		t.Setenv("TST_TRACE", "off")

		host := NewMemoryHost()
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		assert.Equal(t, false, m.Get(table, optTrace))
	})

	t.Run("Too Long Environment Value Absent", func(t *testing.T) {
		t.Setenv("TST_SERVICE", "a-service-name-longer-than-sixteen")

		host := NewMemoryHost()
		m := newTestManager(t, host, WithSettings(Settings{EnvMaxBufSize: 16}))
		table := startRequest(t, m, host)

		assert.Equal(t, "web", m.Get(table, optService))
	})

	t.Run("Host Environment", func(t *testing.T) {
		host := NewMemoryHost(WithHostEnv(map[string]string{"TST_SERVICE": "pool"}))
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		assert.Equal(t, "pool", m.Get(table, optService))
	})
}

func TestFPMDetection(t *testing.T) {
	for _, sapi := range []string{SAPIFPM, "cli"} {
		t.Run(sapi, func(t *testing.T) {
			host := NewMemoryHost(WithSAPI(sapi))
			m := newTestManager(t, host)
			// Pool configuration writes directive text without marking it modified.
			host.Template().Find("tst.tst_service").Value = "pool"

			table := startRequest(t, m, host)
			if sapi == SAPIFPM {
				assert.Equal(t, "pool", m.Get(table, optService))
				assert.Equal(t, SourceFPM, m.Source(table, optService))
				assert.True(t, m.IsModified(table, optService))
				assert.Equal(t, "pool", table.Find("tst.tst_service_name").Value)
			} else {
				assert.Equal(t, "web", m.Get(table, optService))
				assert.Equal(t, "web", table.Find("tst.tst_service").Value)
			}
		})
	}

	t.Run("Settings Override", func(t *testing.T) {
		host := NewMemoryHost()
		m := newTestManager(t, host, WithSettings(Settings{SAPI: SAPIFPM}))
		host.Template().Find("tst.tst_service").Value = "pool"

		table := startRequest(t, m, host)
		assert.Equal(t, "pool", m.Get(table, optService))
	})
}

func TestRuntimeChanges(t *testing.T) {
	t.Run("Mirrors Every Alias", func(t *testing.T) {
		host := NewMemoryHost(WithThreads())
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		require.NoError(t, host.Alter(table, "tst.tst_trace", "off", AccessUser, StageRuntime))
		assert.Equal(t, false, m.Get(table, optTrace))
		assert.Equal(t, SourceRuntime, m.Source(table, optTrace))
		assert.Equal(t, "off", table.Find("tst.tst_trace_enabled").Value)
		assert.True(t, m.IsModified(table, optTrace))
		assert.Equal(t, "true", host.Template().Find("tst.tst_trace_enabled").Value, "template untouched")
	})

	t.Run("Set Then Reset", func(t *testing.T) {
		host := NewMemoryHost(WithThreads())
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		require.NoError(t, host.Alter(table, "tst.tst_service", "billing", AccessUser, StageRuntime))
		require.True(t, m.IsModified(table, optService))

		require.NoError(t, host.Alter(table, "tst.tst_service", "web", AccessUser, StageRuntime))
		assert.False(t, m.IsModified(table, optService))
		assert.Equal(t, "web", m.Get(table, optService))
		assert.Equal(t, SourceDefault, m.Source(table, optService))
		for _, name := range []string{"tst.tst_service", "tst.tst_service_name"} {
			d := table.Find(name)
			assert.Equal(t, "web", d.Value, name)
			assert.False(t, d.Modified, name)
		}
	})

	t.Run("Restored At Request End", func(t *testing.T) {
		host := NewMemoryHost(WithThreads())
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		require.NoError(t, host.Alter(table, "tst.tst_service_name", "billing", AccessUser, StageRuntime))
		m.RequestShutdown(table)
		host.Deactivate(table)

		assert.Equal(t, "web", table.Find("tst.tst_service").Value)
		assert.Equal(t, "web", table.Find("tst.tst_service_name").Value)

		require.NoError(t, m.RequestInit(table))
		assert.Equal(t, "web", m.Get(table, optService))
		assert.False(t, m.IsModified(table, optService))
	})

	t.Run("Undecodable Rejected", func(t *testing.T) {
		host := NewMemoryHost(WithThreads())
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		err := host.Alter(table, "tst.tst_limit", "many", AccessUser, StageRuntime)
		assert.ErrorIs(t, err, ErrDecode)
		assert.Equal(t, int64(10), m.Get(table, optLimit))
		assert.Equal(t, "10", table.Find("tst.tst_limit").Value)
		assert.False(t, table.Find("tst.tst_limit").Modified)
	})

	t.Run("Change Hook Veto", func(t *testing.T) {
		host := NewMemoryHost(WithThreads())
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		err := host.Alter(table, "tst.tst_limit", "500", AccessUser, StageRuntime)
		assert.ErrorIs(t, err, ErrRejected)
		assert.Equal(t, int64(10), m.Get(table, optLimit))

		require.NoError(t, host.Alter(table, "tst.tst_limit", "50", AccessUser, StageRuntime))
		assert.Equal(t, int64(50), m.Get(table, optLimit))
	})

	t.Run("System Only", func(t *testing.T) {
		host := NewMemoryHost(WithThreads())
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		err := host.Alter(table, "tst.tst_workers", "4", AccessUser, StageRuntime)
		assert.ErrorIs(t, err, ErrAccessDenied)

		err = host.Alter(table, "tst.tst_workers", "4", AccessSystem, StageRuntime)
		assert.ErrorIs(t, err, ErrSystemOnly)
		assert.Equal(t, int64(2), m.Get(table, optWorkers))
	})

	t.Run("Unknown Directive", func(t *testing.T) {
		host := NewMemoryHost()
		m := newTestManager(t, host)
		table := startRequest(t, m, host)

		d := &Directive{Name: "tst.other"}
		assert.ErrorIs(t, m.onModify(table, d, "x", StageRuntime), ErrUnknownDirective)
	})
}

func TestSystemOptionFixedAtFirstRequest(t *testing.T) {
	t.Setenv("TST_WORKERS", "8")

	host := NewMemoryHost(WithThreads())
	m := newTestManager(t, host)
	table := startRequest(t, m, host)
	assert.Equal(t, int64(8), m.Get(table, optWorkers))
	assert.Equal(t, SourceEnv, m.Source(table, optWorkers))

	t.Setenv("TST_WORKERS", "16")
	require.NoError(t, m.RequestInit(host.StartThread()))
	require.NoError(t, m.RequestInit(table))
	assert.Equal(t, int64(8), m.Get(table, optWorkers))
}

func TestRequestInitIdempotent(t *testing.T) {
	t.Setenv("TST_SERVICE", "env")

	host := NewMemoryHost(WithThreads())
	m := newTestManager(t, host)
	table := startRequest(t, m, host)

	first := map[ID]any{}
	for id := optTrace; id <= optLimit; id++ {
		first[id] = m.Get(table, id)
	}
	require.NoError(t, m.RequestInit(table))
	for id := optTrace; id <= optLimit; id++ {
		assert.Equal(t, first[id], m.Get(table, id))
	}
	assert.Equal(t, []string{"tst.tst_service", "tst.tst_service_name"}, table.ModifiedNames())
}

func TestStartupRequestSkipsReconciliation(t *testing.T) {
	t.Setenv("TST_SERVICE", "env")

	host := NewMemoryHost()
	m := newTestManager(t, host)

	require.NoError(t, m.RequestInit(host.Template()))
	assert.False(t, m.reconciled.Load())
	assert.Equal(t, "env", m.Get(host.Template(), optService))
	assert.Equal(t, "web", host.Template().Find("tst.tst_service_name").Base())
}

func TestChainedHostHook(t *testing.T) {
	host := NewMemoryHost(WithThreads())
	var calls int
	var veto bool
	require.NoError(t, host.Register(DirectiveDef{
		Name:   "tst.tst_service",
		Value:  "legacy",
		Access: AccessAll,
		OnModify: func(t *Table, d *Directive, value string, stage Stage) error {
			calls++
			if veto {
				return errors.New("legacy hook refused")
			}
			return nil
		},
	}, 1))
	require.Equal(t, 1, calls)

	m := newTestManager(t, host)
	assert.Equal(t, "legacy", m.Get(nil, optService), "existing directive value decoded at init")
	calls = 0

	table := startRequest(t, m, host)
	assert.Equal(t, "legacy", m.Get(table, optService))

	require.NoError(t, host.Alter(table, "tst.tst_service", "billing", AccessUser, StageRuntime))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "billing", m.Get(table, optService))
	assert.Equal(t, "billing", table.Find("tst.tst_service_name").Value)

	veto = true
	err := host.Alter(table, "tst.tst_service", "orders", AccessUser, StageRuntime)
	assert.Error(t, err)
	assert.Equal(t, "billing", m.Get(table, optService))
}

func TestPassThrough(t *testing.T) {
	t.Setenv("TST_SERVICE_NAME", "env")
	t.Setenv("TST_LIMIT", "nope")

	r := NewRegistry()
	for _, opt := range testOptions() {
		require.NoError(t, r.Register(opt))
	}
	host := NewMemoryHost()
	m := New(r)
	require.NoError(t, m.ModuleInit(host, nil, testModule))
	assert.Equal(t, 0, host.Template().Len())
	require.NoError(t, m.Reconcile())

	table := startRequest(t, m, host)
	assert.Equal(t, "env", m.Get(table, optService))
	assert.Equal(t, SourceEnv, m.Source(table, optService))
	assert.True(t, m.IsModified(table, optService))
	assert.Equal(t, int64(10), m.Get(table, optLimit))
	assert.False(t, m.IsModified(table, optLimit))
	_, ok := m.DirectiveName(optService, 0)
	assert.False(t, ok)
}

func TestReconcileAfterStaticChange(t *testing.T) {
	host := NewMemoryHost(WithThreads())
	m := newTestManager(t, host)
	table := startRequest(t, m, host)
	require.Equal(t, "web", m.Get(table, optService))
	m.RequestShutdown(table)
	host.Deactivate(table)

	host.SetStatic("tst.tst_service_name", "reloaded")
	require.NoError(t, m.Reconcile())

	require.NoError(t, m.RequestInit(table))
	assert.Equal(t, "reloaded", m.Get(table, optService))
	assert.Equal(t, SourceFile, m.Source(table, optService))
	assert.Equal(t, "reloaded", table.Find("tst.tst_service").Value, "worker table re-synced")
	assert.Equal(t, "reloaded", host.Template().Find("tst.tst_service").Value)
}

func TestReconcileDropsStaleOverride(t *testing.T) {
	t.Setenv("TST_SERVICE", "env")

	host := NewMemoryHost()
	m := newTestManager(t, host)
	host.FinishStartup()
	require.NoError(t, m.Reconcile())
	require.Equal(t, "env", m.Get(nil, optService))

	require.NoError(t, os.Unsetenv("TST_SERVICE"))
	require.NoError(t, m.Reconcile())

	assert.Equal(t, "web", m.Get(nil, optService))
	assert.Equal(t, SourceDefault, m.Source(nil, optService))
	d := host.Template().Find("tst.tst_service")
	assert.Equal(t, "web", d.Value)
	assert.False(t, d.Modified)
}

func TestReconcileKeepsSystemStageOverride(t *testing.T) {
	t.Setenv("TST_SERVICE", "env")

	host := NewMemoryHost()
	m := newTestManager(t, host)
	require.NoError(t, host.Alter(host.Template(), "tst.tst_service", "perdir", AccessSystem, StageActivate))
	host.FinishStartup()
	require.NoError(t, m.Reconcile())
	require.Equal(t, "env", m.Get(nil, optService))

	require.NoError(t, os.Unsetenv("TST_SERVICE"))
	require.NoError(t, m.Reconcile())
	assert.Equal(t, "perdir", m.Get(nil, optService))
	assert.Equal(t, SourceRuntime, m.Source(nil, optService))
}

func TestReconcileFollowsLaterSystemStageChange(t *testing.T) {
	host := NewMemoryHost(WithThreads())
	m := newTestManager(t, host)
	host.FinishStartup()
	template := host.Template()

	require.NoError(t, host.Alter(template, "tst.tst_service", "first", AccessSystem, StageActivate))
	require.NoError(t, m.Reconcile())
	require.Equal(t, "first", m.Get(nil, optService))

	require.NoError(t, host.Alter(template, "tst.tst_service", "second", AccessSystem, StageActivate))
	require.NoError(t, m.Reconcile())
	assert.Equal(t, "second", m.Get(nil, optService))
	assert.Equal(t, SourceRuntime, m.Source(nil, optService))
	assert.Equal(t, "second", template.Find("tst.tst_service").Value, "host change is not overwritten")
	assert.Equal(t, "second", template.Find("tst.tst_service_name").Value)

	t.Run("Other Alias", func(t *testing.T) {
		require.NoError(t, host.Alter(template, "tst.tst_service_name", "third", AccessSystem, StageActivate))
		require.NoError(t, m.Reconcile())
		assert.Equal(t, "third", m.Get(nil, optService))
		assert.Equal(t, "third", template.Find("tst.tst_service").Value)
	})

	t.Run("Workers Pick Up The Change", func(t *testing.T) {
		table := startRequest(t, m, host)
		assert.Equal(t, "third", m.Get(table, optService))
	})

	t.Run("Stable Without Changes", func(t *testing.T) {
		require.NoError(t, m.Reconcile())
		assert.Equal(t, "third", m.Get(nil, optService))
		assert.Equal(t, "third", template.Find("tst.tst_service").Value)
	})
}

func TestThreadedWorkers(t *testing.T) {
	t.Setenv("TST_SERVICE", "env")

	host := NewMemoryHost(WithThreads())
	m := newTestManager(t, host)
	host.FinishStartup()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			table := host.StartThread()
			for req := 0; req < 5; req++ {
				if err := m.RequestInit(table); err != nil {
					errs <- err
					return
				}
				limit := fmt.Sprintf("%d", worker)
				if err := host.Alter(table, "tst.tst_limit", limit, AccessUser, StageRuntime); err != nil {
					errs <- err
					return
				}
				if got := m.Get(table, optLimit); got != int64(worker) {
					errs <- fmt.Errorf("worker %d saw limit %v", worker, got)
				}
				if got := m.Get(table, optService); got != "env" {
					errs <- fmt.Errorf("worker %d saw service %v", worker, got)
				}
				m.RequestShutdown(table)
				host.Deactivate(table)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, "10", host.Template().Find("tst.tst_limit").Value)
}

func TestModuleShutdownRestoresThreadHandler(t *testing.T) {
	host := NewMemoryHost(WithThreads())
	var started int
	host.SetThreadStartHandler(func(t *Table) {
		started++
		t.CopyFrom(host.Template())
	})
	m := newTestManager(t, host)

	table := host.StartThread()
	assert.Equal(t, 1, started, "handler found at init is chained")
	assert.Equal(t, host.Template().Len(), table.Len())

	m.ModuleShutdown()
	table = host.StartThread()
	assert.Equal(t, 2, started)
	assert.Equal(t, host.Template().Len(), table.Len())
}

func TestRequestInitHook(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "prepend.php")
	require.NoError(t, os.WriteFile(script, []byte("<?php\n"), 0644))

	build := func(t *testing.T, opts ...HostOption) (*Manager, *MemoryHost) {
		r := NewRegistry()
		require.NoError(t, r.Register(Option{ID: 0, Names: []string{"TST_REQUEST_INIT_HOOK"}}))
		host := NewMemoryHost(append([]HostOption{WithThreads()}, opts...)...)
		m := New(r, WithRequestInitHook(0))
		require.NoError(t, m.ModuleInit(host, PrefixMapper("tst"), testModule))
		host.Template().SetAutoPrependFile("original.php")
		return m, host
	}

	t.Run("Swapped And Restored", func(t *testing.T) {
		t.Setenv("TST_REQUEST_INIT_HOOK", script)
		m, host := build(t)
		table := startRequest(t, m, host)

		assert.Equal(t, script, table.AutoPrependFile())
		m.RequestShutdown(table)
		assert.Equal(t, "original.php", table.AutoPrependFile())
	})

	t.Run("Outside Open Basedir", func(t *testing.T) {
		t.Setenv("TST_REQUEST_INIT_HOOK", script)
		m, host := build(t, WithOpenBasedir(filepath.Join(dir, "elsewhere")))
		table := startRequest(t, m, host)

		assert.Equal(t, "original.php", table.AutoPrependFile())
		m.RequestShutdown(table)
		assert.Equal(t, "original.php", table.AutoPrependFile())
	})

	t.Run("Missing File", func(t *testing.T) {
		t.Setenv("TST_REQUEST_INIT_HOOK", filepath.Join(dir, "missing.php"))
		m, host := build(t, WithOpenBasedir(dir))
		table := startRequest(t, m, host)

		assert.Equal(t, "original.php", table.AutoPrependFile())
	})

	t.Run("No Hook Configured", func(t *testing.T) {
		m, host := build(t)
		table := startRequest(t, m, host)
		assert.Equal(t, "original.php", table.AutoPrependFile())
	})
}
