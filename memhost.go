// FILE: lixenwraith/iniconf/memhost.go
package iniconf

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// SAPIFPM is the front end that cannot report whether a directive was set explicitly.
const SAPIFPM = "fpm-fcgi"

// HostOption configures a MemoryHost.
type HostOption func(*MemoryHost)

// WithSAPI sets the reported front end name.
func WithSAPI(name string) HostOption {
	return func(h *MemoryHost) {
		h.sapi = name
	}
}

// WithThreads gives every worker a private copy of the template table.
func WithThreads() HostOption {
	return func(h *MemoryHost) {
		h.threaded = true
	}
}

// WithStaticValues preloads static configuration values keyed by directive name.
func WithStaticValues(values map[string]string) HostOption {
	return func(h *MemoryHost) {
		for k, v := range values {
			h.static[k] = v
		}
	}
}

// WithHostEnv sets environment values served by the host before the process environment.
func WithHostEnv(values map[string]string) HostOption {
	return func(h *MemoryHost) {
		for k, v := range values {
			h.env[k] = v
		}
	}
}

// WithOpenBasedir restricts script paths to the given directories.
func WithOpenBasedir(dirs ...string) HostOption {
	return func(h *MemoryHost) {
		h.basedir = append(h.basedir, dirs...)
	}
}

// MemoryHost is an in-process Host implementation backed by plain tables.
type MemoryHost struct {
	mu          sync.RWMutex // protects static, env, threadStart and staticPath
	sapi        string
	threaded    bool
	template    *Table
	static      map[string]string
	env         map[string]string
	basedir     []string
	staticPath  string
	threadStart ThreadStartFunc
	startup     atomic.Bool
	initialized atomic.Bool
}

// NewMemoryHost creates a host in the startup phase.
func NewMemoryHost(opts ...HostOption) *MemoryHost {
	h := &MemoryHost{
		sapi:     "cli",
		template: NewTable(),
		static:   make(map[string]string),
		env:      make(map[string]string),
	}
	h.threadStart = func(t *Table) {
		t.CopyFrom(h.template)
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startup.Store(true)
	return h
}

func (h *MemoryHost) SAPI() string     { return h.sapi }
func (h *MemoryHost) Threaded() bool   { return h.threaded }
func (h *MemoryHost) Template() *Table { return h.template }

// Register adds a directive to the template. A value present in the static
// configuration replaces the default if the update hook accepts it.
func (h *MemoryHost) Register(def DirectiveDef, module int) error {
	if def.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	d := &Directive{
		Name:     def.Name,
		Value:    def.Value,
		Access:   def.Access,
		OnModify: def.OnModify,
		Module:   module,
		Display:  def.Display,
	}

	if static, ok := h.Static(def.Name); ok {
		if d.OnModify == nil || d.OnModify(h.template, d, static, StageStartup) == nil {
			d.Value = static
		}
	} else if d.OnModify != nil {
		_ = d.OnModify(h.template, d, d.Value, StageStartup)
	}

	if !h.template.add(d) {
		return fmt.Errorf("directive %q already registered", def.Name)
	}
	return nil
}

// Static returns the static configuration value for name.
func (h *MemoryHost) Static(name string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.static[name]
	return v, ok
}

// SetStatic sets a static configuration value.
func (h *MemoryHost) SetStatic(name, value string) {
	h.mu.Lock()
	h.static[name] = value
	h.mu.Unlock()
}

// StaticValues returns a copy of the static configuration.
func (h *MemoryHost) StaticValues() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.static))
	for k, v := range h.static {
		out[k] = v
	}
	return out
}

// Getenv returns a host-provided environment value.
func (h *MemoryHost) Getenv(name string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.env[name]
	return v, ok
}

// Alter changes a directive in t. The previous state is recorded in t's
// modified-directives bookkeeping; setting a directive back to its original
// text clears the override.
func (h *MemoryHost) Alter(t *Table, name, value string, access Access, stage Stage) error {
	d := t.Find(name)
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDirective, name)
	}
	if d.Access&access == 0 {
		return fmt.Errorf("%w: %s", ErrAccessDenied, name)
	}

	// Only runtime changes are undone when a request ends.
	registered := stage == StageRuntime && t.MarkModified(d)
	if !d.Modified {
		d.OrigValue = d.Value
		d.OrigAccess = d.Access
		d.Modified = true
	}

	if d.OnModify != nil {
		if err := d.OnModify(t, d, value, stage); err != nil {
			if registered {
				t.Restore(d)
			} else if d.Value == d.OrigValue {
				d.Modified = false
				d.OrigValue = ""
			}
			return err
		}
	}

	d.Value = value
	d.Stage = stage
	if value == d.OrigValue {
		d.Modified = false
		d.OrigValue = ""
	}
	return nil
}

// Restore resets a directive to its value from before the current request.
func (h *MemoryHost) Restore(t *Table, name string) error {
	d := t.Find(name)
	if d == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDirective, name)
	}
	if !t.IsTracked(name) {
		return nil
	}
	if d.Modified && d.OnModify != nil {
		if err := d.OnModify(t, d, d.OrigValue, StageRuntime); err != nil {
			return err
		}
	}
	t.Restore(d)
	return nil
}

// Deactivate ends a request on t, restoring every directive modified during it.
func (h *MemoryHost) Deactivate(t *Table) {
	for _, name := range t.ModifiedNames() {
		d := t.Find(name)
		if d == nil {
			continue
		}
		if d.OnModify != nil && d.Modified {
			_ = d.OnModify(t, d, d.OrigValue, StageDeactivate)
		}
		t.Restore(d)
	}
}

func (h *MemoryHost) InStartup() bool         { return h.startup.Load() }
func (h *MemoryHost) ModuleInitialized() bool { return h.initialized.Load() }

// MarkModulesInitialized records that every module init hook has run.
func (h *MemoryHost) MarkModulesInitialized() {
	h.initialized.Store(true)
}

// FinishStartup ends the startup phase; requests after this are regular requests.
func (h *MemoryHost) FinishStartup() {
	h.initialized.Store(true)
	h.startup.Store(false)
}

// SetThreadStartHandler installs fn and returns the previous handler.
func (h *MemoryHost) SetThreadStartHandler(fn ThreadStartFunc) ThreadStartFunc {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.threadStart
	h.threadStart = fn
	return prev
}

// StartThread returns the directive table of a new worker. Unthreaded hosts
// share the template.
func (h *MemoryHost) StartThread() *Table {
	if !h.threaded {
		return h.template
	}
	h.mu.RLock()
	start := h.threadStart
	h.mu.RUnlock()

	t := NewTable()
	start(t)
	return t
}

// CheckOpenBasedir rejects paths outside the configured directories.
func (h *MemoryHost) CheckOpenBasedir(path string) error {
	if len(h.basedir) == 0 {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAccessDenied, path, err)
	}
	for _, dir := range h.basedir {
		dir = filepath.Clean(dir)
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: open_basedir restriction in effect for %s", ErrAccessDenied, path)
}
