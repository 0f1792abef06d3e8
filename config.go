// FILE: lixenwraith/iniconf/config.go
package iniconf

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle position of the subsystem as seen by one worker.
type State int32

const (
	StateUninitialized State = iota
	StateModuleReady
	StateRequestReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateModuleReady:
		return "module-ready"
	case StateRequestReady:
		return "request-ready"
	}
	return "unknown"
}

// NameMapper maps an option alias to the host directive name.
// An empty result is a packaging defect.
type NameMapper func(alias string) string

// PrefixMapper maps an alias to its lowercase form under prefix, e.g.
// "APP_WORKERS" to "app.app_workers" with prefix "app".
func PrefixMapper(prefix string) NameMapper {
	return func(alias string) string {
		name := strings.ToLower(alias)
		if prefix == "" {
			return name
		}
		return prefix + "." + name
	}
}

// binding ties one alias to its environment name and directive.
type binding struct {
	env    string
	name   string     // directive name, empty when the alias has no directive
	global *Directive // handle into the template table
}

// entry is the descriptor of one option.
type entry struct {
	opt          Option
	defaultValue any
	decoded      any          // resolved value, guarded by Manager.initLock
	previous     OnModifyFunc // host hook found on a pre-existing directive
	bindings     []binding
	nameIndex    int        // alias that supplied a static/FPM value, -1 if none
	source       Source     // tier of the reconciled value
	baseSource   Source     // tier of the base text
	carried      *candidate // runtime-carried value seen by reconciliation
	ownOverride  bool       // template directives carry an override written by reconciliation
	written      string     // override text written by the last reconciliation
}

// threadState is the per-worker runtime configuration.
type threadState struct {
	id             uuid.UUID
	values         []any
	sources        []Source
	overridden     []bool
	generation     uint64
	buf            *EnvBuffer
	inRequest      bool
	prependBackup  string
	prependSwapped bool
}

// Manager owns the option descriptors and drives resolution for every worker.
// One Manager exists per process; it is built once and never reallocated.
type Manager struct {
	registry *Registry
	settings Settings
	logger   zerolog.Logger

	host            Host
	mapper          NameMapper
	module          int
	fpm             bool
	env             *EnvReader
	entries         []*entry
	byName          map[string]ID // written during ModuleInit only
	hookOption      ID
	prevThreadStart ThreadStartFunc

	// initLock orders template copies against directive creation and reconciliation.
	initLock   sync.RWMutex
	reconciled atomic.Bool
	generation atomic.Uint64
	state      atomic.Int32
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSettings replaces the default settings.
func WithSettings(s Settings) ManagerOption {
	return func(m *Manager) {
		m.settings = s
	}
}

// WithRequestInitHook names the string option holding the script path that
// is swapped in as the auto-prepend file for each request.
func WithRequestInitHook(id ID) ManagerOption {
	return func(m *Manager) {
		m.hookOption = id
	}
}

// New creates a Manager over registry.
func New(registry *Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry:   registry,
		settings:   DefaultSettings(),
		logger:     zerolog.Nop(),
		byName:     make(map[string]ID),
		hookOption: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ModuleInit freezes the registry and creates a directive for every alias.
// A nil mapper disables directives; options then resolve from the
// environment and defaults only.
func (m *Manager) ModuleInit(host Host, mapper NameMapper, module int) error {
	if host == nil {
		return fmt.Errorf("module init requires a host")
	}
	if !m.state.CompareAndSwap(int32(StateUninitialized), int32(StateModuleReady)) {
		return fmt.Errorf("module already initialized")
	}

	m.host = host
	m.mapper = mapper
	m.module = module
	sapi := host.SAPI()
	if m.settings.SAPI != "" {
		sapi = m.settings.SAPI
	}
	m.fpm = sapi == SAPIFPM
	m.env = NewEnvReader(host.Getenv, m.settings.EnvMaxBufSize)

	options := m.registry.freeze()
	m.entries = make([]*entry, len(options))
	for i, opt := range options {
		def, err := decodeOption(opt, opt.Default, true)
		if err != nil {
			return fmt.Errorf("default of option %s: %w", opt.Names[0], err)
		}
		e := &entry{
			opt:          opt,
			defaultValue: def,
			decoded:      def,
			source:       SourceDefault,
			baseSource:   SourceDefault,
			bindings:     make([]binding, len(opt.Names)),
			nameIndex:    -1,
		}
		for n, alias := range opt.Names {
			e.bindings[n].env = alias
		}
		m.entries[i] = e
	}

	if m.hookOption >= 0 {
		if int(m.hookOption) >= len(m.entries) || m.entries[m.hookOption].opt.Type != TypeString {
			return fmt.Errorf("request init hook option %d must be a registered string option", m.hookOption)
		}
	}

	log := m.logger.With().Str("sapi", sapi).Int("module", module).Logger()
	if mapper == nil {
		log.Debug().Msg("No directive name mapper, resolving from environment only")
		return nil
	}

	m.initLock.Lock()
	for _, e := range m.entries {
		for n := range e.bindings {
			m.createDirective(e, n)
		}
		if !e.hasDirective() {
			m.schemaError(fmt.Errorf("%w: no directive could be created for option %s", ErrInvalidName, e.opt.Names[0]))
		}
	}
	m.initLock.Unlock()

	if host.Threaded() {
		m.prevThreadStart = host.SetThreadStartHandler(m.lockThreadStart)
	}

	log.Debug().Int("options", len(m.entries)).Int("directives", len(m.byName)).Bool("fpm", m.fpm).Msg("Directives created")
	return nil
}

// lockThreadStart wraps the host's template copy in the read side of initLock.
func (m *Manager) lockThreadStart(t *Table) {
	m.initLock.RLock()
	defer m.initLock.RUnlock()
	if m.prevThreadStart != nil {
		m.prevThreadStart(t)
	}
}

// RequestInit resolves every option for the worker owning t.
func (m *Manager) RequestInit(t *Table) error {
	if State(m.state.Load()) == StateUninitialized {
		return ErrNotInitialized
	}

	inStartup := m.host.InStartup()
	if m.mapper != nil && !inStartup {
		m.ensureReconciled()
	}

	st := m.thread(t)
	if st == nil {
		st = m.newThread(t)
	}
	if m.mapper != nil && !inStartup && t != m.host.Template() && st.generation != m.generation.Load() {
		m.syncThread(t, st)
	}

	m.initLock.RLock()
	for i, e := range m.entries {
		st.values[i] = e.decoded
		st.sources[i] = e.source
		st.overridden[i] = false
	}
	m.initLock.RUnlock()

	for _, e := range m.entries {
		if e.opt.System || e.previous != nil {
			continue
		}
		m.resolve(t, st, e)
	}

	m.swapPrependFile(t, st)
	st.inRequest = true
	return nil
}

// RequestShutdown restores the auto-prepend file swapped in by RequestInit.
func (m *Manager) RequestShutdown(t *Table) {
	st := m.thread(t)
	if st == nil {
		return
	}
	if st.prependSwapped {
		t.SetAutoPrependFile(st.prependBackup)
		st.prependSwapped = false
	}
	st.inRequest = false
}

// ModuleShutdown detaches from the host's thread lifecycle. Descriptors stay valid.
func (m *Manager) ModuleShutdown() {
	if State(m.state.Load()) == StateUninitialized {
		return
	}
	if m.mapper != nil && m.host.Threaded() {
		m.host.SetThreadStartHandler(m.prevThreadStart)
	}
}

// State reports the lifecycle state seen by the worker owning t.
func (m *Manager) State(t *Table) State {
	s := State(m.state.Load())
	if s == StateUninitialized {
		return s
	}
	if st := m.thread(t); st != nil && st.inRequest {
		return StateRequestReady
	}
	return StateModuleReady
}

// Get returns the resolved value of id for the worker owning t. Before the
// worker's first request it returns the process-wide value.
func (m *Manager) Get(t *Table, id ID) any {
	e := m.entry(id)
	if e == nil {
		return nil
	}
	if st := m.thread(t); st != nil {
		return st.values[id]
	}
	m.initLock.RLock()
	defer m.initLock.RUnlock()
	return e.decoded
}

// Source reports where the value returned by Get for id came from.
func (m *Manager) Source(t *Table, id ID) Source {
	e := m.entry(id)
	if e == nil {
		return ""
	}
	if st := m.thread(t); st != nil {
		return st.sources[id]
	}
	m.initLock.RLock()
	defer m.initLock.RUnlock()
	return e.source
}

// IsModified reports whether id differs from its compiled default, either
// through a static configuration value or a live override.
func (m *Manager) IsModified(t *Table, id ID) bool {
	e := m.entry(id)
	if e == nil {
		return false
	}

	m.initLock.RLock()
	nameIndex := e.nameIndex
	m.initLock.RUnlock()
	if nameIndex >= 0 {
		return true
	}

	if st := m.thread(t); st != nil && st.overridden[id] {
		return true
	}

	for _, b := range e.bindings {
		if b.name == "" {
			continue
		}
		d := t.Find(b.name)
		return d != nil && d.Modified
	}
	return false
}

// DirectiveName returns the directive bound to alias n of id.
func (m *Manager) DirectiveName(id ID, n int) (string, bool) {
	e := m.entry(id)
	if e == nil || n < 0 || n >= len(e.bindings) || e.bindings[n].name == "" {
		return "", false
	}
	return e.bindings[n].name, true
}

// Lookup returns the option bound to a directive name.
func (m *Manager) Lookup(directive string) (ID, bool) {
	id, ok := m.byName[directive]
	return id, ok
}

// Host returns the host bound by ModuleInit.
func (m *Manager) Host() Host {
	return m.host
}

// Options returns the frozen declarations.
func (m *Manager) Options() []Option {
	out := make([]Option, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.opt
	}
	return out
}

func (m *Manager) entry(id ID) *entry {
	if id < 0 || int(id) >= len(m.entries) {
		return nil
	}
	return m.entries[id]
}

func (m *Manager) thread(t *Table) *threadState {
	if t == nil {
		return nil
	}
	st, _ := t.Global(m.module).(*threadState)
	return st
}

func (m *Manager) newThread(t *Table) *threadState {
	st := &threadState{
		id:         uuid.New(),
		values:     make([]any, len(m.entries)),
		sources:    make([]Source, len(m.entries)),
		overridden: make([]bool, len(m.entries)),
		buf:        m.env.NewBuffer(),
	}
	t.SetGlobal(m.module, st)
	m.logger.Debug().Str("thread", st.id.String()).Msg("Worker runtime configuration created")
	return st
}

// schemaError surfaces packaging defects: fatal in debug builds, logged otherwise.
func (m *Manager) schemaError(err error) {
	if m.settings.Debug {
		panic(err)
	}
	m.logger.Error().Err(err).Msg("Configuration schema error")
}

// swapPrependFile installs the request init hook script as the auto-prepend file.
func (m *Manager) swapPrependFile(t *Table, st *threadState) {
	if m.hookOption < 0 {
		return
	}
	st.prependBackup = t.AutoPrependFile()
	st.prependSwapped = true

	path, _ := st.values[m.hookOption].(string)
	if path == "" {
		return
	}
	log := m.logger.With().Str("thread", st.id.String()).Str("hook", path).Logger()

	if err := m.host.CheckOpenBasedir(path); err != nil {
		log.Debug().Err(err).Msg("Cannot open request init hook")
		return
	}
	if _, err := os.Stat(path); err != nil {
		log.Debug().Err(err).Msg("Cannot open request init hook; file does not exist")
		return
	}

	t.SetAutoPrependFile(path)
	if st.prependBackup != "" {
		log.Debug().Str("auto_prepend_file", st.prependBackup).Msg("Backing up auto-prepend file")
	}
}

func (e *entry) hasDirective() bool {
	for _, b := range e.bindings {
		if b.global != nil {
			return true
		}
	}
	return false
}
