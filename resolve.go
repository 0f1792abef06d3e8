// FILE: lixenwraith/iniconf/resolve.go
package iniconf

import (
	"github.com/rs/zerolog"
)

// Source identifies where a resolved value came from.
type Source string

const (
	// SourceDefault is the compiled default of the option
	SourceDefault Source = "default"
	// SourceFPM is a directive differing from the default on hosts that cannot report explicit settings
	SourceFPM Source = "fpm"
	// SourceFile is the host's static configuration file
	SourceFile Source = "file"
	// SourceRuntime is an override applied at a system-enforced stage
	SourceRuntime Source = "runtime"
	// SourceEnv is an environment variable
	SourceEnv Source = "env"
)

// candidate is one decodable value offered by a source for an option.
type candidate struct {
	source Source
	alias  int
	text   string
	value  any
	stage  Stage
}

// candidates holds the first decodable value of every source, in alias order.
type candidates struct {
	fpm, runtime, static, env *candidate
}

// winner applies precedence: env > runtime > static file > FPM-detected.
// A nil result means the compiled default stands.
func (c candidates) winner() *candidate {
	for _, cand := range []*candidate{c.env, c.runtime, c.static, c.fpm} {
		if cand != nil {
			return cand
		}
	}
	return nil
}

// base is the value shown by directives when nothing overrides them.
func (c candidates) base() *candidate {
	if c.static != nil {
		return c.static
	}
	return c.fpm
}

// override is the value written over the base of every alias.
func (c candidates) override() *candidate {
	if c.env != nil {
		return c.env
	}
	return c.runtime
}

// Reconcile re-evaluates every option against the template table and the
// current sources. Workers pick up the result at their next request.
func (m *Manager) Reconcile() error {
	if State(m.state.Load()) == StateUninitialized {
		return ErrNotInitialized
	}
	if m.mapper == nil {
		return nil
	}
	m.initLock.Lock()
	defer m.initLock.Unlock()
	m.reconcileLocked()
	m.reconciled.Store(true)
	return nil
}

// ensureReconciled runs the first-request reconciliation exactly once.
func (m *Manager) ensureReconciled() {
	if m.reconciled.Load() {
		return
	}
	m.initLock.Lock()
	defer m.initLock.Unlock()
	if m.reconciled.Load() {
		return
	}
	m.reconcileLocked()
	m.reconciled.Store(true)
}

// reconcileLocked resolves every option not owned by a chained host hook.
// System-only options are fixed here. Caller holds the write side of initLock.
func (m *Manager) reconcileLocked() {
	buf := m.env.NewBuffer()
	beforeInit := !m.host.ModuleInitialized()
	for _, e := range m.entries {
		if e.previous != nil {
			continue
		}
		m.reconcileEntry(e, buf, beforeInit)
	}
	gen := m.generation.Add(1)
	m.logger.Debug().Uint64("generation", gen).Msg("Configuration reconciled")
}

func (m *Manager) reconcileEntry(e *entry, buf *EnvBuffer, beforeInit bool) {
	log := m.logger.With().Str("option", e.opt.Names[0]).Logger()
	c := m.collect(e, buf, beforeInit, log)
	if c.runtime != nil {
		e.carried = c.runtime
	}

	baseText := e.opt.Default
	e.nameIndex = -1
	e.baseSource = SourceDefault
	if base := c.base(); base != nil {
		baseText = base.text
		e.nameIndex = base.alias
		e.baseSource = base.source
	}
	for _, b := range e.bindings {
		if b.global == nil {
			continue
		}
		if b.global.Modified {
			b.global.OrigValue = baseText
		} else {
			b.global.Value = baseText
		}
	}

	if over := c.override(); over != nil {
		stage := StageStartup
		if over.source == SourceRuntime {
			stage = over.stage
		}
		for _, b := range e.bindings {
			if b.global != nil {
				overrideDirective(b.global, over.text, stage)
			}
		}
		e.ownOverride = true
		e.written = over.text
	} else if e.ownOverride {
		for _, b := range e.bindings {
			if b.global != nil {
				clearOverride(b.global)
			}
		}
		e.ownOverride = false
		e.written = ""
	}

	e.decoded = e.defaultValue
	e.source = SourceDefault
	if w := c.winner(); w != nil {
		e.decoded = w.value
		e.source = w.source
		log.Debug().Str("source", string(w.source)).Int("alias", w.alias).Msg("Option resolved")
	}
}

// collect scans aliases in declared order for the first decodable value of
// each source. Undecodable values are skipped.
func (m *Manager) collect(e *entry, buf *EnvBuffer, beforeInit bool, log zerolog.Logger) candidates {
	var c candidates
	try := func(source Source, alias int, text string) *candidate {
		v, err := decodeOption(e.opt, text, true)
		if err != nil {
			log.Warn().Err(err).Str("source", string(source)).Str("alias", e.opt.Names[alias]).Msg("Ignoring undecodable value")
			return nil
		}
		return &candidate{source: source, alias: alias, text: text, value: v}
	}

	for n, b := range e.bindings {
		if d := b.global; d != nil {
			if m.fpm && c.fpm == nil && d.Base() != e.opt.Default {
				c.fpm = try(SourceFPM, n, d.Base())
			}
			// Text other than our own override is a newer host change.
			fresh := !e.ownOverride || d.Value != e.written
			if c.runtime == nil && fresh && d.Modified && (beforeInit || d.Stage != StageRuntime) {
				if c.runtime = try(SourceRuntime, n, d.Value); c.runtime != nil {
					c.runtime.stage = d.Stage
				}
			}
			if c.static == nil {
				if text, ok := m.host.Static(b.name); ok {
					c.static = try(SourceFile, n, text)
				}
			}
		}
		if c.env == nil && m.env.Read(b.env, buf) == EnvSuccess {
			c.env = try(SourceEnv, n, buf.String())
		}
	}
	// Directives overridden by an earlier pass no longer show the carried value.
	if c.runtime == nil && e.ownOverride {
		c.runtime = e.carried
	}
	return c
}

// resolve applies per-request sources for one option on a worker table. The
// first alias whose environment value is accepted wins; otherwise an alias
// already overridden in the table is republished.
func (m *Manager) resolve(t *Table, st *threadState, e *entry) {
	id := e.opt.ID
	log := m.logger.With().Str("thread", st.id.String()).Str("option", e.opt.Names[0]).Logger()

	for _, b := range e.bindings {
		if m.env.Read(b.env, st.buf) != EnvSuccess {
			continue
		}
		raw := st.buf.String()

		if m.mapper == nil || b.name == "" {
			v, err := decodeOption(e.opt, raw, false)
			if err != nil {
				log.Warn().Err(err).Str("env", b.env).Msg("Ignoring undecodable environment value")
				continue
			}
			st.values[id] = v
			st.sources[id] = SourceEnv
			st.overridden[id] = true
			return
		}

		if err := m.host.Alter(t, b.name, raw, AccessUser, StageRuntime); err != nil {
			log.Warn().Err(err).Str("env", b.env).Msg("Ignoring environment value")
			continue
		}
		st.sources[id] = SourceEnv
		return
	}

	if m.mapper == nil {
		return
	}
	for _, b := range e.bindings {
		if b.name == "" {
			continue
		}
		d := t.Find(b.name)
		if d == nil || !d.Modified {
			continue
		}
		if err := m.onModify(t, d, d.Value, StageRuntime); err == nil {
			return
		}
		log.Debug().Str("directive", b.name).Msg("Override no longer accepted")
	}
}
