// FILE: lixenwraith/iniconf/bridge.go
package iniconf

import (
	"fmt"
)

// createDirective binds alias n of e to a host directive, reusing and
// chaining onto an existing directive of the same name. Caller holds the
// write side of initLock.
func (m *Manager) createDirective(e *entry, n int) {
	alias := e.opt.Names[n]
	name := m.mapper(alias)
	if !isValidDirectiveName(name) {
		m.schemaError(fmt.Errorf("%w: %q generated for %s", ErrInvalidName, name, alias))
		return
	}
	if _, taken := m.byName[name]; taken {
		return
	}
	m.byName[name] = e.opt.ID

	b := &e.bindings[n]
	b.name = name
	template := m.host.Template()

	if existing := template.Find(name); existing != nil {
		e.previous = existing.OnModify
		if existing.Value != e.opt.Default {
			if v, err := decodeOption(e.opt, existing.Value, true); err == nil {
				e.decoded = v
			} else {
				m.logger.Warn().Err(err).Str("directive", name).Msg("Existing directive value does not decode, keeping default")
			}
		}
		existing.OnModify = m.onModify
		b.global = existing
		return
	}

	def := DirectiveDef{
		Name:     name,
		Value:    e.opt.Default,
		Access:   AccessAll,
		OnModify: m.onModify,
	}
	if e.opt.System {
		def.Access = AccessSystem
	}
	if e.opt.Type == TypeBool {
		def.Display = boolDisplay
	}
	if err := m.host.Register(def, m.module); err != nil {
		delete(m.byName, name)
		b.name = ""
		m.schemaError(fmt.Errorf("register directive %s: %w", name, err))
		return
	}
	b.global = template.Find(name)
}

// onModify is the update hook installed on every bound directive. It runs a
// chained host hook first, validates the value and, for runtime changes on an
// initialized worker, mirrors the change into every alias of the option.
func (m *Manager) onModify(t *Table, d *Directive, value string, stage Stage) error {
	id, ok := m.byName[d.Name]
	if !ok {
		m.logger.Debug().Str("directive", d.Name).Msg("Update hook called for unbound directive")
		return fmt.Errorf("%w: %s", ErrUnknownDirective, d.Name)
	}
	e := m.entries[id]

	if e.previous != nil {
		if err := e.previous(t, d, value, stage); err != nil {
			return err
		}
	}

	v, err := decodeOption(e.opt, value, stage != StageRuntime)
	if err != nil {
		m.logger.Debug().Err(err).Str("directive", d.Name).Str("stage", stage.String()).Msg("Rejected directive value")
		return err
	}

	// Values set before runtime are picked up by reconciliation.
	if stage != StageRuntime {
		return nil
	}
	st := m.thread(t)
	if st == nil {
		return nil
	}

	if e.opt.System {
		return fmt.Errorf("%w: %s", ErrSystemOnly, d.Name)
	}
	if e.opt.IniChange != nil && !e.opt.IniChange(st.values[id], v) {
		return fmt.Errorf("%w: %s", ErrRejected, d.Name)
	}

	reset := value == d.Base()
	for n, b := range e.bindings {
		if b.name == "" || b.name == d.Name {
			continue
		}
		m.applyAlias(t, e, n, value, reset)
	}

	st.values[id] = v
	st.sources[id] = SourceRuntime
	if reset {
		st.sources[id] = m.baseSource(e)
	}
	return nil
}

// applyAlias writes value into alias n of e in table t. The first override
// saves the original text and registers the alias in the table's
// modified-directives bookkeeping; a reset restores the original text.
func (m *Manager) applyAlias(t *Table, e *entry, n int, value string, reset bool) {
	alias := t.Find(e.bindings[n].name)
	if alias == nil {
		return
	}
	if reset {
		clearOverride(alias)
		return
	}
	t.MarkModified(alias)
	overrideDirective(alias, value, StageRuntime)
}

// overrideDirective marks d overridden with value, keeping the first original.
func overrideDirective(d *Directive, value string, stage Stage) {
	if !d.Modified {
		d.OrigValue = d.Value
		d.OrigAccess = d.Access
		d.Modified = true
	}
	d.Value = value
	d.Stage = stage
}

// clearOverride drops an override, showing the original text again.
func clearOverride(d *Directive) {
	if !d.Modified {
		return
	}
	d.Value = d.OrigValue
	d.OrigValue = ""
	d.Access = d.OrigAccess
	d.Modified = false
}

// syncThread copies reconciled template state into a worker table that was
// populated before the latest reconciliation.
func (m *Manager) syncThread(t *Table, st *threadState) {
	m.initLock.RLock()
	defer m.initLock.RUnlock()

	for _, e := range m.entries {
		if e.previous != nil {
			continue
		}
		for _, b := range e.bindings {
			if b.global == nil {
				continue
			}
			dst := t.Find(b.name)
			if dst == nil || dst == b.global || t.IsTracked(b.name) {
				continue
			}
			dst.Value = b.global.Value
			dst.OrigValue = b.global.OrigValue
			dst.Modified = b.global.Modified
			dst.Access = b.global.Access
			dst.OrigAccess = b.global.OrigAccess
			dst.Stage = b.global.Stage
		}
	}
	st.generation = m.generation.Load()
	m.logger.Debug().Str("thread", st.id.String()).Uint64("generation", st.generation).Msg("Worker directives synced with template")
}

// baseSource is the tier that supplied the base text of e.
func (m *Manager) baseSource(e *entry) Source {
	m.initLock.RLock()
	defer m.initLock.RUnlock()
	return e.baseSource
}
