// File: lixenwraith/iniconf/convenience.go
package iniconf

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Quick builds a Manager over a fresh MemoryHost with one option per tagged
// field of structDefaults and an optional static file. This is the shortest
// way to use the resolution rules in a standalone program.
func Quick(structDefaults any, staticFile string) (*Manager, error) {
	return NewBuilder().
		WithDefaults(structDefaults).
		WithStaticFile(staticFile).
		WithArgs(os.Args[1:]).
		Build()
}

// MustQuick is like Quick but panics on error
func MustQuick(structDefaults any, staticFile string) *Manager {
	m, err := Quick(structDefaults, staticFile)
	if err != nil {
		panic(fmt.Sprintf("iniconf initialization failed: %v", err))
	}
	return m
}

// Validate checks that every required option differs from its compiled default
func (m *Manager) Validate(t *Table, required ...ID) error {
	var missing []string
	for _, id := range required {
		e := m.entry(id)
		if e == nil {
			missing = append(missing, fmt.Sprintf("%d (not registered)", id))
			continue
		}
		if !m.IsModified(t, id) {
			missing = append(missing, e.opt.Names[0])
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Effective returns the encoded resolved value of every option keyed by its
// first directive name, or by its first alias when it has no directive.
func (m *Manager) Effective(t *Table) (map[string]string, error) {
	out := make(map[string]string, len(m.entries))
	for _, e := range m.entries {
		text, err := Encode(m.Get(t, e.opt.ID), e.opt.Type)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", e.opt.Names[0], err)
		}
		out[m.keyOf(e)] = text
	}
	return out, nil
}

// Debug returns a formatted string showing every option, its value and source
func (m *Manager) Debug(t *Table) string {
	var b strings.Builder
	b.WriteString("Configuration Debug Info:\n")
	b.WriteString("Precedence: env > runtime > file > fpm > default\n")
	b.WriteString("Current values:\n")

	for _, e := range m.entries {
		id := e.opt.ID
		b.WriteString(fmt.Sprintf("  %s (%s):\n", strings.Join(e.opt.Names, ", "), e.opt.Type))
		b.WriteString(fmt.Sprintf("    Current: %v\n", m.Get(t, id)))
		b.WriteString(fmt.Sprintf("    Default: %s\n", e.opt.Default))
		b.WriteString(fmt.Sprintf("    Source: %s\n", m.Source(t, id)))
		b.WriteString(fmt.Sprintf("    Modified: %t\n", m.IsModified(t, id)))
		if e.opt.System {
			b.WriteString("    System: true\n")
		}
		if t == nil {
			continue
		}
		for _, bind := range e.bindings {
			if bind.name == "" {
				continue
			}
			if d := t.Find(bind.name); d != nil {
				b.WriteString(fmt.Sprintf("    %s = %s\n", d.Name, d.String()))
			}
		}
	}

	return b.String()
}

// Dump writes the resolved values to w in TOML format
func (m *Manager) Dump(t *Table, w io.Writer) error {
	values, err := m.Effective(t)
	if err != nil {
		return err
	}
	return toml.NewEncoder(w).Encode(values)
}

func (m *Manager) keyOf(e *entry) string {
	for _, b := range e.bindings {
		if b.name != "" {
			return b.name
		}
	}
	return e.opt.Names[0]
}
