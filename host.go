// FILE: lixenwraith/iniconf/host.go
package iniconf

import (
	"sort"
)

// Stage identifies the host phase in which a directive change happens.
type Stage int

const (
	StageStartup Stage = iota + 1
	StageShutdown
	StageActivate
	StageDeactivate
	StageRuntime
	StageHTAccess
)

func (s Stage) String() string {
	switch s {
	case StageStartup:
		return "startup"
	case StageShutdown:
		return "shutdown"
	case StageActivate:
		return "activate"
	case StageDeactivate:
		return "deactivate"
	case StageRuntime:
		return "runtime"
	case StageHTAccess:
		return "htaccess"
	default:
		return "unknown"
	}
}

// Access is a bitmask of the levels allowed to modify a directive.
type Access int

const (
	AccessUser Access = 1 << iota
	AccessPerDir
	AccessSystem

	AccessAll = AccessUser | AccessPerDir | AccessSystem
)

// OnModifyFunc is the host's update hook. It runs before the host stores a new
// value; a non-nil error makes the host reject the change.
type OnModifyFunc func(t *Table, d *Directive, value string, stage Stage) error

// ThreadStartFunc populates the directive table of a freshly started worker.
type ThreadStartFunc func(t *Table)

// Directive is a host-native configuration record.
type Directive struct {
	Name       string
	Value      string
	OrigValue  string // valid while Modified
	Modified   bool
	Access     Access
	OrigAccess Access
	Stage      Stage // stage of the last accepted modification
	OnModify   OnModifyFunc
	Module     int
	Display    func(value string) string
}

// Base returns the directive text ignoring any override.
func (d *Directive) Base() string {
	if d.Modified {
		return d.OrigValue
	}
	return d.Value
}

// String renders the current value through the directive's displayer.
func (d *Directive) String() string {
	if d.Display != nil {
		return d.Display(d.Value)
	}
	return d.Value
}

// DirectiveDef describes a directive to register with the host.
type DirectiveDef struct {
	Name     string
	Value    string
	Access   Access
	OnModify OnModifyFunc
	Display  func(value string) string
}

// snapshot is the pre-override state recorded in the modified-directives bookkeeping.
type snapshot struct {
	value    string
	orig     string
	modified bool
	access   Access
	stage    Stage
}

// Table is a directive registry. The host keeps one template table and, on
// threaded hosts, one private copy per worker.
type Table struct {
	directives  map[string]*Directive
	modified    map[string]snapshot
	globals     map[int]any
	autoPrepend string
}

// NewTable creates an empty directive table.
func NewTable() *Table {
	return &Table{
		directives: make(map[string]*Directive),
		modified:   make(map[string]snapshot),
		globals:    make(map[int]any),
	}
}

// Find returns the directive registered under name, or nil.
func (t *Table) Find(name string) *Directive {
	return t.directives[name]
}

// Names returns all directive names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.directives))
	for name := range t.directives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of directives in the table.
func (t *Table) Len() int {
	return len(t.directives)
}

func (t *Table) add(d *Directive) bool {
	if _, exists := t.directives[d.Name]; exists {
		return false
	}
	t.directives[d.Name] = d
	return true
}

// CopyFrom replaces the table's directives with deep copies of src's.
// Modified-directives bookkeeping and module globals are per table and not copied.
func (t *Table) CopyFrom(src *Table) {
	t.directives = make(map[string]*Directive, len(src.directives))
	for name, d := range src.directives {
		c := *d
		t.directives[name] = &c
	}
	t.autoPrepend = src.autoPrepend
}

// MarkModified records d in the modified-directives bookkeeping, saving its
// current state for a later restore. Only the first call per directive has
// an effect; it reports whether this call registered the directive.
func (t *Table) MarkModified(d *Directive) bool {
	if _, tracked := t.modified[d.Name]; tracked {
		return false
	}
	t.modified[d.Name] = snapshot{
		value:    d.Value,
		orig:     d.OrigValue,
		modified: d.Modified,
		access:   d.Access,
		stage:    d.Stage,
	}
	return true
}

// IsTracked reports whether name is in the modified-directives bookkeeping.
func (t *Table) IsTracked(name string) bool {
	_, tracked := t.modified[name]
	return tracked
}

// Restore puts d back into the state saved by MarkModified and drops it from
// the bookkeeping. It reports false when d was not tracked.
func (t *Table) Restore(d *Directive) bool {
	snap, tracked := t.modified[d.Name]
	if !tracked {
		return false
	}
	d.Value = snap.value
	d.OrigValue = snap.orig
	d.Modified = snap.modified
	d.Access = snap.access
	d.Stage = snap.stage
	delete(t.modified, d.Name)
	return true
}

// ModifiedNames lists tracked directive names in sorted order.
func (t *Table) ModifiedNames() []string {
	names := make([]string, 0, len(t.modified))
	for name := range t.modified {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Global returns the per-table state stored by the given module.
func (t *Table) Global(module int) any {
	return t.globals[module]
}

// SetGlobal stores per-table state for the given module.
func (t *Table) SetGlobal(module int, v any) {
	t.globals[module] = v
}

// AutoPrependFile returns the script the host runs before every request.
func (t *Table) AutoPrependFile() string {
	return t.autoPrepend
}

// SetAutoPrependFile changes the script the host runs before every request.
func (t *Table) SetAutoPrependFile(path string) {
	t.autoPrepend = path
}

// Host is the narrow view of the embedding runtime used by the subsystem.
type Host interface {
	// SAPI names the host front end, e.g. "cli" or "fpm-fcgi".
	SAPI() string
	// Threaded reports whether every worker owns a private directive table.
	Threaded() bool
	// Template returns the global directive table copied into new workers.
	Template() *Table
	// Register adds a directive to the template table.
	Register(def DirectiveDef, module int) error
	// Static returns the value given to name in the host's static configuration.
	Static(name string) (string, bool)
	// Getenv consults the host's own environment (e.g. a pool definition).
	Getenv(name string) (string, bool)
	// Alter changes a directive in t through its update hook.
	Alter(t *Table, name, value string, access Access, stage Stage) error
	// InStartup reports whether module startup is still in progress.
	InStartup() bool
	// ModuleInitialized reports whether every module finished its init hook.
	ModuleInitialized() bool
	// SetThreadStartHandler installs h and returns the previous handler.
	SetThreadStartHandler(h ThreadStartFunc) ThreadStartFunc
	// CheckOpenBasedir returns an error if path lies outside the allowed directories.
	CheckOpenBasedir(path string) error
}
