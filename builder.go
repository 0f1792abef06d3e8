// File: lixenwraith/iniconf/builder.go
package iniconf

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// ValidatorFunc validates a Manager after module init. It should return an
// error if the resolved configuration is unusable.
type ValidatorFunc func(m *Manager) error

// Builder provides a fluent interface for wiring a registry, a host and a
// Manager. Without WithHost it creates a MemoryHost, finishes its startup
// phase and reconciles, so values are readable right after Build.
type Builder struct {
	registry   *Registry
	host       Host
	mapper     NameMapper
	mapperSet  bool
	module     int
	settings   Settings
	logger     *zerolog.Logger
	hookOption ID
	defaults   any
	declFile   string
	staticFile string
	args       []string
	err        error
	validators []ValidatorFunc
}

// NewBuilder creates a new builder
func NewBuilder() *Builder {
	return &Builder{
		registry:   NewRegistry(),
		hookOption: -1,
		args:       os.Args[1:],
		validators: make([]ValidatorFunc, 0),
	}
}

// WithDefaults registers one option per tagged field of a struct of defaults
func (b *Builder) WithDefaults(defaults any) *Builder {
	b.defaults = defaults
	return b
}

// WithOptions registers explicit declarations
func (b *Builder) WithOptions(opts ...Option) *Builder {
	for _, opt := range opts {
		if err := b.registry.Register(opt); err != nil {
			b.err = errors.Join(b.err, err)
		}
	}
	return b
}

// WithDeclarations registers the options declared in a file
func (b *Builder) WithDeclarations(path string) *Builder {
	b.declFile = path
	return b
}

// WithHost uses an existing host instead of a fresh MemoryHost
func (b *Builder) WithHost(host Host) *Builder {
	b.host = host
	return b
}

// WithMapper sets the directive name mapper; nil makes the subsystem a
// pass-through over the environment
func (b *Builder) WithMapper(mapper NameMapper) *Builder {
	b.mapper = mapper
	b.mapperSet = true
	return b
}

// WithModule sets the module number owning the directives
func (b *Builder) WithModule(module int) *Builder {
	b.module = module
	return b
}

// WithSettings sets explicit settings; zero fields come from the environment
func (b *Builder) WithSettings(s Settings) *Builder {
	b.settings = s
	return b
}

// WithLogger sets the logger; by default logs are discarded
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithRequestInitHook names the option holding the request init script
func (b *Builder) WithRequestInitHook(id ID) *Builder {
	b.hookOption = id
	return b
}

// WithStaticFile sets the static configuration file loaded into a MemoryHost
func (b *Builder) WithStaticFile(path string) *Builder {
	b.staticFile = path
	return b
}

// WithArgs sets the command-line arguments used by file discovery
func (b *Builder) WithArgs(args []string) *Builder {
	b.args = args
	return b
}

// WithValidator adds a validation function that runs at the end of the build process.
// Validators run in the order they are added.
func (b *Builder) WithValidator(fn ValidatorFunc) *Builder {
	if fn != nil {
		b.validators = append(b.validators, fn)
	}
	return b
}

// Registry returns the registry being populated, for callers that need option IDs.
func (b *Builder) Registry() *Registry {
	return b.registry
}

// Build registers the declarations, loads the static file, creates the
// Manager and runs module init. A missing static file is reported with
// ErrStaticNotFound alongside a usable Manager.
func (b *Builder) Build() (*Manager, error) {
	if b.err != nil {
		return nil, b.err
	}

	settings, err := ResolveSettings(b.settings)
	if err != nil {
		return nil, err
	}

	if b.defaults != nil {
		if err := b.registry.RegisterStruct(b.defaults); err != nil {
			return nil, fmt.Errorf("failed to register defaults: %w", err)
		}
	}
	if b.declFile != "" {
		options, err := ReadDeclarations(b.declFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read declarations: %w", err)
		}
		if err := b.registry.RegisterAll(options); err != nil {
			return nil, fmt.Errorf("failed to register declarations: %w", err)
		}
	}

	host := b.host
	ownHost := host == nil
	if ownHost {
		hostOpts := []HostOption{}
		if settings.SAPI != "" {
			hostOpts = append(hostOpts, WithSAPI(settings.SAPI))
		}
		host = NewMemoryHost(hostOpts...)
	}

	staticFile := b.staticFile
	if staticFile == "" {
		staticFile = settings.StaticFile
	}
	var loadErr error
	if mh, ok := host.(*MemoryHost); ok && staticFile != "" {
		if _, err := mh.LoadStaticFile(staticFile); err != nil {
			if !errors.Is(err, ErrStaticNotFound) {
				return nil, err
			}
			loadErr = err
		}
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}
	m := New(b.registry, WithSettings(settings), WithLogger(logger), WithRequestInitHook(b.hookOption))

	mapper := b.mapper
	if !b.mapperSet {
		mapper = PrefixMapper("")
	}
	if err := m.ModuleInit(host, mapper, b.module); err != nil {
		return nil, err
	}

	if ownHost {
		host.(*MemoryHost).FinishStartup()
		if err := m.Reconcile(); err != nil {
			return nil, err
		}
	}

	for _, validator := range b.validators {
		if err := validator(m); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	// ErrStaticNotFound or nil
	return m, loadErr
}

// MustBuild is like Build but panics on error
func (b *Builder) MustBuild() *Manager {
	m, err := b.Build()
	if m == nil || (err != nil && !errors.Is(err, ErrStaticNotFound)) {
		panic(fmt.Sprintf("iniconf build failed: %v", err))
	}
	return m
}

// BuildAndScan builds and decodes the process-wide resolved values into target
func (b *Builder) BuildAndScan(target any) error {
	m, err := b.Build()
	if m == nil || (err != nil && !errors.Is(err, ErrStaticNotFound)) {
		return err
	}

	if scanErr := m.Scan(nil, target); scanErr != nil {
		return fmt.Errorf("failed to scan final config into target: %w", scanErr)
	}

	// ErrStaticNotFound or nil
	return err
}
