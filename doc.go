// File: lixenwraith/iniconf/doc.go

// Package iniconf resolves extension options from three sources: compiled
// defaults, the host's configuration directives and process environment
// variables. It lets the host change options at runtime through its own
// directive API and keeps every alias of an option in step.
//
// An option has one or more aliases. Each alias is read as an environment
// variable and mapped by a NameMapper to a host directive. The Manager
// creates those directives at module init, installing its update hook in
// front of any hook already present on a directive of the same name.
//
// Precedence (highest to lowest):
//  1. Environment variable (first alias in declared order that is set and decodes)
//  2. Directive modified at a system stage, or before module startup completed
//  3. Static configuration file
//  4. Directive text differing from the default (fpm-fcgi hosts only)
//  5. Compiled default
//
// Quick Start:
//
//	reg := iniconf.NewRegistry()
//	_ = reg.Register(iniconf.Option{
//	    ID:      0,
//	    Names:   []string{"APP_TRACE_ENABLED", "APP_TRACE"},
//	    Type:    iniconf.TypeBool,
//	    Default: "true",
//	})
//
//	host := iniconf.NewMemoryHost(iniconf.WithThreads())
//	m := iniconf.New(reg, iniconf.WithLogger(logger))
//	if err := m.ModuleInit(host, iniconf.PrefixMapper("app"), 1); err != nil {
//	    log.Fatal(err)
//	}
//	host.FinishStartup()
//
//	// per worker
//	t := host.StartThread()
//	_ = m.RequestInit(t)
//	enabled, _ := m.Bool(t, 0)
//	m.RequestShutdown(t)
//	host.Deactivate(t)
//
// Thread Safety:
// Every worker owns a private directive table copied from the host's
// template. A single reader/writer lock orders template copies against
// directive creation and against reconciliation, which runs once on the
// first request and again after every static file reload.
package iniconf
