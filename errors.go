// FILE: lixenwraith/iniconf/errors.go
package iniconf

import "errors"

var (
	// ErrDecode is wrapped by every value decoding failure.
	ErrDecode = errors.New("value cannot be decoded")

	// ErrUnknownDirective is returned by the update hook for a directive no option owns.
	ErrUnknownDirective = errors.New("directive not bound to any option")

	// ErrUnknownOption is returned for ids outside the registry.
	ErrUnknownOption = errors.New("option not registered")

	// ErrDuplicateOption is returned when every alias of an option is already taken.
	ErrDuplicateOption = errors.New("all option aliases already registered")

	// ErrInvalidName marks a directive name produced by the mapper that the host cannot accept.
	ErrInvalidName = errors.New("invalid directive name")

	// ErrAccessDenied is returned by the host when the caller's access level is insufficient.
	ErrAccessDenied = errors.New("directive not modifiable at this access level")

	// ErrRejected is returned when a change hook vetoes a new value.
	ErrRejected = errors.New("value rejected by change hook")

	// ErrSystemOnly is returned for runtime changes to options fixed at startup.
	ErrSystemOnly = errors.New("option is system-only")

	// ErrNotInitialized is returned by operations that require ModuleInit.
	ErrNotInitialized = errors.New("module not initialized")

	// ErrStaticNotFound is returned when a static configuration file does not exist.
	ErrStaticNotFound = errors.New("static configuration file not found")

	// ErrDeclarationsNotFound is returned when an option declarations file does not exist.
	ErrDeclarationsNotFound = errors.New("option declarations file not found")
)
