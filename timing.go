// FILE: lixenwraith/iniconf/timing.go
package iniconf

import "time"

// Timing constants for the static file watcher.
const (
	SpinWaitInterval     = 5 * time.Millisecond   // CPU-friendly busy-wait quantum
	MinPollInterval      = 100 * time.Millisecond // Hard floor for file stat polling
	ShutdownTimeout      = 100 * time.Millisecond // Graceful watcher termination window
	DefaultDebounce      = 500 * time.Millisecond // File change coalescence period
	DefaultPollInterval  = time.Second            // Standard file monitoring frequency
	DefaultReloadTimeout = 5 * time.Second        // Maximum duration for a reload and reconcile
)

const (
	// shutdownPollCycles is the number of spin-wait cycles in a shutdown timeout
	shutdownPollCycles = ShutdownTimeout / SpinWaitInterval

	// debounceSettleMultiplier is how many debounce periods tests wait for a reload to settle
	debounceSettleMultiplier = 3
)
