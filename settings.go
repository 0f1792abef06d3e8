// FILE: lixenwraith/iniconf/settings.go
package iniconf

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Settings tune the subsystem itself. They are read from INICONF_*
// environment variables and never from the options being resolved.
type Settings struct {
	// Debug turns schema errors into panics.
	Debug bool `env:"INICONF_DEBUG"`
	// EnvMaxBufSize bounds environment values; longer values count as absent.
	EnvMaxBufSize int `env:"INICONF_ENV_MAX_BUFSIZ"`
	// LogLevel is a zerolog level name used by NewLogger.
	LogLevel string `env:"INICONF_LOG_LEVEL"`
	// SAPI overrides the front end name reported by the host.
	SAPI string `env:"INICONF_SAPI"`
	// StaticFile names the static configuration file for discovery.
	StaticFile string `env:"INICONF_STATIC"`
	// PollInterval is the static file watcher poll period.
	PollInterval time.Duration `env:"INICONF_POLL_INTERVAL"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		EnvMaxBufSize: DefaultEnvMaxBufSize,
		LogLevel:      "warn",
		PollInterval:  DefaultPollInterval,
	}
}

// ResolveSettings layers explicit values over the environment over defaults.
// Zero fields of explicit are filled from the next layer.
func ResolveSettings(explicit Settings) (Settings, error) {
	fromEnv := Settings{}
	if err := env.Parse(&fromEnv); err != nil {
		return Settings{}, fmt.Errorf("error reading settings from environment: %w", err)
	}

	out := explicit
	for _, layer := range []Settings{fromEnv, DefaultSettings()} {
		if err := mergo.Merge(&out, layer); err != nil {
			return Settings{}, fmt.Errorf("error merging settings: %w", err)
		}
	}
	if out.EnvMaxBufSize < 0 {
		return Settings{}, fmt.Errorf("env buffer size must not be negative, got %d", out.EnvMaxBufSize)
	}
	if out.PollInterval < MinPollInterval {
		out.PollInterval = MinPollInterval
	}
	return out, nil
}

// NewLogger builds a console logger writing to w at the named level.
// An unknown level falls back to warn.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Str("component", "iniconf").
		Logger()
}
