// FILE: lixenwraith/iniconf/discovery.go
package iniconf

import (
	"os"
	"path/filepath"
	"strings"
)

// FileDiscoveryOptions configures automatic static file discovery
type FileDiscoveryOptions struct {
	// Base name of the static file (without extension)
	Name string

	// Extensions to try (in order)
	Extensions []string

	// Directories searched before the defaults
	Paths []string

	// Environment variable holding an explicit path
	EnvVar string

	// Environment variable holding a list of directories, like the host's ini scan dir
	ScanDirEnv string

	// CLI flag to check (e.g., "--static")
	CLIFlag string

	UseXDG        bool
	UseCurrentDir bool
}

// DiscoveryOrigin reports which rule located the static file.
type DiscoveryOrigin string

const (
	OriginNone   DiscoveryOrigin = ""
	OriginFlag   DiscoveryOrigin = "flag"
	OriginEnv    DiscoveryOrigin = "env"
	OriginSearch DiscoveryOrigin = "search"
)

// DefaultDiscoveryOptions returns the discovery rules for appName: APPNAME_STATIC,
// APPNAME_SCAN_DIR, --static, the working directory and XDG config directories.
func DefaultDiscoveryOptions(appName string) FileDiscoveryOptions {
	upper := strings.ToUpper(appName)
	return FileDiscoveryOptions{
		Name:          appName,
		Extensions:    []string{".toml", ".json", ".yaml", ".yml"},
		EnvVar:        upper + "_STATIC",
		ScanDirEnv:    upper + "_SCAN_DIR",
		CLIFlag:       "--static",
		UseXDG:        true,
		UseCurrentDir: true,
	}
}

// DiscoverStaticFile returns the first static file found for opts: the CLI
// flag in args, then the environment variable, then the search directories.
// An empty result means no file was found.
func DiscoverStaticFile(opts FileDiscoveryOptions, args []string) string {
	path, _ := LocateStaticFile(opts, args)
	return path
}

// LocateStaticFile is DiscoverStaticFile that also reports the matching rule.
// Flag and environment paths are returned without checking they exist so a
// missing explicit file surfaces as ErrStaticNotFound at load time.
func LocateStaticFile(opts FileDiscoveryOptions, args []string) (string, DiscoveryOrigin) {
	if path, ok := flagValue(args, opts.CLIFlag); ok {
		return path, OriginFlag
	}
	if opts.EnvVar != "" {
		if path := os.Getenv(opts.EnvVar); path != "" {
			return path, OriginEnv
		}
	}

	for _, dir := range searchDirs(opts) {
		for _, ext := range opts.Extensions {
			path := filepath.Join(dir, opts.Name+ext)
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return path, OriginSearch
			}
		}
	}
	return "", OriginNone
}

// WithFileDiscovery locates the static file unless one was set explicitly.
func (b *Builder) WithFileDiscovery(opts FileDiscoveryOptions) *Builder {
	if b.staticFile != "" {
		return b
	}
	path, origin := LocateStaticFile(opts, b.args)
	if b.logger != nil && origin != OriginNone {
		b.logger.Debug().Str("path", path).Str("origin", string(origin)).Msg("Static file discovered")
	}
	b.staticFile = path
	return b
}

func flagValue(args []string, flag string) (string, bool) {
	if flag == "" {
		return "", false
	}
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1], true
		}
		if value, ok := strings.CutPrefix(arg, flag+"="); ok {
			return value, true
		}
	}
	return "", false
}

func searchDirs(opts FileDiscoveryOptions) []string {
	dirs := append([]string(nil), opts.Paths...)
	if opts.ScanDirEnv != "" {
		for _, dir := range filepath.SplitList(os.Getenv(opts.ScanDirEnv)) {
			if dir != "" {
				dirs = append(dirs, dir)
			}
		}
	}
	if opts.UseCurrentDir {
		if cwd, err := os.Getwd(); err == nil {
			dirs = append(dirs, cwd)
		}
	}
	if opts.UseXDG {
		dirs = append(dirs, xdgConfigDirs(opts.Name)...)
	}
	return dirs
}

// xdgConfigDirs returns the user directory first, then system directories.
func xdgConfigDirs(appName string) []string {
	var dirs []string
	if home := os.Getenv("XDG_CONFIG_HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, appName))
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", appName))
	}

	system := filepath.SplitList(os.Getenv("XDG_CONFIG_DIRS"))
	if len(system) == 0 {
		system = []string{"/etc/xdg", "/etc"}
	}
	for _, dir := range system {
		dirs = append(dirs, filepath.Join(dir, appName))
	}
	return dirs
}
