// FILE: lixenwraith/iniconf/static.go
package iniconf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MaxStaticFileSize bounds static configuration and declaration files.
const MaxStaticFileSize = 1 << 20

// LoadStaticFile replaces the host's static configuration with the contents
// of path (TOML, JSON or YAML). Nested tables flatten to dotted directive
// names. It returns the sorted names whose static value changed.
func (h *MemoryHost) LoadStaticFile(path string) ([]string, error) {
	data, err := readConfigFile(path, "")
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for name, value := range flattenMap(data, "") {
		values[name] = formatScalar(value)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	changed := diffStatic(h.static, values)
	h.static = values
	h.staticPath = path
	return changed, nil
}

// StaticPath returns the file last loaded by LoadStaticFile.
func (h *MemoryHost) StaticPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.staticPath
}

// WriteStaticFile atomically writes values as a flat static configuration
// file; the format follows the file extension and defaults to TOML.
func WriteStaticFile(path string, values map[string]string) error {
	flat := make(map[string]any, len(values))
	for k, v := range values {
		flat[k] = v
	}

	var buf bytes.Buffer
	switch detectFileFormat(path) {
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(flat); err != nil {
			return fmt.Errorf("failed to marshal static values to JSON: %w", err)
		}
	case "yaml":
		if err := yaml.NewEncoder(&buf).Encode(flat); err != nil {
			return fmt.Errorf("failed to marshal static values to YAML: %w", err)
		}
	default:
		if err := toml.NewEncoder(&buf).Encode(flat); err != nil {
			return fmt.Errorf("failed to marshal static values to TOML: %w", err)
		}
	}
	return atomicWriteFile(path, buf.Bytes())
}

// diffStatic returns the sorted names added, removed or changed between two static maps.
func diffStatic(old, next map[string]string) []string {
	var changed []string
	for name, v := range next {
		if prev, ok := old[name]; !ok || prev != v {
			changed = append(changed, name)
		}
	}
	for name := range old {
		if _, ok := next[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

// readConfigFile reads and parses a TOML, JSON or YAML document. An empty
// format is detected from the extension, then from the content.
func readConfigFile(path, format string) (map[string]any, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStaticNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat config file '%s': %w", path, err)
	}
	if fileInfo.IsDir() {
		return nil, fmt.Errorf("config path '%s' is a directory", path)
	}
	if fileInfo.Size() > MaxStaticFileSize {
		return nil, fmt.Errorf("config file '%s' exceeds maximum size %d bytes", path, MaxStaticFileSize)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}
	defer file.Close()

	fileData, err := io.ReadAll(io.LimitReader(file, MaxStaticFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if format == "" {
		format = detectFileFormat(path)
		if format == "" {
			format = detectFormatFromContent(fileData)
		}
	}

	fileConfig := make(map[string]any)
	switch format {
	case "toml":
		if err := toml.Unmarshal(fileData, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config file '%s': %w", path, err)
		}
	case "json":
		decoder := json.NewDecoder(bytes.NewReader(fileData))
		decoder.UseNumber() // Preserve number precision
		if err := decoder.Decode(&fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config file '%s': %w", path, err)
		}
	case "yaml":
		if err := yaml.Unmarshal(fileData, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config file '%s': %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unable to determine config format for file '%s'", path)
	}
	return fileConfig, nil
}

// atomicWriteFile performs atomic file write
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tempPath := tempFile.Name()
	defer os.Remove(tempPath) // Clean up on any error

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// detectFileFormat determines format from file extension
func detectFileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".tml":
		return "toml"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return ""
	}
}

// detectFormatFromContent attempts to detect format by parsing
func detectFormatFromContent(data []byte) string {
	// JSON first, since YAML accepts it too
	var jsonTest any
	if err := json.Unmarshal(data, &jsonTest); err == nil {
		return "json"
	}

	var tomlTest map[string]any
	if err := toml.Unmarshal(data, &tomlTest); err == nil {
		return "toml"
	}

	var yamlTest map[string]any
	if err := yaml.Unmarshal(data, &yamlTest); err == nil {
		return "yaml"
	}

	return ""
}
