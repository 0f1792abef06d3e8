// FILE: lixenwraith/iniconf/cmd/iniconf/commands_test.go
package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lixenwraith/iniconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliDeclarations = `
[[option]]
names = ["CLI_SERVICE", "CLI_SERVICE_NAME"]
default = "web"

[[option]]
names = ["CLI_WORKERS"]
type = "int"
default = 4
system = true
`

func setupFiles(t *testing.T) (decl, static string) {
	t.Helper()
	dir := t.TempDir()
	decl = filepath.Join(dir, "options.toml")
	require.NoError(t, os.WriteFile(decl, []byte(cliDeclarations), 0644))
	static = filepath.Join(dir, "static.toml")
	require.NoError(t, iniconf.WriteStaticFile(static, map[string]string{"cli.cli_service": "from-file"}))
	return decl, static
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNamesCommand(t *testing.T) {
	decl, static := setupFiles(t)

	out, err := run(t, "names", "--decl", decl, "--static", static, "--prefix", "cli")
	require.NoError(t, err)
	assert.Contains(t, out, "DIRECTIVE")
	assert.Contains(t, out, "cli.cli_service_name")
	assert.Contains(t, out, "cli.cli_workers")

	out, err = run(t, "names", "--decl", decl, "--static", static, "--pass-through")
	require.NoError(t, err)
	assert.NotContains(t, out, "cli.cli_workers")
	assert.Contains(t, out, "CLI_WORKERS")
}

func TestResolveCommand(t *testing.T) {
	decl, static := setupFiles(t)
	t.Setenv("CLI_WORKERS", "8")
	base := []string{"resolve", "--decl", decl, "--static", static, "--prefix", "cli"}

	t.Run("JSON", func(t *testing.T) {
		out, err := run(t, append(base, "--format", "json")...)
		require.NoError(t, err)

		var rows []resolvedOption
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		require.Len(t, rows, 2)
		assert.Equal(t, "CLI_SERVICE", rows[0].Alias)
		assert.Equal(t, "from-file", rows[0].Value)
		assert.Equal(t, string(iniconf.SourceFile), rows[0].Source)
		assert.Equal(t, float64(8), rows[1].Value)
		assert.Equal(t, string(iniconf.SourceEnv), rows[1].Source)
		assert.True(t, rows[1].Modified)
	})

	t.Run("Text Selection", func(t *testing.T) {
		out, err := run(t, append(base, "CLI_SERVICE_NAME")...)
		require.NoError(t, err)
		assert.Contains(t, out, "ALIAS")
		assert.Contains(t, out, "from-file")
		assert.NotContains(t, out, "CLI_WORKERS")
	})

	t.Run("Unknown Alias", func(t *testing.T) {
		_, err := run(t, append(base, "CLI_NOPE")...)
		assert.ErrorIs(t, err, iniconf.ErrUnknownOption)
	})

	t.Run("Unknown Format", func(t *testing.T) {
		_, err := run(t, append(base, "--format", "xml")...)
		assert.ErrorContains(t, err, "unknown format")
	})

	t.Run("Missing Declarations", func(t *testing.T) {
		_, err := run(t, "resolve", "--decl", filepath.Join(t.TempDir(), "none.toml"), "--static", static)
		assert.ErrorIs(t, err, iniconf.ErrDeclarationsNotFound)
	})
}

func TestExportCommand(t *testing.T) {
	decl, static := setupFiles(t)
	t.Setenv("CLI_SERVICE_NAME", "checkout")
	target := filepath.Join(t.TempDir(), "out", "effective.yaml")

	out, err := run(t, "export", target, "--decl", decl, "--static", static, "--prefix", "cli")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2 values")

	host := iniconf.NewMemoryHost()
	_, err = host.LoadStaticFile(target)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"cli.cli_service": "checkout",
		"cli.cli_workers": "4",
	}, host.StaticValues())
}

func TestWatchCommandNeedsStaticFile(t *testing.T) {
	decl, _ := setupFiles(t)
	_, err := run(t, "watch", "--decl", decl, "--static", filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorContains(t, err, "watch needs a static file")
}
