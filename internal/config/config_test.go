package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
version: 1
user: pu22
key: /keys/id_rsa
domain: doc.ic.ac.uk
jump_hosts:
  - shell1.doc.ic.ac.uk
  - shell2.doc.ic.ac.uk
targets:
  - gpu{25..36}
  - ray01
timeouts:
  connect: 5s
  command: 30s
host_key:
  policy: strict
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, 22, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 15*time.Second, cfg.Timeouts.Command)
	assert.Equal(t, "tofu", cfg.HostKey.Policy)
	assert.Empty(t, cfg.Targets)
	assert.Empty(t, cfg.JumpHosts)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, t.TempDir(), ConfigFileName, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pu22", cfg.User)
	assert.Equal(t, "/keys/id_rsa", cfg.Key)
	assert.Equal(t, "doc.ic.ac.uk", cfg.Domain)
	assert.Equal(t, []string{"shell1.doc.ic.ac.uk", "shell2.doc.ic.ac.uk"}, cfg.JumpHosts)
	assert.Equal(t, []string{"gpu{25..36}", "ray01"}, cfg.Targets)
	assert.Equal(t, "strict", cfg.HostKey.Policy)

	// Set values override, unset ones keep defaults.
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Command)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Channel)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Auth)
	assert.Equal(t, 22, cfg.Port)

	require.NoError(t, Validate(cfg))
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), ConfigFileName, sampleYAML)

	t.Setenv("GPUFLEET_USER", "someone")
	t.Setenv("GPUFLEET_JUMP_HOSTS", "shell3, shell4")
	t.Setenv("GPUFLEET_TIMEOUTS_AUTH", "3s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "someone", cfg.User)
	assert.Equal(t, []string{"shell3", "shell4"}, cfg.JumpHosts)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Auth)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), ConfigFileName, "targets: [gpu1\n  bad")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeFile(t, t.TempDir(), ConfigFileName, "timeouts:\n  connect: soon\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid config format")
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("GPUFLEET_USER", "pu22")
	t.Setenv("GPUFLEET_JUMP_HOSTS", "shell1")
	t.Setenv("GPUFLEET_TARGETS", "gpu{1..3}")

	cfg, err := LoadEnvOnly()
	require.NoError(t, err)

	assert.Equal(t, "pu22", cfg.User)
	assert.Equal(t, []string{"shell1"}, cfg.JumpHosts)
	assert.Equal(t, []string{"gpu{1..3}"}, cfg.Targets)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connect)
}

func TestFind(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "custom.yaml", sampleYAML)
		found, err := Find(path)
		require.NoError(t, err)
		assert.Equal(t, path, found)
	})

	t.Run("explicit path missing", func(t *testing.T) {
		_, err := Find(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrConfig))
	})

	t.Run("current directory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ConfigFileName, sampleYAML)
		t.Chdir(dir)

		found, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, ConfigFileName, filepath.Base(found))
	})

	t.Run("parent directory up to git root", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
		writeFile(t, root, ConfigFileName, sampleYAML)
		nested := filepath.Join(root, "a", "b")
		require.NoError(t, os.MkdirAll(nested, 0755))
		t.Chdir(nested)

		found, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, ConfigFileName), evalSymlinks(t, found, root))
	})
}

// evalSymlinks maps found back under root when the temp dir is a symlink
// (macOS /var -> /private/var).
func evalSymlinks(t *testing.T, found, root string) string {
	t.Helper()
	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	realFound, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	rel, err := filepath.Rel(realRoot, realFound)
	require.NoError(t, err)
	return filepath.Join(root, rel)
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	cfg := DefaultConfig()
	cfg.User = "pu22"
	cfg.Key = "/keys/id_ed25519"
	cfg.JumpHosts = []string{"shell1", "shell2"}
	cfg.Targets = []string{"gpu{25..36}"}
	cfg.Timeouts.Command = 20 * time.Second

	require.NoError(t, Write(path, cfg, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# gpufleet configuration")
	assert.Contains(t, string(data), "command: 20s")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.User, loaded.User)
	assert.Equal(t, cfg.JumpHosts, loaded.JumpHosts)
	assert.Equal(t, cfg.Targets, loaded.Targets)
	assert.Equal(t, cfg.Timeouts, loaded.Timeouts)

	err = Write(path, cfg, false)
	assert.Error(t, err, "refuses to overwrite")
	assert.NoError(t, Write(path, cfg, true))
}
