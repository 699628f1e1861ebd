package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".gpufleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

const validConfig = `
user: pu22
key: ~/.ssh/id_ed25519
jump_hosts: [shell1, shell2]
targets: ["gpu{25..27}", ray01]
`

func TestConfigFileCheck_ExplicitMissing(t *testing.T) {
	check := &ConfigFileCheck{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")}
	result := check.Run(context.Background())

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "not found")
	assert.NotEmpty(t, result.Suggestion)
}

func TestConfigFileCheck_Found(t *testing.T) {
	path := writeConfig(t, validConfig)
	result := (&ConfigFileCheck{ConfigPath: path}).Run(context.Background())

	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, path)
}

func TestConfigValidCheck_Valid(t *testing.T) {
	check := &ConfigValidCheck{ConfigPath: writeConfig(t, validConfig)}
	result := check.Run(context.Background())

	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "4 targets through 2 jump hosts", result.Message)
	require.NotNil(t, check.Cfg)
	assert.Equal(t, "pu22", check.Cfg.User)
}

func TestConfigValidCheck_Invalid(t *testing.T) {
	check := &ConfigValidCheck{ConfigPath: writeConfig(t, "user: pu22\njump_hosts: [shell1]\n")}
	result := check.Run(context.Background())

	assert.Equal(t, StatusFail, result.Status)
	assert.Equal(t, "No targets configured", result.Message)
	assert.Contains(t, result.Suggestion, "targets")
	assert.Nil(t, check.Cfg)
}

func TestConfigValidCheck_BadYAML(t *testing.T) {
	check := &ConfigValidCheck{ConfigPath: writeConfig(t, "targets: [unclosed\n")}
	result := check.Run(context.Background())

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "Failed to read config file")
}
