package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sstesting "github.com/rileyhilliard/gpufleet/pkg/sshutil/testing"
)

func TestSSHKeyCheck_Pass(t *testing.T) {
	path, _, err := sstesting.WriteKeyFile(t.TempDir())
	require.NoError(t, err)

	result := (&SSHKeyCheck{User: "pu22", KeyPath: path}).Run(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "ssh-ed25519")
}

func TestSSHKeyCheck_LoosePermissions(t *testing.T) {
	path, _, err := sstesting.WriteKeyFile(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Chmod(path, 0644))

	result := (&SSHKeyCheck{User: "pu22", KeyPath: path}).Run(context.Background())
	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Suggestion, "chmod 600")
}

func TestSSHKeyCheck_Missing(t *testing.T) {
	result := (&SSHKeyCheck{User: "pu22", KeyPath: filepath.Join(t.TempDir(), "id_rsa")}).Run(context.Background())
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "Can't read SSH key")
}

func TestSSHKeyCheck_Encrypted(t *testing.T) {
	path, err := sstesting.WriteEncryptedKeyFile(t.TempDir())
	require.NoError(t, err)

	result := (&SSHKeyCheck{User: "pu22", KeyPath: path}).Run(context.Background())
	assert.Equal(t, StatusFail, result.Status)
	assert.NotEmpty(t, result.Suggestion)
}

func TestKnownHostsCheck(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")
	good := filepath.Join(dir, "known_hosts")
	require.NoError(t, os.WriteFile(good, []byte{}, 0600))
	bad := filepath.Join(dir, "bad_hosts")
	require.NoError(t, os.WriteFile(bad, []byte("shell1 ssh-ed25519 !!notbase64!!\n"), 0600))

	tests := []struct {
		name   string
		policy string
		path   string
		want   CheckStatus
	}{
		{name: "unknown policy", policy: "yolo", path: good, want: StatusFail},
		{name: "ignore warns", policy: "ignore", path: missing, want: StatusWarn},
		{name: "strict needs file", policy: "strict", path: missing, want: StatusFail},
		{name: "tofu creates file", policy: "tofu", path: missing, want: StatusPass},
		{name: "existing file", policy: "strict", path: good, want: StatusPass},
		{name: "malformed file", policy: "tofu", path: bad, want: StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := (&KnownHostsCheck{Policy: tt.policy, Path: tt.path}).Run(context.Background())
			assert.Equal(t, tt.want, result.Status, result.Message)
		})
	}

	_, err := os.Stat(missing)
	assert.True(t, os.IsNotExist(err), "checks never create known_hosts")
}
