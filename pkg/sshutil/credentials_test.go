package sshutil_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
	sshtest "github.com/rileyhilliard/gpufleet/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCredentials(t *testing.T) {
	path, pub, err := sshtest.WriteKeyFile(t.TempDir())
	require.NoError(t, err)

	creds, err := sshutil.LoadCredentials("pu22", path)
	require.NoError(t, err)
	assert.Equal(t, "pu22", creds.User)
	assert.Equal(t, path, creds.KeyPath)
	assert.Equal(t, pub.Marshal(), creds.PublicKey().Marshal())
}

func TestLoadCredentials_Failures(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0600))

	encrypted, err := sshtest.WriteEncryptedKeyFile(dir)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		wantMsg string
	}{
		{"missing file", filepath.Join(dir, "nope"), "Can't read SSH key"},
		{"not a key", garbage, "Can't parse SSH key"},
		{"passphrase protected", encrypted, "encrypted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sshutil.LoadCredentials("pu22", tt.path)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}

	_, err = sshutil.LoadCredentials("pu22", encrypted)
	var encErr *sshutil.EncryptedKeyError
	require.True(t, stderrors.As(err, &encErr))
	assert.Equal(t, encrypted, encErr.Path)
	assert.Contains(t, encErr.Suggestion(), "ssh-keygen -p")
}

func TestNewCredentials(t *testing.T) {
	signer, err := sshtest.GenerateSigner()
	require.NoError(t, err)

	creds := sshutil.NewCredentials("pu22", signer)
	assert.Equal(t, signer.PublicKey().Marshal(), creds.PublicKey().Marshal())
}
