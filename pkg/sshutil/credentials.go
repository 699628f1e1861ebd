package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/gpufleet/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Credentials is the username and parsed private key shared by every
// connection attempt in a poll. The key is read once.
type Credentials struct {
	User    string
	KeyPath string
	signer  ssh.Signer
}

// LoadCredentials reads and parses the private key at keyPath.
// An unreadable or passphrase-protected key is a config error.
func LoadCredentials(user, keyPath string) (*Credentials, error) {
	keyPath = expandPath(keyPath)

	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't read SSH key %s", keyPath),
			"Set 'key' in .gpufleet.yaml to a readable private key file")
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		if isEncryptedKey(err, data) {
			encErr := &EncryptedKeyError{Path: keyPath}
			return nil, errors.WrapWithCode(encErr, errors.ErrConfig,
				encErr.Error(), encErr.Suggestion())
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't parse SSH key %s", keyPath),
			"Make sure the file is an OpenSSH or PEM private key")
	}

	return &Credentials{User: user, KeyPath: keyPath, signer: signer}, nil
}

// NewCredentials builds Credentials from an already parsed signer.
func NewCredentials(user string, signer ssh.Signer) *Credentials {
	return &Credentials{User: user, signer: signer}
}

// PublicKey returns the public half of the loaded key.
func (c *Credentials) PublicKey() ssh.PublicKey {
	return c.signer.PublicKey()
}

func (c *Credentials) clientConfig(hostKeys ssh.HostKeyCallback, hostKeyAlgos []string) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:              c.User,
		Auth:              []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback:   hostKeys,
		HostKeyAlgorithms: hostKeyAlgos,
	}
}

func isEncryptedKey(err error, data []byte) bool {
	var missing *ssh.PassphraseMissingError
	if stderrors.As(err, &missing) {
		return true
	}
	return strings.Contains(err.Error(), "encrypted") ||
		strings.Contains(err.Error(), "passphrase") ||
		bytes.Contains(data, []byte("ENCRYPTED"))
}
