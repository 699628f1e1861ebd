package sshutil

import (
	"bytes"
	"crypto/ed25519"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy selects how server host keys are checked.
type HostKeyPolicy string

const (
	// HostKeyTOFU accepts and records unknown hosts, rejects changed keys.
	HostKeyTOFU HostKeyPolicy = "tofu"
	// HostKeyStrict only accepts hosts already in known_hosts.
	HostKeyStrict HostKeyPolicy = "strict"
	// HostKeyIgnore skips verification entirely.
	HostKeyIgnore HostKeyPolicy = "ignore"
)

// Valid reports whether p is a known policy.
func (p HostKeyPolicy) Valid() bool {
	switch p {
	case HostKeyTOFU, HostKeyStrict, HostKeyIgnore:
		return true
	}
	return false
}

// HostKeyStore verifies host keys against a known_hosts file. One store is
// shared by every connection in a poll, jump hosts and targets alike.
type HostKeyStore struct {
	policy HostKeyPolicy
	path   string
	db     ssh.HostKeyCallback

	mu       sync.Mutex
	accepted map[string]ssh.PublicKey
}

// NewHostKeyStore loads knownHostsPath for the given policy. The file is
// created if missing unless the policy is ignore.
func NewHostKeyStore(policy HostKeyPolicy, knownHostsPath string) (*HostKeyStore, error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown host key policy %q", policy)
	}
	s := &HostKeyStore{
		policy:   policy,
		path:     expandPath(knownHostsPath),
		accepted: make(map[string]ssh.PublicKey),
	}
	if policy == HostKeyIgnore {
		return s, nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts directory: %w", err)
		}
		if err := os.WriteFile(s.path, []byte{}, 0600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	db, err := knownhosts.New(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	s.db = db
	return s, nil
}

// Callback returns the ssh.HostKeyCallback backed by this store.
func (s *HostKeyStore) Callback() ssh.HostKeyCallback {
	if s.policy == HostKeyIgnore {
		return ssh.InsecureIgnoreHostKey() //nolint:gosec // explicitly configured
	}
	return s.check
}

// Algorithms returns the host key algorithms to offer when connecting to
// hostport, limited to the key types already known for it. The ssh package
// otherwise prefers ECDSA over ed25519, so a host recorded only by its
// ed25519 key would present a key that looks changed. Nil means nothing is
// known and the package defaults apply.
func (s *HostKeyStore) Algorithms(hostport string) []string {
	if s.policy == HostKeyIgnore {
		return nil
	}
	normalized := knownhosts.Normalize(hostport)

	s.mu.Lock()
	defer s.mu.Unlock()

	if known, ok := s.accepted[normalized]; ok {
		return keyAlgorithms([]knownhosts.KnownKey{{Key: known}})
	}

	// knownhosts only reveals recorded keys through a mismatch, so look up
	// with a key no host holds.
	placeholder, err := ssh.NewPublicKey(ed25519.PublicKey(make([]byte, ed25519.PublicKeySize)))
	if err != nil {
		return nil
	}
	var keyErr *knownhosts.KeyError
	if !stderrors.As(s.db(hostport, &net.TCPAddr{IP: net.IPv4zero}, placeholder), &keyErr) {
		return nil
	}
	return keyAlgorithms(keyErr.Want)
}

// keyAlgorithms maps known keys to the algorithms that verify them. RSA keys
// sign with any of the rsa-sha2 variants or legacy ssh-rsa.
func keyAlgorithms(keys []knownhosts.KnownKey) []string {
	seen := make(map[string]bool)
	var algos []string
	for _, k := range keys {
		names := []string{k.Key.Type()}
		if k.Key.Type() == ssh.KeyAlgoRSA {
			names = []string{ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSA}
		}
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				algos = append(algos, name)
			}
		}
	}
	sort.SliceStable(algos, func(i, j int) bool {
		return algoRank(algos[i]) < algoRank(algos[j])
	})
	return algos
}

// algoRank orders ed25519 first, then ECDSA, then RSA.
func algoRank(algo string) int {
	switch algo {
	case ssh.KeyAlgoED25519:
		return 0
	case ssh.KeyAlgoECDSA256, ssh.KeyAlgoECDSA384, ssh.KeyAlgoECDSA521:
		return 1
	case ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSA:
		return 2
	}
	return 3
}

func (s *HostKeyStore) check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	normalized := knownhosts.Normalize(hostname)

	s.mu.Lock()
	defer s.mu.Unlock()

	if known, ok := s.accepted[normalized]; ok {
		if bytes.Equal(known.Marshal(), key.Marshal()) {
			return nil
		}
		return &HostKeyMismatchError{
			Hostname:     hostname,
			ReceivedType: key.Type(),
			KnownHosts:   s.path,
			Want:         []knownhosts.KnownKey{{Key: known, Filename: s.path}},
		}
	}

	err := s.db(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !stderrors.As(err, &keyErr) {
		return err
	}
	if len(keyErr.Want) > 0 {
		return &HostKeyMismatchError{
			Hostname:     hostname,
			ReceivedType: key.Type(),
			KnownHosts:   s.path,
			Want:         keyErr.Want,
		}
	}

	if s.policy == HostKeyStrict {
		return &UnknownHostError{Hostname: hostname, KnownHosts: s.path}
	}
	if err := s.appendLocked(normalized, key); err != nil {
		return err
	}
	s.accepted[normalized] = key
	return nil
}

func (s *HostKeyStore) appendLocked(normalized string, key ssh.PublicKey) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to record host key for %s: %w", normalized, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, knownhosts.Line([]string{normalized}, key)); err != nil {
		return fmt.Errorf("failed to record host key for %s: %w", normalized, err)
	}
	return nil
}
