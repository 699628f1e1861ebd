package sshutil

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// Endpoint is a resolved SSH address.
type Endpoint struct {
	Alias    string // what the user wrote
	Hostname string
	Port     int
}

// Address returns host:port for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Hostname, strconv.Itoa(e.Port))
}

// DefaultSSHConfigPath returns ~/.ssh/config.
func DefaultSSHConfigPath() string {
	return filepath.Join(homeDir(), ".ssh", "config")
}

// SSHConfig is a decoded SSH config used to resolve jump host aliases.
// A nil *SSHConfig resolves nothing.
type SSHConfig struct {
	cfg *ssh_config.Config
}

// LoadSSHConfig reads and decodes the SSH config at configPath once.
// An empty path or a missing, unreadable or malformed config yields nil.
func LoadSSHConfig(configPath string) *SSHConfig {
	if configPath == "" {
		return nil
	}
	content, _, err := preprocessSSHConfig(configPath)
	if err != nil {
		return nil
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil
	}
	return &SSHConfig{cfg: cfg}
}

// Resolve turns "alias", "host" or "host:port" into an Endpoint.
// HostName and Port from the config apply to bare aliases; an explicit
// port in host always wins.
func (c *SSHConfig) Resolve(host string, defaultPort int) Endpoint {
	ep := Endpoint{Alias: host, Hostname: host, Port: defaultPort}

	explicitPort := false
	if h, p, err := net.SplitHostPort(host); err == nil {
		if port, perr := strconv.Atoi(p); perr == nil {
			ep.Hostname = h
			ep.Port = port
			explicitPort = true
		}
	}

	if c == nil {
		return ep
	}

	alias := ep.Hostname
	if hostname, _ := c.cfg.Get(alias, "HostName"); hostname != "" {
		ep.Hostname = hostname
	}
	if !explicitPort {
		if p, _ := c.cfg.Get(alias, "Port"); p != "" {
			if port, perr := strconv.Atoi(p); perr == nil {
				ep.Port = port
			}
		}
	}
	return ep
}

// SSHHostEntry represents a parsed host entry from SSH config.
type SSHHostEntry struct {
	Alias        string // The Host pattern (alias)
	Hostname     string // The HostName value (actual host to connect to)
	User         string
	Port         string
	IdentityFile string
}

// Description returns a short human description of the host.
func (h SSHHostEntry) Description() string {
	parts := []string{}

	if h.Hostname != "" && h.Hostname != h.Alias {
		parts = append(parts, h.Hostname)
	}
	if h.User != "" {
		parts = append(parts, "user: "+h.User)
	}
	if h.Port != "" && h.Port != "22" {
		parts = append(parts, "port: "+h.Port)
	}

	if len(parts) == 0 {
		return h.Alias
	}
	return strings.Join(parts, ", ")
}

// ParseSSHConfigFile parses the SSH config at configPath and returns its
// concrete host aliases sorted by name. Wildcard patterns are skipped.
// A missing file yields no entries and no error.
func ParseSSHConfigFile(configPath string) ([]SSHHostEntry, error) {
	content, _, err := preprocessSSHConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var hosts []SSHHostEntry
	seen := make(map[string]bool)

	for _, host := range cfg.Hosts {
		for _, pattern := range host.Patterns {
			alias := pattern.String()
			if strings.ContainsAny(alias, "*?") || seen[alias] {
				continue
			}
			seen[alias] = true

			entry := SSHHostEntry{Alias: alias}
			entry.Hostname, _ = cfg.Get(alias, "HostName")
			entry.User, _ = cfg.Get(alias, "User")
			entry.Port, _ = cfg.Get(alias, "Port")
			if identity, _ := cfg.Get(alias, "IdentityFile"); identity != "" {
				entry.IdentityFile = expandPath(identity)
			}
			hosts = append(hosts, entry)
		}
	}

	sort.Slice(hosts, func(i, j int) bool {
		return hosts[i].Alias < hosts[j].Alias
	})
	return hosts, nil
}

// preprocessSSHConfig returns the config content up to the first Match
// directive, which ssh_config can't parse, and the 1-indexed line it was
// found on (0 if none).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
