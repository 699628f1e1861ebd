package config

import (
	"time"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .gpufleet.yaml configuration file.
type Config struct {
	Version int `yaml:"version" mapstructure:"version"`

	// User and Key are the login used on jump hosts and targets alike.
	User string `yaml:"user" mapstructure:"user"`
	Key  string `yaml:"key" mapstructure:"key"`

	// Domain is appended to target names that have no dot in them.
	Domain string `yaml:"domain,omitempty" mapstructure:"domain"`

	// Port is the SSH port on targets.
	Port int `yaml:"port" mapstructure:"port"`

	// JumpHosts are tried in order for every target.
	// Each entry is a hostname, host:port, or an ~/.ssh/config alias.
	JumpHosts []string `yaml:"jump_hosts" mapstructure:"jump_hosts"`

	// Targets are the GPU machines to poll. Entries may use a numeric
	// range pattern like gpu{25..36}.
	Targets []string `yaml:"targets" mapstructure:"targets"`

	// MaxParallel caps concurrent targets. 0 means one goroutine per target.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel"`

	// DialRate caps new handshakes per second on each jump host. 0 is unlimited.
	DialRate float64 `yaml:"dial_rate" mapstructure:"dial_rate"`

	Timeouts TimeoutConfig `yaml:"timeouts" mapstructure:"timeouts"`
	HostKey  HostKeyConfig `yaml:"host_key" mapstructure:"host_key"`

	// SSHConfig is the ssh_config file used to resolve jump host aliases.
	SSHConfig string `yaml:"ssh_config,omitempty" mapstructure:"ssh_config"`
}

// TimeoutConfig holds one timeout per stage of reaching a target.
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect" mapstructure:"connect"`
	Channel time.Duration `yaml:"channel" mapstructure:"channel"`
	Auth    time.Duration `yaml:"auth" mapstructure:"auth"`
	Command time.Duration `yaml:"command" mapstructure:"command"`
}

// HostKeyConfig controls server host key verification.
type HostKeyConfig struct {
	// Policy is "tofu", "strict", or "ignore".
	Policy     string `yaml:"policy" mapstructure:"policy"`
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:   CurrentConfigVersion,
		Key:       "~/.ssh/id_rsa",
		Port:      22,
		JumpHosts: []string{},
		Targets:   []string{},
		Timeouts: TimeoutConfig{
			Connect: 10 * time.Second,
			Channel: 10 * time.Second,
			Auth:    10 * time.Second,
			Command: 15 * time.Second,
		},
		HostKey: HostKeyConfig{
			Policy:     "tofu",
			KnownHosts: "~/.ssh/known_hosts",
		},
		SSHConfig: "~/.ssh/config",
	}
}
