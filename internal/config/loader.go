package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".gpufleet.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/gpufleet"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. GPUFLEET_USER.
	EnvPrefix = "GPUFLEET"
)

// envKeys are the settings that can come from the environment alone.
var envKeys = []string{"user", "key", "domain", "jump_hosts", "targets"}

// Load reads config from the specified path. Environment variables
// (GPUFLEET_USER, GPUFLEET_JUMP_HOSTS, ...) override file values; a .env
// file in the working directory is read first if present.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'gpufleet init' to create a config file, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// LoadEnvOnly builds a config from defaults and environment variables.
// Used when no config file exists.
func LoadEnvOnly() (*Config, error) {
	return parseConfig(newViper(), "environment")
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .gpufleet.yaml in current directory
// 3. .gpufleet.yaml in parent directories (stops at git root or home)
// 4. ~/.config/gpufleet/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	home, _ := os.UserHomeDir()
	dir := cwd
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		if home != "" && parent == home {
			break
		}
		dir = parent

		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
	}

	if home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// FindAndLoad finds the config (see Find) and loads it. With no config
// file it falls back to environment variables.
func FindAndLoad(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		cfg, err := LoadEnvOnly()
		return cfg, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func newViper() *viper.Viper {
	// Missing .env is normal.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, source string) (*Config, error) {
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+source)
	}

	cfg.JumpHosts = splitList(cfg.JumpHosts)
	cfg.Targets = splitList(cfg.Targets)
	cfg.Key = ExpandTilde(cfg.Key)
	cfg.HostKey.KnownHosts = ExpandTilde(cfg.HostKey.KnownHosts)
	cfg.SSHConfig = ExpandTilde(cfg.SSHConfig)

	return cfg, nil
}

// setDefaults registers defaults with viper so env-only keys and nested
// durations merge the same way file values do.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("version", cfg.Version)
	v.SetDefault("key", cfg.Key)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("timeouts.connect", cfg.Timeouts.Connect.String())
	v.SetDefault("timeouts.channel", cfg.Timeouts.Channel.String())
	v.SetDefault("timeouts.auth", cfg.Timeouts.Auth.String())
	v.SetDefault("timeouts.command", cfg.Timeouts.Command.String())
	v.SetDefault("host_key.policy", cfg.HostKey.Policy)
	v.SetDefault("host_key.known_hosts", cfg.HostKey.KnownHosts)
	v.SetDefault("ssh_config", cfg.SSHConfig)
}

// splitList trims entries and splits any comma-joined ones, which is how
// list values arrive from the environment.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
