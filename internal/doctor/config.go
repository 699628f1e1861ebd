package doctor

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/gpufleet/internal/config"
	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/util"
)

// ConfigFileCheck verifies that a config file can be found.
type ConfigFileCheck struct {
	ConfigPath string // explicit path, or empty to search
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return CategoryConfig }

func (c *ConfigFileCheck) Run(context.Context) CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("Error finding config: %s", errors.MessageOf(err)),
			Suggestion: errors.SuggestionOf(err),
		}
	}
	if path == "" {
		return CheckResult{
			Status:     StatusWarn,
			Message:    "No config file found, using environment only",
			Suggestion: "Run 'gpufleet init' to create a .gpufleet.yaml config file",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("Config file: %s", path)}
}

// ConfigValidCheck loads and validates the config. Cfg is set when the
// config is usable so later checks can share it.
type ConfigValidCheck struct {
	ConfigPath string
	Cfg        *config.Config
}

func (c *ConfigValidCheck) Name() string     { return "config_valid" }
func (c *ConfigValidCheck) Category() string { return CategoryConfig }

func (c *ConfigValidCheck) Run(context.Context) CheckResult {
	cfg, _, err := config.FindAndLoad(c.ConfigPath)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    errors.MessageOf(err),
			Suggestion: errors.SuggestionOf(err),
		}
	}
	c.Cfg = cfg

	targets, _ := config.ExpandTargets(cfg.Targets)
	return CheckResult{
		Status: StatusPass,
		Message: fmt.Sprintf("%s through %s",
			util.CountNoun(len(targets), "target", "targets"), util.CountNoun(len(cfg.JumpHosts), "jump host", "jump hosts")),
	}
}
