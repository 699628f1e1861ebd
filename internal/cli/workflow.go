package cli

import (
	"fmt"
	"time"

	"github.com/rileyhilliard/gpufleet/internal/config"
	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/fleet"
	"github.com/rileyhilliard/gpufleet/internal/gpu"
	"github.com/rileyhilliard/gpufleet/internal/host"
	"github.com/rileyhilliard/gpufleet/internal/logger"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

// WorkflowOptions configures workflow setup behavior.
type WorkflowOptions struct {
	Targets        string        // comma-separated subset of configured targets
	ConnectTimeout time.Duration // overrides timeouts.connect when set
	CommandTimeout time.Duration // overrides timeouts.command when set
	Events         host.EventHandler
}

// WorkflowContext holds everything a poll needs, built once before any
// connection is attempted.
type WorkflowContext struct {
	Config    *config.Config
	Targets   []host.Target
	Selector  *host.Selector
	Collector *fleet.Collector
	Log       logger.Logger
}

// SetupWorkflow loads and validates config, reads the key and host key
// database, and wires the selector and collector. Every error it returns
// is an ErrConfig: nothing has been dialed yet.
func SetupWorkflow(opts WorkflowOptions) (*WorkflowContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if opts.ConnectTimeout > 0 {
		cfg.Timeouts.Connect = opts.ConnectTimeout
	}
	if opts.CommandTimeout > 0 {
		cfg.Timeouts.Command = opts.CommandTimeout
	}

	targets, err := host.TargetsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	targets, err = host.Filter(targets, splitList(opts.Targets))
	if err != nil {
		return nil, err
	}

	sshOpts, creds, err := sshSetup(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.Default()

	selector := host.NewSelector(cfg.JumpHosts, &host.TunnelBuilder{Creds: creds, Options: sshOpts})
	selector.SetLogger(log)
	selector.SetDialRate(cfg.DialRate)
	if opts.Events != nil {
		selector.SetEventHandler(opts.Events)
	}

	collector := fleet.NewCollector(selector, gpu.NewProber(cfg.Timeouts.Command, log))
	collector.SetMaxParallel(cfg.MaxParallel)
	collector.SetLogger(log)

	return &WorkflowContext{
		Config:    cfg,
		Targets:   targets,
		Selector:  selector,
		Collector: collector,
		Log:       log,
	}, nil
}

// sshSetup turns config into tunnel options and credentials.
func sshSetup(cfg *config.Config) (sshutil.Options, *sshutil.Credentials, error) {
	creds, err := sshutil.LoadCredentials(cfg.User, cfg.Key)
	if err != nil {
		return sshutil.Options{}, nil, err
	}

	store, err := sshutil.NewHostKeyStore(sshutil.HostKeyPolicy(cfg.HostKey.Policy), cfg.HostKey.KnownHosts)
	if err != nil {
		return sshutil.Options{}, nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't use known_hosts file %s", cfg.HostKey.KnownHosts),
			"Check host_key.known_hosts in .gpufleet.yaml, or set host_key.policy to ignore")
	}

	opts := sshutil.Options{
		Port:           cfg.Port,
		ConnectTimeout: cfg.Timeouts.Connect,
		ChannelTimeout: cfg.Timeouts.Channel,
		AuthTimeout:    cfg.Timeouts.Auth,
		HostKeys:       store.Callback(),
		SSHConfig:      sshutil.LoadSSHConfig(config.ExpandTilde(cfg.SSHConfig)),

		HostKeyAlgorithms: store.Algorithms,
	}
	return opts, creds, nil
}
