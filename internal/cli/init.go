package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/gpufleet/internal/config"
	"github.com/rileyhilliard/gpufleet/internal/errors"
	"github.com/rileyhilliard/gpufleet/internal/ui"
	"github.com/rileyhilliard/gpufleet/pkg/sshutil"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	User           string
	Key            string
	Domain         string
	JumpHosts      string // comma-separated
	Targets        string // comma-separated patterns, e.g. "gpu{25..36},ray01"
	Dir            string // where to write .gpufleet.yaml
	Overwrite      bool
	NonInteractive bool
}

var initOpts InitOptions

// initCmd creates a new .gpufleet.yaml configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .gpufleet.yaml configuration",
	Long: `Create a .gpufleet.yaml in the current directory.

Prompts for the SSH user and key, the jump hosts (aliases from
~/.ssh/config are offered) and the target machines. With
--non-interactive, or when CI is set, values come from flags and the
GPUFLEET_* environment variables instead.

Examples:
  gpufleet init
  gpufleet init --non-interactive --user pu22 \
    --jump-hosts shell1.doc.ic.ac.uk,shell2.doc.ic.ac.uk \
    --targets "gpu{25..36}" --domain doc.ic.ac.uk`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := initOpts
		applyInitDefaults(&opts)
		return Init(os.Stdout, opts)
	},
}

func init() {
	f := initCmd.Flags()
	f.StringVar(&initOpts.User, "user", "", "SSH user for jump hosts and targets")
	f.StringVar(&initOpts.Key, "key", "", "private key path")
	f.StringVar(&initOpts.Domain, "domain", "", "domain appended to bare target names")
	f.StringVar(&initOpts.JumpHosts, "jump-hosts", "", "jump hosts in priority order (comma-separated)")
	f.StringVar(&initOpts.Targets, "target-patterns", "", "targets to poll, e.g. gpu{25..36},ray01")
	f.BoolVarP(&initOpts.Overwrite, "force", "f", false, "overwrite existing config")
	f.BoolVar(&initOpts.NonInteractive, "non-interactive", false, "skip prompts, use flags and environment")
	rootCmd.AddCommand(initCmd)
}

// applyInitDefaults fills unset options from the environment.
func applyInitDefaults(opts *InitOptions) {
	if opts.User == "" {
		opts.User = firstNonEmpty(os.Getenv(config.EnvPrefix+"_USER"), os.Getenv("USER"))
	}
	if opts.Key == "" {
		opts.Key = firstNonEmpty(os.Getenv(config.EnvPrefix+"_KEY"), defaultKeyPath())
	}
	if opts.JumpHosts == "" {
		opts.JumpHosts = os.Getenv(config.EnvPrefix + "_JUMP_HOSTS")
	}
	if opts.Targets == "" {
		opts.Targets = os.Getenv(config.EnvPrefix + "_TARGETS")
	}
	if os.Getenv("CI") != "" {
		opts.NonInteractive = true
	}
}

// defaultKeyPath prefers an ed25519 key when one exists.
func defaultKeyPath() string {
	for _, name := range []string{"id_ed25519", "id_rsa"} {
		p := filepath.Join("~", ".ssh", name)
		if _, err := os.Stat(config.ExpandTilde(p)); err == nil {
			return p
		}
	}
	return "~/.ssh/id_rsa"
}

// Init writes a new config file from opts, prompting for anything missing
// unless NonInteractive is set.
func Init(out io.Writer, opts InitOptions) error {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	configPath := filepath.Join(dir, config.ConfigFileName)

	if _, err := os.Stat(configPath); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", configPath),
				"Use --force to overwrite")
		}

		var overwrite bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", config.ConfigFileName)).
				Value(&overwrite),
		))
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		opts.Overwrite = true
	}

	if !opts.NonInteractive {
		if err := promptInit(&opts); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Check terminal compatibility or use --non-interactive")
		}
	}

	cfg, err := buildInitConfig(opts)
	if err != nil {
		return err
	}

	if err := config.Write(configPath, cfg, opts.Overwrite); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to write config file: %s", configPath),
			"Check directory permissions, or use --force to replace an existing file")
	}

	fmt.Fprintf(out, "%s Created %s\n\n", ui.SymbolSuccess, configPath)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  gpufleet jumps   - Check the jump hosts")
	fmt.Fprintln(out, "  gpufleet         - Poll and rank the targets")
	return nil
}

// buildInitConfig turns answers into a validated config.
func buildInitConfig(opts InitOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.User = strings.TrimSpace(opts.User)
	if opts.Key != "" {
		cfg.Key = strings.TrimSpace(opts.Key)
	}
	cfg.Domain = strings.TrimSpace(opts.Domain)
	cfg.JumpHosts = splitList(opts.JumpHosts)
	cfg.Targets = splitPatterns(opts.Targets)

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitPatterns splits on commas outside braces, so "gpu{1..3},ray"
// stays two patterns.
func splitPatterns(s string) []string {
	var out []string
	depth, start := 0, 0
	flush := func(end int) {
		if p := strings.TrimSpace(s[start:end]); p != "" {
			out = append(out, p)
		}
	}
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(s))
	return out
}

func promptInit(opts *InitOptions) error {
	required := func(what string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", what)
			}
			return nil
		}
	}

	var picked []string
	groups := []*huh.Group{
		huh.NewGroup(
			huh.NewInput().
				Title("SSH user").
				Description("Used for jump hosts and targets").
				Value(&opts.User).
				Validate(required("user")),
			huh.NewInput().
				Title("Private key").
				Description("Passphrase-protected keys aren't supported").
				Value(&opts.Key).
				Validate(required("key")),
		),
	}

	if options := sshConfigOptions(); len(options) > 0 {
		groups = append(groups, huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Jump hosts from ~/.ssh/config").
				Description("Tried in the order listed. Add more on the next screen.").
				Options(options...).
				Value(&picked),
		))
	}

	groups = append(groups,
		huh.NewGroup(
			huh.NewInput().
				Title("Jump hosts").
				Description("Comma-separated, in priority order").
				Placeholder("shell1.doc.ic.ac.uk,shell2.doc.ic.ac.uk").
				Value(&opts.JumpHosts),
			huh.NewInput().
				Title("Targets").
				Description("Comma-separated names or ranges").
				Placeholder("gpu{25..36},ray01").
				Value(&opts.Targets).
				Validate(required("at least one target")),
			huh.NewInput().
				Title("Domain (optional)").
				Description("Appended to bare target names when dialing").
				Placeholder("doc.ic.ac.uk").
				Value(&opts.Domain),
		),
	)

	if err := huh.NewForm(groups...).Run(); err != nil {
		return err
	}

	if len(picked) > 0 {
		opts.JumpHosts = strings.Join(append(picked, splitList(opts.JumpHosts)...), ",")
	}
	if len(splitList(opts.JumpHosts)) == 0 {
		return fmt.Errorf("at least one jump host is required")
	}
	return nil
}

// sshConfigOptions lists ~/.ssh/config aliases as picker options.
func sshConfigOptions() []huh.Option[string] {
	entries, err := sshutil.ParseSSHConfigFile(sshutil.DefaultSSHConfigPath())
	if err != nil {
		return nil
	}
	options := make([]huh.Option[string], 0, len(entries))
	for _, e := range entries {
		label := e.Alias
		if desc := e.Description(); desc != e.Alias {
			label += " (" + desc + ")"
		}
		options = append(options, huh.NewOption(label, e.Alias))
	}
	return options
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
