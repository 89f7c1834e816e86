// Package cli holds the phasebusd command tree.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"phasebus/internal/config"
)

// Options holds the persistent flags shared by every subcommand.
type Options struct {
	ConfigPath string
	LogLevel   string
}

// Run executes the command tree with args. It returns an error instead of
// exiting, enabling reuse from tests.
func Run(args []string, stdout, stderr io.Writer) error {
	root := buildRootCmd(&Options{})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func buildRootCmd(opts *Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "phasebusd",
		Short:         "Phase-ordered event bus host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", os.Getenv("PHASEBUS_CONFIG"), "Config file (.yaml, .json, .toml); defaults PHASEBUS_CONFIG")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level: trace|debug|info|warn|error (overrides config)")

	root.AddCommand(newServeCmd(opts), newDemoCmd(opts), newConfigCmd(opts))

	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	root.AddCommand(completionCmd)

	return root
}

// loadConfig resolves the effective configuration: file, then PHASEBUS_*
// environment, then flags, then defaults.
func loadConfig(opts *Options) (config.Config, error) {
	var cfg config.Config
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newConfigCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "config",
		Short:   "Print the effective configuration as YAML",
		Example: "  phasebusd config --config phasebus.yaml",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
