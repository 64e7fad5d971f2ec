// Package cli provides the command-line interface for the esmvaltool
// driver.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalstack/esmvaltool/internal/cli/commands"
	"github.com/evalstack/esmvaltool/internal/cli/config"
	"github.com/evalstack/esmvaltool/internal/cli/output"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "esmvaltool [flags] <recipe>",
		Short: "Earth System Model evaluation driver",
		Long: `esmvaltool runs configuration-driven evaluations of Earth system
model output. A recipe file declares datasets, preprocessing pipelines,
and diagnostic scripts; the driver finds the input files, runs the
preprocessing for each variable, and executes the diagnostics in
dependency order.`,
		Version: Version,
		Args:    cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Help and completion work without configuration.
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			mode, err := output.ParseMode(cfg.OutputFormat)
			if err != nil {
				return err
			}
			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("loaded config file", "path", configFile)
			}

			cmd.SetContext(commands.NewContext(cmd.Context(), &commands.Context{
				Cfg:      cfg,
				Renderer: renderer,
				Logger:   logger,
			}))
			return nil
		},
		// The canonical form is `esmvaltool -c <config> <recipe>`:
		// the recipe is a positional argument on the root command.
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			if len(args) > 1 {
				return fmt.Errorf("expected one recipe, got %d arguments", len(args))
			}
			return commands.RunRecipe(cmd, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Earth System Model evaluation driver
`)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config-file", "c", "", "User configuration file (default: ./config-user.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warning|error)")
	rootCmd.PersistentFlags().String("output-dir", "", "Base directory for run outputs")
	rootCmd.PersistentFlags().Int("max-parallel-tasks", 0, "Maximum number of tasks to run concurrently")
	rootCmd.PersistentFlags().Bool("skip-nonexistent", false, "Skip datasets whose input files are missing instead of failing")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warning", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewCmorizeCommand())
	rootCmd.AddCommand(commands.NewEnvCommand())
	rootCmd.AddCommand(commands.NewSubmitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for esmvaltool.

To load completions:

Bash:
  $ source <(esmvaltool completion bash)

Zsh:
  $ esmvaltool completion zsh > "${fpath[1]}/_esmvaltool"

Fish:
  $ esmvaltool completion fish | source

PowerShell:
  PS> esmvaltool completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
}
