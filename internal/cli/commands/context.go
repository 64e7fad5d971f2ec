// Package commands implements the esmvaltool subcommands.
package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalstack/esmvaltool/internal/cli/config"
	"github.com/evalstack/esmvaltool/internal/cli/output"
)

// cmdContextKey stores the command context in the cobra context.
type cmdContextKey struct{}

// Context carries the loaded configuration and shared collaborators
// into command implementations.
type Context struct {
	Cfg      *config.Config
	Renderer *output.Renderer
	Logger   *slog.Logger
}

// NewContext attaches the command context.
func NewContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, cmdContextKey{}, c)
}

// FromCommand retrieves the command context, falling back to safe
// defaults so commands remain testable in isolation.
func FromCommand(cmd *cobra.Command) *Context {
	if c, ok := cmd.Context().Value(cmdContextKey{}).(*Context); ok {
		return c
	}
	return &Context{
		Cfg: &config.Config{
			OutputDir:        config.DefaultOutputDir,
			MaxParallelTasks: config.DefaultMaxParallelTasks,
			LogLevel:         config.DefaultLogLevel,
			OutputFormat:     config.DefaultOutputFormat,
		},
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeAuto),
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
}
