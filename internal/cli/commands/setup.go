package commands

import (
	"fmt"
	"log/slog"

	"github.com/conciliate-app/wrapkit/internal/cli/output"
	"github.com/conciliate-app/wrapkit/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Fs       afero.Fs
	Renderer *output.Renderer
}

// NewCommandContext collects the config and logger stored on the command
// context by the root command.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Fs:       afero.NewOsFs(),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}, nil
}
