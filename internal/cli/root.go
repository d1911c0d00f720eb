// Package cli implements the focusctl commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

// NewRootCmd builds the focusctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "focusctl",
		Short: "Offline tools for gaze attention tracking",
		Long: `focusctl replays recorded gaze logs through the same focus monitor the
server runs, and prints the tolerance bounds for a viewport.`,
		SilenceUsage: true,
	}
	root.AddCommand(newReplayCmd())
	root.AddCommand(newBoundsCmd())
	return root
}

// Execute runs the command tree with logger available to subcommands.
func Execute(ctx context.Context, logger *zap.Logger, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(context.WithValue(ctx, loggerKey, logger))
}

func loggerFrom(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}
