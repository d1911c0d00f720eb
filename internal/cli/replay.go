package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/replay"
)

type viewportFlags struct {
	width  float64
	height float64
	margin float64
}

func (v *viewportFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&v.width, "width", 1920, "viewport width in pixels")
	cmd.Flags().Float64Var(&v.height, "height", 1080, "viewport height in pixels")
	cmd.Flags().Float64Var(&v.margin, "margin", focus.DefaultMarginRatio, "tolerance margin as a fraction of each dimension")
}

func newReplayCmd() *cobra.Command {
	var (
		vp      viewportFlags
		policy  string
		history int
	)
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Replay a JSON-lines gaze log and print the attention summary",
		Long: `Replay reads one gaze sample (or an array of samples) per line, classifies
each against the viewport bounds and prints the resulting summary as JSON.
Files ending in .zst are decompressed transparently.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := focus.ParseResetPolicy(policy)
			if err != nil {
				return err
			}
			f, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := replay.Run(f, replay.Options{Width: vp.width, Height: vp.height, MarginRatio: vp.margin, Policy: p, HistorySize: history})
			if err != nil {
				return err
			}
			loggerFrom(cmd.Context()).Debug("replay finished",
				zap.String("file", args[0]),
				zap.Int("samples", res.Samples),
				zap.Int("transitions", res.Transitions))
			return writeJSON(cmd, res)
		},
	}
	vp.register(cmd)
	cmd.Flags().StringVar(&policy, "reset", string(focus.ResetAccumulate), "reset policy: accumulate or reset")
	cmd.Flags().IntVar(&history, "history", focus.DefaultHistorySize, "number of recent samples kept by the monitor")
	return cmd
}

func newBoundsCmd() *cobra.Command {
	var vp viewportFlags
	cmd := &cobra.Command{
		Use:   "bounds",
		Short: "Print the tolerance bounds for a viewport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if vp.width <= 0 || vp.height <= 0 {
				return fmt.Errorf("viewport must be positive, got %vx%v", vp.width, vp.height)
			}
			return writeJSON(cmd, focus.NewBoundsWithMargin(vp.width, vp.height, vp.margin))
		},
	}
	vp.register(cmd)
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
