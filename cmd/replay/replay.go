package replay

import (
	"github.com/spf13/cobra"

	"github.com/avlk/oppc-aux-sw/cmd/flags"
	"github.com/avlk/oppc-aux-sw/internal/analysis"
	"github.com/avlk/oppc-aux-sw/internal/conf"
)

// Command creates the replay command for stereo WAV recordings.
func Command(settings *conf.Settings) *cobra.Command {
	var run flags.Run
	var realtime bool

	cmd := &cobra.Command{
		Use:   "replay [input.wav]",
		Short: "Run the signal chain on a stereo WAV recording",
		Long:  "Replay a recording with channel A on the left and channel B on the right.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run.Apply(cmd, settings); err != nil {
				return err
			}
			run.Options.Out = cmd.OutOrStdout()
			_, err := analysis.Replay(cmd.Context(), settings, args[0], realtime, run.Options)
			return err
		},
	}

	run.Setup(cmd)
	cmd.Flags().BoolVar(&realtime, "realtime", false, "Pace blocks at the recording rate and drop on a full pool")

	return cmd
}
