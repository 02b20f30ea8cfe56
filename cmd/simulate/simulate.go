package simulate

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/avlk/oppc-aux-sw/cmd/flags"
	"github.com/avlk/oppc-aux-sw/internal/analysis"
	"github.com/avlk/oppc-aux-sw/internal/conf"
)

// Command creates the simulate command, which runs the signal chain against
// a synthetic pulse train with a known channel delay.
func Command(settings *conf.Settings) *cobra.Command {
	var run flags.Run
	sim := analysis.SimulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the signal chain on a synthetic pulse train",
		Long: `Generate a periodic pulse train on channel A and the same train delayed on
channel B, run it through the signal chain and print the correlation
results. The correlator should report the configured delay.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run.Apply(cmd, settings); err != nil {
				return err
			}
			run.Options.Out = cmd.OutOrStdout()
			_, err := analysis.Simulate(cmd.Context(), settings, sim, run.Options)
			return err
		},
	}

	run.Setup(cmd)
	setupFlags(cmd, &sim)

	return cmd
}

// setupFlags configures flags specific to the simulate command.
func setupFlags(cmd *cobra.Command, sim *analysis.SimulateOptions) {
	cmd.Flags().DurationVar(&sim.Delay, "delay", 4200*time.Microsecond, "Delay of channel B behind channel A")
	cmd.Flags().DurationVar(&sim.Period, "period", 12*time.Millisecond, "Pulse repetition period")
	cmd.Flags().DurationVar(&sim.Width, "width", 2400*time.Microsecond, "Pulse width")
	cmd.Flags().Uint16Var(&sim.Baseline, "baseline", 1000, "Idle level in ADC counts")
	cmd.Flags().Uint16Var(&sim.Amplitude, "amplitude", 400, "Pulse height above the baseline in ADC counts")
	cmd.Flags().Float64Var(&sim.Noise, "noise", 0, "Gaussian noise deviation in ADC counts")
	cmd.Flags().DurationVar(&sim.Duration, "duration", 2*time.Second, "Signal length, 0 runs until interrupted")
	cmd.Flags().BoolVar(&sim.Realtime, "realtime", false, "Pace blocks at the acquisition rate and drop on a full pool")
	cmd.Flags().Uint64Var(&sim.Seed, "seed", 1, "Noise generator seed")
	cmd.Flags().StringVar(&sim.Record, "record", "", "Record delivered blocks to this WAV file")
}
