// Package flags holds the flags shared by the commands that run the signal
// chain.
package flags

import (
	"github.com/spf13/cobra"

	"github.com/avlk/oppc-aux-sw/internal/analysis"
	"github.com/avlk/oppc-aux-sw/internal/conf"
)

// Run holds the shared run flags.
type Run struct {
	Options analysis.Options
	Trigger string
	Events  bool
	Metrics bool
}

// Setup registers the shared run flags on cmd.
func (r *Run) Setup(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&r.Options.Format, "format", "f", "table", "Output format: table, csv, json")
	cmd.Flags().StringVarP(&r.Options.OutFile, "out", "o", "", "Append notes to this file instead of stdout")
	cmd.Flags().BoolVar(&r.Options.Objects, "objects", false, "Print every detected object")
	cmd.Flags().BoolVar(&r.Options.Summary, "summary", true, "Print run statistics and metrics when done")
	cmd.Flags().StringVar(&r.Options.TapFile, "tap", "", "Arm the debug tap and append its records to this file")
	cmd.Flags().DurationVar(&r.Options.Drain, "drain", 0, "Wait at most this long for the chain to empty after the source ends")
	cmd.Flags().StringVar(&r.Trigger, "trigger", "", "Correlation trigger: periodic, detector, both")
	cmd.Flags().BoolVar(&r.Events, "events", false, "Run the event correlator")
	cmd.Flags().BoolVar(&r.Metrics, "metrics", true, "Collect Prometheus metrics for the summary")
}

// Apply copies the flags the user set onto settings and validates the
// result.
func (r *Run) Apply(cmd *cobra.Command, settings *conf.Settings) error {
	if cmd.Flags().Changed("trigger") {
		settings.Correlator.Trigger = r.Trigger
	}
	if cmd.Flags().Changed("events") {
		settings.Events.Enabled = r.Events
	}
	if cmd.Flags().Changed("metrics") {
		settings.Metrics.Enabled = r.Metrics
	}
	return conf.ValidateSettings(settings)
}
