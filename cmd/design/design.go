package design

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/avlk/oppc-aux-sw/internal/analysis"
	"github.com/avlk/oppc-aux-sw/internal/conf"
)

// Command creates the design command, which prints the filter chain and
// correlator geometry of the effective configuration.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "design",
		Short: "Print the filter chain design",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := analysis.NewDesign(settings)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			return analysis.WriteDesign(cmd.OutOrStdout(), d)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the design as JSON")

	return cmd
}
