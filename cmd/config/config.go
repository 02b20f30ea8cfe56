package config

import (
	"github.com/spf13/cobra"

	"github.com/avlk/oppc-aux-sw/internal/conf"
)

// Command creates the config command, which prints the effective
// configuration as YAML.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print defaults merged with the config file and OPPC_* environment variables, in the layout the config file uses.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return conf.Dump(cmd.OutOrStdout(), settings)
		},
	}
}
