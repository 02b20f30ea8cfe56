package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/avlk/oppc-aux-sw/cmd/config"
	"github.com/avlk/oppc-aux-sw/cmd/design"
	"github.com/avlk/oppc-aux-sw/cmd/replay"
	"github.com/avlk/oppc-aux-sw/cmd/simulate"
	"github.com/avlk/oppc-aux-sw/cmd/version"
	"github.com/avlk/oppc-aux-sw/internal/buildinfo"
	"github.com/avlk/oppc-aux-sw/internal/conf"
	"github.com/avlk/oppc-aux-sw/internal/errors"
	"github.com/avlk/oppc-aux-sw/internal/logging"
)

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand that needs it runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configPath string
	var closeLog func() error

	rootCmd := &cobra.Command{
		Use:           "oppc",
		Short:         "Dual-channel optical particle sensor signal chain",
		Long:          "Decimate, detect and correlate the two channels of an optical particle sensor.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configPath); err != nil {
		panic(err)
	}

	versionCmd := version.Command(build)
	subcommands := []*cobra.Command{
		simulate.Command(settings),
		replay.Command(settings),
		design.Command(settings),
		config.Command(settings),
		versionCmd,
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for the version command
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		var err error
		closeLog, err = initialize(settings, configPath)
		return err
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if closeLog == nil {
			return nil
		}
		return closeLog()
	}

	return rootCmd
}

// initialize loads the configuration and sets up logging and error
// reporting. The returned function closes the log file, if any.
func initialize(settings *conf.Settings, configPath string) (func() error, error) {
	loaded, err := conf.Load(viper.GetViper(), configPath)
	if err != nil {
		return nil, err
	}
	*settings = *loaded

	level := logging.ParseLevel(settings.Log.Level)
	if settings.Debug {
		level = slog.LevelDebug
	}

	var closeLog func() error
	if settings.Log.File != "" {
		closeLog, err = logging.InitFile(settings.Log.File, level, logging.Rotation{
			MaxSizeMB:  settings.Log.MaxSize,
			MaxBackups: settings.Log.MaxBackups,
			MaxAgeDays: settings.Log.MaxAge,
			Compress:   settings.Log.Compress,
		})
		if err != nil {
			return nil, errors.New(err).
				Component("cli").
				Category(errors.CategoryFileIO).
				Context("path", settings.Log.File).
				Build()
		}
	} else {
		logging.Init(logging.Options{Level: level, JSON: settings.Log.JSON})
	}

	// Errors built from here on are logged where they are created.
	errors.SetReporter(errors.ReporterFunc(func(ee *errors.EnhancedError) {
		slog.Debug("error built",
			"component", ee.GetComponent(),
			"category", ee.GetCategory(),
			"error", ee.Error(),
			"context", ee.GetContext())
	}))

	return closeLog, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configPath *string) error {
	rootCmd.PersistentFlags().StringVarP(configPath, "config", "c", "", "Path to the configuration file (default: search for oppc.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-file", "", "Write JSON logs to this rotated file instead of stderr")

	for key, flag := range map[string]string{
		"debug":     "debug",
		"log.level": "log-level",
		"log.file":  "log-file",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
