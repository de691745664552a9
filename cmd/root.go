package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/notematch/cmd/compare"
	configcmd "github.com/tphakala/notematch/cmd/config"
	"github.com/tphakala/notematch/cmd/devices"
	"github.com/tphakala/notematch/cmd/file"
	"github.com/tphakala/notematch/cmd/inspect"
	"github.com/tphakala/notematch/internal/buildinfo"
	"github.com/tphakala/notematch/internal/conf"
	"github.com/tphakala/notematch/internal/errors"
	"github.com/tphakala/notematch/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "notematch",
		Short:         "Compare played notes against a score",
		Long:          "Listens to a microphone or recording and reports which notes of a score were played in time.",
		Version:       info.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(info.String() + "\n")

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	configCmd := configcmd.Command()
	subcommands := []*cobra.Command{
		compare.Command(),
		file.Command(),
		devices.Command(),
		inspect.Command(),
		configCmd,
	}
	rootCmd.AddCommand(subcommands...)

	var sentryEnabled bool
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// The default config must be printable even when the local one is broken.
		if cmd.Name() == configCmd.Name() {
			return nil
		}
		settings, err := initialize(configFile, info)
		if err != nil {
			return err
		}
		sentryEnabled = settings.Sentry.Enabled
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if sentryEnabled {
			errors.FlushSentry(sentryFlushTimeout)
		}
		_ = logger.Global().Flush()
	}

	return rootCmd
}

// initialize loads the configuration, installs the central logger and
// enables error telemetry when configured.
func initialize(configFile string, info *buildinfo.Context) (*conf.Settings, error) {
	if configFile != "" {
		conf.SetConfigFile(configFile)
	}

	settings, err := conf.Load()
	if err != nil {
		return nil, err
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	logger.SetGlobal(central)

	if settings.Sentry.Enabled {
		reporter, err := errors.InitSentry(settings.Sentry.DSN, info.Release())
		if err != nil {
			return nil, err
		}
		errors.SetTelemetryReporter(reporter)
	}

	logger.Global().Module("main").Debug("initialized",
		logger.String("version", info.GetVersion()),
		logger.Bool("sentry", settings.Sentry.Enabled))
	return settings, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to notematch.yaml")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.Float64P("tempo", "t", 0, "Tempo in BPM when the score has none")
	flags.Float64("speed", 0, "Playback speed multiplier applied to the tempo")
	flags.Int("tolerance", 0, "Accepted distance in semitones between played and expected notes")

	bindings := map[string]string{
		"debug":                       "debug",
		"sequencer.defaulttempo":      "tempo",
		"sequencer.speed":             "speed",
		"alignment.semitonetolerance": "tolerance",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
