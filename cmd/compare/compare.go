package compare

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/notematch/internal/analysis"
	"github.com/tphakala/notematch/internal/conf"
	"github.com/tphakala/notematch/internal/errors"
)

// Command creates the compare command, which listens to the microphone
// while stepping through a score.
func Command() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "compare <score>",
		Short: "Compare live microphone input against a score",
		Long: `Plays through a MusicXML, MXL, MIDI or YAML score at its tempo and checks the
notes heard on the capture device against it. Use "notation:C4 E4 G4" to pass
the score inline. Press Ctrl-C to stop early.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := analysis.RealtimeAnalysis(cmd.Context(), conf.GetSettings(), args[0], cmd.OutOrStdout(), format)
			if errors.IsCategory(err, errors.CategoryCancellation) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Comparison cancelled")
				return nil
			}
			return err
		},
	}

	if err := setupFlags(cmd, &format); err != nil {
		panic(err)
	}

	return cmd
}

// setupFlags configures flags specific to the compare command.
func setupFlags(cmd *cobra.Command, format *string) error {
	cmd.Flags().StringVarP(format, "format", "f", analysis.FormatTable, "Output format: table, json")
	cmd.Flags().StringP("source", "s", "", "Audio capture device name or id")
	cmd.Flags().Bool("api", false, "Serve the HTTP API while comparing")
	cmd.Flags().String("listen", "", "HTTP API listen address")
	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics while comparing")

	bindings := map[string]string{
		"audio.source":    "source",
		"api.enabled":     "api",
		"api.listen":      "listen",
		"metrics.enabled": "metrics",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
