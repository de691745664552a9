package file

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/notematch/internal/analysis"
	"github.com/tphakala/notematch/internal/conf"
)

// Command creates a new file command for comparing a recording against a score.
func Command() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "file <score> <recording>",
		Short: "Compare a recorded WAV or FLAC file against a score",
		Long:  `Runs the comparison over a recording on a simulated clock, so it finishes as fast as the file can be analyzed.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.FileAnalysis(cmd.Context(), conf.GetSettings(), args[0], args[1], cmd.OutOrStdout(), format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", analysis.FormatTable, "Output format: table, json")

	return cmd
}
