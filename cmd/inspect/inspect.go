package inspect

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/notematch/internal/analysis"
	"github.com/tphakala/notematch/internal/conf"
	"github.com/tphakala/notematch/internal/score"
)

type summary struct {
	Title     string               `json:"title,omitempty"`
	Tempo     float64              `json:"tempo"`
	Positions int                  `json:"positions"`
	Notation  string               `json:"notation"`
	Notes     []score.ExpectedNote `json:"notes"`
}

// Command creates the inspect command, which prints how a score was read.
func Command() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect <score>",
		Short: "Show the notes read from a score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.GetSettings()
			sc, err := analysis.LoadScore(args[0], settings.Sequencer.DefaultTempo)
			if err != nil {
				return err
			}

			tempo := sc.Tempo
			if tempo <= 0 {
				tempo = settings.Sequencer.DefaultTempo
			}
			s := summary{
				Title:     sc.Title,
				Tempo:     tempo,
				Positions: sc.Len(),
				Notation:  sc.Notation(),
				Notes:     sc.ExpectedNotes(),
			}

			out := cmd.OutOrStdout()
			if format == analysis.FormatJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}

			if s.Title != "" {
				fmt.Fprintf(out, "Title:     %s\n", s.Title)
			}
			fmt.Fprintf(out, "Tempo:     %.0f BPM\n", s.Tempo)
			fmt.Fprintf(out, "Positions: %d (%d notes)\n", s.Positions, len(s.Notes))
			_, err = fmt.Fprintf(out, "Notation:  %s\n", s.Notation)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", analysis.FormatTable, "Output format: table, json")

	return cmd
}
