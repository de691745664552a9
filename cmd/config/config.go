package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/notematch/internal/conf"
)

// Command creates the config command printing the default configuration.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration file",
		Long:  "Prints an annotated notematch.yaml with every setting at its default value.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.DefaultConfigYAML()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), data)
			return err
		},
	}
}
