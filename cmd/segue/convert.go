package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/segue/internal/project"
)

var convertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Rewrite a project in the current format",
	Long: `Reads any supported project (including documents from the first editor,
which addressed tracks by position) and writes it as a current JSON or
YAML document, chosen by the output extension.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := project.Load(args[0])
		if err != nil {
			return err
		}
		if err := project.Save(args[1], g); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d tracks)\n", args[1], g.TrackCount())
		return nil
	},
}
