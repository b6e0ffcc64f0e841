package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"netconform/internal/report"
)

func newIDsCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "ids",
		Short: "Print the durable ID of every entity",
		Long: `ids prints the durable IDs the database assigned to the entities of the
model. Encoded events refer to entities by these IDs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := a.rec.Identities(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ids)
			}
			return report.Identities(cmd.OutOrStdout(), ids, report.Options{Color: !noColor})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}
