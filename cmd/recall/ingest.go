package main

import (
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass over all registered active sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		reports, err := current.orch.IngestAll(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(reports)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
