package main

import (
	"github.com/spf13/cobra"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "List events in time order, with per-type and commit-diff summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := buildFilter()
		if err != nil {
			return err
		}
		page, summary, err := current.store.Timeline(cmd.Context(), f)
		if err != nil {
			return err
		}
		return printJSON(struct {
			Events  any `json:"events"`
			Total   int `json:"total"`
			Summary any `json:"summary"`
		}{Events: page.Items, Total: page.Total, Summary: summary})
	},
}

func init() {
	addFilterFlags(timelineCmd)
	rootCmd.AddCommand(timelineCmd)
}
