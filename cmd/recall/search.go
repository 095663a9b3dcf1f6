package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/recall/internal/store"
	"github.com/boshu2/recall/internal/timeparse"
)

var (
	filterSince   string
	filterUntil   string
	filterProject string
	filterSession string
	filterTypes   []string
	filterTools   []string
	filterRole    string
	filterLimit   int
	filterOffset  int
)

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&filterSince, "since", "", "Only events at or after this time (unix seconds, \"2h\", \"3 days ago\", or ISO-8601)")
	cmd.Flags().StringVar(&filterUntil, "until", "", "Only events at or before this time")
	cmd.Flags().StringVar(&filterProject, "project", "", "Project id, display name, root path, or prefix/substring")
	cmd.Flags().StringVar(&filterSession, "session", "", "Session id (wildcards with * allowed)")
	cmd.Flags().StringSliceVar(&filterTypes, "type", nil, "Restrict to these event types")
	cmd.Flags().StringSliceVar(&filterTools, "tool", nil, "Restrict to these tool names (wildcards with * allowed)")
	cmd.Flags().StringVar(&filterRole, "role", "", "Restrict to \"user\" or \"assistant\" messages")
	cmd.Flags().IntVar(&filterLimit, "limit", 50, "Maximum results to return")
	cmd.Flags().IntVar(&filterOffset, "offset", 0, "Result offset for pagination")
}

func buildFilter() (store.Filter, error) {
	f := store.Filter{
		ProjectID:  filterProject,
		SessionID:  filterSession,
		EventTypes: filterTypes,
		ToolNames:  filterTools,
		Role:       filterRole,
		Limit:      filterLimit,
		Offset:     filterOffset,
	}
	now := time.Now().UTC()
	if filterSince != "" {
		t, err := timeparse.Parse(filterSince, now)
		if err != nil {
			return store.Filter{}, fmt.Errorf("--since: %w", err)
		}
		f.Since = timeparse.FormatUTC(t)
	}
	if filterUntil != "" {
		t, err := timeparse.Parse(filterUntil, now)
		if err != nil {
			return store.Filter{}, fmt.Errorf("--until: %w", err)
		}
		f.Until = timeparse.FormatUTC(t)
	}
	return f, nil
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Full-text search over ingested events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := buildFilter()
		if err != nil {
			return err
		}
		page, err := current.store.Search(cmd.Context(), args[0], f)
		if err != nil {
			return err
		}
		return printJSON(page)
	},
}

func init() {
	addFilterFlags(searchCmd)
	rootCmd.AddCommand(searchCmd)
}
