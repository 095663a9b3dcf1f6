package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/recall/internal/types"
)

var (
	sourceKindFlag    string
	sourceLocatorFlag string
	sourceStatusFlag  string
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage registered ingestion sources",
}

var allSourceStatuses = []types.SourceStatus{
	types.SourceActive, types.SourcePaused, types.SourceMissing, types.SourceError,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses := allSourceStatuses
		if sourceStatusFlag != "" {
			statuses = []types.SourceStatus{types.SourceStatus(sourceStatusFlag)}
		}

		var sources []types.Source
		for _, status := range statuses {
			batch, err := current.store.ListSources(cmd.Context(), status)
			if err != nil {
				return err
			}
			sources = append(sources, batch...)
		}
		return printJSON(sources)
	},
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new source by kind and locator",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := types.SourceKind(sourceKindFlag)
		switch kind {
		case types.SourceKindJSONLTranscript, types.SourceKindSplitTranscript,
			types.SourceKindPlainTranscript, types.SourceKindGit:
		default:
			return fmt.Errorf("unknown source kind %q", sourceKindFlag)
		}
		if sourceLocatorFlag == "" {
			return fmt.Errorf("--locator is required")
		}

		now := time.Now().UTC()
		src := types.Source{
			SourceID:      current.device.DeviceID + ":" + sourceLocatorFlag,
			Kind:          kind,
			Locator:       sourceLocatorFlag,
			DeviceID:      current.device.DeviceID,
			ProjectID:     current.project.ProjectID,
			Status:        types.SourceActive,
			RedactSecrets: current.cfg.Redact.DefaultRedactSecrets,
			CreatedAt:     now,
			LastSeenAt:    now,
		}
		if err := current.store.UpsertSource(cmd.Context(), src); err != nil {
			return err
		}
		return printJSON(src)
	},
}

var sourcesPauseCmd = &cobra.Command{
	Use:   "pause [source_id]",
	Short: "Pause a registered source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.store.UpdateSourceStatus(cmd.Context(), args[0], types.SourcePaused, ""); err != nil {
			return err
		}
		return printJSON(map[string]string{"source_id": args[0], "status": string(types.SourcePaused)})
	},
}

var sourcesResumeCmd = &cobra.Command{
	Use:   "resume [source_id]",
	Short: "Resume a paused source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.store.UpdateSourceStatus(cmd.Context(), args[0], types.SourceActive, ""); err != nil {
			return err
		}
		return printJSON(map[string]string{"source_id": args[0], "status": string(types.SourceActive)})
	},
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove [source_id]",
	Short: "Remove a registered source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		purge, _ := cmd.Flags().GetBool("purge")
		if err := current.store.DeleteSource(cmd.Context(), args[0], purge); err != nil {
			return err
		}
		return printJSON(map[string]string{"source_id": args[0], "removed": "true"})
	},
}

func init() {
	sourcesAddCmd.Flags().StringVar(&sourceKindFlag, "kind", "", "Source kind (jsonl_transcript, split_transcript, plain_transcript, git)")
	sourcesAddCmd.Flags().StringVar(&sourceLocatorFlag, "locator", "", "Path to the file or repository")
	sourcesListCmd.Flags().StringVar(&sourceStatusFlag, "status", "", "Restrict to one status (default: all)")
	sourcesRemoveCmd.Flags().Bool("purge", false, "Also delete this source's ingested events (default: retain)")

	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd, sourcesPauseCmd, sourcesResumeCmd, sourcesRemoveCmd)
	rootCmd.AddCommand(sourcesCmd)
}
