package main

import (
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect file-level access and edit history",
}

var filesAccessedCmd = &cobra.Command{
	Use:   "accessed",
	Short: "List files touched by tool calls, grouped with access counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := buildFilter()
		if err != nil {
			return err
		}
		files, err := current.store.ListAccessedFiles(cmd.Context(), f)
		if err != nil {
			return err
		}
		return printJSON(files)
	},
}

var filesHistoryCmd = &cobra.Command{
	Use:   "history [file_path]",
	Short: "Time-ordered read/write snapshots for a single file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := buildFilter()
		if err != nil {
			return err
		}
		history, err := current.store.GetFileHistory(cmd.Context(), args[0], f)
		if err != nil {
			return err
		}
		return printJSON(history)
	},
}

var filesEditsCmd = &cobra.Command{
	Use:   "edits [file_path]",
	Short: "Edit-tool invocations against a file (or all files if omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := buildFilter()
		if err != nil {
			return err
		}
		filePath := ""
		if len(args) == 1 {
			filePath = args[0]
		}
		limit := filterLimit
		if limit <= 0 {
			limit = 1000
		}
		edits, err := current.store.GetEdits(cmd.Context(), f, filePath, limit)
		if err != nil {
			return err
		}
		return printJSON(edits)
	},
}

func init() {
	addFilterFlags(filesAccessedCmd)
	addFilterFlags(filesHistoryCmd)
	addFilterFlags(filesEditsCmd)
	filesCmd.AddCommand(filesAccessedCmd, filesHistoryCmd, filesEditsCmd)
	rootCmd.AddCommand(filesCmd)
}
