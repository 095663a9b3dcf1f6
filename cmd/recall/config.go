package main

import (
	"github.com/spf13/cobra"

	"github.com/boshu2/recall/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect Recall configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration with each value's source",
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved := config.Resolve(flagBaseDir, flagVerbose)
		return printJSON(resolved)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
