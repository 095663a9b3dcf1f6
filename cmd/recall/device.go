package main

import (
	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Show this machine's device identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(current.device)
	},
}

func init() {
	rootCmd.AddCommand(deviceCmd)
}
