package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/recall/internal/config"
)

var (
	flagBaseDir string
	flagVerbose bool
	flagConfig  string

	cfg     *config.Config
	current *app
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Recall is a local memory layer for AI coding agents",
	Long: `Recall ingests coding-agent transcripts and git activity into a
local, full-text-searchable event log, and can reconstruct a file's
contents at any point in that history.

Core Commands:
  watch        Run the continuous-watch coordinator
  ingest       Run one ingestion pass over all registered sources
  search       Full-text search over ingested events
  timeline     List events in time order
  reconstruct  Rebuild a file's contents at a point in time
  sources      Manage registered sources
  device       Show this machine's device identity
  config       Show resolved configuration`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "show" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			return nil
		}

		overrides := &config.Config{}
		if flagBaseDir != "" {
			overrides.BaseDir = flagBaseDir
		}
		if flagVerbose {
			overrides.Verbose = true
		}
		if flagConfig != "" {
			_ = os.Setenv("RECALL_CONFIG", flagConfig)
		}

		loaded, err := config.Load(overrides)
		if err != nil {
			return err
		}
		cfg = loaded

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if current == nil {
			return nil
		}
		err := current.Close()
		current = nil
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseDir, "base-dir", "", "Recall data directory (default: ~/.recall)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Project config file path")
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
