package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/boshu2/recall/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the continuous-watch coordinator until interrupted",
	Long: `watch starts fsnotify watchers for tailable transcript sources, a
polling loop for split-file sources, and periodic rediscovery of new
sessions and repositories, blocking until SIGINT or SIGTERM.

Only one coordinator may run at a time per data directory, enforced via a
PID file (spec.md §6).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		coord := current.newCoordinator()
		pidFile := watch.NewPIDFile(current.cfg.BaseDir)
		return coord.RunUntilSignal(cmd.Context(), pidFile)
	},
}

var watchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the watch coordinator is currently running",
	RunE: func(cmd *cobra.Command, args []string) error {
		pidFile := watch.NewPIDFile(current.cfg.BaseDir)
		return printJSON(struct {
			Running bool   `json:"running"`
			PIDFile string `json:"pid_file"`
		}{
			Running: pidFile.IsRunning(),
			PIDFile: filepath.Join(current.cfg.BaseDir, "watch.pid"),
		})
	},
}

func init() {
	watchCmd.AddCommand(watchStatusCmd)
	rootCmd.AddCommand(watchCmd)
}
