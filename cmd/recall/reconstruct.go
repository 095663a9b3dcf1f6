package main

import (
	"encoding/base64"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/recall/internal/reconstruct"
	"github.com/boshu2/recall/internal/timeparse"
)

var (
	reconstructFile    string
	reconstructAt      string
	reconstructSession string
	reconstructFuzzy   bool
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct",
	Short: "Rebuild a file's contents at a point in time",
	RunE: func(cmd *cobra.Command, args []string) error {
		atTime := ""
		if reconstructAt != "" {
			t, err := timeparse.Parse(reconstructAt, time.Now().UTC())
			if err != nil {
				return err
			}
			atTime = timeparse.FormatUTC(t)
		}

		content, report, err := reconstruct.Reconstruct(
			cmd.Context(), current.store, reconstructFile, atTime, reconstructSession,
			reconstruct.Options{FuzzyFallback: reconstructFuzzy},
		)
		if err != nil {
			return err
		}

		return printJSON(struct {
			ContentBase64 string             `json:"content_base64"`
			Report        reconstruct.Report `json:"report"`
		}{
			ContentBase64: base64.StdEncoding.EncodeToString(content),
			Report:        report,
		})
	},
}

func init() {
	reconstructCmd.Flags().StringVar(&reconstructFile, "file", "", "File path to reconstruct")
	reconstructCmd.Flags().StringVar(&reconstructAt, "at", "", "Point in time to reconstruct at (default: now)")
	reconstructCmd.Flags().StringVar(&reconstructSession, "session", "", "Restrict edit replay to this session id")
	reconstructCmd.Flags().BoolVar(&reconstructFuzzy, "fuzzy", false, "Allow approximate anchor matching when an edit's old content has drifted")
	_ = reconstructCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(reconstructCmd)
}
