package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/recall/internal/tokenusage"
)

// filePriceBook loads a JSON table of model -> ModelPrice from disk. The
// table's content is external per spec.md §1/§9; this is just the thin file
// format the CLI understands.
type filePriceBook map[string]tokenusage.ModelPrice

func (b filePriceBook) Price(model string) (tokenusage.ModelPrice, bool) {
	p, ok := b[model]
	return p, ok
}

func loadPriceBook(path string) (tokenusage.PriceBook, error) {
	if path == "" {
		return filePriceBook{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var book filePriceBook
	if err := json.Unmarshal(data, &book); err != nil {
		return nil, err
	}
	return book, nil
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Aggregate token usage and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := buildFilter()
		if err != nil {
			return err
		}
		stats, err := current.store.GetTokenStats(cmd.Context(), f)
		if err != nil {
			return err
		}
		book, err := loadPriceBook(current.cfg.Pricing.PriceBookPath)
		if err != nil {
			return err
		}
		return printJSON(tokenusage.Cost(stats, book))
	},
}

func init() {
	addFilterFlags(tokensCmd)
	rootCmd.AddCommand(tokensCmd)
}
