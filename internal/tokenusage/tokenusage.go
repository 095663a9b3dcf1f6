// Package tokenusage rolls up model-reported token counts recorded on
// events into a cost estimate (spec.md component I). Pricing tables
// themselves are external (spec.md §1 Non-goals); this package only
// consumes a PriceBook the caller supplies.
package tokenusage

import (
	"github.com/boshu2/recall/internal/store"
)

// ModelPrice is the per-million-token rate for one model.
type ModelPrice struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheReadPerMTok  float64
	CacheWritePerMTok float64
}

// PriceBook resolves a model name to its rate. Implementations are external
// to this package (e.g. a YAML-backed price table).
type PriceBook interface {
	Price(model string) (ModelPrice, bool)
}

// ModelCost is one model's contribution to a Cost result.
type ModelCost struct {
	Model          string
	InputCost      float64
	OutputCost     float64
	CacheReadCost  float64
	CacheWriteCost float64
	Total          float64
}

// Result is the priced rollup of a store.TokenStats.
type Result struct {
	ByModel       map[string]ModelCost
	Total         float64
	UnknownModels []string
}

const perMillion = 1_000_000

// Cost prices stats.ByModel against book. A model absent from book is
// surfaced in UnknownModels rather than silently priced at zero, since a
// missing rate usually means a price table that hasn't caught up with a
// new model release rather than a genuinely free one.
func Cost(stats store.TokenStats, book PriceBook) Result {
	result := Result{ByModel: map[string]ModelCost{}}
	seenUnknown := map[string]bool{}

	for model, rollup := range stats.ByModel {
		price, ok := book.Price(model)
		if !ok {
			if !seenUnknown[model] {
				result.UnknownModels = append(result.UnknownModels, model)
				seenUnknown[model] = true
			}
			continue
		}

		mc := ModelCost{
			Model:          model,
			InputCost:      float64(rollup.Input) / perMillion * price.InputPerMTok,
			OutputCost:     float64(rollup.Output) / perMillion * price.OutputPerMTok,
			CacheReadCost:  float64(rollup.CacheRead) / perMillion * price.CacheReadPerMTok,
			CacheWriteCost: float64(rollup.CacheWrite) / perMillion * price.CacheWritePerMTok,
		}
		mc.Total = mc.InputCost + mc.OutputCost + mc.CacheReadCost + mc.CacheWriteCost

		result.ByModel[model] = mc
		result.Total += mc.Total
	}

	return result
}
