package tokenusage

import (
	"testing"

	"github.com/boshu2/recall/internal/store"
)

type fakeBook map[string]ModelPrice

func (b fakeBook) Price(model string) (ModelPrice, bool) {
	p, ok := b[model]
	return p, ok
}

func TestCost_PricesKnownModel(t *testing.T) {
	stats := store.TokenStats{
		ByModel: map[string]store.TokenUsageRollup{
			"claude": {Input: 1_000_000, Output: 500_000},
		},
	}
	book := fakeBook{"claude": {InputPerMTok: 3, OutputPerMTok: 15}}

	result := Cost(stats, book)
	mc, ok := result.ByModel["claude"]
	if !ok {
		t.Fatalf("expected a cost entry for claude")
	}
	if mc.InputCost != 3 {
		t.Errorf("expected input cost 3, got %v", mc.InputCost)
	}
	if mc.OutputCost != 7.5 {
		t.Errorf("expected output cost 7.5, got %v", mc.OutputCost)
	}
	if result.Total != 10.5 {
		t.Errorf("expected total 10.5, got %v", result.Total)
	}
	if len(result.UnknownModels) != 0 {
		t.Errorf("expected no unknown models, got %v", result.UnknownModels)
	}
}

func TestCost_SurfacesUnknownModelRatherThanZeroingIt(t *testing.T) {
	stats := store.TokenStats{
		ByModel: map[string]store.TokenUsageRollup{
			"mystery-model": {Input: 1000, Output: 500},
		},
	}
	result := Cost(stats, fakeBook{})
	if len(result.UnknownModels) != 1 || result.UnknownModels[0] != "mystery-model" {
		t.Fatalf("expected mystery-model to be reported unknown, got %v", result.UnknownModels)
	}
	if _, ok := result.ByModel["mystery-model"]; ok {
		t.Errorf("unknown model should not get a ByModel entry")
	}
	if result.Total != 0 {
		t.Errorf("expected total 0 when only unknown models are present, got %v", result.Total)
	}
}
