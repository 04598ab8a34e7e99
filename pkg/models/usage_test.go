package models

import (
	"math"
	"testing"
)

func TestCalculateUsagePricesKnownModel(t *testing.T) {
	u := calculateUsage("gpt-4o", 1000, 2000, 3000)
	if u.PromptTokens != 1000 || u.CompletionTokens != 2000 || u.TotalTokens != 3000 {
		t.Fatalf("token counts not carried through: %+v", u)
	}
	want := 0.0025 + 2*0.01
	if math.Abs(u.EstimatedCostUSD-want) > 1e-9 {
		t.Fatalf("expected cost %f, got %f", want, u.EstimatedCostUSD)
	}
}

func TestCalculateUsageUnknownModelCostsZero(t *testing.T) {
	u := calculateUsage("mystery-model", 500, 500, 1000)
	if u.EstimatedCostUSD != 0 {
		t.Fatalf("expected zero cost for unknown model, got %f", u.EstimatedCostUSD)
	}
}

func TestUsageLogBounded(t *testing.T) {
	log := NewUsageLog()
	for i := 0; i < maxUsageLogSize+100; i++ {
		log.Record(Usage{Model: "gpt-4o-mini", TotalTokens: 1})
	}
	if got := log.Len(); got != maxUsageLogSize {
		t.Fatalf("expected log capped at %d, got %d", maxUsageLogSize, got)
	}
}

func TestUsageLogStatisticsGroupsByModel(t *testing.T) {
	log := NewUsageLog()
	log.Record(Usage{Model: "gpt-4o", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, EstimatedCostUSD: 0.01})
	log.Record(Usage{Model: "gpt-4o", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, EstimatedCostUSD: 0.01})
	log.Record(Usage{Model: "gpt-4o-mini", PromptTokens: 2, CompletionTokens: 2, TotalTokens: 4, EstimatedCostUSD: 0.001})

	stats := log.Statistics()
	if stats["total_requests"].(int) != 3 {
		t.Fatalf("expected 3 requests, got %v", stats["total_requests"])
	}
	if stats["total_tokens"].(int) != 34 {
		t.Fatalf("expected 34 total tokens, got %v", stats["total_tokens"])
	}

	byModel := stats["usage_by_model"].(map[string]map[string]any)
	if byModel["gpt-4o"]["calls"].(int) != 2 {
		t.Fatalf("expected 2 gpt-4o calls, got %v", byModel["gpt-4o"]["calls"])
	}
	if byModel["gpt-4o-mini"]["total_tokens"].(int) != 4 {
		t.Fatalf("expected 4 gpt-4o-mini tokens, got %v", byModel["gpt-4o-mini"]["total_tokens"])
	}
}

func TestUsageLogClear(t *testing.T) {
	log := NewUsageLog()
	log.Record(Usage{Model: "gpt-4o"})
	log.Clear()
	if log.Len() != 0 {
		t.Fatalf("expected empty log after clear")
	}
}
