package models

import (
	"sync"
	"time"
)

const maxUsageLogSize = 1000

// Usage records the token counts and estimated cost of one API call.
type Usage struct {
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	Model            string    `json:"model"`
	Timestamp        time.Time `json:"timestamp"`
}

// AsMap returns the wire representation of the usage record.
func (u Usage) AsMap() map[string]any {
	return map[string]any{
		"prompt_tokens":      u.PromptTokens,
		"completion_tokens":  u.CompletionTokens,
		"total_tokens":       u.TotalTokens,
		"estimated_cost_usd": u.EstimatedCostUSD,
		"model":              u.Model,
		"timestamp":          u.Timestamp.Format(time.RFC3339Nano),
	}
}

// calculateUsage prices a call from the per-1K-token cost table. Unknown
// models cost zero.
func calculateUsage(model string, promptTokens, completionTokens, totalTokens int) Usage {
	rates := modelCosts[model]
	promptCost := float64(promptTokens) / 1000 * rates.Prompt
	completionCost := float64(completionTokens) / 1000 * rates.Completion
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
		EstimatedCostUSD: promptCost + completionCost,
		Model:            model,
		Timestamp:        time.Now().UTC(),
	}
}

// UsageLog keeps a bounded record of API usage. Oldest entries are dropped
// once the log exceeds maxUsageLogSize.
type UsageLog struct {
	mu      sync.Mutex
	entries []Usage
}

func NewUsageLog() *UsageLog {
	return &UsageLog{}
}

func (l *UsageLog) Record(u Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, u)
	if len(l.entries) > maxUsageLogSize {
		l.entries = l.entries[len(l.entries)-maxUsageLogSize:]
	}
}

func (l *UsageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *UsageLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Statistics aggregates totals across the log, grouped by model.
func (l *UsageLog) Statistics() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()

	var promptTokens, completionTokens, totalTokens int
	var totalCost float64
	byModel := map[string]map[string]any{}

	for _, u := range l.entries {
		promptTokens += u.PromptTokens
		completionTokens += u.CompletionTokens
		totalTokens += u.TotalTokens
		totalCost += u.EstimatedCostUSD

		stats, ok := byModel[u.Model]
		if !ok {
			stats = map[string]any{
				"prompt_tokens":     0,
				"completion_tokens": 0,
				"total_tokens":      0,
				"cost":              0.0,
				"calls":             0,
			}
			byModel[u.Model] = stats
		}
		stats["prompt_tokens"] = stats["prompt_tokens"].(int) + u.PromptTokens
		stats["completion_tokens"] = stats["completion_tokens"].(int) + u.CompletionTokens
		stats["total_tokens"] = stats["total_tokens"].(int) + u.TotalTokens
		stats["cost"] = stats["cost"].(float64) + u.EstimatedCostUSD
		stats["calls"] = stats["calls"].(int) + 1
	}

	return map[string]any{
		"total_requests":          len(l.entries),
		"total_prompt_tokens":     promptTokens,
		"total_completion_tokens": completionTokens,
		"total_tokens":            totalTokens,
		"total_cost_usd":          totalCost,
		"usage_by_model":          byModel,
	}
}
