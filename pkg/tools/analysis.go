package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/intellisync/go-mcp/pkg/tool"
)

const (
	defaultMinKeywordLength = 4
	defaultMaxKeywords      = 10
)

var (
	honorificPattern  = regexp.MustCompile(`\b(Mr\.|Ms\.|Mrs\.|Dr\.|Prof\.)\s([A-Z][a-z]+(?:\s[A-Z][a-z]+)*)`)
	capitalizedRun    = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s[A-Z][a-z]+){1,2})\b`)
	orgSuffixPattern  = regexp.MustCompile(`\b([A-Za-z]+(?:\s[A-Za-z]+)*)\s(Inc\.|Corp\.|LLC|Ltd\.)`)
	numericDate       = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	monthNameDate     = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s\d{1,2},\s\d{4}\b`)
	moneyPattern      = regexp.MustCompile(`\$\d+(?:\.\d{2})?`)
	nonWordCharacters = regexp.MustCompile(`[^\w\s]`)
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "is": {}, "in": {}, "it": {}, "to": {}, "of": {},
	"for": {}, "with": {}, "on": {}, "that": {}, "by": {}, "this": {},
	"be": {}, "are": {}, "from": {}, "at": {}, "as": {}, "an": {}, "was": {},
	"were": {}, "have": {}, "has": {}, "had": {}, "a": {}, "but": {},
	"or": {}, "if": {}, "than": {}, "then": {},
}

var positiveWords = map[string]struct{}{
	"good": {}, "great": {}, "excellent": {}, "amazing": {}, "wonderful": {},
	"fantastic": {}, "best": {}, "happy": {}, "pleased": {}, "love": {},
	"like": {}, "enjoy": {}, "awesome": {}, "beneficial": {}, "better": {},
	"outstanding": {}, "perfect": {}, "positive": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "terrible": {}, "horrible": {}, "awful": {}, "worst": {},
	"poor": {}, "negative": {}, "hate": {}, "dislike": {}, "disappointed": {},
	"disappointing": {}, "problem": {}, "failure": {}, "fail": {},
	"failed": {}, "worse": {}, "difficult": {}, "angry": {},
}

var topicKeywords = map[string][]string{
	"business": {
		"company", "market", "business", "industry", "product", "service",
		"customer", "client", "revenue", "profit", "strategy", "sales",
	},
	"technology": {
		"technology", "software", "hardware", "data", "system", "computer",
		"network", "internet", "application", "programming", "code", "tech",
	},
	"health": {
		"health", "medical", "doctor", "patient", "hospital", "treatment",
		"disease", "care", "medicine", "therapy", "diagnosis", "healthcare",
	},
	"finance": {
		"finance", "financial", "money", "investment", "bank", "fund",
		"stock", "market", "investor", "asset", "portfolio", "capital",
	},
}

var validOperations = map[string]struct{}{
	"entities": {}, "keywords": {}, "sentiment": {}, "topics": {},
}

// TextAnalysisOptions configure a TextAnalysis tool.
type TextAnalysisOptions struct {
	EntityTypes      []string
	MinKeywordLength int
	MaxKeywords      int
}

// TextAnalysis extracts entities, keywords, sentiment and topics from free
// text using regex and lexicon heuristics.
type TextAnalysis struct {
	entityTypes      []string
	minKeywordLength int
	maxKeywords      int
}

// NewTextAnalysis creates a text analysis tool.
func NewTextAnalysis(opts TextAnalysisOptions) *TextAnalysis {
	entityTypes := opts.EntityTypes
	if len(entityTypes) == 0 {
		entityTypes = []string{"PERSON", "ORG", "GPE", "DATE", "MONEY"}
	}
	minLen := opts.MinKeywordLength
	if minLen <= 0 {
		minLen = defaultMinKeywordLength
	}
	maxKw := opts.MaxKeywords
	if maxKw <= 0 {
		maxKw = defaultMaxKeywords
	}
	return &TextAnalysis{
		entityTypes:      entityTypes,
		minKeywordLength: minLen,
		maxKeywords:      maxKw,
	}
}

type textAnalysisInput struct {
	Text       string   `mapstructure:"text"`
	Operations []string `mapstructure:"operations"`
}

// Execute implements tool.Tool.
func (ta *TextAnalysis) Execute(_ context.Context, input map[string]any) (*tool.Result, error) {
	start := time.Now()

	var in textAnalysisInput
	if err := decodeInput(input, &in); err != nil {
		return nil, tool.NewError(fmt.Sprintf("failed to analyze text: %v", err), "TEXT_ANALYSIS_ERROR").
			WithDetails(map[string]any{"error_type": fmt.Sprintf("%T", err)})
	}
	if in.Text == "" {
		return nil, tool.NewError("no text provided for analysis", "MISSING_TEXT")
	}
	if len(in.Operations) == 0 {
		in.Operations = []string{"entities", "keywords"}
	}

	results := map[string]any{}
	for _, op := range in.Operations {
		switch op {
		case "entities":
			results["entities"] = ta.extractEntities(in.Text)
		case "keywords":
			results["keywords"] = ta.extractKeywords(in.Text)
		case "sentiment":
			results["sentiment"] = analyzeSentiment(in.Text)
		case "topics":
			results["topics"] = classifyTopics(in.Text)
		}
	}

	result := tool.NewResult(tool.StatusSuccess, results, map[string]any{
		"text_length": len(in.Text),
		"operations":  in.Operations,
	})
	return result.WithExecutionTime(time.Since(start)), nil
}

// ValidateInput implements tool.Tool.
func (ta *TextAnalysis) ValidateInput(input map[string]any) bool {
	raw, ok := input["text"]
	if !ok {
		return false
	}
	if _, isString := raw.(string); !isString {
		return false
	}
	if rawOps, present := input["operations"]; present {
		ops, err := toStringSlice(rawOps)
		if err != nil {
			return false
		}
		for _, op := range ops {
			if _, known := validOperations[op]; !known {
				return false
			}
		}
	}
	return true
}

// Capabilities implements tool.Tool.
func (ta *TextAnalysis) Capabilities() map[string]any {
	return map[string]any{
		"description": "Analyzes text to extract entities, keywords, sentiment, and topics",
		"operations": map[string]any{
			"entities":  "Extract named entities (people, organizations, dates, amounts)",
			"keywords":  "Extract important keywords and phrases",
			"sentiment": "Analyze sentiment (positive, negative, neutral)",
			"topics":    "Classify text into predefined topics",
		},
		"input_schema": map[string]any{
			"text":       "String containing the text to analyze",
			"operations": "Optional list of operations to perform",
		},
		"output_schema": map[string]any{
			"entities":  "Map of entity types to lists of entities",
			"keywords":  "List of important keywords in the text",
			"sentiment": "Object containing sentiment scores",
			"topics":    "Object containing topic classifications",
		},
		"entity_types": ta.entityTypes,
	}
}

// extractEntities runs the per-type regex heuristics and de-duplicates
// matches within each type.
func (ta *TextAnalysis) extractEntities(text string) map[string][]string {
	entities := make(map[string][]string, len(ta.entityTypes))
	for _, et := range ta.entityTypes {
		entities[et] = []string{}
	}

	var persons []string
	for _, m := range honorificPattern.FindAllStringSubmatch(text, -1) {
		persons = append(persons, m[2])
	}
	for _, m := range capitalizedRun.FindAllStringSubmatch(text, -1) {
		persons = append(persons, m[1])
	}
	entities["PERSON"] = dedupe(persons)

	var orgs []string
	for _, m := range orgSuffixPattern.FindAllStringSubmatch(text, -1) {
		orgs = append(orgs, m[1])
	}
	entities["ORG"] = dedupe(orgs)

	dates := numericDate.FindAllString(text, -1)
	dates = append(dates, monthNameDate.FindAllString(text, -1)...)
	entities["DATE"] = dedupe(dates)

	entities["MONEY"] = dedupe(moneyPattern.FindAllString(text, -1))

	return entities
}

// extractKeywords frequency-ranks the non-stop-words and returns the top N.
func (ta *TextAnalysis) extractKeywords(text string) []string {
	normalized := nonWordCharacters.ReplaceAllString(strings.ToLower(text), "")
	words := strings.Fields(normalized)

	counts := map[string]int{}
	var order []string
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if len(w) < ta.minKeywordLength {
			continue
		}
		if _, seen := counts[w]; !seen {
			order = append(order, w)
		}
		counts[w]++
	}

	// Stable rank: frequency descending, first occurrence breaking ties.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > ta.maxKeywords {
		order = order[:ta.maxKeywords]
	}
	return order
}

// analyzeSentiment scores text against fixed positive/negative lexicons.
// compound = (positive - negative) / total, labelled at the ±0.05 thresholds.
func analyzeSentiment(text string) map[string]any {
	normalized := nonWordCharacters.ReplaceAllString(strings.ToLower(text), "")
	words := strings.Fields(normalized)

	var positive, negative int
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			positive++
		}
		if _, ok := negativeWords[w]; ok {
			negative++
		}
	}
	total := len(words)

	var positiveScore, negativeScore, compound float64
	if total > 0 {
		positiveScore = float64(positive) / float64(total)
		negativeScore = float64(negative) / float64(total)
		compound = float64(positive-negative) / float64(total)
	}

	label := "neutral"
	switch {
	case compound > 0.05:
		label = "positive"
	case compound < -0.05:
		label = "negative"
	}

	return map[string]any{
		"label": label,
		"scores": map[string]float64{
			"positive": positiveScore,
			"negative": negativeScore,
			"compound": compound,
		},
		"word_counts": map[string]int{
			"positive": positive,
			"negative": negative,
			"total":    total,
		},
	}
}

// classifyTopics scores each fixed topic by the fraction of its keywords
// present in the text. The primary topic must clear a 0.1 threshold,
// otherwise the text is classified "general".
func classifyTopics(text string) map[string]any {
	normalized := nonWordCharacters.ReplaceAllString(strings.ToLower(text), "")
	present := map[string]struct{}{}
	for _, w := range strings.Fields(normalized) {
		present[w] = struct{}{}
	}

	scores := make(map[string]float64, len(topicKeywords))
	for topic, keywords := range topicKeywords {
		matches := 0
		for _, kw := range keywords {
			if _, ok := present[kw]; ok {
				matches++
			}
		}
		scores[topic] = float64(matches) / float64(len(keywords))
	}

	ranked := make([]string, 0, len(scores))
	for topic := range scores {
		ranked = append(ranked, topic)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	primary := "general"
	confidence := 0.0
	if len(ranked) > 0 {
		confidence = scores[ranked[0]]
		if confidence > 0.1 {
			primary = ranked[0]
		}
	}

	return map[string]any{
		"primary_topic": primary,
		"topic_scores":  scores,
		"confidence":    confidence,
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toStringSlice(v any) ([]string, error) {
	switch vals := v.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("non-string element %v", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
}
