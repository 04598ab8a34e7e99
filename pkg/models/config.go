package models

// ModelKind identifies the capability a caller needs from a model.
type ModelKind string

const (
	KindChat      ModelKind = "chat"
	KindEmbedding ModelKind = "embedding"
	KindVision    ModelKind = "vision"
	KindAudio     ModelKind = "audio"
)

// ModelTier groups models by capability and cost.
type ModelTier string

const (
	TierBasic    ModelTier = "basic"
	TierStandard ModelTier = "standard"
	TierAdvanced ModelTier = "advanced"
	TierPremium  ModelTier = "premium"
)

// costRates are approximate USD prices per 1K tokens.
type costRates struct {
	Prompt     float64
	Completion float64
}

var modelCosts = map[string]costRates{
	"gpt-4o-mini": {Prompt: 0.00015, Completion: 0.0006},
	"o3-mini":     {Prompt: 0.0011, Completion: 0.0044},
	"gpt-4o":      {Prompt: 0.0025, Completion: 0.01},
	"o1":          {Prompt: 0.015, Completion: 0.06},
	"gpt-4.5":     {Prompt: 0.075, Completion: 0.15},
	"o1-pro":      {Prompt: 0.15, Completion: 0.6},
}

var defaultModels = map[ModelTier]map[ModelKind]string{
	TierBasic: {
		KindChat:      "gpt-4o-mini",
		KindEmbedding: "text-embedding-3-small",
		KindVision:    "gpt-4o-mini",
		KindAudio:     "whisper-1",
	},
	TierStandard: {
		KindChat:      "gpt-4o",
		KindEmbedding: "text-embedding-3-small",
		KindVision:    "gpt-4o",
		KindAudio:     "whisper-1",
	},
	TierAdvanced: {
		KindChat:      "o3-mini",
		KindEmbedding: "text-embedding-3-large",
		KindVision:    "o3-mini",
		KindAudio:     "whisper-1",
	},
	TierPremium: {
		KindChat:      "o1",
		KindEmbedding: "text-embedding-3-large",
		KindVision:    "o1",
		KindAudio:     "whisper-1",
	},
}

// providerChatModels are the default chat models for the alternate
// providers. OpenAI models are resolved per service through defaultModels
// instead.
var providerChatModels = map[string]string{
	"anthropic": "claude-3-5-sonnet-latest",
	"claude":    "claude-3-5-sonnet-latest",
	"gemini":    "gemini-1.5-flash",
	"google":    "gemini-1.5-flash",
	"ollama":    "llama3.2",
}

// serviceTiers assigns a tier to each known service. Client-facing and
// analysis-heavy services get higher tiers; infrastructure stays basic.
var serviceTiers = map[string]ModelTier{
	"client_intake":      TierAdvanced,
	"discovery_analysis": TierAdvanced,
	"opportunity_scoring": TierAdvanced,

	"sales_funnel":       TierStandard,
	"deal_risk_detector": TierStandard,
	"follow_up_reminder": TierBasic,
	"contract_builder":   TierAdvanced,

	"project_management": TierStandard,
	"task_decomposer":    TierAdvanced,
	"revision_tracker":   TierStandard,

	"retrospective": TierAdvanced,
	"meeting_notes": TierStandard,

	"agent_orchestrator": TierBasic,
	"calendar":           TierBasic,
	"filesystem":         TierBasic,
	"workflow_template":  TierStandard,

	"memory_manager":     TierStandard,
	"context_controller": TierAdvanced,

	"default": TierStandard,
}

// ToolModelConfig pins a tool to a model kind and tier with its sampling
// parameters.
type ToolModelConfig struct {
	Kind        ModelKind
	Tier        ModelTier
	Temperature float32
	MaxTokens   int
	Dimensions  int
}

var toolConfigs = map[string]ToolModelConfig{
	"text_analysis":   {Kind: KindChat, Tier: TierStandard, Temperature: 0.0, MaxTokens: 1000},
	"template_engine": {Kind: KindChat, Tier: TierBasic, Temperature: 0.2, MaxTokens: 2000},
	"email_composer":  {Kind: KindChat, Tier: TierStandard, Temperature: 0.7, MaxTokens: 1500},
	"semantic_search": {Kind: KindEmbedding, Tier: TierAdvanced, Dimensions: 1536},
}

// ModelParams are per-model generation defaults used when the caller does
// not supply values.
type ModelParams struct {
	Temperature float32
	MaxTokens   int
}

var modelParams = map[string]ModelParams{
	"gpt-4o-mini": {Temperature: 0.7, MaxTokens: 4000},
	"gpt-4o":      {Temperature: 0.7, MaxTokens: 8000},
	"o3-mini":     {Temperature: 0.7, MaxTokens: 8000},
	"o1":          {Temperature: 0.7, MaxTokens: 8000},
	"gpt-4.5":     {Temperature: 0.7, MaxTokens: 8000},
	"o1-pro":      {Temperature: 0.7, MaxTokens: 8000},
}

var fallbackParams = ModelParams{Temperature: 0.7, MaxTokens: 2000}

var fallbackToolConfig = ToolModelConfig{
	Kind:        KindChat,
	Tier:        TierStandard,
	Temperature: 0.7,
	MaxTokens:   2000,
}
