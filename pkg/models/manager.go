package models

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const maxManagerHistorySize = 1000

// GenerateOptions override the model defaults for one call. Nil fields keep
// the defaults. Provider names an alternate chat backend (anthropic,
// gemini, ollama, dummy); empty or "openai" uses the shared OpenAI client.
type GenerateOptions struct {
	Temperature *float32
	MaxTokens   *int
	Provider    string
}

// usageRecord ties one model call to the service that made it.
type usageRecord struct {
	Service   string
	Model     string
	Operation string
	Duration  time.Duration
	Usage     Usage
}

// Manager executes model operations on behalf of services: it resolves the
// model from the registry, applies parameter defaults, invokes the client
// and records usage per service, model and operation.
type Manager struct {
	registry *Registry
	log      *logrus.Logger

	mu              sync.Mutex
	history         []usageRecord
	defaultProvider string
}

func NewManager(registry *Registry, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{registry: registry, log: log}
}

// SetDefaultChatProvider routes chat generation through the named provider
// when a request does not pick one. Empty restores the OpenAI default.
func (m *Manager) SetDefaultChatProvider(name string) {
	m.mu.Lock()
	m.defaultProvider = name
	m.mu.Unlock()
}

// GenerateText runs a chat completion with the model configured for the
// service, or through an alternate provider when one is selected.
func (m *Manager) GenerateText(ctx context.Context, service string, messages []Message, opts *GenerateOptions) (*ChatResponse, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages provided")
	}

	provider := ""
	if opts != nil {
		provider = opts.Provider
	}
	if provider == "" {
		m.mu.Lock()
		provider = m.defaultProvider
		m.mu.Unlock()
	}
	if provider != "" && provider != "openai" {
		return m.generateWithProvider(ctx, service, provider, messages)
	}

	model := m.registry.ModelForService(service, KindChat)
	params := m.registry.DefaultParams(model)

	req := ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
	if opts != nil {
		if opts.Temperature != nil {
			req.Temperature = *opts.Temperature
		}
		if opts.MaxTokens != nil {
			req.MaxTokens = *opts.MaxTokens
		}
	}

	start := time.Now()
	resp, err := m.registry.OpenAI().ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	m.record(service, model, "text_generation", time.Since(start), resp.Usage)
	return resp, nil
}

// generateWithProvider runs the completion through a chat-only provider.
// Those backends report no token counts, so usage is recorded with zero
// tokens under the provider's name.
func (m *Manager) generateWithProvider(ctx context.Context, service, name string, messages []Message) (*ChatResponse, error) {
	p, err := m.registry.ChatProvider(ctx, name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	content, err := p.Generate(ctx, flattenMessages(messages))
	if err != nil {
		return nil, err
	}
	m.record(service, name, "text_generation", time.Since(start), Usage{})
	return &ChatResponse{Content: content, Model: name}, nil
}

// flattenMessages folds a chat transcript into the single prompt the
// chat-only providers accept.
func flattenMessages(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, "\n\n")
}

// GenerateEmbeddings embeds the given texts with the service's embedding
// model. Dimensions 0 keeps the model default.
func (m *Manager) GenerateEmbeddings(ctx context.Context, service string, texts []string, dimensions int) (*EmbeddingResponse, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided")
	}

	model := m.registry.ModelForService(service, KindEmbedding)

	start := time.Now()
	resp, err := m.registry.OpenAI().Embeddings(ctx, model, texts, dimensions)
	if err != nil {
		return nil, err
	}
	m.record(service, model, "embeddings", time.Since(start), resp.Usage)
	return resp, nil
}

// AnalyzeImage describes an image with the service's vision model.
func (m *Manager) AnalyzeImage(ctx context.Context, service, imageURL, prompt string, maxTokens int) (*ChatResponse, error) {
	model := m.registry.ModelForService(service, KindVision)
	if maxTokens <= 0 {
		maxTokens = m.registry.DefaultParams(model).MaxTokens
	}

	start := time.Now()
	resp, err := m.registry.OpenAI().AnalyzeImage(ctx, model, imageURL, prompt, maxTokens)
	if err != nil {
		return nil, err
	}
	m.record(service, model, "image_analysis", time.Since(start), resp.Usage)
	return resp, nil
}

// TranscribeAudio converts an audio file to text with the service's audio
// model.
func (m *Manager) TranscribeAudio(ctx context.Context, service, filePath, language, prompt string) (*TranscriptionResponse, error) {
	model := m.registry.ModelForService(service, KindAudio)

	start := time.Now()
	resp, err := m.registry.OpenAI().Transcribe(ctx, model, filePath, language, prompt)
	if err != nil {
		return nil, err
	}
	m.record(service, model, "audio_transcription", time.Since(start), resp.Usage)
	return resp, nil
}

// UsageStatistics aggregates the manager's history grouped by service,
// model and operation.
func (m *Manager) UsageStatistics() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	byService := map[string]map[string]any{}
	byModel := map[string]map[string]any{}
	byOperation := map[string]map[string]any{}
	var totalTokens int
	var totalCost float64

	bump := func(group map[string]map[string]any, key string, rec usageRecord) {
		stats, ok := group[key]
		if !ok {
			stats = map[string]any{
				"total_requests": 0,
				"total_tokens":   0,
				"total_cost":     0.0,
			}
			group[key] = stats
		}
		stats["total_requests"] = stats["total_requests"].(int) + 1
		stats["total_tokens"] = stats["total_tokens"].(int) + rec.Usage.TotalTokens
		stats["total_cost"] = stats["total_cost"].(float64) + rec.Usage.EstimatedCostUSD
	}

	for _, rec := range m.history {
		totalTokens += rec.Usage.TotalTokens
		totalCost += rec.Usage.EstimatedCostUSD
		bump(byService, rec.Service, rec)
		bump(byModel, rec.Model, rec)
		bump(byOperation, rec.Operation, rec)
	}

	return map[string]any{
		"total_requests":     len(m.history),
		"total_tokens":       totalTokens,
		"total_cost":         totalCost,
		"usage_by_service":   byService,
		"usage_by_model":     byModel,
		"usage_by_operation": byOperation,
	}
}

// ClearUsageHistory drops the manager's usage history.
func (m *Manager) ClearUsageHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

func (m *Manager) record(service, model, operation string, duration time.Duration, usage Usage) {
	m.mu.Lock()
	m.history = append(m.history, usageRecord{
		Service:   service,
		Model:     model,
		Operation: operation,
		Duration:  duration,
		Usage:     usage,
	})
	if len(m.history) > maxManagerHistorySize {
		m.history = m.history[len(m.history)-maxManagerHistorySize:]
	}
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"service":   service,
		"model":     model,
		"operation": operation,
		"tokens":    usage.TotalTokens,
		"cost":      usage.EstimatedCostUSD,
	}).Info("model usage")
}
