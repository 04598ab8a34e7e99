package models

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry resolves which model a service or tool should use and hands out
// the shared OpenAI client plus any alternate chat providers.
type Registry struct {
	openai *OpenAIClient
	log    *logrus.Logger

	mu        sync.Mutex
	providers map[string]Provider
}

// RegistryOptions configure a Registry. A nil OpenAI client is built from
// the environment.
type RegistryOptions struct {
	OpenAI *OpenAIClient
	Logger *logrus.Logger
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.OpenAI == nil {
		opts.OpenAI = NewOpenAIClient(OpenAIOptions{Logger: opts.Logger})
	}
	return &Registry{
		openai:    opts.OpenAI,
		log:       opts.Logger,
		providers: make(map[string]Provider),
	}
}

// OpenAI returns the shared client.
func (r *Registry) OpenAI() *OpenAIClient { return r.openai }

// RegisterProvider installs a chat provider under name, replacing any
// cached instance.
func (r *Registry) RegisterProvider(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// ChatProvider returns the chat provider registered under name,
// constructing it with the provider's default chat model on first use.
func (r *Registry) ChatProvider(ctx context.Context, name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	p, err := NewProvider(ctx, name, providerChatModels[name], "")
	if err != nil {
		return nil, err
	}
	r.providers[name] = p
	r.log.WithFields(logrus.Fields{
		"provider": name,
		"model":    providerChatModels[name],
	}).Info("initialized chat provider")
	return p, nil
}

// ModelForService maps a service name to the model of the requested kind.
// Unknown services fall back to the default tier.
func (r *Registry) ModelForService(service string, kind ModelKind) string {
	tier, ok := serviceTiers[service]
	if !ok {
		tier = serviceTiers["default"]
	}
	return defaultModels[tier][kind]
}

// ModelForTool maps a tool name to its configured model.
func (r *Registry) ModelForTool(tool string) string {
	cfg := r.ToolConfig(tool)
	return defaultModels[cfg.Tier][cfg.Kind]
}

// ToolConfig returns the model configuration for a tool, falling back to a
// standard chat configuration for unknown tools.
func (r *Registry) ToolConfig(tool string) ToolModelConfig {
	if cfg, ok := toolConfigs[tool]; ok {
		return cfg
	}
	return fallbackToolConfig
}

// DefaultParams returns the generation defaults for a model.
func (r *Registry) DefaultParams(model string) ModelParams {
	if p, ok := modelParams[model]; ok {
		return p
	}
	return fallbackParams
}

// ServiceConfigurations lists the chat model assignment for every known
// service.
func (r *Registry) ServiceConfigurations() map[string]map[string]any {
	result := make(map[string]map[string]any, len(serviceTiers))
	for service, tier := range serviceTiers {
		model := defaultModels[tier][KindChat]
		params := r.DefaultParams(model)
		result[service] = map[string]any{
			"model": model,
			"tier":  string(tier),
			"parameters": map[string]any{
				"temperature": params.Temperature,
				"max_tokens":  params.MaxTokens,
			},
		}
	}
	return result
}
