package models

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes one chat completion call. Zero Temperature and
// MaxTokens fall back to the model defaults.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// ChatResponse carries the generated text and the usage it cost.
type ChatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// EmbeddingResponse carries one vector per input text.
type EmbeddingResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Model   string      `json:"model"`
	Usage   Usage       `json:"usage"`
}

// TranscriptionResponse carries the transcribed text. The API reports no
// token counts for audio, so usage stays zero except for the model name.
type TranscriptionResponse struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// OpenAIOptions configure the OpenAI client.
type OpenAIOptions struct {
	APIKey       string // defaults to OPENAI_API_KEY
	Organization string // defaults to OPENAI_ORGANIZATION
	BaseURL      string
	Timeout      time.Duration
	Retry        RetryOptions
	Logger       *logrus.Logger
}

// OpenAIClient wraps the OpenAI API with a retrying transport and a bounded
// usage log.
type OpenAIClient struct {
	api   *openai.Client
	usage *UsageLog
	log   *logrus.Logger
}

func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if opts.Organization == "" {
		opts.Organization = os.Getenv("OPENAI_ORGANIZATION")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	config := openai.DefaultConfig(opts.APIKey)
	if opts.Organization != "" {
		config.OrgID = opts.Organization
	}
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	config.HTTPClient = &http.Client{
		Timeout:   opts.Timeout,
		Transport: newRetryTransport(nil, opts.Retry),
	}

	return &OpenAIClient{
		api:   openai.NewClientWithConfig(config),
		usage: NewUsageLog(),
		log:   opts.Logger,
	}
}

// ChatCompletion runs one chat completion and records its usage.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, upstream("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, upstream("openai", errors.New("empty chat completion"))
	}

	usage := c.record(req.Model, resp.Usage)
	return &ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   req.Model,
		Usage:   usage,
	}, nil
}

// AnalyzeImage sends a vision request: the prompt plus an image URL (or
// data URL) as a multi-content user message.
func (c *OpenAIClient) AnalyzeImage(ctx context.Context, model, imageURL, prompt string, maxTokens int) (*ChatResponse, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: prompt,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    imageURL,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}},
	})
	if err != nil {
		return nil, upstream("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, upstream("openai", errors.New("empty vision completion"))
	}

	usage := c.record(model, resp.Usage)
	return &ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage:   usage,
	}, nil
}

// Embeddings embeds each input text. Dimensions 0 keeps the model default.
func (c *OpenAIClient) Embeddings(ctx context.Context, model string, texts []string, dimensions int) (*EmbeddingResponse, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(model),
		Dimensions: dimensions,
	})
	if err != nil {
		return nil, upstream("openai", err)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}

	usage := c.record(model, openai.Usage{
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	})
	return &EmbeddingResponse{Vectors: vectors, Model: model, Usage: usage}, nil
}

// Transcribe converts an audio file to text. The API reports no token
// usage for transcription, so only the call itself is logged.
func (c *OpenAIClient) Transcribe(ctx context.Context, model, filePath, language, prompt string) (*TranscriptionResponse, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: filePath,
		Language: language,
		Prompt:   prompt,
	})
	if err != nil {
		return nil, upstream("openai", err)
	}

	usage := c.record(model, openai.Usage{})
	return &TranscriptionResponse{Text: resp.Text, Model: model, Usage: usage}, nil
}

// UsageStatistics aggregates the client's usage log.
func (c *OpenAIClient) UsageStatistics() map[string]any { return c.usage.Statistics() }

// ClearUsageLog drops all recorded usage.
func (c *OpenAIClient) ClearUsageLog() { c.usage.Clear() }

func (c *OpenAIClient) record(model string, u openai.Usage) Usage {
	usage := calculateUsage(model, u.PromptTokens, u.CompletionTokens, u.TotalTokens)
	c.usage.Record(usage)
	c.log.WithFields(logrus.Fields{
		"model":  model,
		"tokens": usage.TotalTokens,
		"cost":   usage.EstimatedCostUSD,
	}).Debug("model call")
	return usage
}

// OpenAIProvider adapts the client to the plain Provider interface.
type OpenAIProvider struct {
	Client       *OpenAIClient
	Model        string
	PromptPrefix string
}

func NewOpenAIProvider(model, promptPrefix string) *OpenAIProvider {
	return &OpenAIProvider{
		Client:       NewOpenAIClient(OpenAIOptions{}),
		Model:        model,
		PromptPrefix: promptPrefix,
	}
}

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	fullPrompt := prompt
	if o.PromptPrefix != "" {
		fullPrompt = o.PromptPrefix + "\n" + prompt
	}
	resp, err := o.Client.ChatCompletion(ctx, ChatRequest{
		Model:    o.Model,
		Messages: []Message{{Role: openai.ChatMessageRoleUser, Content: fullPrompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
