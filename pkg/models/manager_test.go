package models

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeOpenAI serves canned chat and embedding responses while recording the
// request payloads it saw.
func fakeOpenAI(t *testing.T) (*Registry, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(raw, &payload)
		requests = append(requests, payload)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			io.WriteString(w, chatCompletionBody)
		case "/v1/embeddings":
			io.WriteString(w, `{
				"object": "list",
				"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]}],
				"usage": {"prompt_tokens": 7, "total_tokens": 7}
			}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	registry := NewRegistry(RegistryOptions{
		OpenAI: NewOpenAIClient(OpenAIOptions{
			APIKey:  "test-key",
			BaseURL: srv.URL + "/v1",
			Retry:   RetryOptions{MaxAttempts: 1, BaseDelay: time.Millisecond},
		}),
	})
	return registry, &requests
}

func TestManagerGenerateTextResolvesServiceModel(t *testing.T) {
	registry, requests := fakeOpenAI(t)
	mgr := NewManager(registry, nil)

	resp, err := mgr.GenerateText(context.Background(), "calendar", []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if resp.Content != "hello" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected one request, got %d", len(*requests))
	}
	if model := (*requests)[0]["model"]; model != "gpt-4o-mini" {
		t.Fatalf("expected calendar to use gpt-4o-mini, got %v", model)
	}
}

func TestManagerGenerateTextAppliesOverrides(t *testing.T) {
	registry, requests := fakeOpenAI(t)
	mgr := NewManager(registry, nil)

	temp := float32(0.1)
	tokens := 42
	_, err := mgr.GenerateText(context.Background(), "calendar", []Message{{Role: "user", Content: "hi"}}, &GenerateOptions{
		Temperature: &temp,
		MaxTokens:   &tokens,
	})
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	payload := (*requests)[0]
	if got := payload["max_tokens"].(float64); got != 42 {
		t.Fatalf("expected max_tokens override 42, got %v", got)
	}
}

func TestManagerGenerateTextRoutesNamedProvider(t *testing.T) {
	registry, requests := fakeOpenAI(t)
	mgr := NewManager(registry, nil)

	messages := []Message{
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "hi"},
	}
	resp, err := mgr.GenerateText(context.Background(), "calendar", messages, &GenerateOptions{Provider: "dummy"})
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if resp.Content != "Dummy response: hi" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if resp.Model != "dummy" {
		t.Fatalf("expected model to carry the provider name, got %q", resp.Model)
	}
	if len(*requests) != 0 {
		t.Fatalf("expected no OpenAI request, got %d", len(*requests))
	}

	byModel := mgr.UsageStatistics()["usage_by_model"].(map[string]map[string]any)
	if byModel["dummy"]["total_requests"].(int) != 1 {
		t.Fatalf("expected usage recorded under dummy, got %v", byModel)
	}
}

func TestManagerDefaultChatProvider(t *testing.T) {
	registry, requests := fakeOpenAI(t)
	mgr := NewManager(registry, nil)
	mgr.SetDefaultChatProvider("dummy")

	resp, err := mgr.GenerateText(context.Background(), "calendar", []Message{{Role: "user", Content: "ping"}}, nil)
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if resp.Content != "Dummy response: ping" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}

	// Naming openai on the request overrides the default.
	resp, err = mgr.GenerateText(context.Background(), "calendar", []Message{{Role: "user", Content: "ping"}}, &GenerateOptions{Provider: "openai"})
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if resp.Content != "hello" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected one OpenAI request, got %d", len(*requests))
	}
}

func TestManagerGenerateTextUnknownProvider(t *testing.T) {
	registry, requests := fakeOpenAI(t)
	mgr := NewManager(registry, nil)

	_, err := mgr.GenerateText(context.Background(), "calendar", []Message{{Role: "user", Content: "hi"}}, &GenerateOptions{Provider: "nope"})
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if len(*requests) != 0 {
		t.Fatalf("expected no OpenAI request, got %d", len(*requests))
	}
}

func TestManagerGenerateTextRejectsEmptyMessages(t *testing.T) {
	registry, _ := fakeOpenAI(t)
	mgr := NewManager(registry, nil)

	if _, err := mgr.GenerateText(context.Background(), "calendar", nil, nil); err == nil {
		t.Fatalf("expected error for empty messages")
	}
}

func TestManagerGenerateEmbeddings(t *testing.T) {
	registry, requests := fakeOpenAI(t)
	mgr := NewManager(registry, nil)

	resp, err := mgr.GenerateEmbeddings(context.Background(), "memory_manager", []string{"one"}, 0)
	if err != nil {
		t.Fatalf("GenerateEmbeddings returned error: %v", err)
	}
	if len(resp.Vectors) != 1 || len(resp.Vectors[0]) != 3 {
		t.Fatalf("unexpected vectors: %v", resp.Vectors)
	}
	if model := (*requests)[0]["model"]; model != "text-embedding-3-small" {
		t.Fatalf("expected standard embedding model, got %v", model)
	}
}

func TestManagerRecordsUsagePerServiceAndOperation(t *testing.T) {
	registry, _ := fakeOpenAI(t)
	mgr := NewManager(registry, nil)

	if _, err := mgr.GenerateText(context.Background(), "calendar", []Message{{Role: "user", Content: "a"}}, nil); err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if _, err := mgr.GenerateEmbeddings(context.Background(), "calendar", []string{"b"}, 0); err != nil {
		t.Fatalf("GenerateEmbeddings returned error: %v", err)
	}

	stats := mgr.UsageStatistics()
	if stats["total_requests"].(int) != 2 {
		t.Fatalf("expected 2 requests, got %v", stats["total_requests"])
	}
	byService := stats["usage_by_service"].(map[string]map[string]any)
	if byService["calendar"]["total_requests"].(int) != 2 {
		t.Fatalf("expected both calls under calendar, got %v", byService["calendar"])
	}
	byOperation := stats["usage_by_operation"].(map[string]map[string]any)
	if byOperation["text_generation"]["total_requests"].(int) != 1 {
		t.Fatalf("expected one text_generation call, got %v", byOperation["text_generation"])
	}
	if byOperation["embeddings"]["total_requests"].(int) != 1 {
		t.Fatalf("expected one embeddings call, got %v", byOperation["embeddings"])
	}

	mgr.ClearUsageHistory()
	if mgr.UsageStatistics()["total_requests"].(int) != 0 {
		t.Fatalf("expected empty history after clear")
	}
}

func TestManagerAnalyzeImage(t *testing.T) {
	registry, requests := fakeOpenAI(t)
	mgr := NewManager(registry, nil)

	resp, err := mgr.AnalyzeImage(context.Background(), "discovery_analysis", "https://example.com/x.png", "describe", 0)
	if err != nil {
		t.Fatalf("AnalyzeImage returned error: %v", err)
	}
	if resp.Content != "hello" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	payload := (*requests)[0]
	messages := payload["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected multi-content message with 2 parts, got %d", len(content))
	}
}

func TestManagerUpstreamFailureSurfacesAsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"message": "broken"}}`)
	}))
	t.Cleanup(srv.Close)

	registry := NewRegistry(RegistryOptions{
		OpenAI: NewOpenAIClient(OpenAIOptions{
			APIKey:  "test-key",
			BaseURL: srv.URL + "/v1",
			Retry:   RetryOptions{MaxAttempts: 1, BaseDelay: time.Millisecond},
		}),
	})
	mgr := NewManager(registry, nil)

	_, err := mgr.GenerateText(context.Background(), "calendar", []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatalf("expected upstream error")
	}
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %T: %v", err, err)
	}
	if upErr.Provider != "openai" {
		t.Fatalf("unexpected provider: %q", upErr.Provider)
	}
}
