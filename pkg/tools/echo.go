package tools

import (
	"context"
	"strings"

	"github.com/intellisync/go-mcp/pkg/tool"
)

// Echo repeats the provided text. Useful for testing tool wiring.
type Echo struct{}

func (e *Echo) Execute(_ context.Context, input map[string]any) (*tool.Result, error) {
	text, _ := input["text"].(string)
	return tool.NewResult(tool.StatusSuccess, map[string]any{
		"text": strings.TrimSpace(text),
	}, nil), nil
}

func (e *Echo) ValidateInput(input map[string]any) bool {
	_, ok := input["text"].(string)
	return ok
}

func (e *Echo) Capabilities() map[string]any {
	return map[string]any{
		"description": "Echoes the provided text back to the caller",
		"input": map[string]any{
			"text": "Text to echo (required)",
		},
	}
}
