package tools

import (
	"context"
	"time"

	"github.com/intellisync/go-mcp/pkg/tool"
)

// Clock reports the current time, optionally in a named IANA time zone.
type Clock struct{}

func (c *Clock) Execute(_ context.Context, input map[string]any) (*tool.Result, error) {
	loc := time.UTC
	if name, ok := input["timezone"].(string); ok && name != "" {
		parsed, err := time.LoadLocation(name)
		if err != nil {
			return nil, tool.NewError("unknown timezone: "+name, "INVALID_TIMEZONE")
		}
		loc = parsed
	}

	now := time.Now().In(loc)
	return tool.NewResult(tool.StatusSuccess, map[string]any{
		"time":     now.Format(time.RFC3339),
		"timezone": loc.String(),
		"unix":     now.Unix(),
	}, nil), nil
}

func (c *Clock) ValidateInput(input map[string]any) bool {
	if raw, ok := input["timezone"]; ok {
		_, isString := raw.(string)
		return isString
	}
	return true
}

func (c *Clock) Capabilities() map[string]any {
	return map[string]any{
		"description": "Returns the current time",
		"input": map[string]any{
			"timezone": "IANA time zone name, defaults to UTC (optional)",
		},
	}
}
