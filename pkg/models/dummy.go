package models

import (
	"context"
	"fmt"
	"strings"
)

// DummyProvider is a lightweight provider useful for local testing without
// API calls. It echoes the last non-empty line of the prompt.
type DummyProvider struct {
	Prefix string
}

func NewDummyProvider(prefix string) *DummyProvider {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyProvider{Prefix: prefix}
}

func (d *DummyProvider) Generate(_ context.Context, prompt string) (string, error) {
	lines := strings.Split(prompt, "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(lines[i])
		if candidate != "" {
			last = candidate
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return fmt.Sprintf("%s %s", d.Prefix, last), nil
}

var _ Provider = (*DummyProvider)(nil)
