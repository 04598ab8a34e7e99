package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultHistorySize = 100

// Keys whose name contains any of these fragments are redacted before an
// input map is written to the execution history.
var sensitiveKeyFragments = []string{
	"password", "api_key", "token", "secret", "credential", "auth",
	"private", "key", "certificate", "ssn", "social_security",
	"credit_card", "card_number", "cvv", "pin",
}

// HistoryEntry records a single tool execution with sanitized input.
type HistoryEntry struct {
	ToolName  string
	Input     map[string]any
	Result    map[string]any
	Timestamp time.Time
}

// Request names a tool and the input to execute it with.
type Request struct {
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input_data"`
}

// Manager executes tools resolved through a Registry. Every call path yields
// a Result; errors never escape to the route layer.
type Manager struct {
	registry *Registry
	log      *logrus.Logger

	mu          sync.Mutex
	history     []HistoryEntry
	historySize int
}

// NewManager wraps a registry. The logger may be nil.
func NewManager(registry *Registry, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		registry:    registry,
		log:         log,
		historySize: defaultHistorySize,
	}
}

// Execute runs a tool by name. Lookup failures, validation failures, tool
// errors and panics are all converted into an ERROR-status Result.
func (m *Manager) Execute(ctx context.Context, toolName string, input map[string]any) *Result {
	t, err := m.registry.Get(toolName)
	if err != nil {
		return m.failed(toolName, input, AsToolError(err, "TOOL_NOT_FOUND"))
	}

	if !t.ValidateInput(input) {
		return m.failed(toolName, input, NewError(
			fmt.Sprintf("invalid input for tool %q", toolName), "INVALID_TOOL_INPUT"))
	}

	result, execErr := m.run(ctx, t, input)
	if execErr != nil {
		m.log.WithFields(logrus.Fields{"tool": toolName, "error": execErr}).Error("tool execution failed")
		return m.failed(toolName, input, AsToolError(execErr, "TOOL_EXECUTION_ERROR"))
	}
	if result == nil {
		return m.failed(toolName, input, NewError(
			fmt.Sprintf("tool %q returned no result", toolName), "TOOL_EXECUTION_ERROR"))
	}

	m.record(toolName, input, result)
	return result
}

// run invokes the tool with timing and panic containment. A panicking tool
// must not take down sibling executions or the caller.
func (m *Manager) run(ctx context.Context, t Tool, input map[string]any) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = NewError(fmt.Sprintf("tool panicked: %v", r), "TOOL_EXECUTION_ERROR").
				WithDetails(map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	start := time.Now()
	result, err = t.Execute(ctx, input)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	if result != nil && !result.TimedByTool() {
		result.ExecutionTime = elapsed
	}
	return result, nil
}

// ExecuteParallel fans out the requests concurrently and joins on an
// all-complete barrier. One request's failure never aborts its siblings;
// the caller receives a per-tool result map even under partial failure.
func (m *Manager) ExecuteParallel(ctx context.Context, requests []Request) map[string]*Result {
	results := make([]*Result, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		if req.ToolName == "" {
			m.log.Error("missing tool_name in tool request")
			continue
		}
		wg.Add(1)
		go func(idx int, r Request) {
			defer wg.Done()
			results[idx] = m.Execute(ctx, r.ToolName, r.Input)
		}(i, req)
	}
	wg.Wait()

	out := make(map[string]*Result, len(requests))
	for i, req := range requests {
		if results[i] != nil {
			out[req.ToolName] = results[i]
		}
	}
	return out
}

// Capabilities returns a tool's capability description.
func (m *Manager) Capabilities(toolName string) (map[string]any, error) {
	t, err := m.registry.Get(toolName)
	if err != nil {
		return nil, err
	}
	return t.Capabilities(), nil
}

// AvailableTools lists the names of all registered tools.
func (m *Manager) AvailableTools() []string {
	return m.registry.List()
}

// History returns up to limit most recent entries; limit <= 0 returns all.
func (m *Manager) History(limit int) []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]HistoryEntry, limit)
	copy(out, m.history[n-limit:])
	return out
}

// ClearHistory drops all recorded executions.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

func (m *Manager) failed(toolName string, input map[string]any, terr *Error) *Result {
	result := NewErrorResult(terr, map[string]any{"tool_name": toolName})
	m.record(toolName, input, result)
	return result
}

func (m *Manager) record(toolName string, input map[string]any, result *Result) {
	entry := HistoryEntry{
		ToolName:  toolName,
		Input:     sanitizeInput(input),
		Result:    result.AsMap(),
		Timestamp: result.Timestamp,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entry)
	if len(m.history) > m.historySize {
		m.history = m.history[len(m.history)-m.historySize:]
	}
}

// sanitizeInput shallow-copies the input and redacts values under keys that
// look like they hold credentials or other sensitive material.
func sanitizeInput(input map[string]any) map[string]any {
	sanitized := make(map[string]any, len(input))
	for k, v := range input {
		if isSensitiveKey(k) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}
	return sanitized
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
