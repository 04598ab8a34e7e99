package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestManager(t *testing.T) (*Manager, *Registry) {
	t.Helper()
	r := NewRegistry(nil)
	return NewManager(r, nil), r
}

func TestManagerExecuteSuccess(t *testing.T) {
	m, r := newTestManager(t)
	if err := r.Register("stub", &stubTool{}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	res := m.Execute(context.Background(), "stub", map[string]any{"x": 1})
	if res.Status != StatusSuccess {
		t.Fatalf("unexpected status: %v (error: %v)", res.Status, res.Err)
	}
	if res.ExecutionTime < 0 {
		t.Fatalf("execution time not recorded")
	}
	if res.ID == "" {
		t.Fatalf("result id missing")
	}
}

func TestManagerUnknownToolBecomesErrorResult(t *testing.T) {
	m, _ := newTestManager(t)
	res := m.Execute(context.Background(), "missing", nil)
	if res.Status != StatusError {
		t.Fatalf("expected error status, got %v", res.Status)
	}
	if res.Err == nil || res.Err.Code != "TOOL_NOT_FOUND" {
		t.Fatalf("expected TOOL_NOT_FOUND, got %+v", res.Err)
	}
}

func TestManagerValidationRunsBeforeExecute(t *testing.T) {
	m, r := newTestManager(t)
	executed := false
	tool := &stubTool{
		validate: func(map[string]any) bool { return false },
		execute: func(context.Context, map[string]any) (*Result, error) {
			executed = true
			return NewResult(StatusSuccess, nil, nil), nil
		},
	}
	if err := r.Register("strict", tool); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	res := m.Execute(context.Background(), "strict", map[string]any{})
	if res.Status != StatusError {
		t.Fatalf("expected error status, got %v", res.Status)
	}
	if res.Err == nil || res.Err.Code != "INVALID_TOOL_INPUT" {
		t.Fatalf("expected INVALID_TOOL_INPUT, got %+v", res.Err)
	}
	if executed {
		t.Fatalf("execute ran despite failed validation")
	}
}

func TestManagerErrorResultAlwaysCarriesError(t *testing.T) {
	m, r := newTestManager(t)
	if err := r.Register("failing", &stubTool{
		execute: func(context.Context, map[string]any) (*Result, error) {
			return nil, errors.New("boom")
		},
	}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	res := m.Execute(context.Background(), "failing", nil)
	if res.Status != StatusError {
		t.Fatalf("expected error status, got %v", res.Status)
	}
	if res.Err == nil {
		t.Fatalf("error-status result without error")
	}
	if res.Err.Code != "TOOL_EXECUTION_ERROR" {
		t.Fatalf("expected TOOL_EXECUTION_ERROR, got %q", res.Err.Code)
	}
	if res.Err.Details["error_type"] != "*errors.errorString" {
		t.Fatalf("original error type not preserved: %v", res.Err.Details)
	}
}

func TestManagerContainsPanics(t *testing.T) {
	m, r := newTestManager(t)
	if err := r.Register("panicky", &stubTool{
		execute: func(context.Context, map[string]any) (*Result, error) {
			panic("unexpected")
		},
	}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	res := m.Execute(context.Background(), "panicky", nil)
	if res.Status != StatusError || res.Err == nil {
		t.Fatalf("panic did not convert to error result: %+v", res)
	}
}

func TestManagerHistoryRingBuffer(t *testing.T) {
	m, r := newTestManager(t)
	if err := r.Register("stub", &stubTool{}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	for i := 0; i < 150; i++ {
		m.Execute(context.Background(), "stub", map[string]any{"seq": i})
	}

	history := m.History(0)
	if len(history) != 100 {
		t.Fatalf("history size = %d, want 100", len(history))
	}
	// Oldest entries are evicted first: the first surviving entry is seq 50.
	if history[0].Input["seq"] != 50 {
		t.Fatalf("unexpected oldest entry: %v", history[0].Input)
	}
	if history[99].Input["seq"] != 149 {
		t.Fatalf("unexpected newest entry: %v", history[99].Input)
	}
}

func TestManagerHistorySanitization(t *testing.T) {
	m, r := newTestManager(t)
	if err := r.Register("stub", &stubTool{}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	m.Execute(context.Background(), "stub", map[string]any{
		"api_key":      "sk-123",
		"Access_Token": 42,
		"text":         "hello",
	})

	history := m.History(1)
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	in := history[0].Input
	if in["api_key"] != "[REDACTED]" {
		t.Fatalf("api_key not redacted: %v", in["api_key"])
	}
	if in["Access_Token"] != "[REDACTED]" {
		t.Fatalf("token key not redacted regardless of value type: %v", in["Access_Token"])
	}
	if in["text"] != "hello" {
		t.Fatalf("non-sensitive key modified: %v", in["text"])
	}
}

func TestManagerHistoryLimit(t *testing.T) {
	m, r := newTestManager(t)
	if err := r.Register("stub", &stubTool{}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	for i := 0; i < 5; i++ {
		m.Execute(context.Background(), "stub", nil)
	}
	if got := len(m.History(3)); got != 3 {
		t.Fatalf("History(3) returned %d entries", got)
	}
	m.ClearHistory()
	if got := len(m.History(0)); got != 0 {
		t.Fatalf("history not cleared: %d entries", got)
	}
}

func TestManagerExecuteParallelPartialFailure(t *testing.T) {
	m, r := newTestManager(t)
	if err := r.Register("ok-a", &stubTool{}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := r.Register("ok-b", &stubTool{
		execute: func(context.Context, map[string]any) (*Result, error) {
			time.Sleep(5 * time.Millisecond)
			return NewResult(StatusSuccess, map[string]any{"slow": true}, nil), nil
		},
	}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := r.Register("bad", &stubTool{
		execute: func(context.Context, map[string]any) (*Result, error) {
			return nil, fmt.Errorf("deliberate failure")
		},
	}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	results := m.ExecuteParallel(context.Background(), []Request{
		{ToolName: "ok-a"},
		{ToolName: "bad"},
		{ToolName: "ok-b"},
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results["ok-a"].Status != StatusSuccess {
		t.Fatalf("ok-a did not succeed: %+v", results["ok-a"].Err)
	}
	if results["ok-b"].Status != StatusSuccess {
		t.Fatalf("ok-b did not succeed: %+v", results["ok-b"].Err)
	}
	if results["bad"].Status != StatusError {
		t.Fatalf("bad did not fail: %+v", results["bad"])
	}
}

func TestResultAsMapShape(t *testing.T) {
	res := NewErrorResult(NewError("nope", "TOOL_NOT_FOUND"), map[string]any{"tool_name": "x"})
	m := res.AsMap()
	if m["status"] != "error" {
		t.Fatalf("unexpected status: %v", m["status"])
	}
	errMap, ok := m["error"].(map[string]any)
	if !ok {
		t.Fatalf("error field missing from map: %v", m)
	}
	if errMap["code"] != "TOOL_NOT_FOUND" {
		t.Fatalf("unexpected error code: %v", errMap["code"])
	}
	if _, present := m["id"]; !present {
		t.Fatalf("id missing from map")
	}
}
