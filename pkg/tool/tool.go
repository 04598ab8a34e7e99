// Package tool defines the contract shared by every capability unit in the
// system: a Tool validates its input, executes, and describes itself. All
// outcomes cross the boundary as a Result; all failures as an *Error.
package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status classifies the outcome of a tool execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPartial Status = "partial"
)

// Error is the only error type that crosses the tool/manager boundary.
// Code is a stable machine-readable identifier; Details carries optional
// structured context.
type Error struct {
	Message string
	Code    string
	Details map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an *Error with the given message and code.
func NewError(message, code string) *Error {
	return &Error{Message: message, Code: code}
}

// WithDetails returns the error with the details map attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Result is the envelope returned by every tool execution. It is built once
// and not mutated after it is handed to the caller.
type Result struct {
	ID            string
	Status        Status
	Data          map[string]any
	Err           *Error
	ExecutionTime time.Duration
	timedByTool   bool
	Metadata      map[string]any
	Timestamp     time.Time
}

// NewResult constructs a Result with a fresh id and timestamp.
func NewResult(status Status, data, metadata map[string]any) *Result {
	if data == nil {
		data = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Result{
		ID:        uuid.NewString(),
		Status:    status,
		Data:      data,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorResult constructs an ERROR result carrying the given error.
func NewErrorResult(err *Error, metadata map[string]any) *Result {
	r := NewResult(StatusError, nil, metadata)
	r.Err = err
	return r
}

// WithExecutionTime sets the execution time and marks it as tool-provided,
// so the manager does not overwrite it with its own measurement.
func (r *Result) WithExecutionTime(d time.Duration) *Result {
	r.ExecutionTime = d
	r.timedByTool = true
	return r
}

// TimedByTool reports whether the tool set its own execution time.
func (r *Result) TimedByTool() bool {
	return r.timedByTool
}

// AsMap serializes the result into its wire shape.
func (r *Result) AsMap() map[string]any {
	out := map[string]any{
		"id":        r.ID,
		"status":    string(r.Status),
		"data":      r.Data,
		"timestamp": r.Timestamp.Format(time.RFC3339Nano),
		"metadata":  r.Metadata,
	}
	if r.Err != nil {
		out["error"] = map[string]any{
			"message": r.Err.Message,
			"code":    r.Err.Code,
			"details": r.Err.Details,
		}
	}
	if r.ExecutionTime > 0 || r.timedByTool {
		out["execution_time"] = r.ExecutionTime.Seconds()
	}
	return out
}

// Tool is a named, self-contained unit of capability.
type Tool interface {
	// Execute performs the tool's primary function. Implementations return
	// either a Result or an *Error; they never let other error types escape.
	Execute(ctx context.Context, input map[string]any) (*Result, error)

	// ValidateInput reports whether the input satisfies the tool's contract.
	ValidateInput(input map[string]any) bool

	// Capabilities describes the tool's operations and schemas.
	Capabilities() map[string]any
}

// AsToolError converts any error into an *Error, preserving the original
// type name in the details when wrapping is needed.
func AsToolError(err error, code string) *Error {
	if te, ok := err.(*Error); ok {
		return te
	}
	return &Error{
		Message: err.Error(),
		Code:    code,
		Details: map[string]any{"error_type": fmt.Sprintf("%T", err)},
	}
}
