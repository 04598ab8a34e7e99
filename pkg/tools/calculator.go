package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/intellisync/go-mcp/pkg/tool"
)

// Calculator evaluates basic arithmetic expressions in the form "a op b".
type Calculator struct{}

type calculatorInput struct {
	Expression string `mapstructure:"expression"`
}

func (c *Calculator) Execute(_ context.Context, input map[string]any) (*tool.Result, error) {
	var in calculatorInput
	if err := decodeInput(input, &in); err != nil {
		return nil, tool.NewError(err.Error(), "INVALID_TOOL_INPUT")
	}

	fields := strings.Fields(strings.TrimSpace(in.Expression))
	if len(fields) != 3 {
		return nil, tool.NewError("expected format '<number> <op> <number>'", "INVALID_EXPRESSION")
	}

	left, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, tool.NewError(fmt.Sprintf("invalid left operand %q", fields[0]), "INVALID_EXPRESSION")
	}
	right, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, tool.NewError(fmt.Sprintf("invalid right operand %q", fields[2]), "INVALID_EXPRESSION")
	}

	var result float64
	switch fields[1] {
	case "+":
		result = left + right
	case "-":
		result = left - right
	case "*", "x", "X":
		result = left * right
	case "/":
		if math.Abs(right) < 1e-12 {
			return nil, tool.NewError("division by zero", "INVALID_EXPRESSION")
		}
		result = left / right
	default:
		return nil, tool.NewError(fmt.Sprintf("unsupported operator %q", fields[1]), "INVALID_EXPRESSION")
	}

	return tool.NewResult(tool.StatusSuccess, map[string]any{
		"expression": in.Expression,
		"result":     result,
		"formatted":  strconv.FormatFloat(result, 'f', -1, 64),
	}, nil), nil
}

func (c *Calculator) ValidateInput(input map[string]any) bool {
	expr, ok := input["expression"].(string)
	return ok && strings.TrimSpace(expr) != ""
}

func (c *Calculator) Capabilities() map[string]any {
	return map[string]any{
		"description": "Evaluates simple math expressions such as '2 + 2' or '5 * 3'",
		"input": map[string]any{
			"expression": "Expression in the form '<number> <operator> <number>' (required)",
		},
		"operators": []string{"+", "-", "*", "/"},
	}
}
