// Package tools contains the concrete tool implementations registered with
// the tool registry: template rendering, text analysis, email composition
// and calendar operations.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/intellisync/go-mcp/pkg/cache"
	"github.com/intellisync/go-mcp/pkg/tool"
)

const (
	defaultTemplateDir       = "./templates"
	defaultTemplateCacheSize = 50

	// Each rendering pass reapplies its rewrite until a fixed point. The
	// bound keeps a malicious template from spinning forever.
	maxTemplatePasses = 25
)

var (
	varPattern    = regexp.MustCompile(`\{\{([^#/][^}]*?)\}\}`)
	ifElsePattern = regexp.MustCompile(`(?s)\{\{#if\s+([^}]+)\}\}(.*?)\{\{else\}\}(.*?)\{\{/if\}\}`)
	ifPattern     = regexp.MustCompile(`(?s)\{\{#if\s+([^}]+)\}\}(.*?)\{\{/if\}\}`)
	eachPattern   = regexp.MustCompile(`(?s)\{\{#each\s+([^}]+)\}\}(.*?)\{\{/each\}\}`)
)

// TemplateEngineOptions configure a TemplateEngine.
type TemplateEngineOptions struct {
	TemplateDir string
	CacheSize   int
}

// TemplateEngine renders `{{...}}` templates against a data map. Passes run
// in a fixed order: conditionals, loops, then variable substitution.
type TemplateEngine struct {
	templateDir string
	templates   *cache.LRU
}

// NewTemplateEngine creates a template engine tool.
func NewTemplateEngine(opts TemplateEngineOptions) *TemplateEngine {
	dir := opts.TemplateDir
	if dir == "" {
		dir = defaultTemplateDir
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultTemplateCacheSize
	}
	return &TemplateEngine{
		templateDir: dir,
		templates:   cache.NewLRU(size, 0),
	}
}

type templateInput struct {
	Template     string         `mapstructure:"template"`
	TemplateFile string         `mapstructure:"template_file"`
	Data         map[string]any `mapstructure:"data"`
	OutputFormat string         `mapstructure:"output_format"`
}

// Execute implements tool.Tool.
func (te *TemplateEngine) Execute(_ context.Context, input map[string]any) (*tool.Result, error) {
	start := time.Now()

	var in templateInput
	if err := decodeInput(input, &in); err != nil {
		return nil, tool.NewError(fmt.Sprintf("failed to decode template input: %v", err), "TEMPLATE_PROCESSING_ERROR").
			WithDetails(map[string]any{"error_type": fmt.Sprintf("%T", err)})
	}
	if in.OutputFormat == "" {
		in.OutputFormat = "text"
	}

	var content string
	switch {
	case in.Template != "":
		content = in.Template
	case in.TemplateFile != "":
		loaded, err := te.loadTemplate(in.TemplateFile)
		if err != nil {
			return nil, err
		}
		content = loaded
	default:
		return nil, tool.NewError("no template or template_file provided", "MISSING_TEMPLATE")
	}

	processed := te.render(content, in.Data)
	if in.OutputFormat != "text" {
		processed = formatOutput(processed, in.OutputFormat)
	}

	result := tool.NewResult(tool.StatusSuccess, map[string]any{
		"content": processed,
		"format":  in.OutputFormat,
	}, map[string]any{
		"template_length": len(content),
		"output_length":   len(processed),
		"template_file":   in.TemplateFile,
	})
	return result.WithExecutionTime(time.Since(start)), nil
}

// ValidateInput implements tool.Tool.
func (te *TemplateEngine) ValidateInput(input map[string]any) bool {
	_, hasTemplate := input["template"]
	_, hasFile := input["template_file"]
	if !hasTemplate && !hasFile {
		return false
	}
	if raw, ok := input["data"]; ok {
		if _, isMap := raw.(map[string]any); !isMap {
			return false
		}
	}
	if raw, ok := input["output_format"]; ok {
		format, isString := raw.(string)
		if !isString {
			return false
		}
		switch format {
		case "text", "html", "markdown", "json":
		default:
			return false
		}
	}
	return true
}

// Capabilities implements tool.Tool.
func (te *TemplateEngine) Capabilities() map[string]any {
	return map[string]any{
		"description": "Fills templates with dynamic content to generate documents",
		"features": map[string]any{
			"variable_substitution": "Replace {{variable}} placeholders with values",
			"conditionals":          "Include or exclude sections with {{#if condition}}...{{/if}}",
			"loops":                 "Iterate over arrays with {{#each items}}...{{/each}}",
			"formatting":            "Output in various formats (text, html, markdown, json)",
		},
		"input_schema": map[string]any{
			"template":      "Template string with placeholders",
			"template_file": "Path to template file (alternative to template)",
			"data":          "Map of values to fill into the template",
			"output_format": "Format for the result (text, html, markdown, json)",
		},
		"output_schema": map[string]any{
			"content": "Processed template with variables replaced",
			"format":  "Output format of the content",
		},
		"template_dir":     te.templateDir,
		"cached_templates": te.templates.Len(),
	}
}

// loadTemplate reads a template from the configured directory, consulting
// the cache first.
func (te *TemplateEngine) loadTemplate(name string) (string, *tool.Error) {
	if cached, ok := te.templates.Get(name); ok {
		return cached, nil
	}

	path := filepath.Join(te.templateDir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", tool.NewError(fmt.Sprintf("template file not found: %s", name), "TEMPLATE_NOT_FOUND")
		}
		return "", tool.NewError(fmt.Sprintf("failed to load template file: %v", err), "TEMPLATE_LOAD_ERROR").
			WithDetails(map[string]any{"error_type": fmt.Sprintf("%T", err)})
	}

	content := string(raw)
	te.templates.Set(name, content)
	return content, nil
}

// render runs the three passes in order. Conditionals and loops are each
// reapplied until their output stops changing, bounded by maxTemplatePasses.
func (te *TemplateEngine) render(template string, data map[string]any) string {
	template = fixedPoint(template, func(s string) string { return processConditionals(s, data) })
	template = fixedPoint(template, func(s string) string { return te.processLoops(s, data) })
	return processVariables(template, data)
}

func fixedPoint(input string, pass func(string) string) string {
	for i := 0; i < maxTemplatePasses; i++ {
		next := pass(input)
		if next == input {
			return next
		}
		input = next
	}
	return input
}

// processConditionals rewrites {{#if c}}A{{else}}B{{/if}} and the if-only
// form. The condition is a direct key lookup with a truthy check; boolean
// expressions are intentionally unsupported.
func processConditionals(template string, data map[string]any) string {
	out := ifElsePattern.ReplaceAllStringFunc(template, func(match string) string {
		parts := ifElsePattern.FindStringSubmatch(match)
		cond := strings.TrimSpace(parts[1])
		if isTruthy(data[cond]) {
			return parts[2]
		}
		return parts[3]
	})
	return ifPattern.ReplaceAllStringFunc(out, func(match string) string {
		parts := ifPattern.FindStringSubmatch(match)
		cond := strings.TrimSpace(parts[1])
		if isTruthy(data[cond]) {
			return parts[2]
		}
		return ""
	})
}

// processLoops rewrites {{#each arr}}...{{/each}}. Each element renders the
// body through the full pipeline against the outer data merged with the
// element: map elements spread their keys, scalars bind to "this".
func (te *TemplateEngine) processLoops(template string, data map[string]any) string {
	return eachPattern.ReplaceAllStringFunc(template, func(match string) string {
		parts := eachPattern.FindStringSubmatch(match)
		name := strings.TrimSpace(parts[1])
		body := parts[2]

		items, ok := toSlice(data[name])
		if !ok {
			return ""
		}

		var sb strings.Builder
		for _, item := range items {
			scope := make(map[string]any, len(data)+2)
			for k, v := range data {
				scope[k] = v
			}
			if m, isMap := item.(map[string]any); isMap {
				for k, v := range m {
					scope[k] = v
				}
			} else {
				scope["this"] = item
			}
			sb.WriteString(te.render(body, scope))
		}
		return sb.String()
	})
}

// processVariables substitutes {{name}} and dotted {{a.b.c}} lookups.
// Missing values render as the empty string.
func processVariables(template string, data map[string]any) string {
	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := strings.TrimSpace(parts[1])

		var value any
		if strings.Contains(name, ".") {
			value = nestedLookup(data, name)
		} else {
			value = data[name]
		}
		if value == nil {
			return ""
		}
		return fmt.Sprint(value)
	})
}

func nestedLookup(data map[string]any, path string) any {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// isTruthy mirrors the truthiness the template language has always used:
// false, nil, zero numbers, empty strings and empty collections are false.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

func toSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// formatOutput applies the advisory output formatting. html and markdown are
// returned unchanged; json content is validated and, when invalid, wrapped
// as a JSON string.
func formatOutput(content, format string) string {
	switch format {
	case "json":
		if json.Valid([]byte(content)) {
			return content
		}
		wrapped, err := json.Marshal(content)
		if err != nil {
			return content
		}
		return string(wrapped)
	default:
		return content
	}
}
