package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/intellisync/go-mcp/pkg/tool"
)

func renderTemplate(t *testing.T, template string, data map[string]any) string {
	t.Helper()
	te := NewTemplateEngine(TemplateEngineOptions{})
	res, err := te.Execute(context.Background(), map[string]any{
		"template": template,
		"data":     data,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	content, ok := res.Data["content"].(string)
	if !ok {
		t.Fatalf("missing content in result data: %v", res.Data)
	}
	return content
}

func TestTemplatePlainTextUnchanged(t *testing.T) {
	in := "no markers here at all"
	if out := renderTemplate(t, in, nil); out != in {
		t.Fatalf("plain text modified: %q", out)
	}
}

func TestTemplateVariableSubstitution(t *testing.T) {
	if out := renderTemplate(t, "{{x}}", map[string]any{"x": "5"}); out != "5" {
		t.Fatalf("got %q, want %q", out, "5")
	}
	if out := renderTemplate(t, "{{x}}", map[string]any{}); out != "" {
		t.Fatalf("missing variable rendered %q, want empty", out)
	}
}

func TestTemplateDottedPathLookup(t *testing.T) {
	data := map[string]any{
		"client": map[string]any{
			"contact": map[string]any{"name": "Ada"},
		},
	}
	if out := renderTemplate(t, "{{client.contact.name}}", data); out != "Ada" {
		t.Fatalf("got %q, want Ada", out)
	}
	if out := renderTemplate(t, "{{client.missing.name}}", data); out != "" {
		t.Fatalf("broken path rendered %q, want empty", out)
	}
}

func TestTemplateConditional(t *testing.T) {
	tpl := "{{#if a}}Y{{else}}N{{/if}}"
	if out := renderTemplate(t, tpl, map[string]any{"a": true}); out != "Y" {
		t.Fatalf("got %q, want Y", out)
	}
	if out := renderTemplate(t, tpl, map[string]any{}); out != "N" {
		t.Fatalf("got %q, want N", out)
	}
	if out := renderTemplate(t, "{{#if a}}shown{{/if}}", map[string]any{"a": "yes"}); out != "shown" {
		t.Fatalf("got %q, want shown", out)
	}
	if out := renderTemplate(t, "{{#if a}}shown{{/if}}", nil); out != "" {
		t.Fatalf("got %q, want empty", out)
	}
}

func TestTemplateConditionIsDirectKeyLookup(t *testing.T) {
	// The condition is a truthy key lookup, not an expression language.
	tpl := "{{#if count}}some{{else}}none{{/if}}"
	if out := renderTemplate(t, tpl, map[string]any{"count": 0}); out != "none" {
		t.Fatalf("zero not falsy: %q", out)
	}
	if out := renderTemplate(t, tpl, map[string]any{"count": 3}); out != "some" {
		t.Fatalf("non-zero not truthy: %q", out)
	}
}

func TestTemplateLoopScalars(t *testing.T) {
	out := renderTemplate(t, "{{#each items}}{{this}};{{/each}}", map[string]any{
		"items": []any{1, 2, 3},
	})
	if out != "1;2;3;" {
		t.Fatalf("got %q, want 1;2;3;", out)
	}
}

func TestTemplateLoopMapsSpreadTheirKeys(t *testing.T) {
	out := renderTemplate(t, "{{#each people}}{{name}}:{{role}} {{/each}}", map[string]any{
		"people": []any{
			map[string]any{"name": "Ada", "role": "lead"},
			map[string]any{"name": "Sam", "role": "dev"},
		},
	})
	if out != "Ada:lead Sam:dev " {
		t.Fatalf("got %q", out)
	}
}

func TestTemplateLoopSeesOuterScope(t *testing.T) {
	out := renderTemplate(t, "{{#each items}}{{prefix}}{{this}} {{/each}}", map[string]any{
		"prefix": "#",
		"items":  []any{"a", "b"},
	})
	if out != "#a #b " {
		t.Fatalf("got %q", out)
	}
}

func TestTemplateLoopNonArrayRendersEmpty(t *testing.T) {
	if out := renderTemplate(t, "{{#each items}}x{{/each}}", map[string]any{"items": 12}); out != "" {
		t.Fatalf("got %q, want empty", out)
	}
	if out := renderTemplate(t, "{{#each items}}x{{/each}}", nil); out != "" {
		t.Fatalf("got %q, want empty", out)
	}
}

func TestTemplateConditionalsResolveBeforeLoops(t *testing.T) {
	// Conditionals are a whole-template pass that runs before loops, so a
	// conditional inside an each-body is evaluated against the outer data.
	out := renderTemplate(t, "{{#each items}}{{#if flag}}+{{else}}-{{/if}}{{this}}{{/each}}", map[string]any{
		"flag":  true,
		"items": []any{"a", "b"},
	})
	if out != "+a+b" {
		t.Fatalf("got %q", out)
	}
}

func TestTemplateJSONOutputFormat(t *testing.T) {
	te := NewTemplateEngine(TemplateEngineOptions{})

	res, err := te.Execute(context.Background(), map[string]any{
		"template":      `{"name": "{{name}}"}`,
		"data":          map[string]any{"name": "x"},
		"output_format": "json",
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Data["content"] != `{"name": "x"}` {
		t.Fatalf("valid json altered: %v", res.Data["content"])
	}

	res, err = te.Execute(context.Background(), map[string]any{
		"template":      "not json",
		"output_format": "json",
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Data["content"] != `"not json"` {
		t.Fatalf("invalid json not wrapped: %v", res.Data["content"])
	}
}

func TestTemplateMissingTemplateError(t *testing.T) {
	te := NewTemplateEngine(TemplateEngineOptions{})
	_, err := te.Execute(context.Background(), map[string]any{"data": map[string]any{}})
	terr, ok := err.(*tool.Error)
	if !ok || terr.Code != "MISSING_TEMPLATE" {
		t.Fatalf("expected MISSING_TEMPLATE, got %v", err)
	}
}

func TestTemplateFileLoadingAndCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeting.tmpl")
	if err := os.WriteFile(path, []byte("Hi {{name}}"), 0o644); err != nil {
		t.Fatalf("writing template: %v", err)
	}

	te := NewTemplateEngine(TemplateEngineOptions{TemplateDir: dir})
	res, err := te.Execute(context.Background(), map[string]any{
		"template_file": "greeting.tmpl",
		"data":          map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Data["content"] != "Hi Ada" {
		t.Fatalf("got %v", res.Data["content"])
	}

	// A second render is served from the cache even if the file vanished.
	if err := os.Remove(path); err != nil {
		t.Fatalf("removing template: %v", err)
	}
	res, err = te.Execute(context.Background(), map[string]any{
		"template_file": "greeting.tmpl",
		"data":          map[string]any{"name": "Sam"},
	})
	if err != nil {
		t.Fatalf("cached Execute returned error: %v", err)
	}
	if res.Data["content"] != "Hi Sam" {
		t.Fatalf("got %v", res.Data["content"])
	}
}

func TestTemplateFileNotFound(t *testing.T) {
	te := NewTemplateEngine(TemplateEngineOptions{TemplateDir: t.TempDir()})
	_, err := te.Execute(context.Background(), map[string]any{"template_file": "absent.tmpl"})
	terr, ok := err.(*tool.Error)
	if !ok || terr.Code != "TEMPLATE_NOT_FOUND" {
		t.Fatalf("expected TEMPLATE_NOT_FOUND, got %v", err)
	}
}

func TestTemplateValidateInput(t *testing.T) {
	te := NewTemplateEngine(TemplateEngineOptions{})
	cases := []struct {
		name  string
		input map[string]any
		want  bool
	}{
		{"template string", map[string]any{"template": "x"}, true},
		{"template file", map[string]any{"template_file": "x.tmpl"}, true},
		{"neither", map[string]any{"data": map[string]any{}}, false},
		{"bad data type", map[string]any{"template": "x", "data": "nope"}, false},
		{"bad format", map[string]any{"template": "x", "output_format": "pdf"}, false},
		{"good format", map[string]any{"template": "x", "output_format": "markdown"}, true},
	}
	for _, tc := range cases {
		if got := te.ValidateInput(tc.input); got != tc.want {
			t.Errorf("%s: ValidateInput = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTemplateFixedPointIsBounded(t *testing.T) {
	// A pass that keeps producing new markers must terminate anyway.
	calls := 0
	out := fixedPoint("seed", func(s string) string {
		calls++
		return s + "."
	})
	if calls != maxTemplatePasses {
		t.Fatalf("fixed point ran %d passes, want %d", calls, maxTemplatePasses)
	}
	if out == "seed" {
		t.Fatalf("pass output discarded")
	}
}
