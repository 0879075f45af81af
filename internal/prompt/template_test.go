package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender_SimpleVars(t *testing.T) {
	result, err := Render("Issue #{{issue_number}}: {{issue_title}}", Vars{
		"issue_number": "42",
		"issue_title":  "Login broken",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Issue #42: Login broken" {
		t.Errorf("got %q", result)
	}
}

func TestRender_MissingVars(t *testing.T) {
	_, err := Render("{{a}} and {{b}}", Vars{"a": "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "b") {
		t.Errorf("error should mention missing var, got: %v", err)
	}
}

func TestRender_Conditionals(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars Vars
		want string
	}{
		{"present", "A{{#if x}}[{{x}}]{{/if}}B", Vars{"x": "1"}, "A[1]B"},
		{"absent", "A{{#if x}}[{{x}}]{{/if}}B", Vars{}, "AB"},
		{"empty", "A{{#if x}}[{{x}}]{{/if}}B", Vars{"x": ""}, "AB"},
		{"nested outer absent", "{{#if a}}a{{#if b}}b{{/if}}{{/if}}.", Vars{"b": "1"}, "."},
		{"nested both", "{{#if a}}a{{#if b}}b{{/if}}{{/if}}.", Vars{"a": "1", "b": "1"}, "ab."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.tmpl, tt.vars)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_ValueNotRescanned(t *testing.T) {
	got, err := Render("Body: {{issue_body}}", Vars{"issue_body": "uses {{secret}} syntax"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Body: uses {{secret}} syntax" {
		t.Errorf("got %q", got)
	}
}

func TestRender_Unbalanced(t *testing.T) {
	if _, err := Render("{{#if a}}open", Vars{"a": "1"}); err == nil {
		t.Error("expected error for unclosed block")
	}
	if _, err := Render("close{{/if}}", Vars{}); err == nil {
		t.Error("expected error for dangling close")
	}
}

func TestBuiltinTemplatesRender(t *testing.T) {
	vars := Vars{
		"issue_title":     "Crash on save",
		"issue_body":      "The editor crashes.",
		"duplicate_of":    "42",
		"similarity":      "87.0%",
		"severity":        "High",
		"severity_marker": "🟠",
		"summary":         "Editor crashes when saving.",
		"reviewer":        "",
	}
	for _, name := range Names() {
		out, err := NewTemplates("").Render(name, vars)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if strings.Contains(out, "{{") {
			t.Errorf("%s: unexpanded placeholder in %q", name, out)
		}
	}
}

func TestTemplates_OverrideWins(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DuplicateComment), []byte("dup of #{{duplicate_of}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewTemplates(dir).Render(DuplicateComment, Vars{"duplicate_of": "7", "similarity": "90.0%"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dup of #7" {
		t.Errorf("got %q", got)
	}
}

func TestTemplates_BrokenOverrideFallsBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DuplicateComment), []byte("{{unknown_var}}"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewTemplates(dir).Render(DuplicateComment, Vars{"duplicate_of": "7", "similarity": "90.0%"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "duplicate of #7") {
		t.Errorf("expected built-in output, got %q", got)
	}
}

func TestTemplates_RejectsTraversal(t *testing.T) {
	if _, err := NewTemplates(t.TempDir()).Get("../etc/passwd"); err == nil {
		t.Error("expected error for traversal")
	}
}

func TestTemplates_Install(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "templates")
	tpl := NewTemplates(dir)

	custom := filepath.Join(dir, Summarize)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(custom, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := tpl.Install(); err != nil {
		t.Fatalf("Install: %v", err)
	}
	for _, name := range Names() {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not installed: %v", name, err)
		}
	}
	data, _ := os.ReadFile(custom)
	if string(data) != "mine" {
		t.Errorf("existing template overwritten: %q", data)
	}
}
