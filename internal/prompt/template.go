package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// Vars is a map of variable names to values for template rendering.
type Vars map[string]string

// Render expands a template string with the given variables.
// {{variable}} is replaced with its value; a missing variable is an error.
// {{#if variable}}...{{/if}} blocks survive only when the variable is non-empty.
// Substituted values are never re-scanned for placeholders.
func Render(tmpl string, vars Vars) (string, error) {
	body, err := expandConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	var missing []string
	out := varRe.ReplaceAllStringFunc(body, func(match string) string {
		name := varRe.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// expandConditionals resolves {{#if}} blocks innermost first: each {{/if}}
// pairs with the nearest preceding opening tag.
func expandConditionals(tmpl string, vars Vars) (string, error) {
	result := tmpl
	for {
		closeIdx := strings.Index(result, ifCloseStr)
		if closeIdx == -1 {
			break
		}

		opens := ifOpenRe.FindAllStringSubmatchIndex(result[:closeIdx], -1)
		if opens == nil {
			return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
		}
		open := opens[len(opens)-1]
		name := result[open[2]:open[3]]

		var keep string
		if vars[name] != "" {
			keep = result[open[1]:closeIdx]
		}
		result = result[:open[0]] + keep + result[closeIdx+len(ifCloseStr):]
	}

	if loc := ifOpenRe.FindString(result); loc != "" {
		return "", fmt.Errorf("unclosed conditional block: %s", loc)
	}
	return result, nil
}

// Templates resolves named templates, preferring files in an override
// directory over the built-in set.
type Templates struct {
	dir string
}

// NewTemplates returns a resolver that checks dir before the built-ins.
// An empty dir means built-ins only.
func NewTemplates(dir string) *Templates {
	return &Templates{dir: dir}
}

// DefaultTemplateDir returns ~/.triagegate/templates, or "" if the home
// directory is unknown.
func DefaultTemplateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".triagegate", "templates")
}

// Get returns the template source for name.
func (t *Templates) Get(name string) (string, error) {
	if strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("template name %q escapes template dir", name)
	}
	if t != nil && t.dir != "" {
		if data, err := os.ReadFile(filepath.Join(t.dir, name)); err == nil {
			return string(data), nil
		}
	}
	src, ok := builtinTemplates[name]
	if !ok {
		return "", fmt.Errorf("template %q not found", name)
	}
	return src, nil
}

// Render looks up name and renders it. If an override fails to render, the
// built-in version is used instead so a broken override cannot block triage.
func (t *Templates) Render(name string, vars Vars) (string, error) {
	src, err := t.Get(name)
	if err != nil {
		return "", err
	}
	out, err := Render(src, vars)
	if err == nil {
		return out, nil
	}
	builtin, ok := builtinTemplates[name]
	if !ok || builtin == src {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return Render(builtin, vars)
}

// Install writes the built-in templates into the override directory without
// overwriting existing files.
func (t *Templates) Install() error {
	if t == nil || t.dir == "" {
		return fmt.Errorf("no template directory configured")
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create templates dir: %w", err)
	}
	for name, content := range builtinTemplates {
		path := filepath.Join(t.dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write template %q: %w", name, err)
		}
	}
	return nil
}

// Names returns the built-in template names.
func Names() []string {
	names := make([]string, 0, len(builtinTemplates))
	for n := range builtinTemplates {
		names = append(names, n)
	}
	return names
}
