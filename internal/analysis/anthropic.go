// Package analysis classifies and summarizes issues with an Anthropic model.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/lucasnoah/triagegate/internal/prompt"
	"github.com/lucasnoah/triagegate/internal/triage"
)

const (
	classifyMaxTokens  = 20
	summarizeMaxTokens = 100
	maxBodyChars       = 4000
	callTimeout        = 30 * time.Second
)

// CompleteFunc sends a single-turn prompt and returns the text reply.
type CompleteFunc func(ctx context.Context, prompt string, maxTokens int64) (string, error)

// Config configures the analyzer.
type Config struct {
	APIKey        string
	Model         string
	MaxConcurrent int
	Templates     *prompt.Templates
	Logger        *slog.Logger
}

// Analyzer implements triage.Analyzer on top of a model completion call.
type Analyzer struct {
	complete  CompleteFunc
	sem       *semaphore.Weighted
	templates *prompt.Templates
	log       *slog.Logger
}

var _ triage.Analyzer = (*Analyzer)(nil)

// New creates an analyzer backed by the Anthropic Messages API.
func New(cfg Config) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(2))
	model := cfg.Model

	complete := func(ctx context.Context, text string, maxTokens int64) (string, error) {
		resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
			},
		})
		if err != nil {
			return "", fmt.Errorf("anthropic API call failed: %w", err)
		}
		var out strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				out.WriteString(block.Text)
			}
		}
		return out.String(), nil
	}
	return NewWithCompleter(complete, cfg), nil
}

// NewWithCompleter creates an analyzer around an arbitrary completion func.
func NewWithCompleter(fn CompleteFunc, cfg Config) *Analyzer {
	a := &Analyzer{
		complete:  fn,
		templates: cfg.Templates,
		log:       cfg.Logger,
	}
	if a.templates == nil {
		a.templates = prompt.NewTemplates("")
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if cfg.MaxConcurrent > 0 {
		a.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return a
}

// ClassifySeverity asks the model for one of the five levels. A reply that
// does not start with a known level is an error.
func (a *Analyzer) ClassifySeverity(ctx context.Context, title, body string) (triage.Severity, error) {
	reply, err := a.ask(ctx, prompt.Classify, title, body, classifyMaxTokens)
	if err != nil {
		return "", fmt.Errorf("classify severity: %w", err)
	}
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return "", fmt.Errorf("classify severity: empty reply")
	}
	first := fields[0]
	if strings.EqualFold(strings.TrimSuffix(first, ":"), "severity") && len(fields) > 1 {
		first = fields[1]
	}
	sev, err := triage.ParseSeverity(first)
	if err != nil {
		return "", fmt.Errorf("classify severity: %w", err)
	}
	a.log.Info("classified severity", "severity", sev, "title", title)
	return sev, nil
}

// Summarize asks for a one-sentence summary.
func (a *Analyzer) Summarize(ctx context.Context, title, body string) (string, error) {
	reply, err := a.ask(ctx, prompt.Summarize, title, body, summarizeMaxTokens)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	summary := strings.TrimSpace(reply)
	if summary == "" {
		return "", fmt.Errorf("summarize: empty reply")
	}
	return summary, nil
}

// DraftDuplicateComment renders the duplicate comment template. It does not
// call the model.
func (a *Analyzer) DraftDuplicateComment(_ context.Context, duplicateOf int, score float64) (string, error) {
	return a.templates.Render(prompt.DuplicateComment, prompt.Vars{
		"duplicate_of": strconv.Itoa(duplicateOf),
		"similarity":   fmt.Sprintf("%.1f%%", score*100),
	})
}

func (a *Analyzer) ask(ctx context.Context, tmpl, title, body string, maxTokens int64) (string, error) {
	text, err := a.templates.Render(tmpl, prompt.Vars{
		"issue_title": title,
		"issue_body":  truncate(body, maxBodyChars),
	})
	if err != nil {
		return "", err
	}

	if a.sem != nil {
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return "", fmt.Errorf("acquire model slot: %w", err)
		}
		defer a.sem.Release(1)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return a.complete(ctx, text, maxTokens)
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
