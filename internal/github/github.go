package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// CmdRunner provides command execution. Interface for testing.
type CmdRunner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", summarizeArgs(args), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// summarizeArgs keeps error messages short when a comment body is passed.
func summarizeArgs(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if len(a) > 60 {
			a = a[:60] + "..."
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}

// labelColors maps triage labels to the colours used when creating them.
var labelColors = map[string]string{
	"Critical":  "d73a4a",
	"High":      "ff6600",
	"Medium":    "ffcc00",
	"Low":       "00cc66",
	"Info":      "0099cc",
	"duplicate": "cccccc",
}

const defaultLabelColor = "ededed"

// closeReasons maps triage close reasons to gh's --reason values.
var closeReasons = map[string]string{
	"duplicate":   "not planned",
	"not_planned": "not planned",
	"completed":   "completed",
}

// Client provides GitHub operations through the gh CLI.
type Client struct {
	cmd CmdRunner

	mu      sync.Mutex
	ensured map[string]bool // repo + "\x00" + label
}

// NewClient creates a GitHub client.
func NewClient(cmd CmdRunner) *Client {
	return &Client{cmd: cmd, ensured: make(map[string]bool)}
}

// Issue represents a GitHub issue.
type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	State  string  `json:"state"`
	URL    string  `json:"url"`
	Author Author  `json:"author"`
	Labels []Label `json:"labels"`
}

// Author is the issue's creator.
type Author struct {
	Login string `json:"login"`
}

// Label represents a GitHub label.
type Label struct {
	Name string `json:"name"`
}

// ValidateIssueNumber checks that an issue number is positive.
func ValidateIssueNumber(n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid issue number %d: must be positive", n)
	}
	return nil
}

// withRepo appends -R repo when repo is set.
func withRepo(repo string, args ...string) []string {
	if repo != "" {
		args = append(args, "-R", repo)
	}
	return args
}

// GetIssue fetches a GitHub issue by number.
func (c *Client) GetIssue(ctx context.Context, repo string, number int) (*Issue, error) {
	if err := ValidateIssueNumber(number); err != nil {
		return nil, err
	}

	out, err := c.cmd.Run(ctx, withRepo(repo, "issue", "view", strconv.Itoa(number), "--json", "number,title,body,state,url,author,labels")...)
	if err != nil {
		return nil, fmt.Errorf("get issue %d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal([]byte(out), &issue); err != nil {
		return nil, fmt.Errorf("parse issue JSON: %w", err)
	}
	return &issue, nil
}

// AddLabel applies label to the issue, creating the label first if this
// client has not seen it yet for the repo.
func (c *Client) AddLabel(ctx context.Context, repo string, issue int, label string) error {
	if err := ValidateIssueNumber(issue); err != nil {
		return err
	}
	if label == "" || strings.HasPrefix(label, "-") {
		return fmt.Errorf("invalid label %q", label)
	}

	c.ensureLabel(ctx, repo, label)

	if _, err := c.cmd.Run(ctx, withRepo(repo, "issue", "edit", strconv.Itoa(issue), "--add-label", label)...); err != nil {
		return fmt.Errorf("add label %q to issue %d: %w", label, issue, err)
	}
	return nil
}

// ensureLabel creates or updates the label with its triage colour. Failures
// are ignored: the label may already exist and the token may lack the
// permission to edit labels.
func (c *Client) ensureLabel(ctx context.Context, repo, label string) {
	key := repo + "\x00" + label
	c.mu.Lock()
	done := c.ensured[key]
	c.mu.Unlock()
	if done {
		return
	}

	color, ok := labelColors[label]
	if !ok {
		color = defaultLabelColor
	}
	args := withRepo(repo, "label", "create", label, "--color", color, "--description", "Set by issue triage", "--force")
	if _, err := c.cmd.Run(ctx, args...); err != nil {
		return
	}

	c.mu.Lock()
	c.ensured[key] = true
	c.mu.Unlock()
}

// PostComment adds a comment to the issue.
func (c *Client) PostComment(ctx context.Context, repo string, issue int, body string) error {
	if err := ValidateIssueNumber(issue); err != nil {
		return err
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("empty comment for issue %d", issue)
	}
	if _, err := c.cmd.Run(ctx, withRepo(repo, "issue", "comment", strconv.Itoa(issue), "--body", body)...); err != nil {
		return fmt.Errorf("comment on issue %d: %w", issue, err)
	}
	return nil
}

// CloseIssue closes the issue. reason is a triage close reason; "duplicate"
// closes as not planned.
func (c *Client) CloseIssue(ctx context.Context, repo string, issue int, reason string) error {
	if err := ValidateIssueNumber(issue); err != nil {
		return err
	}
	args := []string{"issue", "close", strconv.Itoa(issue)}
	if r, ok := closeReasons[reason]; ok {
		args = append(args, "--reason", r)
	} else if reason != "" {
		return fmt.Errorf("unknown close reason %q", reason)
	}
	if _, err := c.cmd.Run(ctx, withRepo(repo, args...)...); err != nil {
		return fmt.Errorf("close issue %d: %w", issue, err)
	}
	return nil
}
