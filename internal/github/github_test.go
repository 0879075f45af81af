package github

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockCmd struct {
	calls   [][]string
	results []mockResult
	idx     int
}

type mockResult struct {
	output string
	err    error
}

func (m *mockCmd) Run(_ context.Context, args ...string) (string, error) {
	m.calls = append(m.calls, args)
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.output, r.err
}

var ctx = context.Background()

func TestGetIssue(t *testing.T) {
	issueJSON := `{
		"number": 42,
		"title": "Add authentication",
		"body": "Implement auth.",
		"state": "OPEN",
		"url": "https://github.com/acme/app/issues/42",
		"author": {"login": "octocat"},
		"labels": [{"name": "feature"}]
	}`

	mock := &mockCmd{results: []mockResult{{output: issueJSON}}}
	client := NewClient(mock)

	issue, err := client.GetIssue(ctx, "acme/app", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issue.Number != 42 || issue.Title != "Add authentication" {
		t.Errorf("unexpected issue: %+v", issue)
	}
	if issue.Author.Login != "octocat" {
		t.Errorf("expected author octocat, got %q", issue.Author.Login)
	}

	args := strings.Join(mock.calls[0], " ")
	if !strings.Contains(args, "issue view 42") || !strings.HasSuffix(args, "-R acme/app") {
		t.Errorf("unexpected args: %s", args)
	}
}

func TestGetIssue_InvalidNumber(t *testing.T) {
	mock := &mockCmd{}
	client := NewClient(mock)

	if _, err := client.GetIssue(ctx, "", 0); err == nil {
		t.Fatal("expected error for issue 0")
	}
	if _, err := client.GetIssue(ctx, "", -1); err == nil {
		t.Fatal("expected error for negative issue")
	}
	if len(mock.calls) != 0 {
		t.Errorf("expected 0 calls for invalid issue numbers, got %d", len(mock.calls))
	}
}

func TestGetIssue_BadJSON(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{output: "not json"}}}
	if _, err := NewClient(mock).GetIssue(ctx, "", 1); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAddLabel_CreatesLabelOnce(t *testing.T) {
	mock := &mockCmd{}
	client := NewClient(mock)

	if err := client.AddLabel(ctx, "acme/app", 7, "Critical"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.AddLabel(ctx, "acme/app", 8, "Critical"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.calls) != 3 {
		t.Fatalf("expected 3 calls (create, edit, edit), got %d: %v", len(mock.calls), mock.calls)
	}
	create := strings.Join(mock.calls[0], " ")
	if !strings.Contains(create, "label create Critical --color d73a4a") || !strings.Contains(create, "--force") {
		t.Errorf("unexpected create args: %s", create)
	}
	edit := strings.Join(mock.calls[2], " ")
	if edit != "issue edit 8 --add-label Critical -R acme/app" {
		t.Errorf("unexpected edit args: %s", edit)
	}
}

func TestAddLabel_CreateFailureStillLabels(t *testing.T) {
	mock := &mockCmd{results: []mockResult{
		{err: errors.New("HTTP 403")},
		{output: ""},
	}}
	client := NewClient(mock)

	if err := client.AddLabel(ctx, "acme/app", 7, "duplicate"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(mock.calls))
	}
	if !strings.Contains(strings.Join(mock.calls[0], " "), "--color cccccc") {
		t.Errorf("duplicate label should use grey: %v", mock.calls[0])
	}
}

func TestAddLabel_Error(t *testing.T) {
	mock := &mockCmd{results: []mockResult{
		{output: ""},
		{err: errors.New("not found")},
	}}
	err := NewClient(mock).AddLabel(ctx, "acme/app", 7, "High")
	if err == nil || !strings.Contains(err.Error(), "add label") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestAddLabel_RejectsFlagLikeLabel(t *testing.T) {
	mock := &mockCmd{}
	if err := NewClient(mock).AddLabel(ctx, "", 1, "--delete"); err == nil {
		t.Fatal("expected error")
	}
	if len(mock.calls) != 0 {
		t.Errorf("expected no calls, got %v", mock.calls)
	}
}

func TestPostComment(t *testing.T) {
	mock := &mockCmd{}
	if err := NewClient(mock).PostComment(ctx, "acme/app", 3, "hello **world**"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mock.calls[0]
	if got[0] != "issue" || got[1] != "comment" || got[2] != "3" || got[4] != "hello **world**" {
		t.Errorf("unexpected args: %v", got)
	}

	if err := NewClient(&mockCmd{}).PostComment(ctx, "", 3, "   "); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestCloseIssue(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"duplicate", "issue close 5 --reason not planned -R acme/app"},
		{"completed", "issue close 5 --reason completed -R acme/app"},
		{"", "issue close 5 -R acme/app"},
	}
	for _, tt := range tests {
		mock := &mockCmd{}
		if err := NewClient(mock).CloseIssue(ctx, "acme/app", 5, tt.reason); err != nil {
			t.Fatalf("reason %q: unexpected error: %v", tt.reason, err)
		}
		if got := strings.Join(mock.calls[0], " "); got != tt.want {
			t.Errorf("reason %q: got %q, want %q", tt.reason, got, tt.want)
		}
	}

	if err := NewClient(&mockCmd{}).CloseIssue(ctx, "", 5, "wontfix"); err == nil {
		t.Error("expected error for unknown reason")
	}
}

func TestSummarizeArgs(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := summarizeArgs([]string{"issue", "comment", long})
	if strings.Contains(got, long) || !strings.HasSuffix(got, "...") {
		t.Errorf("long arg not truncated: %q", got)
	}
}
