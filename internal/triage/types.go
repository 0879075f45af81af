package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/triagegate/internal/decision"
)

// Report is a newly opened issue handed to the pipeline.
type Report struct {
	Issue  int    `json:"issue" validate:"required,gt=0"`
	Repo   string `json:"repo" validate:"required"`
	Title  string `json:"title" validate:"required"`
	Body   string `json:"body"`
	Author string `json:"author,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Phase is the position of a run in the triage state machine.
type Phase string

const (
	PhaseCreated          Phase = "created"
	PhaseAnalyzed         Phase = "analyzed"
	PhaseDuplicateChecked Phase = "duplicate_checked"
	PhaseAwaitingHuman    Phase = "awaiting_human"
	PhaseDecided          Phase = "decided"
	PhaseNotified         Phase = "notified"
)

// Action keys recorded in Actions.
const (
	ActionCommentPosted  = "comment_posted"
	ActionDuplicateLabel = "duplicate_label_added"
	ActionIssueClosed    = "issue_closed"
	ActionSeverityLabel  = "severity_label_added"
	ActionSummaryPosted  = "summary_posted"
	ActionKnowledgeBase  = "added_to_knowledge_base"
	ActionRejected       = "rejected"
	ActionTimedOut       = "timed_out"
	ActionError          = "error"
)

// DuplicateLabel is applied to issues closed as duplicates.
const DuplicateLabel = "duplicate"

// CloseReasonDuplicate is passed to RecordStore.CloseIssue for duplicates.
const CloseReasonDuplicate = "duplicate"

var actionOrder = []string{
	ActionCommentPosted, ActionDuplicateLabel, ActionIssueClosed,
	ActionSeverityLabel, ActionSummaryPosted, ActionKnowledgeBase,
	ActionRejected, ActionTimedOut,
}

// Actions maps an action key to whether the external call succeeded.
type Actions map[string]bool

// Executed returns the keys whose value is true, in execution order.
func (a Actions) Executed() []string {
	var out []string
	for _, k := range actionOrder {
		if a[k] {
			out = append(out, k)
		}
	}
	return out
}

// CompletionMessage is the audit line sent to the notification sink.
func CompletionMessage(issue int, a Actions) string {
	done := a.Executed()
	if len(done) == 0 {
		return fmt.Sprintf("Issue #%d processed: no actions taken", issue)
	}
	return fmt.Sprintf("Issue #%d processed: %s", issue, strings.Join(done, ", "))
}

// TriageState is the working record for one run. It is owned by exactly one
// Pipeline.Triage call and never shared.
type TriageState struct {
	RunID            string           `json:"run_id"`
	Report           Report           `json:"report"`
	Phase            Phase            `json:"phase"`
	Severity         Severity         `json:"severity,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	IsDuplicate      bool             `json:"is_duplicate"`
	SimilarityScore  float64          `json:"similarity_score,omitempty"`
	DuplicateOf      int              `json:"duplicate_of,omitempty"`
	ProposedComment  string           `json:"proposed_comment,omitempty"`
	Decision         *decision.Record `json:"decision,omitempty"`
	Actions          Actions          `json:"actions_executed"`
	ActionError      string           `json:"action_error,omitempty"`
	NotificationSent bool             `json:"completion_notification_sent"`
	StartedAt        time.Time        `json:"started_at"`
}

// Result is the structured outcome returned for every run.
type Result struct {
	TriageState
	Success    bool      `json:"success"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Result statuses.
const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusTimedOut = "timed_out"
	StatusFailed   = "failed"
)

// Match is the best duplicate candidate found by a DuplicateIndex.
type Match struct {
	Issue int     `json:"issue"`
	Title string  `json:"title,omitempty"`
	Score float64 `json:"score"`
}

// Analyzer produces severity, summary and duplicate-comment drafts.
type Analyzer interface {
	ClassifySeverity(ctx context.Context, title, body string) (Severity, error)
	Summarize(ctx context.Context, title, body string) (string, error)
	DraftDuplicateComment(ctx context.Context, duplicateOf int, score float64) (string, error)
}

// DuplicateIndex finds previously registered issues similar to a new one.
// FindSimilar returns nil when no candidate reaches threshold. The issue
// being checked is never its own candidate; pass 0 to search everything.
type DuplicateIndex interface {
	FindSimilar(ctx context.Context, issue int, title, body string, threshold float64) (*Match, error)
	Register(ctx context.Context, issue int, title, body string) error
}

// RecordStore mutates the issue in the tracker.
type RecordStore interface {
	AddLabel(ctx context.Context, repo string, issue int, label string) error
	PostComment(ctx context.Context, repo string, issue int, body string) error
	CloseIssue(ctx context.Context, repo string, issue int, reason string) error
}

// Notifier receives the completion audit message.
type Notifier interface {
	PublishSummary(ctx context.Context, issue int, summary string) error
}

// Decider blocks until a human decision (or timeout) is available.
type Decider interface {
	Await(ctx context.Context, issue int, req decision.Request, timeout time.Duration) (decision.Record, error)
}

// Event is one entry in the triage audit log.
type Event struct {
	Issue  int
	RunID  string
	Phase  Phase
	Event  string
	Detail string
}

// EventLog persists audit events and decisions.
type EventLog interface {
	LogEvent(ctx context.Context, ev Event) error
	LogDecision(ctx context.Context, issue int, runID string, rec decision.Record) error
}
