package triage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lucasnoah/triagegate/internal/decision"
)

// execute applies the resolved decision to the issue tracker. Individual
// call failures are recorded as false in Actions; a panic inside a branch is
// recovered and recorded under ActionError.
func (p *Pipeline) execute(ctx context.Context, st *TriageState, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			st.Actions[ActionError] = false
			st.ActionError = fmt.Sprint(r)
			log.Error("decision execution aborted", "error", st.ActionError)
		}
	}()

	switch st.Decision.Kind {
	case decision.KindApprove:
		if st.IsDuplicate {
			p.closeAsDuplicate(ctx, st, log)
		} else {
			p.acceptNewIssue(ctx, st, log)
		}
	case decision.KindReject:
		log.Info("plan rejected, no actions taken")
		st.Actions[ActionRejected] = true
	case decision.KindTimeout:
		log.Warn("decision timed out, no actions taken")
		st.Actions[ActionTimedOut] = true
	default:
		log.Error("unknown decision kind", "decision", st.Decision.Kind)
	}
}

func (p *Pipeline) closeAsDuplicate(ctx context.Context, st *TriageState, log *slog.Logger) {
	repo, issue := st.Report.Repo, st.Report.Issue
	comment := st.ProposedComment
	if o := st.Decision.Override; o != nil && o.Comment != "" {
		comment = o.Comment
	}

	p.record(ctx, st, log, ActionCommentPosted, p.deps.Records.PostComment(ctx, repo, issue, comment))
	p.record(ctx, st, log, ActionDuplicateLabel, p.deps.Records.AddLabel(ctx, repo, issue, DuplicateLabel))
	p.record(ctx, st, log, ActionIssueClosed, p.deps.Records.CloseIssue(ctx, repo, issue, CloseReasonDuplicate))
}

func (p *Pipeline) acceptNewIssue(ctx context.Context, st *TriageState, log *slog.Logger) {
	repo, issue := st.Report.Repo, st.Report.Issue
	severity, summary := p.applyOverride(st, log)

	comment := FormatAnalysisComment(p.templates, severity, summary, st.Decision.Actor)
	p.record(ctx, st, log, ActionSeverityLabel, p.deps.Records.AddLabel(ctx, repo, issue, severity.String()))
	p.record(ctx, st, log, ActionSummaryPosted, p.deps.Records.PostComment(ctx, repo, issue, comment))

	var err error
	if p.deps.Index != nil {
		err = p.deps.Index.Register(ctx, issue, st.Report.Title, st.Report.Body)
	} else {
		err = fmt.Errorf("no duplicate index configured")
	}
	p.record(ctx, st, log, ActionKnowledgeBase, err)
}

// applyOverride picks the human-supplied severity and summary when present,
// otherwise the AI values. An override severity that does not parse keeps
// the AI severity.
func (p *Pipeline) applyOverride(st *TriageState, log *slog.Logger) (Severity, string) {
	severity, summary := st.Severity, st.Summary
	o := st.Decision.Override
	if o == nil {
		return severity, summary
	}
	if o.Severity != "" {
		if sev, err := ParseSeverity(o.Severity); err == nil {
			severity = sev
		} else {
			log.Warn("ignoring invalid severity override", "override", o.Severity)
		}
	}
	if o.Summary != "" {
		summary = o.Summary
	}
	return severity, summary
}

func (p *Pipeline) record(ctx context.Context, st *TriageState, log *slog.Logger, action string, err error) {
	ok := err == nil
	st.Actions[action] = ok
	p.metrics.ActionExecuted(ctx, action, ok)
	if !ok {
		log.Error("action failed", "action", action, "error", err)
		p.event(ctx, st, "action_failed", fmt.Sprintf("%s: %v", action, err))
		return
	}
	p.event(ctx, st, "action", action)
}
