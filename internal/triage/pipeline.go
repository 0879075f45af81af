package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/triagegate/internal/decision"
	"github.com/lucasnoah/triagegate/internal/prompt"
	"github.com/lucasnoah/triagegate/internal/telemetry"
)

// Options tunes the pipeline.
type Options struct {
	SimilarityThreshold float64
	DecisionWait        time.Duration
}

// Deps are the collaborators a Pipeline drives. Analyzer, Index and Notifier
// may be nil; the corresponding phase then takes its fallback path.
type Deps struct {
	Analyzer Analyzer
	Index    DuplicateIndex
	Records  RecordStore
	Decider  Decider
	Notifier Notifier
}

// Pipeline runs the five triage phases for one issue at a time per call.
// A single Pipeline is safe for concurrent Triage calls on different issues.
type Pipeline struct {
	deps      Deps
	opts      Options
	log       *slog.Logger
	metrics   *telemetry.Metrics
	events    EventLog
	templates *prompt.Templates
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.log = l } }

// WithMetrics attaches metric instruments.
func WithMetrics(m *telemetry.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithEventLog records phase transitions and decisions.
func WithEventLog(e EventLog) Option { return func(p *Pipeline) { p.events = e } }

// WithTemplates sets the comment template resolver.
func WithTemplates(t *prompt.Templates) Option { return func(p *Pipeline) { p.templates = t } }

// NewPipeline creates a Pipeline.
func NewPipeline(deps Deps, opts Options, options ...Option) *Pipeline {
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = 0.85
	}
	if opts.DecisionWait == 0 {
		opts.DecisionWait = time.Hour + 100*time.Second
	}
	p := &Pipeline{
		deps:      deps,
		opts:      opts,
		log:       slog.Default(),
		templates: prompt.NewTemplates(""),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Triage runs the full pipeline for r. The returned Result is never nil.
// A non-nil error is returned only when no human decision could be
// obtained; it wraps decision.ErrHumanUnavailable or decision.ErrDuplicateKey
// and the Result carries Success=false.
func (p *Pipeline) Triage(ctx context.Context, r Report) (*Result, error) {
	st := &TriageState{
		RunID:     uuid.NewString(),
		Report:    r,
		Phase:     PhaseCreated,
		Actions:   Actions{},
		StartedAt: time.Now().UTC(),
	}
	log := p.log.With("issue", r.Issue, "repo", r.Repo, "run_id", st.RunID)
	log.Info("triage started", "title", r.Title)
	p.event(ctx, st, "started", r.Title)

	// 1. Analysis.
	p.analyze(ctx, st, log)
	p.advance(ctx, st, PhaseAnalyzed, fmt.Sprintf("severity=%s", st.Severity))

	// 2. Duplicate detection.
	p.checkDuplicate(ctx, st, log)
	p.advance(ctx, st, PhaseDuplicateChecked, fmt.Sprintf("duplicate=%t", st.IsDuplicate))

	// 3. Human clarification. Failure here aborts the run.
	p.advance(ctx, st, PhaseAwaitingHuman, "")
	rec, err := p.deps.Decider.Await(ctx, r.Issue, p.decisionRequest(st), p.opts.DecisionWait)
	if err != nil {
		log.Error("human clarification failed", "error", err)
		p.event(ctx, st, "fatal", err.Error())
		p.metrics.TriageFinished(ctx, "fatal")
		res := p.finish(st, false)
		res.Error = err.Error()
		if !errors.Is(err, decision.ErrHumanUnavailable) && !errors.Is(err, decision.ErrDuplicateKey) {
			err = fmt.Errorf("%w: %w", decision.ErrHumanUnavailable, err)
		}
		return res, fmt.Errorf("triage issue %d: %w", r.Issue, err)
	}
	st.Decision = &rec
	if p.events != nil {
		if err := p.events.LogDecision(ctx, r.Issue, st.RunID, rec); err != nil {
			log.Warn("record decision", "error", err)
		}
	}

	// 4. Execute the decision.
	p.execute(ctx, st, log)
	p.advance(ctx, st, PhaseDecided, string(rec.Kind))

	// 5. Completion notification.
	p.notify(ctx, st, log)
	p.advance(ctx, st, PhaseNotified, "")

	res := p.finish(st, true)
	if res.Success {
		p.metrics.TriageFinished(ctx, "success")
	} else {
		p.metrics.TriageFinished(ctx, "failed")
	}
	log.Info("triage finished", "decision", rec.Kind, "status", res.Status, "actions", st.Actions.Executed())
	return res, nil
}

func (p *Pipeline) analyze(ctx context.Context, st *TriageState, log *slog.Logger) {
	st.Severity = DefaultSeverity
	st.Summary = fallbackSummary(st.Report.Title)
	if p.deps.Analyzer == nil {
		log.Warn("no analyzer configured, using fallback analysis")
		return
	}

	sev, err := p.deps.Analyzer.ClassifySeverity(ctx, st.Report.Title, st.Report.Body)
	if err != nil {
		log.Warn("classify severity failed, using fallback", "error", err)
	} else {
		st.Severity = sev
	}

	summary, err := p.deps.Analyzer.Summarize(ctx, st.Report.Title, st.Report.Body)
	if err != nil || summary == "" {
		log.Warn("summarize failed, using fallback", "error", err)
	} else {
		st.Summary = summary
	}
}

func (p *Pipeline) checkDuplicate(ctx context.Context, st *TriageState, log *slog.Logger) {
	if p.deps.Index == nil {
		return
	}
	m, err := p.deps.Index.FindSimilar(ctx, st.Report.Issue, st.Report.Title, st.Report.Body, p.opts.SimilarityThreshold)
	if err != nil {
		log.Warn("duplicate detection failed, treating as new issue", "error", err)
		return
	}
	if m == nil || m.Score < p.opts.SimilarityThreshold {
		log.Info("no duplicates found")
		return
	}

	st.IsDuplicate = true
	st.SimilarityScore = m.Score
	st.DuplicateOf = m.Issue
	st.ProposedComment = p.draftDuplicateComment(ctx, m, log)
	log.Warn("duplicate detected", "duplicate_of", m.Issue, "similarity", formatPercent(m.Score))
}

func (p *Pipeline) draftDuplicateComment(ctx context.Context, m *Match, log *slog.Logger) string {
	if p.deps.Analyzer != nil {
		comment, err := p.deps.Analyzer.DraftDuplicateComment(ctx, m.Issue, m.Score)
		if err == nil && comment != "" {
			return comment
		}
		log.Warn("draft duplicate comment failed, using template", "error", err)
	}
	return FormatDuplicateComment(p.templates, m.Issue, m.Score)
}

func (p *Pipeline) decisionRequest(st *TriageState) decision.Request {
	return decision.Request{
		ID:              st.RunID,
		Issue:           st.Report.Issue,
		Repo:            st.Report.Repo,
		Title:           st.Report.Title,
		Body:            st.Report.Body,
		Severity:        st.Severity.String(),
		Summary:         st.Summary,
		IsDuplicate:     st.IsDuplicate,
		SimilarityScore: st.SimilarityScore,
		DuplicateOf:     st.DuplicateOf,
		ProposedComment: st.ProposedComment,
		Deadline:        time.Now().UTC().Add(p.opts.DecisionWait),
	}
}

func (p *Pipeline) notify(ctx context.Context, st *TriageState, log *slog.Logger) {
	if p.deps.Notifier == nil {
		return
	}
	msg := CompletionMessage(st.Report.Issue, st.Actions)
	if err := p.deps.Notifier.PublishSummary(ctx, st.Report.Issue, msg); err != nil {
		log.Error("send completion notification", "error", err)
		return
	}
	st.NotificationSent = true
	log.Info("completion notification sent")
}

func (p *Pipeline) advance(ctx context.Context, st *TriageState, phase Phase, detail string) {
	st.Phase = phase
	p.event(ctx, st, "phase_"+string(phase), detail)
}

func (p *Pipeline) event(ctx context.Context, st *TriageState, name, detail string) {
	if p.events == nil {
		return
	}
	ev := Event{Issue: st.Report.Issue, RunID: st.RunID, Phase: st.Phase, Event: name, Detail: detail}
	if err := p.events.LogEvent(ctx, ev); err != nil {
		p.log.Warn("log triage event", "issue", st.Report.Issue, "event", name, "error", err)
	}
}

func (p *Pipeline) finish(st *TriageState, success bool) *Result {
	res := &Result{
		TriageState: *st,
		Success:     success,
		FinishedAt:  time.Now().UTC(),
	}
	switch {
	case !success:
		res.Status = StatusFailed
	case st.Decision.Kind == decision.KindApprove:
		res.Status = StatusApproved
	case st.Decision.Kind == decision.KindReject:
		res.Status = StatusRejected
	case st.Decision.Kind == decision.KindTimeout:
		res.Status = StatusTimedOut
	default:
		res.Status = StatusFailed
		res.Success = false
		res.Error = fmt.Sprintf("unknown decision kind %q", st.Decision.Kind)
	}
	return res
}

func fallbackSummary(title string) string {
	return "Issue: " + title
}
