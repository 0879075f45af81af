package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lucasnoah/triagegate/internal/decision"
	"github.com/lucasnoah/triagegate/internal/triage"
)

// TriageEvent represents a row in the triage_events table.
type TriageEvent struct {
	ID        int    `db:"id"`
	Issue     int    `db:"issue"`
	RunID     string `db:"run_id"`
	Phase     string `db:"phase"`
	Event     string `db:"event"`
	Detail    string `db:"detail"`
	Timestamp string `db:"timestamp"`
}

// DecisionRow represents a row in the decisions table.
type DecisionRow struct {
	ID         int    `db:"id"`
	Issue      int    `db:"issue"`
	RunID      string `db:"run_id"`
	Kind       string `db:"kind"`
	Actor      string `db:"actor"`
	Severity   string `db:"severity"`
	Summary    string `db:"summary"`
	Comment    string `db:"comment"`
	Modified   bool   `db:"modified"`
	ResolvedAt string `db:"resolved_at"`
}

var _ triage.EventLog = (*DB)(nil)

// LogEvent inserts a triage event.
func (d *DB) LogEvent(ctx context.Context, ev triage.Event) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO triage_events (issue, run_id, phase, event, detail) VALUES (?, ?, ?, ?, ?)`,
		ev.Issue, ev.RunID, string(ev.Phase), ev.Event, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("log triage event: %w", err)
	}
	return nil
}

// LogDecision records how a pending decision was resolved.
func (d *DB) LogDecision(ctx context.Context, issue int, runID string, rec decision.Record) error {
	row := DecisionRow{
		Issue:      issue,
		RunID:      runID,
		Kind:       string(rec.Kind),
		Actor:      rec.Actor,
		ResolvedAt: rec.ResolvedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.Override != nil {
		row.Severity = rec.Override.Severity
		row.Summary = rec.Override.Summary
		row.Comment = rec.Override.Comment
		row.Modified = rec.Override.Modified
	}
	_, err := d.conn.NamedExecContext(ctx,
		`INSERT INTO decisions (issue, run_id, kind, actor, severity, summary, comment, modified, resolved_at)
		 VALUES (:issue, :run_id, :kind, :actor, :severity, :summary, :comment, :modified, :resolved_at)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// ListEvents returns events for an issue in insertion order. A zero issue
// returns the most recent events across all issues, newest last.
func (d *DB) ListEvents(ctx context.Context, issue int, limit int) ([]TriageEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []TriageEvent
	var err error
	if issue > 0 {
		err = d.conn.SelectContext(ctx, &events,
			`SELECT id, issue, run_id, phase, event, detail, timestamp
			 FROM triage_events WHERE issue = ? ORDER BY id ASC LIMIT ?`, issue, limit)
	} else {
		err = d.conn.SelectContext(ctx, &events,
			`SELECT * FROM (
			   SELECT id, issue, run_id, phase, event, detail, timestamp
			   FROM triage_events ORDER BY id DESC LIMIT ?
			 ) ORDER BY id ASC`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListDecisions returns the decisions recorded for an issue, oldest first.
func (d *DB) ListDecisions(ctx context.Context, issue int) ([]DecisionRow, error) {
	var rows []DecisionRow
	err := d.conn.SelectContext(ctx, &rows,
		`SELECT id, issue, run_id, kind, actor, severity, summary, comment, modified, resolved_at
		 FROM decisions WHERE issue = ? ORDER BY id ASC`, issue)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return rows, nil
}

// DecisionCounts returns how many decisions resolved to each kind.
func (d *DB) DecisionCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Kind  string `db:"kind"`
		Count int    `db:"n"`
	}
	if err := d.conn.SelectContext(ctx, &rows,
		`SELECT kind, COUNT(*) AS n FROM decisions GROUP BY kind`); err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Kind] = r.Count
	}
	return counts, nil
}
