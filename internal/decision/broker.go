// Package decision lets a triage run block on a human verdict that arrives
// from an unrelated goroutine (an HTTP interaction handler, a UI timer, a
// terminal reader).
//
// Each issue has at most one pending slot. The slot accepts exactly one
// Record: the first Resolve wins and later ones are dropped silently. The
// waiter removes its slot on every exit path.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lucasnoah/triagegate/internal/telemetry"
)

var (
	// ErrDuplicateKey is returned when a decision is already pending for an issue.
	ErrDuplicateKey = errors.New("decision already pending for issue")
	// ErrHumanUnavailable marks failures that leave no way to obtain a human
	// decision: the request could not be published or the wait was abandoned.
	ErrHumanUnavailable = errors.New("human input required but unavailable")
)

// Publisher delivers a decision request to humans.
type Publisher interface {
	Publish(ctx context.Context, req Request) error
}

// Resolver is the write side handed to interactive channels. Channels that
// keep their own per-request state resolve with ResolveRequest so a stale
// button or timer cannot land on a later request for the same issue.
type Resolver interface {
	Resolve(issue int, rec Record) bool
	ResolveRequest(issue int, requestID string, rec Record) bool
}

// Retractor is implemented by publishers that must be told when a published
// request stops being pending. rec is nil when the wait ended without a
// decision (publish failure or cancellation).
type Retractor interface {
	Retract(req Request, rec *Record)
}

// PendingDecision is a read-only snapshot of one registered slot.
type PendingDecision struct {
	Issue        int       `json:"issue"`
	RequestID    string    `json:"request_id"`
	Title        string    `json:"title"`
	RegisteredAt time.Time `json:"registered_at"`
	Deadline     time.Time `json:"deadline"`
}

type slot struct {
	req          Request
	registeredAt time.Time
	once         sync.Once
	done         chan Record
}

func newSlot(req Request) *slot {
	return &slot{req: req, registeredAt: time.Now().UTC(), done: make(chan Record, 1)}
}

// deliver stores rec if the slot is still empty. It never blocks.
func (s *slot) deliver(rec Record) bool {
	delivered := false
	s.once.Do(func() {
		s.done <- rec
		delivered = true
	})
	return delivered
}

// Broker is the registry of pending decisions.
type Broker struct {
	publisher Publisher
	log       *slog.Logger
	metrics   *telemetry.Metrics

	mu      sync.Mutex
	pending map[int]*slot
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.log = l }
}

// WithMetrics attaches metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// NewBroker creates an empty broker that publishes requests through pub.
func NewBroker(pub Publisher, opts ...Option) *Broker {
	b := &Broker{
		publisher: pub,
		log:       slog.Default(),
		pending:   make(map[int]*slot),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Await registers a slot for issue, publishes req and blocks until the slot
// is resolved, the timeout elapses or ctx is done. On timeout it returns a
// Timeout record; a resolution that raced the timer wins instead.
//
// Errors: ErrDuplicateKey when a decision is already pending for the issue,
// ErrHumanUnavailable when publishing fails or ctx is cancelled.
func (b *Broker) Await(ctx context.Context, issue int, req Request, timeout time.Duration) (Record, error) {
	req.Issue = issue
	s, err := b.register(issue, req)
	if err != nil {
		return Record{}, err
	}
	var (
		published bool
		outcome   *Record
	)
	defer func() {
		// Retract before removing the slot so a new request for the same
		// issue never sees the previous request's channel state.
		if rt, ok := b.publisher.(Retractor); ok && published {
			rt.Retract(req, outcome)
		}
		b.remove(issue)
	}()

	if err := b.publisher.Publish(ctx, req); err != nil {
		b.metrics.PublishFailed(ctx)
		b.log.Error("publish decision request", "issue", issue, "error", err)
		return Record{}, fmt.Errorf("publish decision request for issue %d: %w: %w", issue, ErrHumanUnavailable, err)
	}
	published = true
	b.log.Info("awaiting decision", "issue", issue, "request_id", req.ID, "timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec := <-s.done:
		outcome = &rec
		b.resolved(ctx, issue, rec)
		return rec, nil
	case <-timer.C:
		s.deliver(Timeout())
		rec := <-s.done
		outcome = &rec
		b.resolved(ctx, issue, rec)
		return rec, nil
	case <-ctx.Done():
		return Record{}, fmt.Errorf("await decision for issue %d: %w: %w", issue, ErrHumanUnavailable, ctx.Err())
	}
}

// Resolve stores rec for issue. It returns false, without error, when no
// decision is pending for the issue or the slot has already been resolved.
// Safe to call from any goroutine.
func (b *Broker) Resolve(issue int, rec Record) bool {
	return b.resolve(issue, "", false, rec)
}

// ResolveRequest is Resolve restricted to the request with the given ID. It
// returns false when the issue's pending request has a different ID.
func (b *Broker) ResolveRequest(issue int, requestID string, rec Record) bool {
	return b.resolve(issue, requestID, true, rec)
}

func (b *Broker) resolve(issue int, requestID string, matchID bool, rec Record) bool {
	if rec.ResolvedAt.IsZero() {
		rec.ResolvedAt = time.Now().UTC()
	}

	b.mu.Lock()
	s := b.pending[issue]
	b.mu.Unlock()

	if s == nil {
		b.log.Debug("resolve for unknown issue ignored", "issue", issue, "decision", rec.Kind)
		return false
	}
	if matchID && s.req.ID != requestID {
		b.log.Debug("resolve for stale request ignored", "issue", issue, "request_id", requestID, "pending_id", s.req.ID)
		return false
	}
	if !s.deliver(rec) {
		b.log.Debug("issue already resolved, dropping", "issue", issue, "decision", rec.Kind)
		return false
	}
	return true
}

// IsPending reports whether a decision is registered for issue.
func (b *Broker) IsPending(issue int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[issue]
	return ok
}

// Pending returns a snapshot of all registered slots sorted by issue number.
func (b *Broker) Pending() []PendingDecision {
	b.mu.Lock()
	out := make([]PendingDecision, 0, len(b.pending))
	for issue, s := range b.pending {
		out = append(out, PendingDecision{
			Issue:        issue,
			RequestID:    s.req.ID,
			Title:        s.req.Title,
			RegisteredAt: s.registeredAt,
			Deadline:     s.req.Deadline,
		})
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Issue < out[j].Issue })
	return out
}

func (b *Broker) register(issue int, req Request) (*slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.pending[issue]; ok {
		return nil, fmt.Errorf("issue %d: %w", issue, ErrDuplicateKey)
	}
	s := newSlot(req)
	b.pending[issue] = s
	b.metrics.PendingChanged(context.Background(), 1)
	return s, nil
}

func (b *Broker) remove(issue int) {
	b.mu.Lock()
	delete(b.pending, issue)
	b.mu.Unlock()
	b.metrics.PendingChanged(context.Background(), -1)
}

func (b *Broker) resolved(ctx context.Context, issue int, rec Record) {
	b.metrics.DecisionResolved(ctx, string(rec.Kind))
	b.log.Info("decision resolved", "issue", issue, "decision", rec.Kind, "actor", rec.Actor)
}
