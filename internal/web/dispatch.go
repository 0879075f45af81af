package web

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lucasnoah/triagegate/internal/triage"
)

// Triager runs one issue through the pipeline.
type Triager interface {
	Triage(ctx context.Context, r triage.Report) (*triage.Result, error)
}

// Stats are the webhook counters served on /stats.
type Stats struct {
	received atomic.Int64
	triaged  atomic.Int64
	errors   atomic.Int64
	inFlight atomic.Int64
	last     atomic.Pointer[time.Time]
}

// StatsSnapshot is the JSON view of Stats.
type StatsSnapshot struct {
	TotalReceived int64      `json:"total_received"`
	IssuesTriaged int64      `json:"issues_triaged"`
	Errors        int64      `json:"errors"`
	InFlight      int64      `json:"in_flight"`
	LastWebhook   *time.Time `json:"last_webhook"`
}

func (s *Stats) webhookReceived() {
	now := time.Now().UTC()
	s.received.Add(1)
	s.last.Store(&now)
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalReceived: s.received.Load(),
		IssuesTriaged: s.triaged.Load(),
		Errors:        s.errors.Load(),
		InFlight:      s.inFlight.Load(),
		LastWebhook:   s.last.Load(),
	}
}

// Dispatcher runs accepted reports in the background, bounded by a
// semaphore. A full dispatcher rejects instead of queueing.
type Dispatcher struct {
	triager Triager
	store   *triage.Store
	stats   *Stats
	log     *slog.Logger
	sem     *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher allowing maxConcurrent runs at once.
// store may be nil.
func NewDispatcher(t Triager, store *triage.Store, maxConcurrent int, stats *Stats, log *slog.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if stats == nil {
		stats = &Stats{}
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		triager: t,
		store:   store,
		stats:   stats,
		log:     log,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit starts triage of r on a new goroutine. It returns ErrSaturated
// when every slot is taken.
func (d *Dispatcher) Submit(r triage.Report) error {
	if d.ctx.Err() != nil {
		return ErrSaturated
	}
	if !d.sem.TryAcquire(1) {
		return ErrSaturated
	}
	d.stats.inFlight.Add(1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer d.stats.inFlight.Add(-1)
		d.run(r)
	}()
	return nil
}

func (d *Dispatcher) run(r triage.Report) {
	log := d.log.With("issue", r.Issue, "repo", r.Repo)
	res, err := d.triager.Triage(d.ctx, r)
	if err != nil {
		d.stats.errors.Add(1)
		log.Error("triage failed", "error", err)
	} else if res != nil && res.Success {
		d.stats.triaged.Add(1)
	} else {
		d.stats.errors.Add(1)
	}

	if res != nil && d.store != nil {
		if err := d.store.Save(res); err != nil {
			log.Error("archive triage result", "error", err)
		}
	}
}

// Shutdown waits for in-flight runs until ctx is done, then cancels them
// and waits for them to unwind.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.log.Warn("cancelling in-flight triage runs", "in_flight", d.stats.inFlight.Load())
		d.cancel()
		<-done
		return ctx.Err()
	}
}
