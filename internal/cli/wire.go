package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lucasnoah/triagegate/internal/analysis"
	"github.com/lucasnoah/triagegate/internal/config"
	"github.com/lucasnoah/triagegate/internal/db"
	"github.com/lucasnoah/triagegate/internal/decision"
	"github.com/lucasnoah/triagegate/internal/github"
	"github.com/lucasnoah/triagegate/internal/index"
	"github.com/lucasnoah/triagegate/internal/prompt"
	"github.com/lucasnoah/triagegate/internal/telemetry"
	"github.com/lucasnoah/triagegate/internal/triage"
)

// app holds the collaborators shared by serve and triage run.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	db        *db.DB
	store     *triage.Store
	index     triage.DuplicateIndex
	analyzer  triage.Analyzer
	github    *github.Client
	templates *prompt.Templates
	metrics   *telemetry.Metrics

	closers []func()
}

// newApp opens storage, the index and telemetry. Call close when done.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:       cfg,
		log:       slog.Default(),
		store:     triage.NewStore(cfg.Storage.ResultsDir),
		github:    github.NewClient(&github.ExecRunner{}),
		templates: prompt.NewTemplates(prompt.DefaultTemplateDir()),
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Options{Enabled: cfg.Telemetry.Enabled, Stdout: cfg.Telemetry.Stdout})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = shutdown(context.Background()) })
	a.metrics, err = telemetry.NewMetrics(telemetry.Meter())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	a.db, err = openDB(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() { a.db.Close() })

	idx, closeIdx, err := openIndex(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.index = idx
	a.closers = append(a.closers, closeIdx)

	if cfg.Analysis.APIKey == "" {
		a.log.Warn("ANTHROPIC_API_KEY not set, analysis will use fallback values")
	} else {
		an, err := analysis.New(analysis.Config{
			APIKey:        cfg.Analysis.APIKey,
			Model:         cfg.Analysis.Model,
			MaxConcurrent: cfg.Analysis.MaxConcurrent,
			Templates:     a.templates,
			Logger:        a.log,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create analyzer: %w", err)
		}
		a.analyzer = an
	}
	return a, nil
}

// pipeline builds a pipeline around the given decider and notifier.
func (a *app) pipeline(decider triage.Decider, notifier triage.Notifier, records triage.RecordStore) *triage.Pipeline {
	if records == nil {
		records = a.github
	}
	return triage.NewPipeline(
		triage.Deps{
			Analyzer: a.analyzer,
			Index:    a.index,
			Records:  records,
			Decider:  decider,
			Notifier: notifier,
		},
		triage.Options{
			SimilarityThreshold: a.cfg.Triage.SimilarityThreshold,
			DecisionWait:        a.cfg.Triage.DecisionWait(),
		},
		triage.WithLogger(a.log),
		triage.WithMetrics(a.metrics),
		triage.WithEventLog(a.db),
		triage.WithTemplates(a.templates),
	)
}

// broker creates a decision broker publishing through pub.
func (a *app) broker(pub decision.Publisher) *decision.Broker {
	return decision.NewBroker(pub, decision.WithLogger(a.log), decision.WithMetrics(a.metrics))
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openDB opens and migrates the audit database.
func openDB(cfg *config.Config) (*db.DB, error) {
	path := cfg.Storage.DBPath
	if path == "" {
		p, err := db.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("db path: %w", err)
		}
		path = p
	}
	d, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// openIndex returns the configured duplicate index and its close func.
func openIndex(ctx context.Context, cfg *config.Config) (triage.DuplicateIndex, func(), error) {
	switch cfg.Index.Backend {
	case "postgres":
		p, err := index.NewPostgres(ctx, index.PostgresConfig{
			URL:       cfg.Index.DatabaseURL,
			ScanLimit: cfg.Index.ScanLimit,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres index: %w", err)
		}
		return p, p.Close, nil
	case "memory", "":
		return index.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
}
