package index

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucasnoah/triagegate/internal/triage"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS triage_issue_index (
    issue      INTEGER PRIMARY KEY,
    title      TEXT NOT NULL,
    body       TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_triage_issue_index_created ON triage_issue_index(created_at DESC);
`

// PostgresConfig holds pool settings for the Postgres index.
type PostgresConfig struct {
	URL             string
	ScanLimit       int
	MaxConns        int32
	MaxConnIdleTime time.Duration
}

// Postgres stores registered issues in a table and scores the most recent
// ScanLimit rows on each lookup.
type Postgres struct {
	pool      *pgxpool.Pool
	scanLimit int
}

// NewPostgres connects, pings and ensures the schema exists.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse index database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create index pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping index database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize index schema: %w", err)
	}

	limit := cfg.ScanLimit
	if limit <= 0 {
		limit = 500
	}
	return &Postgres{pool: pool, scanLimit: limit}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// FindSimilar scores the most recently registered issues, other than issue,
// against the input.
func (p *Postgres) FindSimilar(ctx context.Context, issue int, title, body string, threshold float64) (*triage.Match, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT issue, title, body FROM triage_issue_index WHERE issue <> $1 ORDER BY created_at DESC LIMIT $2`,
		issue, p.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Doc, error) {
		var d Doc
		err := row.Scan(&d.Issue, &d.Title, &d.Body)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan index rows: %w", err)
	}
	return best(title, body, docs, threshold), nil
}

// Register inserts the issue, replacing title and body if it already exists.
func (p *Postgres) Register(ctx context.Context, issue int, title, body string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO triage_issue_index (issue, title, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (issue) DO UPDATE SET title = EXCLUDED.title, body = EXCLUDED.body`,
		issue, title, body)
	if err != nil {
		return fmt.Errorf("register issue %d: %w", issue, err)
	}
	return nil
}

// Count returns the number of registered issues.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM triage_issue_index`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count index: %w", err)
	}
	return n, nil
}
