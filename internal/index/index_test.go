package index

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/triagegate/internal/triage"
)

// Both backends must satisfy the pipeline's interface.
var (
	_ triage.DuplicateIndex = (*Memory)(nil)
	_ triage.DuplicateIndex = (*Postgres)(nil)
)

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		title, body string
		doc         Doc
		want        float64
	}{
		{"exact title", "Login Broken", "x", Doc{Title: "  login   broken "}, ExactTitleScore},
		{"word overlap", "a b", "c d", Doc{Title: "a b c", Body: "d extra"}, 0.8},
		{"disjoint", "alpha", "beta", Doc{Title: "gamma", Body: "delta"}, 0},
		{"empty", "", "", Doc{Title: "x"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.title, tt.body, tt.doc), 1e-9)
		})
	}
}

func TestMemory_FindSimilar(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Register(ctx, 1, "Crash when saving file", "The editor crashes when I press save"))
	require.NoError(t, m.Register(ctx, 2, "Dark mode request", "Please add a dark theme"))

	match, err := m.FindSimilar(ctx, 0, "Crash when saving file", "anything", 0.85)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 1, match.Issue)
	assert.Equal(t, ExactTitleScore, match.Score)

	match, err = m.FindSimilar(ctx, 0, "Totally new", "unrelated words here", 0.85)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestMemory_FindSimilarSkipsOwnIssue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Register(ctx, 3, "Crash when saving file", "The editor crashes when I press save"))
	require.NoError(t, m.Register(ctx, 8, "Crash when saving file", "Save crashes the editor"))

	match, err := m.FindSimilar(ctx, 8, "Crash when saving file", "Save crashes the editor", 0.85)
	require.NoError(t, err)
	require.NotNil(t, match, "the next best issue is still reported")
	assert.Equal(t, 3, match.Issue)

	match, err = m.FindSimilar(ctx, 3, "Dark mode", "", 0.85)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestMemory_BestWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Register(ctx, 10, "one two three four", ""))
	require.NoError(t, m.Register(ctx, 11, "one two three four five", ""))

	match, err := m.FindSimilar(ctx, 0, "one two three four five", "", 0.5)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 11, match.Issue)
}

func TestMemory_RegisterReplacesAndValidates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Register(ctx, 5, "old", ""))
	require.NoError(t, m.Register(ctx, 5, "new", ""))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "new", m.Docs()[0].Title)
	assert.Error(t, m.Register(ctx, 0, "bad", ""))
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = m.Register(ctx, i, "title", "body")
		}(i)
		go func() {
			defer wg.Done()
			_, _ = m.FindSimilar(ctx, 0, "title", "body", 0.5)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}

func TestPostgres_RoundTrip(t *testing.T) {
	url := os.Getenv("TRIAGEGATE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TRIAGEGATE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, PostgresConfig{URL: url, ScanLimit: 100})
	if err != nil {
		t.Skipf("Skipping PostgreSQL test (database not available): %v", err)
	}
	t.Cleanup(p.Close)
	_, err = p.pool.Exec(ctx, `TRUNCATE TABLE triage_issue_index`)
	require.NoError(t, err)

	require.NoError(t, p.Register(ctx, 7, "Crash on save", "editor crashes"))
	require.NoError(t, p.Register(ctx, 7, "Crash on save", "editor crashes on save"))

	n, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	match, err := p.FindSimilar(ctx, 0, "crash on save", "", 0.85)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 7, match.Issue)

	match, err = p.FindSimilar(ctx, 7, "crash on save", "", 0.85)
	require.NoError(t, err)
	assert.Nil(t, match)
}
