package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/triagegate/internal/triage"
)

func fixed(reply string, err error) CompleteFunc {
	return func(context.Context, string, int64) (string, error) { return reply, err }
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		reply   string
		want    triage.Severity
		wantErr bool
	}{
		{"Critical", triage.SeverityCritical, false},
		{"  high\n", triage.SeverityHigh, false},
		{"Severity: Low", triage.SeverityLow, false},
		{"Info. This is a question.", triage.SeverityInfo, false},
		{"Urgent", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		a := NewWithCompleter(fixed(tt.reply, nil), Config{})
		got, err := a.ClassifySeverity(context.Background(), "t", "b")
		if tt.wantErr {
			assert.Error(t, err, "reply %q", tt.reply)
			continue
		}
		require.NoError(t, err, "reply %q", tt.reply)
		assert.Equal(t, tt.want, got)
	}
}

func TestClassifySeverity_PromptContainsIssue(t *testing.T) {
	var got string
	var gotTokens int64
	a := NewWithCompleter(func(_ context.Context, p string, max int64) (string, error) {
		got, gotTokens = p, max
		return "Medium", nil
	}, Config{})

	_, err := a.ClassifySeverity(context.Background(), "Crash on save", "Editor crashes.")
	require.NoError(t, err)
	assert.Contains(t, got, `Title: "Crash on save"`)
	assert.Contains(t, got, `Body: "Editor crashes."`)
	assert.EqualValues(t, classifyMaxTokens, gotTokens)
}

func TestSummarize(t *testing.T) {
	a := NewWithCompleter(fixed("  Editor crashes on save.  ", nil), Config{})
	got, err := a.Summarize(context.Background(), "t", "b")
	require.NoError(t, err)
	assert.Equal(t, "Editor crashes on save.", got)

	a = NewWithCompleter(fixed("", nil), Config{})
	_, err = a.Summarize(context.Background(), "t", "b")
	assert.Error(t, err)

	a = NewWithCompleter(fixed("", errors.New("overloaded")), Config{})
	_, err = a.Summarize(context.Background(), "t", "b")
	assert.ErrorContains(t, err, "overloaded")
}

func TestDraftDuplicateComment(t *testing.T) {
	a := NewWithCompleter(fixed("", errors.New("must not be called")), Config{})
	got, err := a.DraftDuplicateComment(context.Background(), 42, 0.873)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "This issue appears to be a duplicate of #42 (Similarity: 87.3%)."))
}

func TestConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	a := NewWithCompleter(func(context.Context, string, int64) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "Low", nil
	}, Config{MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.ClassifySeverity(context.Background(), "t", "b")
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))

	got := truncate("héllo wörld", 2)
	assert.Equal(t, "hé...", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "日本語", truncate("日本語", 3))
}
