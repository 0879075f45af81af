package console

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/triagegate/internal/decision"
)

type recorder struct {
	mu  sync.Mutex
	got []decision.Record
}

func (r *recorder) Resolve(_ int, rec decision.Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, rec)
	return true
}

func (r *recorder) ResolveRequest(issue int, _ string, rec decision.Record) bool {
	return r.Resolve(issue, rec)
}

func (r *recorder) records() []decision.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]decision.Record(nil), r.got...)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func publish(t *testing.T, input string, req decision.Request) (*recorder, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	ch := New(strings.NewReader(input), out)
	rec := &recorder{}
	ch.Bind(rec)
	require.NoError(t, ch.Publish(context.Background(), req))
	return rec, out
}

func waitRecord(t *testing.T, r *recorder) decision.Record {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.records()) == 1 }, time.Second, 5*time.Millisecond)
	return r.records()[0]
}

func TestApprove(t *testing.T) {
	rec, out := publish(t, "approve\n", decision.Request{Issue: 3, Title: "Crash", Severity: "High", Summary: "It crashes."})
	got := waitRecord(t, rec)
	assert.Equal(t, decision.KindApprove, got.Kind)
	assert.Nil(t, got.Override)
	assert.Contains(t, out.String(), "Crash")
	assert.Contains(t, out.String(), "It crashes.")
}

func TestRejectAfterGarbage(t *testing.T) {
	rec, out := publish(t, "maybe\nr\n", decision.Request{Issue: 3})
	got := waitRecord(t, rec)
	assert.Equal(t, decision.KindReject, got.Kind)
	assert.Contains(t, out.String(), `Unrecognised answer "maybe"`)
}

func TestModifyDuplicate(t *testing.T) {
	req := decision.Request{Issue: 3, IsDuplicate: true, DuplicateOf: 1, SimilarityScore: 0.9, ProposedComment: "dup"}
	rec, _ := publish(t, "m\nLow\nSee #1\n", req)
	got := waitRecord(t, rec)
	require.NotNil(t, got.Override)
	assert.True(t, got.Override.Modified)
	assert.Equal(t, "Low", got.Override.Severity)
	assert.Equal(t, "See #1", got.Override.Comment)
	assert.Empty(t, got.Override.Summary)
}

func TestEOFLeavesUnresolved(t *testing.T) {
	rec, out := publish(t, "", decision.Request{Issue: 3})
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "No input") }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.records())
}

func TestPublishRequiresResolver(t *testing.T) {
	ch := New(strings.NewReader(""), &bytes.Buffer{})
	assert.Error(t, ch.Publish(context.Background(), decision.Request{Issue: 1}))
}

func TestWithBroker(t *testing.T) {
	ch := New(strings.NewReader("a\n"), &syncBuffer{})
	b := decision.NewBroker(ch)
	ch.Bind(b)

	got, err := b.Await(context.Background(), 5, decision.Request{Issue: 5}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, decision.KindApprove, got.Kind)
}
