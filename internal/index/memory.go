package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lucasnoah/triagegate/internal/triage"
)

// Memory is a process-local duplicate index.
type Memory struct {
	mu   sync.RWMutex
	docs map[int]Doc
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{docs: make(map[int]Doc)}
}

// FindSimilar returns the best match other than issue at or above
// threshold, or nil.
func (m *Memory) FindSimilar(_ context.Context, issue int, title, body string, threshold float64) (*triage.Match, error) {
	m.mu.RLock()
	docs := make([]Doc, 0, len(m.docs))
	for _, d := range m.docs {
		if d.Issue == issue {
			continue
		}
		docs = append(docs, d)
	}
	m.mu.RUnlock()

	return best(title, body, docs, threshold), nil
}

// Register adds or replaces an issue.
func (m *Memory) Register(_ context.Context, issue int, title, body string) error {
	if issue <= 0 {
		return fmt.Errorf("invalid issue number %d", issue)
	}
	m.mu.Lock()
	m.docs[issue] = Doc{Issue: issue, Title: title, Body: body}
	m.mu.Unlock()
	return nil
}

// Len returns the number of registered issues.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Docs returns all registered issues sorted by number.
func (m *Memory) Docs() []Doc {
	m.mu.RLock()
	out := make([]Doc, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Issue < out[j].Issue })
	return out
}
