// Package index implements duplicate detection over previously accepted
// issues.
package index

import (
	"strings"
	"unicode"

	"github.com/lucasnoah/triagegate/internal/triage"
)

// ExactTitleScore is assigned when two titles match after normalization.
const ExactTitleScore = 0.95

// Doc is one registered issue.
type Doc struct {
	Issue int
	Title string
	Body  string
}

// tokens splits text into a set of lower-cased words.
func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[w] = struct{}{}
	}
	return set
}

func normTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Score returns the similarity of a new issue to a registered one: 0.95 on
// an exact title match, otherwise the Jaccard overlap of the words in
// title and body.
func Score(title, body string, doc Doc) float64 {
	if t := normTitle(title); t != "" && t == normTitle(doc.Title) {
		return ExactTitleScore
	}
	return jaccard(tokens(title+" "+body), tokens(doc.Title+" "+doc.Body))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// best picks the highest-scoring doc at or above threshold. Ties go to the
// lower issue number.
func best(title, body string, docs []Doc, threshold float64) *triage.Match {
	var m *triage.Match
	for _, d := range docs {
		s := Score(title, body, d)
		if s < threshold {
			continue
		}
		if m == nil || s > m.Score || (s == m.Score && d.Issue < m.Issue) {
			m = &triage.Match{Issue: d.Issue, Title: d.Title, Score: s}
		}
	}
	return m
}
