package triage

import (
	"fmt"
	"strconv"

	"github.com/lucasnoah/triagegate/internal/prompt"
)

// formatPercent renders a similarity score in [0,1] as "87.0%".
func formatPercent(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}

// FormatDuplicateComment renders the comment proposed for a duplicate issue.
func FormatDuplicateComment(t *prompt.Templates, duplicateOf int, score float64) string {
	out, err := t.Render(prompt.DuplicateComment, prompt.Vars{
		"duplicate_of": strconv.Itoa(duplicateOf),
		"similarity":   formatPercent(score),
	})
	if err != nil {
		return fmt.Sprintf("This issue appears to be a duplicate of #%d (Similarity: %s).", duplicateOf, formatPercent(score))
	}
	return out
}

// FormatAnalysisComment renders the summary comment posted on approved
// non-duplicate issues.
func FormatAnalysisComment(t *prompt.Templates, sev Severity, summary, reviewer string) string {
	out, err := t.Render(prompt.AnalysisComment, prompt.Vars{
		"severity":        sev.String(),
		"severity_marker": sev.Marker(),
		"summary":         summary,
		"reviewer":        reviewer,
	})
	if err != nil {
		return fmt.Sprintf("## AI Triage Analysis\n\n**Severity Classification:** %s\n\n%s", sev, summary)
	}
	return out
}
