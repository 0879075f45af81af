package triage

import (
	"fmt"
	"strings"
)

// Severity is the five-level impact classification applied to an issue.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
	SeverityInfo     Severity = "Info"
)

// DefaultSeverity is used whenever classification is unavailable.
const DefaultSeverity = SeverityMedium

// Severities lists all levels from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// ParseSeverity matches s case-insensitively against the known levels.
// Surrounding whitespace and trailing punctuation are ignored.
func ParseSeverity(s string) (Severity, error) {
	norm := strings.TrimRight(strings.TrimSpace(s), ".!:*")
	norm = strings.Trim(norm, "*\"'`")
	for _, sev := range Severities {
		if strings.EqualFold(norm, string(sev)) {
			return sev, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

func (s Severity) String() string { return string(s) }

// Marker is the coloured glyph shown next to the severity in comments.
func (s Severity) Marker() string {
	switch s {
	case SeverityCritical:
		return "🔴"
	case SeverityHigh:
		return "🟠"
	case SeverityMedium:
		return "🟡"
	case SeverityLow:
		return "🟢"
	case SeverityInfo:
		return "🔵"
	}
	return "📋"
}

// Description is the one-line meaning of the level.
func (s Severity) Description() string {
	switch s {
	case SeverityCritical:
		return "System down, data loss, security vulnerability"
	case SeverityHigh:
		return "Major functionality broken, performance issues"
	case SeverityMedium:
		return "Minor bugs with workarounds, feature requests"
	case SeverityLow:
		return "Cosmetic issues, typos, documentation"
	case SeverityInfo:
		return "Questions, discussions, feedback"
	}
	return ""
}

// Impact is the urgency guidance shown to the human reviewer.
func (s Severity) Impact() string {
	switch s {
	case SeverityCritical:
		return "Immediate action required"
	case SeverityHigh:
		return "High priority - address soon"
	case SeverityLow:
		return "Low priority - can be scheduled"
	case SeverityInfo:
		return "Informational - review when convenient"
	}
	return "Standard workflow"
}

// Urgent reports whether the level warrants notifying the owning team.
func (s Severity) Urgent() bool {
	return s == SeverityCritical || s == SeverityHigh
}
