package types

// Severity is a vulnerability severity label as reported by the scanner.
// Comparisons are case-sensitive.
type Severity string

const (
	SeverityCritical   Severity = "Critical"
	SeverityHigh       Severity = "High"
	SeverityMedium     Severity = "Medium"
	SeverityLow        Severity = "Low"
	SeverityNegligible Severity = "Negligible"
)

// Severities lists the known severities, most severe first.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityNegligible,
}

var severityRank = map[Severity]int{
	SeverityCritical:   5,
	SeverityHigh:       4,
	SeverityMedium:     3,
	SeverityLow:        2,
	SeverityNegligible: 1,
}

// Rank orders severities; unknown labels rank 0, below Negligible.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Icon returns the coloured marker used in summaries and inline annotations.
func (s Severity) Icon() string {
	switch s {
	case SeverityCritical:
		return "🟣"
	case SeverityHigh:
		return "🔴"
	case SeverityMedium:
		return "🟠"
	case SeverityLow:
		return "🟡"
	case SeverityNegligible:
		return "⚪"
	}
	return ""
}

// Short is the one-letter form used in the status line.
func (s Severity) Short() string {
	if s == "" {
		return ""
	}
	return string(s[0])
}

// Count returns the tally for s, or 0 for an unknown severity.
func (c SeverityCounts) Count(s Severity) int {
	switch s {
	case SeverityCritical:
		return c.Critical
	case SeverityHigh:
		return c.High
	case SeverityMedium:
		return c.Medium
	case SeverityLow:
		return c.Low
	case SeverityNegligible:
		return c.Negligible
	}
	return 0
}
