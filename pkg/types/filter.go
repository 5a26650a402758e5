package types

// Vulnerability filter names.
const (
	FilterExploitable  = "Exploitable"
	FilterFixAvailable = "Fix Available"
)

// Rule filter names.
const (
	FilterFailed             = "Failed"
	FilterPassed             = "Passed"
	FilterImageConfigFailure = "Image Config Failure"
	FilterPackageVuln        = "Package Vulnerability"
)

// VulnFilters lists every filter name accepted by MatchesVulnFilter.
var VulnFilters = []string{
	FilterExploitable,
	FilterFixAvailable,
	string(SeverityCritical),
	string(SeverityHigh),
	string(SeverityMedium),
	string(SeverityLow),
	string(SeverityNegligible),
}

// RuleFilters lists every filter name accepted by MatchesRuleFilter.
var RuleFilters = []string{
	FilterFailed,
	FilterPassed,
	FilterImageConfigFailure,
	FilterPackageVuln,
}

// MatchesVulnFilter reports whether v satisfies the named predicate.
// Unknown names match nothing.
func MatchesVulnFilter(v Vulnerability, name string) bool {
	switch name {
	case FilterExploitable:
		return v.Exploitable
	case FilterFixAvailable:
		return v.HasFix()
	}
	if _, ok := severityRank[Severity(name)]; ok {
		return v.Severity.Value == Severity(name)
	}
	return false
}

// MatchesRuleFilter reports whether r satisfies the named predicate.
func MatchesRuleFilter(r Rule, name string) bool {
	switch name {
	case FilterFailed:
		return r.EvaluationResult == EvaluationFailed
	case FilterPassed:
		return r.Passed()
	case FilterImageConfigFailure:
		return r.FailureType == FailureImageConfig
	case FilterPackageVuln:
		return r.FailureType == FailurePkgVuln
	}
	return false
}

// PassesVulnFilters is true when no filter is active or v matches any of them.
func PassesVulnFilters(v Vulnerability, active []string) bool {
	if len(active) == 0 {
		return true
	}
	for _, name := range active {
		if MatchesVulnFilter(v, name) {
			return true
		}
	}
	return false
}

// PassesRuleFilters is true when no filter is active or r matches any of them.
func PassesRuleFilters(r Rule, active []string) bool {
	if len(active) == 0 {
		return true
	}
	for _, name := range active {
		if MatchesRuleFilter(r, name) {
			return true
		}
	}
	return false
}
