package types

import "sort"

// SortVulnerabilities returns a copy of vulns ordered most severe first.
// Equal severities keep their input order.
func SortVulnerabilities(vulns []Vulnerability) []Vulnerability {
	if vulns == nil {
		return nil
	}
	out := make([]Vulnerability, len(vulns))
	copy(out, vulns)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Value.Rank() > out[j].Severity.Value.Rank()
	})
	return out
}

// SeverityProfile counts a package's vulnerabilities per known severity,
// in the order Critical, High, Medium, Low, Negligible.
func SeverityProfile(pkg Package) [5]int {
	var profile [5]int
	for _, v := range pkg.Vulns {
		switch v.Severity.Value {
		case SeverityCritical:
			profile[0]++
		case SeverityHigh:
			profile[1]++
		case SeverityMedium:
			profile[2]++
		case SeverityLow:
			profile[3]++
		case SeverityNegligible:
			profile[4]++
		}
	}
	return profile
}

func profileGreater(a, b [5]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// SortPackages returns a copy of pkgs ordered by descending severity profile.
// The profile compares critical counts first and falls through to lower
// severities on ties. Each returned package has its vulnerabilities sorted.
// The input is not modified.
func SortPackages(pkgs []Package) []Package {
	if pkgs == nil {
		return nil
	}
	out := make([]Package, len(pkgs))
	profiles := make([][5]int, len(pkgs))
	for i, p := range pkgs {
		p.Vulns = SortVulnerabilities(p.Vulns)
		out[i] = p
		profiles[i] = SeverityProfile(p)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return profileGreater(profiles[idx[i]], profiles[idx[j]])
	})
	sorted := make([]Package, len(out))
	for i, k := range idx {
		sorted[i] = out[k]
	}
	return sorted
}

// SortRules returns a copy of rules with failed rules before all others.
// Relative order inside each group is kept.
func SortRules(rules []Rule) []Rule {
	if rules == nil {
		return nil
	}
	out := make([]Rule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EvaluationResult == EvaluationFailed && out[j].EvaluationResult != EvaluationFailed
	})
	return out
}

// ScoreRuleBundle is the fraction of passed rules in the bundle.
// A bundle without rules scores 1.
func ScoreRuleBundle(b RuleBundle) float64 {
	if len(b.Rules) == 0 {
		return 1
	}
	passed := 0
	for _, r := range b.Rules {
		if r.Passed() {
			passed++
		}
	}
	return float64(passed) / float64(len(b.Rules))
}

// SortRuleBundles returns a copy of bundles with each bundle's rules sorted,
// then ordered by ascending score so the worst bundle comes first.
func SortRuleBundles(bundles []RuleBundle) []RuleBundle {
	if bundles == nil {
		return nil
	}
	out := make([]RuleBundle, len(bundles))
	for i, b := range bundles {
		b.Rules = SortRules(b.Rules)
		out[i] = b
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ScoreRuleBundle(out[i]) < ScoreRuleBundle(out[j])
	})
	return out
}

// ScorePolicy is the mean score of the policy's bundles, or 1 without bundles.
func ScorePolicy(p Policy) float64 {
	if len(p.Bundles) == 0 {
		return 1
	}
	var sum float64
	for _, b := range p.Bundles {
		sum += ScoreRuleBundle(b)
	}
	return sum / float64(len(p.Bundles))
}

// SortPolicies returns a copy of policies with their bundles sorted and
// stored back, then ordered by ascending score.
func SortPolicies(policies []Policy) []Policy {
	if policies == nil {
		return nil
	}
	out := make([]Policy, len(policies))
	for i, p := range policies {
		p.Bundles = SortRuleBundles(p.Bundles)
		out[i] = p
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ScorePolicy(out[i]) < ScorePolicy(out[j])
	})
	return out
}

// FailedPolicies counts the policies whose evaluation failed.
func FailedPolicies(policies []Policy) int {
	n := 0
	for _, p := range policies {
		if p.EvaluationResult == EvaluationFailed {
			n++
		}
	}
	return n
}
