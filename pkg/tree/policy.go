package tree

import (
	"github.com/northcutted/dock-lens/pkg/types"
)

// PolicyNode is a policy with its bundles as children.
type PolicyNode struct {
	Policy  types.Policy
	bundles []Node
}

func (n *PolicyNode) Label() string       { return n.Policy.Name }
func (n *PolicyNode) Description() string { return n.Policy.Type }
func (n *PolicyNode) State() State        { return stateFor(len(n.bundles)) }
func (n *PolicyNode) Children() []Node    { return n.bundles }

// BundleNode is a rule bundle with its rules as children.
type BundleNode struct {
	Bundle types.RuleBundle
	rules  []Node
}

func (n *BundleNode) Label() string       { return n.Bundle.Name }
func (n *BundleNode) Description() string { return n.Bundle.Type }
func (n *BundleNode) State() State        { return stateFor(len(n.rules)) }
func (n *BundleNode) Children() []Node    { return n.rules }

// RuleNode is a rule with its failures as children.
type RuleNode struct {
	Rule     types.Rule
	failures []Node
}

func (n *RuleNode) Label() string       { return n.Rule.Description }
func (n *RuleNode) Description() string { return string(n.Rule.FailureType) }
func (n *RuleNode) State() State        { return stateFor(len(n.failures)) }
func (n *RuleNode) Children() []Node    { return n.failures }

// FailureNode is one failure of a rule.
type FailureNode struct {
	Failure types.Failure
}

func (n *FailureNode) State() State     { return StateNone }
func (n *FailureNode) Children() []Node { return nil }

func (n *FailureNode) Label() string {
	switch f := n.Failure.(type) {
	case types.ImageConfigFailure:
		return f.Remediation
	case types.PkgVulnFailure:
		return f.Description
	case types.UnknownFailure:
		if d := f.Description(); d != "" {
			return d
		}
	}
	return "Unknown Failure"
}

func (n *FailureNode) Description() string {
	switch n.Failure.(type) {
	case types.ImageConfigFailure:
		return types.FilterImageConfigFailure
	case types.PkgVulnFailure:
		return types.FilterPackageVuln
	}
	return "Unknown Failure"
}

// PolicyTree is the policy/bundle/rule/failure tree.
type PolicyTree struct {
	base

	policies []types.Policy
	filtered []types.Policy
}

// NewPolicyTree returns an empty policy tree.
func NewPolicyTree() *PolicyTree {
	return &PolicyTree{}
}

// Load replaces the canonical policy list and resets the view.
func (t *PolicyTree) Load(policies []types.Policy) {
	sorted := types.SortPolicies(policies)
	t.mu.Lock()
	t.policies = sorted
	t.mu.Unlock()
	t.apply()
}

// Update loads the policy evaluations of a report.
func (t *PolicyTree) Update(report *types.Report) {
	if report == nil {
		t.SetBacklink("")
		t.Load(nil)
		return
	}
	t.SetBacklink(report.Info.ResultURL)
	t.Load(report.Result.PolicyEvaluations)
}

// SetFilters replaces the active filter set. A rule stays visible if it
// matches any active filter; bundles and policies left empty are dropped.
func (t *PolicyTree) SetFilters(names []string) {
	t.mu.Lock()
	t.filters = dedupe(names)
	t.mu.Unlock()
	t.apply()
}

func (t *PolicyTree) apply() {
	t.mu.Lock()
	filtered := types.ClonePolicies(t.policies)
	if len(t.filters) > 0 {
		kept := filtered[:0:0]
		for _, p := range filtered {
			var bundles []types.RuleBundle
			for _, b := range p.Bundles {
				var rules []types.Rule
				for _, r := range b.Rules {
					if types.PassesRuleFilters(r, t.filters) {
						rules = append(rules, r)
					}
				}
				if len(rules) == 0 {
					continue
				}
				b.Rules = rules
				bundles = append(bundles, b)
			}
			if len(bundles) == 0 {
				continue
			}
			p.Bundles = bundles
			kept = append(kept, p)
		}
		filtered = types.SortPolicies(kept)
	}
	t.filtered = filtered
	t.roots = buildPolicyNodes(filtered)
	t.mu.Unlock()

	t.notify()
}

func buildPolicyNodes(policies []types.Policy) []Node {
	nodes := make([]Node, 0, len(policies))
	for _, p := range policies {
		pn := &PolicyNode{Policy: p}
		for _, b := range p.Bundles {
			bn := &BundleNode{Bundle: b}
			for _, r := range b.Rules {
				rn := &RuleNode{Rule: r}
				for _, f := range r.Failures {
					rn.failures = append(rn.failures, &FailureNode{Failure: f})
				}
				bn.rules = append(bn.rules, rn)
			}
			pn.bundles = append(pn.bundles, bn)
		}
		nodes = append(nodes, pn)
	}
	return nodes
}

// Policies returns a copy of the canonical, sorted policy list.
func (t *PolicyTree) Policies() []types.Policy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.ClonePolicies(t.policies)
}

// Filtered returns a copy of the policy list currently shown.
func (t *PolicyTree) Filtered() []types.Policy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.ClonePolicies(t.filtered)
}
