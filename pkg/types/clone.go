package types

import "maps"

// Clone returns a deep copy of v.
func (v Vulnerability) Clone() Vulnerability {
	v.PublishDateByVendor = maps.Clone(v.PublishDateByVendor)
	return v
}

// Clone returns a deep copy of p.
func (p Package) Clone() Package {
	if p.Vulns != nil {
		vulns := make([]Vulnerability, len(p.Vulns))
		for i, v := range p.Vulns {
			vulns[i] = v.Clone()
		}
		p.Vulns = vulns
	}
	return p
}

// Clone returns a deep copy of l.
func (l Layer) Clone() Layer {
	if l.Vulns != nil {
		counts := *l.Vulns
		l.Vulns = &counts
	}
	if l.BaseImages != nil {
		images := make([]BaseImage, len(l.BaseImages))
		for i, b := range l.BaseImages {
			images[i] = BaseImage{PullStrings: append([]string(nil), b.PullStrings...)}
		}
		l.BaseImages = images
	}
	return l
}

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	if r.Predicates != nil {
		preds := make([]Predicate, len(r.Predicates))
		for i, p := range r.Predicates {
			preds[i] = Predicate{Type: p.Type, Extra: maps.Clone(p.Extra)}
		}
		r.Predicates = preds
	}
	if r.Failures != nil {
		failures := make([]Failure, len(r.Failures))
		for i, f := range r.Failures {
			failures[i] = cloneFailure(f)
		}
		r.Failures = failures
	}
	return r
}

// Clone returns a deep copy of b.
func (b RuleBundle) Clone() RuleBundle {
	if b.Rules != nil {
		rules := make([]Rule, len(b.Rules))
		for i, r := range b.Rules {
			rules[i] = r.Clone()
		}
		b.Rules = rules
	}
	return b
}

// Clone returns a deep copy of p.
func (p Policy) Clone() Policy {
	if p.Bundles != nil {
		bundles := make([]RuleBundle, len(p.Bundles))
		for i, b := range p.Bundles {
			bundles[i] = b.Clone()
		}
		p.Bundles = bundles
	}
	return p
}

// ClonePackages deep-copies a package list, keeping nil as nil.
func ClonePackages(pkgs []Package) []Package {
	if pkgs == nil {
		return nil
	}
	out := make([]Package, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Clone()
	}
	return out
}

// ClonePolicies deep-copies a policy list, keeping nil as nil.
func ClonePolicies(policies []Policy) []Policy {
	if policies == nil {
		return nil
	}
	out := make([]Policy, len(policies))
	for i, p := range policies {
		out[i] = p.Clone()
	}
	return out
}
