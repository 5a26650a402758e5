package types

import (
	"encoding/json"
	"maps"
)

// FailureType tags how the failures of a rule are encoded.
type FailureType string

const (
	FailureImageConfig FailureType = "imageConfigFailure"
	FailurePkgVuln     FailureType = "pkgVulnFailure"
)

// Failure is one reason a rule failed. It is one of PkgVulnFailure,
// ImageConfigFailure or UnknownFailure.
type Failure interface {
	failureType() FailureType
}

// PkgVulnFailure points at a vulnerability in the report by index.
// Resolve it with Report.ResolveFailure; the indices are untrusted and an
// absent index decodes as MissingIndex.
type PkgVulnFailure struct {
	PkgIndex       int    `json:"pkgIndex"`
	VulnInPkgIndex int    `json:"vulnInPkgIndex"`
	Ref            string `json:"ref,omitempty"`
	Description    string `json:"description,omitempty"`
}

// ImageConfigFailure describes a failed check against the image configuration.
type ImageConfigFailure struct {
	Description string         `json:"description"`
	Remediation string         `json:"remediation"`
	Arguments   map[string]any `json:"arguments,omitempty"`
}

// UnknownFailure keeps a failure whose rule carries an unrecognised failure
// type, or whose record does not decode as its declared type.
type UnknownFailure struct {
	Type FailureType
	Raw  json.RawMessage
}

func (PkgVulnFailure) failureType() FailureType     { return FailurePkgVuln }
func (ImageConfigFailure) failureType() FailureType { return FailureImageConfig }
func (f UnknownFailure) failureType() FailureType   { return f.Type }

// Description returns whatever human readable text the raw failure carries.
func (f UnknownFailure) Description() string {
	var probe struct {
		Description string `json:"description"`
	}
	if json.Unmarshal(f.Raw, &probe) != nil {
		return ""
	}
	return probe.Description
}

// Rule is a single check inside a bundle.
type Rule struct {
	RuleID           int         `json:"ruleId,omitempty"`
	RuleType         string      `json:"ruleType"`
	FailureType      FailureType `json:"failureType"`
	Description      string      `json:"description"`
	EvaluationResult string      `json:"evaluationResult"`
	Predicates       []Predicate `json:"predicates,omitempty"`
	Failures         []Failure   `json:"-"`
}

// Passed reports whether the rule evaluation passed.
func (r Rule) Passed() bool {
	return r.EvaluationResult == EvaluationPassed
}

type ruleJSON struct {
	RuleID           int               `json:"ruleId,omitempty"`
	RuleType         string            `json:"ruleType"`
	FailureType      FailureType       `json:"failureType"`
	Description      string            `json:"description"`
	EvaluationResult string            `json:"evaluationResult"`
	Predicates       []Predicate       `json:"predicates,omitempty"`
	Failures         []json.RawMessage `json:"failures,omitempty"`
}

// UnmarshalJSON decodes failures according to the rule's failure type.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Rule{
		RuleID:           raw.RuleID,
		RuleType:         raw.RuleType,
		FailureType:      raw.FailureType,
		Description:      raw.Description,
		EvaluationResult: raw.EvaluationResult,
		Predicates:       raw.Predicates,
	}
	if raw.Failures == nil {
		return nil
	}
	r.Failures = make([]Failure, 0, len(raw.Failures))
	for _, msg := range raw.Failures {
		r.Failures = append(r.Failures, decodeFailure(raw.FailureType, msg))
	}
	return nil
}

// MarshalJSON writes the rule back in the scanner's format.
func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		RuleID:           r.RuleID,
		RuleType:         r.RuleType,
		FailureType:      r.FailureType,
		Description:      r.Description,
		EvaluationResult: r.EvaluationResult,
		Predicates:       r.Predicates,
	}
	for _, f := range r.Failures {
		var (
			msg json.RawMessage
			err error
		)
		if u, ok := f.(UnknownFailure); ok {
			msg = u.Raw
		} else {
			msg, err = json.Marshal(f)
		}
		if err != nil {
			return nil, err
		}
		out.Failures = append(out.Failures, msg)
	}
	return json.Marshal(out)
}

// decodeFailure never fails: a record that does not match its declared
// shape is kept as an UnknownFailure.
func decodeFailure(kind FailureType, msg json.RawMessage) Failure {
	unknown := UnknownFailure{Type: kind, Raw: append(json.RawMessage(nil), msg...)}
	switch kind {
	case FailurePkgVuln:
		var f struct {
			PkgIndex       *int   `json:"pkgIndex"`
			VulnInPkgIndex *int   `json:"vulnInPkgIndex"`
			Ref            string `json:"ref"`
			Description    string `json:"description"`
		}
		if err := json.Unmarshal(msg, &f); err != nil {
			return unknown
		}
		return PkgVulnFailure{
			PkgIndex:       indexOrMissing(f.PkgIndex),
			VulnInPkgIndex: indexOrMissing(f.VulnInPkgIndex),
			Ref:            f.Ref,
			Description:    f.Description,
		}
	case FailureImageConfig:
		var f ImageConfigFailure
		if err := json.Unmarshal(msg, &f); err != nil {
			return unknown
		}
		return f
	default:
		return unknown
	}
}

// MissingIndex marks a failure index absent from the report. It never resolves.
const MissingIndex = -1

func indexOrMissing(i *int) int {
	if i == nil {
		return MissingIndex
	}
	return *i
}

// ResolveFailure returns the package and vulnerability a failure points at.
// ok is false when either index is out of range.
func (r *Report) ResolveFailure(f PkgVulnFailure) (pkg Package, vuln Vulnerability, ok bool) {
	if r == nil {
		return Package{}, Vulnerability{}, false
	}
	pkgs := r.Result.Packages
	if f.PkgIndex < 0 || f.PkgIndex >= len(pkgs) {
		return Package{}, Vulnerability{}, false
	}
	pkg = pkgs[f.PkgIndex]
	if f.VulnInPkgIndex < 0 || f.VulnInPkgIndex >= len(pkg.Vulns) {
		return Package{}, Vulnerability{}, false
	}
	return pkg, pkg.Vulns[f.VulnInPkgIndex], true
}

func cloneFailure(f Failure) Failure {
	switch v := f.(type) {
	case ImageConfigFailure:
		v.Arguments = maps.Clone(v.Arguments)
		return v
	case UnknownFailure:
		v.Raw = append(json.RawMessage(nil), v.Raw...)
		return v
	default:
		return f
	}
}
