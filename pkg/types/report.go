package types

// Report is the JSON document written by `sysdig-cli-scanner --json-scan-result`.
type Report struct {
	Info   Info   `json:"info"`
	Result Result `json:"result"`
}

// Info carries metadata about the scan itself.
type Info struct {
	ResultURL string `json:"resultUrl,omitempty"`
}

// Result holds everything the scanner found for one image.
type Result struct {
	Metadata                   Metadata       `json:"metadata"`
	VulnTotalBySeverity        SeverityCounts `json:"vulnTotalBySeverity"`
	FixableVulnTotalBySeverity SeverityCounts `json:"fixableVulnTotalBySeverity"`
	Packages                   []Package      `json:"packages"`
	Layers                     []Layer        `json:"layers,omitempty"`
	PolicyEvaluations          []Policy       `json:"policyEvaluations,omitempty"`
	PolicyEvaluationsResult    string         `json:"policyEvaluationsResult,omitempty"`
}

// Metadata describes the scanned image.
type Metadata struct {
	PullString     string `json:"pullString"`
	ImageID        string `json:"imageId,omitempty"`
	Digest         string `json:"digest,omitempty"`
	BaseOS         string `json:"baseOs,omitempty"`
	Size           int64  `json:"size,omitempty"`
	OS             string `json:"os,omitempty"`
	Architecture   string `json:"architecture,omitempty"`
	LayersCount    int    `json:"layersCount,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
	AssetType      string `json:"assetType,omitempty"`
	ScanDurationMs int64  `json:"scanDurationMs,omitempty"`
}

// SeverityCounts is a per-severity tally as reported by the scanner.
type SeverityCounts struct {
	Critical   int `json:"critical"`
	High       int `json:"high"`
	Medium     int `json:"medium"`
	Low        int `json:"low"`
	Negligible int `json:"negligible"`
}

// Total returns the sum over all severities.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Negligible
}

// Values returns the counts in severity order, most severe first.
func (c SeverityCounts) Values() [5]int {
	return [5]int{c.Critical, c.High, c.Medium, c.Low, c.Negligible}
}

// Vulnerability is a single finding against a package.
type Vulnerability struct {
	Name                string            `json:"name"`
	Severity            SeverityValue     `json:"severity"`
	CVSSScore           CVSSScore         `json:"cvssScore"`
	Exploitable         bool              `json:"exploitable"`
	FixedInVersion      string            `json:"fixedInVersion,omitempty"`
	DisclosureDate      string            `json:"disclosureDate,omitempty"`
	SolutionDate        string            `json:"solutionDate,omitempty"`
	PublishDateByVendor map[string]string `json:"publishDateByVendor,omitempty"`
}

// HasFix reports whether a fixed version is known.
func (v Vulnerability) HasFix() bool {
	return v.FixedInVersion != ""
}

// SeverityValue is the severity label together with the feed it came from.
type SeverityValue struct {
	Value      Severity `json:"value"`
	SourceName string   `json:"sourceName,omitempty"`
}

// CVSSScore is the score block attached to a vulnerability.
type CVSSScore struct {
	Value      CVSSValue `json:"value"`
	SourceName string    `json:"sourceName,omitempty"`
}

// CVSSValue holds the numeric score, its version and the vector string.
type CVSSValue struct {
	Version string  `json:"version"`
	Score   float64 `json:"score"`
	Vector  string  `json:"vector"`
}

// Package is an installed software package and the vulnerabilities found in it.
type Package struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Version     string          `json:"version"`
	Path        string          `json:"path,omitempty"`
	Vulns       []Vulnerability `json:"vulns,omitempty"`
	LayerDigest string          `json:"layerDigest,omitempty"`
}

// Layer is one filesystem layer of the scanned image.
type Layer struct {
	Digest     string          `json:"digest,omitempty"`
	Size       int64           `json:"size,omitempty"`
	Command    string          `json:"command"`
	Vulns      *SeverityCounts `json:"vulns,omitempty"`
	BaseImages []BaseImage     `json:"baseImages,omitempty"`
}

// BaseImage lists the pull strings of a base image the layer belongs to.
type BaseImage struct {
	PullStrings []string `json:"pullstrings,omitempty"`
}

// Policy is one policy evaluated against the image.
type Policy struct {
	Name              string       `json:"name"`
	Identifier        string       `json:"identifier"`
	Type              string       `json:"type,omitempty"`
	Bundles           []RuleBundle `json:"bundles,omitempty"`
	AcceptedRiskTotal int          `json:"acceptedRiskTotal"`
	EvaluationResult  string       `json:"evaluationResult"`
	CreatedAt         string       `json:"createdAt,omitempty"`
	UpdatedAt         string       `json:"updatedAt,omitempty"`
}

// Passed reports whether the policy evaluation passed.
func (p Policy) Passed() bool {
	return p.EvaluationResult == EvaluationPassed
}

// RuleBundle groups rules inside a policy.
type RuleBundle struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Type       string `json:"type,omitempty"`
	Rules      []Rule `json:"rules,omitempty"`
}

// Predicate is a condition a rule checks, with free-form arguments.
type Predicate struct {
	Type  string         `json:"type"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Evaluation results used by policies and rules.
const (
	EvaluationPassed = "passed"
	EvaluationFailed = "failed"
)
