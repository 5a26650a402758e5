package renderer

import (
	"fmt"
	"strconv"

	"github.com/northcutted/dock-lens/pkg/types"
)

// NoFix is shown in the fixed version column when no fix is known.
const NoFix = "No fix available"

// Options controls how much detail a summary carries.
type Options struct {
	// Detailed adds a failure table under every failed rule.
	Detailed bool
	// NoMoji drops icons from headings and column titles.
	NoMoji bool
}

// Summary is a rendered-independent report summary: a flat list of
// headings and tables in display order.
type Summary struct {
	Blocks []Block
}

// Block is a heading, a table, or a heading followed by a table.
type Block struct {
	Level   int
	Heading string
	Table   *Table
}

// Table is a simple header plus rows grid.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Empty reports whether the summary has nothing to show.
func (s Summary) Empty() bool {
	return len(s.Blocks) == 0
}

// Title returns the first heading, if any.
func (s Summary) Title() string {
	for _, b := range s.Blocks {
		if b.Heading != "" {
			return b.Heading
		}
	}
	return ""
}

func (s *Summary) heading(level int, text string) {
	s.Blocks = append(s.Blocks, Block{Level: level, Heading: text})
}

func (s *Summary) table(t *Table) {
	s.Blocks = append(s.Blocks, Block{Table: t})
}

func severityHeaders(opts Options) []string {
	headers := []string{"Severity"}
	for _, sev := range types.Severities {
		if opts.NoMoji {
			headers = append(headers, string(sev))
			continue
		}
		headers = append(headers, sev.Icon()+" "+string(sev))
	}
	return headers
}

func countRow(label string, c types.SeverityCounts) []string {
	row := []string{"**" + label + "**"}
	for _, n := range c.Values() {
		row = append(row, strconv.Itoa(n))
	}
	return row
}

func mark(passed bool, opts Options) string {
	switch {
	case opts.NoMoji && passed:
		return "[PASS]"
	case opts.NoMoji:
		return "[FAIL]"
	case passed:
		return "✅"
	default:
		return "❌"
	}
}

func fixedVersion(v types.Vulnerability) string {
	if v.FixedInVersion == "" {
		return NoFix
	}
	return v.FixedInVersion
}

func score(v types.Vulnerability) string {
	return strconv.FormatFloat(v.CVSSScore.Value.Score, 'f', -1, 64)
}

// Summarize builds the image summary: the severity totals, then one heading
// per policy. Failed policies expand into bundles and rules, and with
// Detailed set each failed rule gets a failure table.
func Summarize(report *types.Report, opts Options) Summary {
	var s Summary
	if report == nil {
		return s
	}
	res := report.Result

	s.heading(3, "Vulnerabilities for "+res.Metadata.PullString)
	s.table(&Table{
		Headers: severityHeaders(opts),
		Rows: [][]string{
			countRow("Total", res.VulnTotalBySeverity),
			countRow("Fixable", res.FixableVulnTotalBySeverity),
		},
	})

	for _, policy := range res.PolicyEvaluations {
		s.heading(3, fmt.Sprintf("%s Policy: %s", mark(policy.Passed(), opts), policy.Name))
		if policy.EvaluationResult != types.EvaluationFailed {
			continue
		}
		for _, bundle := range policy.Bundles {
			s.heading(4, "Rule Bundle: "+bundle.Name)
			for _, rule := range bundle.Rules {
				s.heading(5, fmt.Sprintf("%s Rule: %s", mark(rule.Passed(), opts), rule.Description))
				if rule.Passed() || !opts.Detailed {
					continue
				}
				s.table(failureTable(report, rule))
			}
		}
	}
	return s
}

func failureTable(report *types.Report, rule types.Rule) *Table {
	if rule.FailureType == types.FailurePkgVuln {
		t := &Table{Headers: []string{"Severity", "Package", "CVSS Score", "CVSS Version", "CVSS Vector", "Fixed Version", "Exploitable"}}
		for _, f := range rule.Failures {
			pf, ok := f.(types.PkgVulnFailure)
			if !ok {
				continue
			}
			pkg, v, ok := report.ResolveFailure(pf)
			if !ok {
				continue
			}
			t.Rows = append(t.Rows, []string{
				string(v.Severity.Value),
				pkg.Name,
				score(v),
				v.CVSSScore.Value.Version,
				v.CVSSScore.Value.Vector,
				fixedVersion(v),
				strconv.FormatBool(v.Exploitable),
			})
		}
		return t
	}

	t := &Table{Headers: []string{"Rule Failure", "Remediation"}}
	for _, f := range rule.Failures {
		switch v := f.(type) {
		case types.ImageConfigFailure:
			t.Rows = append(t.Rows, []string{v.Description, v.Remediation})
		case types.PkgVulnFailure:
			t.Rows = append(t.Rows, []string{v.Description, ""})
		case types.UnknownFailure:
			t.Rows = append(t.Rows, []string{v.Description(), ""})
		}
	}
	return t
}

// SummarizeLayer builds the summary for one layer: its own severity counts
// and a table per package installed by that layer.
func SummarizeLayer(layer types.Layer, report *types.Report, opts Options) Summary {
	var s Summary
	s.heading(3, "Vulnerabilities for Layer: "+layer.Command)

	var counts types.SeverityCounts
	if layer.Vulns != nil {
		counts = *layer.Vulns
	}
	s.table(&Table{
		Headers: severityHeaders(opts),
		Rows:    [][]string{countRow("Total", counts)},
	})

	if report == nil {
		return s
	}
	for _, pkg := range report.Result.Packages {
		if pkg.LayerDigest != layer.Digest || len(pkg.Vulns) == 0 {
			continue
		}
		s.heading(3, fmt.Sprintf("Package: %s:%s", pkg.Name, pkg.Version))
		t := &Table{Headers: []string{"Severity", "Vulnerability", "CVSS Score", "CVSS Version", "CVSS Vector", "Fixed Version", "Exploitable"}}
		for _, v := range pkg.Vulns {
			t.Rows = append(t.Rows, []string{
				string(v.Severity.Value),
				v.Name,
				score(v),
				v.CVSSScore.Value.Version,
				v.CVSSScore.Value.Vector,
				fixedVersion(v),
				strconv.FormatBool(v.Exploitable),
			})
		}
		s.table(t)
	}
	return s
}
