package highlight

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/northcutted/dock-lens/pkg/correlate"
	"github.com/northcutted/dock-lens/pkg/parser"
	"github.com/northcutted/dock-lens/pkg/renderer"
	"github.com/northcutted/dock-lens/pkg/types"
)

var (
	imageStyle = Style{Border: "dashed green", AfterColor: "red", RulerColor: "green"}
	layerStyle = Style{AfterColor: "gray", RulerColor: "purple"}
)

// FindAll returns the range of every literal occurrence of needle in text.
func FindAll(text, needle string) []types.Range {
	if needle == "" {
		return nil
	}
	var out []types.Range
	for lineNo, line := range strings.Split(text, "\n") {
		offset := 0
		for {
			idx := strings.Index(line[offset:], needle)
			if idx < 0 {
				break
			}
			start := offset + idx
			out = append(out, types.Range{
				Start: types.Position{Line: lineNo, Character: start},
				End:   types.Position{Line: lineNo, Character: start + len(needle)},
			})
			offset = start + len(needle)
		}
	}
	return out
}

// PolicyBadge is the inline text for an image, e.g. "Failed Policies: (1/3)".
// It is empty when the report has no policy evaluations.
func PolicyBadge(report *types.Report) string {
	if report == nil || report.Result.PolicyEvaluations == nil {
		return ""
	}
	evals := report.Result.PolicyEvaluations
	return fmt.Sprintf("Failed Policies: (%d/%d)", types.FailedPolicies(evals), len(evals))
}

// LayerBadge is the inline text for a layer: one count per non-zero severity.
func LayerBadge(c types.SeverityCounts, noMoji bool) string {
	var parts []string
	for _, sev := range types.Severities {
		n := c.Count(sev)
		if n == 0 {
			continue
		}
		if noMoji {
			parts = append(parts, sev.Short()+":"+strconv.Itoa(n))
		} else {
			parts = append(parts, sev.Icon()+" "+strconv.Itoa(n))
		}
	}
	return strings.Join(parts, "  ")
}

// HighlightImage annotates every range where the scanned image appears in doc.
func HighlightImage(t *Tracker, report *types.Report, doc string, ranges []types.Range, opts renderer.Options) {
	hover := renderer.Summarize(report, opts)
	badge := PolicyBadge(report)

	markers := make([]Marker, 0, len(ranges))
	for _, r := range ranges {
		markers = append(markers, Marker{Range: r, After: badge, Hover: hover})
	}
	t.Add(doc, markers, NewDecorationType("image", imageStyle))
}

// HighlightLayers clears doc and annotates each Dockerfile instruction that
// produced a layer with vulnerabilities.
func HighlightLayers(t *Tracker, report *types.Report, instructions []parser.Instruction, doc string, opts renderer.Options) {
	t.Clear(doc)
	if report == nil {
		return
	}

	var markers []Marker
	for _, m := range correlate.Layers(instructions, report.Result.Layers) {
		if m.Layer.Vulns == nil {
			continue
		}
		markers = append(markers, Marker{
			Range: m.Instruction.Range,
			After: LayerBadge(*m.Layer.Vulns, opts.NoMoji),
			Hover: renderer.SummarizeLayer(m.Layer, report, opts),
		})
	}
	t.Add(doc, markers, NewDecorationType("layers", layerStyle))
}
