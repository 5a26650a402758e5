package console

import (
	"fmt"
	"path/filepath"
	"strings"

	lgtree "github.com/charmbracelet/lipgloss/tree"

	"github.com/northcutted/dock-lens/pkg/tree"
	"github.com/northcutted/dock-lens/pkg/types"
)

// Expander is a tree view model.
type Expander interface {
	Expand(n tree.Node) []tree.Node
	Filters() []string
	Backlink() string
}

// RenderTree draws a view model. Nodes are fully expanded.
func RenderTree(title string, view Expander) string {
	root := title
	if f := view.Filters(); len(f) > 0 {
		root += styleSubtle.Render(" (filters: " + strings.Join(f, ", ") + ")")
	}
	t := lgtree.Root(styleTitle.Render(root)).
		Enumerator(lgtree.RoundedEnumerator).
		EnumeratorStyle(styleSubtle)

	roots := view.Expand(nil)
	if len(roots) == 0 {
		t.Child(styleSubtle.Render("No results"))
	}
	for _, n := range roots {
		t.Child(build(view, n))
	}

	out := t.String()
	if link := view.Backlink(); link != "" {
		out += "\n" + styleSubtle.Render("Open in Sysdig Secure: ") + styleLink.Render(link)
	}
	return out + "\n"
}

func build(view Expander, n tree.Node) any {
	label := nodeLabel(n)
	children := view.Expand(n)
	if len(children) == 0 {
		return label
	}
	sub := lgtree.Root(label)
	for _, c := range children {
		sub.Child(build(view, c))
	}
	return sub
}

func nodeLabel(n tree.Node) string {
	label := n.Label()
	switch v := n.(type) {
	case *tree.PolicyNode:
		label = mark(v.Policy.Passed()) + " " + label
	case *tree.BundleNode:
		label = mark(types.ScoreRuleBundle(v.Bundle) == 1) + " " + label
	case *tree.RuleNode:
		label = mark(v.Rule.Passed()) + " " + label
	case *tree.VulnNode:
		label = v.Vulnerability.Severity.Value.Icon() + " " + label
	}
	if d := n.Description(); d != "" {
		label += "  " + styleSubtle.Render(d)
	}
	if src := source(n); src != "" {
		label += "  " + styleSubtle.Render(src)
	}
	return label
}

func source(n tree.Node) string {
	var link *tree.SourceLink
	switch v := n.(type) {
	case *tree.PackageNode:
		link = v.Source
	case *tree.VulnNode:
		link = v.Source
	}
	if link == nil {
		return ""
	}
	return fmt.Sprintf("(%s:%d)", filepath.Base(link.Document), link.Range.Start.Line+1)
}

func mark(passed bool) string {
	if passed {
		return styleLink.UnsetUnderline().Render("✓")
	}
	return styleError.Render("✗")
}
