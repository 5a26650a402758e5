package tree

import (
	"strings"

	"github.com/northcutted/dock-lens/pkg/types"
)

// Locator maps a package to where it was introduced in the manifest.
type Locator func(pkg types.Package) (SourceLink, bool)

// PackageNode is a package with its vulnerabilities as children.
type PackageNode struct {
	Package types.Package
	Source  *SourceLink
	vulns   []Node
}

func (n *PackageNode) Label() string       { return n.Package.Name + ":" + n.Package.Version }
func (n *PackageNode) Description() string { return n.Package.Type }
func (n *PackageNode) State() State        { return stateFor(len(n.vulns)) }
func (n *PackageNode) Children() []Node    { return n.vulns }

// VulnNode is a single vulnerability leaf.
type VulnNode struct {
	Vulnerability types.Vulnerability
	Package       string
	Source        *SourceLink
}

func (n *VulnNode) Label() string    { return n.Vulnerability.Name }
func (n *VulnNode) State() State     { return StateNone }
func (n *VulnNode) Children() []Node { return nil }

// Description lists the notable findings, e.g. "⦿ Exploitable  ⦿ Fix Available".
func (n *VulnNode) Description() string {
	var parts []string
	for _, f := range n.Findings() {
		parts = append(parts, "⦿ "+f)
	}
	return strings.Join(parts, "  ")
}

// Findings names the filter predicates this vulnerability satisfies.
func (n *VulnNode) Findings() []string {
	var out []string
	if n.Vulnerability.Exploitable {
		out = append(out, types.FilterExploitable)
	}
	if n.Vulnerability.HasFix() {
		out = append(out, types.FilterFixAvailable)
	}
	return out
}

// VulnTree is the package/vulnerability tree.
type VulnTree struct {
	base

	// FilterEmptyPackages drops packages without vulnerabilities on Load.
	FilterEmptyPackages bool

	packages []types.Package
	filtered []types.Package
	locate   Locator
}

// NewVulnTree returns an empty tree that hides packages without vulnerabilities.
func NewVulnTree() *VulnTree {
	return &VulnTree{FilterEmptyPackages: true}
}

// Load replaces the canonical package list and resets the filtered view to a
// copy of it.
func (t *VulnTree) Load(pkgs []types.Package) {
	sorted := types.SortPackages(pkgs)
	if t.FilterEmptyPackages {
		kept := sorted[:0:0]
		for _, p := range sorted {
			if len(p.Vulns) > 0 {
				kept = append(kept, p)
			}
		}
		sorted = kept
	}

	t.mu.Lock()
	t.packages = sorted
	t.mu.Unlock()
	t.apply()
}

// Update loads a scan report: backlink, source locator and packages.
func (t *VulnTree) Update(report *types.Report, locate Locator) {
	if report == nil {
		t.SetBacklink("")
		t.SetSource(locate)
		t.Load(nil)
		return
	}
	t.SetBacklink(report.Info.ResultURL)
	t.SetSource(locate)
	t.Load(report.Result.Packages)
}

// SetSource sets how packages are linked back to the manifest. It takes
// effect on the next Load or SetFilters.
func (t *VulnTree) SetSource(locate Locator) {
	t.mu.Lock()
	t.locate = locate
	t.mu.Unlock()
}

// SetFilters replaces the active filter set and recomputes the view. A
// vulnerability stays visible if it matches any active filter; packages
// left without vulnerabilities are dropped.
func (t *VulnTree) SetFilters(names []string) {
	t.mu.Lock()
	t.filters = dedupe(names)
	t.mu.Unlock()
	t.apply()
}

func (t *VulnTree) apply() {
	t.mu.Lock()
	filtered := types.ClonePackages(t.packages)
	if len(t.filters) > 0 {
		kept := filtered[:0:0]
		for _, p := range filtered {
			var vulns []types.Vulnerability
			for _, v := range p.Vulns {
				if types.PassesVulnFilters(v, t.filters) {
					vulns = append(vulns, v)
				}
			}
			if len(vulns) == 0 {
				continue
			}
			p.Vulns = vulns
			kept = append(kept, p)
		}
		filtered = types.SortPackages(kept)
	}
	t.filtered = filtered
	t.roots = buildPackageNodes(filtered, t.locate)
	t.mu.Unlock()

	t.notify()
}

func buildPackageNodes(pkgs []types.Package, locate Locator) []Node {
	nodes := make([]Node, 0, len(pkgs))
	for _, p := range pkgs {
		pn := &PackageNode{Package: p}
		if locate != nil {
			if link, ok := locate(p); ok {
				pn.Source = &link
			}
		}
		for _, v := range p.Vulns {
			pn.vulns = append(pn.vulns, &VulnNode{Vulnerability: v, Package: pn.Label(), Source: pn.Source})
		}
		nodes = append(nodes, pn)
	}
	return nodes
}

// Packages returns a copy of the canonical, sorted package list.
func (t *VulnTree) Packages() []types.Package {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.ClonePackages(t.packages)
}

// Filtered returns a copy of the package list currently shown.
func (t *VulnTree) Filtered() []types.Package {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.ClonePackages(t.filtered)
}
