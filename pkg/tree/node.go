// Package tree holds the view models behind the vulnerability and policy
// trees. Children are built when a list is loaded or filtered, so expanding
// a node is a lookup.
package tree

import (
	"slices"
	"sync"

	"github.com/northcutted/dock-lens/pkg/types"
)

// State is how a node can be shown.
type State int

const (
	StateNone State = iota
	StateCollapsed
	StateExpanded
)

// Node is an item in a tree.
type Node interface {
	Label() string
	Description() string
	State() State
	Children() []Node
}

// SourceLink points at the manifest text a node came from.
type SourceLink struct {
	Document string
	Range    types.Range
}

func stateFor(n int) State {
	if n > 0 {
		return StateCollapsed
	}
	return StateNone
}

// base is the state shared by both trees: roots, filters, backlink and
// change observers.
type base struct {
	mu        sync.Mutex
	roots     []Node
	filters   []string
	backlink  string
	observers []func()
}

// Expand returns the children of n, or the roots when n is nil.
func (b *base) Expand(n Node) []Node {
	if n == nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		return slices.Clone(b.roots)
	}
	return n.Children()
}

// IsFilterActive reports whether the named filter is in the active set.
func (b *base) IsFilterActive(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Contains(b.filters, name)
}

// Filters returns the active filter names.
func (b *base) Filters() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.filters)
}

// Backlink is the URL of the full result in the backend, if known.
func (b *base) Backlink() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backlink
}

// SetBacklink replaces the backlink.
func (b *base) SetBacklink(url string) {
	b.mu.Lock()
	b.backlink = url
	b.mu.Unlock()
}

// OnChange registers fn to run after every reload or filter change.
func (b *base) OnChange(fn func()) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

func (b *base) notify() {
	b.mu.Lock()
	observers := slices.Clone(b.observers)
	b.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func dedupe(names []string) []string {
	var out []string
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
