package highlight

import (
	"sync"

	"github.com/google/uuid"

	"github.com/northcutted/dock-lens/pkg/renderer"
	"github.com/northcutted/dock-lens/pkg/types"
)

// Style is how an editor should draw a decoration type.
type Style struct {
	Border     string
	AfterColor string
	RulerColor string
}

// DecorationType groups markers that are drawn and cleared together.
type DecorationType struct {
	ID    string
	Name  string
	Style Style
}

// NewDecorationType returns a decoration type with a fresh unique id.
func NewDecorationType(name string, style Style) *DecorationType {
	return &DecorationType{ID: uuid.NewString(), Name: name, Style: style}
}

// Marker is one annotated range.
type Marker struct {
	Range types.Range
	// After is short text drawn after the range.
	After string
	// Hover is the full summary shown on demand.
	Hover renderer.Summary
}

// Editor draws decorations. Passing an empty marker slice erases a type.
type Editor interface {
	ActiveDocument() string
	SetDecorations(doc string, typ *DecorationType, markers []Marker)
}

type entry struct {
	typ     *DecorationType
	markers []Marker
}

// Tracker remembers the decorations of every document so they can be
// restored when the document becomes active again.
type Tracker struct {
	editor Editor

	mu      sync.Mutex
	entries map[string][]entry
}

// NewTracker creates a tracker that draws through editor.
func NewTracker(editor Editor) *Tracker {
	return &Tracker{editor: editor, entries: make(map[string][]entry)}
}

// Add records markers for doc and draws them if doc is active.
func (t *Tracker) Add(doc string, markers []Marker, typ *DecorationType) {
	t.mu.Lock()
	t.entries[doc] = append(t.entries[doc], entry{typ: typ, markers: markers})
	t.mu.Unlock()

	if t.editor.ActiveDocument() != doc {
		return
	}
	t.editor.SetDecorations(doc, typ, markers)
}

// Restore redraws every recorded entry of doc if it is active.
func (t *Tracker) Restore(doc string) {
	if t.editor.ActiveDocument() != doc {
		return
	}
	t.mu.Lock()
	entries := append([]entry(nil), t.entries[doc]...)
	t.mu.Unlock()

	for _, e := range entries {
		t.editor.SetDecorations(doc, e.typ, e.markers)
	}
}

// Clear forgets the entries of doc and erases them if doc is active.
func (t *Tracker) Clear(doc string) {
	t.mu.Lock()
	entries := t.entries[doc]
	delete(t.entries, doc)
	t.mu.Unlock()

	if t.editor.ActiveDocument() != doc {
		return
	}
	for _, e := range entries {
		t.editor.SetDecorations(doc, e.typ, nil)
	}
}

// Markers returns every marker recorded for doc in insertion order.
func (t *Tracker) Markers(doc string) []Marker {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Marker
	for _, e := range t.entries[doc] {
		out = append(out, e.markers...)
	}
	return out
}
