package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/northcutted/dock-lens/pkg/highlight"
	"github.com/northcutted/dock-lens/pkg/parser"
)

type layer struct {
	typ     *highlight.DecorationType
	markers []highlight.Marker
}

type document struct {
	lines  []string
	layers []layer
}

// Editor implements highlight.Editor for a terminal. Decorations are kept
// per document and drawn when the document is rendered.
type Editor struct {
	mu     sync.Mutex
	active string
	docs   map[string]*document
}

// NewEditor returns an editor with no open documents.
func NewEditor() *Editor {
	return &Editor{docs: make(map[string]*document)}
}

// Open loads doc and makes it the active document.
func (e *Editor) Open(doc *parser.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.docs[doc.ID()]
	if !ok {
		d = &document{}
		e.docs[doc.ID()] = d
	}
	d.lines = doc.Lines()
	e.active = doc.ID()
}

// Focus switches the active document without reloading it.
func (e *Editor) Focus(id string) {
	e.mu.Lock()
	e.active = id
	e.mu.Unlock()
}

// ActiveDocument returns the id of the focused document.
func (e *Editor) ActiveDocument() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// SetDecorations replaces the markers drawn for typ. An empty slice
// removes the type.
func (e *Editor) SetDecorations(doc string, typ *highlight.DecorationType, markers []highlight.Marker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.docs[doc]
	if !ok {
		d = &document{}
		e.docs[doc] = d
	}

	for i, l := range d.layers {
		if l.typ.ID != typ.ID {
			continue
		}
		if len(markers) == 0 {
			d.layers = append(d.layers[:i], d.layers[i+1:]...)
		} else {
			d.layers[i].markers = markers
		}
		return
	}
	if len(markers) > 0 {
		d.layers = append(d.layers, layer{typ: typ, markers: markers})
	}
}

type annotation struct {
	text  string
	style lipgloss.Style
}

// Render draws the document with line numbers and the inline text of each
// decoration after its line. When hovers is set, the summaries of every
// marker follow the source, in line order, once per distinct summary.
func (e *Editor) Render(id string, hovers bool) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.docs[id]
	if !ok {
		return ""
	}

	byLine := map[int][]annotation{}
	gutter := map[int]lipgloss.Style{}
	type hover struct {
		line int
		text string
	}
	var hoverList []hover
	seen := map[string]bool{}

	for _, l := range d.layers {
		style := lipgloss.NewStyle().Foreground(colorFor(l.typ.Style.AfterColor))
		ruler := lipgloss.NewStyle().Foreground(colorFor(l.typ.Style.RulerColor))
		for _, m := range l.markers {
			line := m.Range.End.Line
			gutter[m.Range.Start.Line] = ruler
			if m.After != "" {
				byLine[line] = append(byLine[line], annotation{text: m.After, style: style})
			}
			if !hovers || m.Hover.Empty() {
				continue
			}
			md, err := m.Hover.Markdown()
			if err != nil || seen[md] {
				continue
			}
			seen[md] = true
			hoverList = append(hoverList, hover{line: m.Range.Start.Line, text: md})
		}
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render(id))
	b.WriteString("\n")
	width := len(fmt.Sprint(len(d.lines)))
	for i, line := range d.lines {
		if i == len(d.lines)-1 && line == "" {
			break
		}
		mark := " "
		if st, ok := gutter[i]; ok {
			mark = st.Render("▌")
		}
		fmt.Fprintf(&b, "%s %s %s", styleSubtle.Render(fmt.Sprintf("%*d", width, i+1)), mark, line)
		for _, a := range byLine[i] {
			b.WriteString("  ")
			b.WriteString(a.style.Render(a.text))
		}
		b.WriteString("\n")
	}

	sort.SliceStable(hoverList, func(i, j int) bool { return hoverList[i].line < hoverList[j].line })
	for _, h := range hoverList {
		fmt.Fprintf(&b, "\n%s\n%s", styleSubtle.Render(fmt.Sprintf("── line %d ──", h.line+1)), h.text)
	}
	return b.String()
}

// Flush writes the active document to w.
func (e *Editor) Flush(w io.Writer, hovers bool) error {
	_, err := io.WriteString(w, e.Render(e.ActiveDocument(), hovers))
	return err
}
