package highlight

import (
	"testing"

	"github.com/northcutted/dock-lens/pkg/parser"
	"github.com/northcutted/dock-lens/pkg/renderer"
	"github.com/northcutted/dock-lens/pkg/types"
)

type call struct {
	doc     string
	typ     *DecorationType
	markers []Marker
}

type fakeEditor struct {
	active string
	calls  []call
}

func (f *fakeEditor) ActiveDocument() string { return f.active }

func (f *fakeEditor) SetDecorations(doc string, typ *DecorationType, markers []Marker) {
	f.calls = append(f.calls, call{doc: doc, typ: typ, markers: markers})
}

func marker(line int) Marker {
	return Marker{Range: types.Range{Start: types.Position{Line: line}}}
}

func TestTracker_AddInactiveDocument(t *testing.T) {
	ed := &fakeEditor{active: "b"}
	tr := NewTracker(ed)

	tr.Add("a", []Marker{marker(1)}, NewDecorationType("x", Style{}))
	if len(ed.calls) != 0 {
		t.Errorf("expected nothing drawn for inactive document, got %d calls", len(ed.calls))
	}
	if got := len(tr.Markers("a")); got != 1 {
		t.Errorf("expected 1 recorded marker, got %d", got)
	}
}

func TestTracker_RestoreIsIdempotent(t *testing.T) {
	ed := &fakeEditor{active: "a"}
	tr := NewTracker(ed)
	t1 := NewDecorationType("one", Style{})
	t2 := NewDecorationType("two", Style{})
	tr.Add("a", []Marker{marker(1)}, t1)
	tr.Add("a", []Marker{marker(2), marker(3)}, t2)
	ed.calls = nil

	tr.Restore("a")
	first := len(ed.calls)
	tr.Restore("a")
	if first != 2 || len(ed.calls) != 4 {
		t.Fatalf("expected 2 draws per restore, got %d then %d", first, len(ed.calls)-first)
	}
	for i := 0; i < 2; i++ {
		if ed.calls[i].typ != ed.calls[i+2].typ || len(ed.calls[i].markers) != len(ed.calls[i+2].markers) {
			t.Errorf("restore %d drew different decorations", i)
		}
	}
	if got := len(tr.Markers("a")); got != 3 {
		t.Errorf("expected registry untouched by restore, got %d markers", got)
	}
}

func TestTracker_RestoreInactive(t *testing.T) {
	ed := &fakeEditor{active: "b"}
	tr := NewTracker(ed)
	tr.Add("a", []Marker{marker(1)}, NewDecorationType("x", Style{}))
	tr.Restore("a")
	if len(ed.calls) != 0 {
		t.Errorf("expected no draws for inactive document, got %d", len(ed.calls))
	}
}

func TestTracker_Clear(t *testing.T) {
	ed := &fakeEditor{active: "a"}
	tr := NewTracker(ed)
	typ := NewDecorationType("x", Style{})
	tr.Add("a", []Marker{marker(1)}, typ)
	tr.Add("b", []Marker{marker(1)}, typ)
	ed.calls = nil

	tr.Clear("a")
	if len(ed.calls) != 1 || ed.calls[0].typ != typ || len(ed.calls[0].markers) != 0 {
		t.Errorf("expected one erase call for the cleared type, got %+v", ed.calls)
	}
	if len(tr.Markers("a")) != 0 {
		t.Error("expected entries for cleared document to be gone")
	}
	if len(tr.Markers("b")) != 1 {
		t.Error("expected other documents to be untouched")
	}

	ed.calls = nil
	tr.Restore("a")
	if len(ed.calls) != 0 {
		t.Errorf("expected restore after clear to draw nothing, got %d", len(ed.calls))
	}
}

func TestNewDecorationType_UniqueIDs(t *testing.T) {
	a := NewDecorationType("x", Style{})
	b := NewDecorationType("x", Style{})
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
}

func TestFindAll(t *testing.T) {
	text := "services:\n  a:\n    image: nginx\n  b:\n    image: nginx # nginx\n"
	got := FindAll(text, "nginx")
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(got))
	}
	if got[0].Start.Line != 2 || got[0].Start.Character != 11 || got[0].End.Character != 16 {
		t.Errorf("unexpected first range: %+v", got[0])
	}
	if got[2].Start.Line != 4 || got[2].Start.Character != 19 {
		t.Errorf("unexpected third range: %+v", got[2])
	}
	if FindAll(text, "") != nil {
		t.Error("expected no matches for empty needle")
	}
	if len(FindAll("image: a.b", "a*b")) != 0 {
		t.Error("expected literal matching")
	}
}

func TestPolicyBadge(t *testing.T) {
	r := &types.Report{Result: types.Result{PolicyEvaluations: []types.Policy{
		{EvaluationResult: "failed"}, {EvaluationResult: "passed"}, {EvaluationResult: "passed"},
	}}}
	if got := PolicyBadge(r); got != "Failed Policies: (1/3)" {
		t.Errorf("expected 'Failed Policies: (1/3)', got %q", got)
	}
	if got := PolicyBadge(&types.Report{}); got != "" {
		t.Errorf("expected empty badge without evaluations, got %q", got)
	}
}

func TestLayerBadge(t *testing.T) {
	c := types.SeverityCounts{Critical: 1, Medium: 2}
	if got := LayerBadge(c, false); got != "🟣 1  🟠 2" {
		t.Errorf("unexpected badge %q", got)
	}
	if got := LayerBadge(c, true); got != "C:1  M:2" {
		t.Errorf("unexpected plain badge %q", got)
	}
}

func TestHighlightImage(t *testing.T) {
	ed := &fakeEditor{active: "compose.yaml"}
	tr := NewTracker(ed)
	r := &types.Report{Result: types.Result{
		Metadata:          types.Metadata{PullString: "nginx"},
		PolicyEvaluations: []types.Policy{{Name: "p", EvaluationResult: "failed"}},
	}}
	ranges := FindAll("image: nginx\nimage: nginx\n", "nginx")

	HighlightImage(tr, r, "compose.yaml", ranges, renderer.Options{})

	markers := tr.Markers("compose.yaml")
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(markers))
	}
	if markers[0].After != "Failed Policies: (1/1)" {
		t.Errorf("unexpected inline text %q", markers[0].After)
	}
	if markers[0].Hover.Title() != "Vulnerabilities for nginx" {
		t.Errorf("unexpected hover title %q", markers[0].Hover.Title())
	}
	if len(ed.calls) != 1 {
		t.Errorf("expected a single draw for the active document, got %d", len(ed.calls))
	}
}

func TestHighlightLayers(t *testing.T) {
	ed := &fakeEditor{active: "Dockerfile"}
	tr := NewTracker(ed)
	tr.Add("Dockerfile", []Marker{marker(0)}, NewDecorationType("stale", Style{}))

	instructions := []parser.Instruction{
		{Keyword: "FROM", Range: types.Range{Start: types.Position{Line: 0}}},
		{Keyword: "RUN", Range: types.Range{Start: types.Position{Line: 1}}},
		{Keyword: "COPY", Range: types.Range{Start: types.Position{Line: 2}}},
	}
	r := &types.Report{Result: types.Result{Layers: []types.Layer{
		{Digest: "base", Command: "ADD rootfs /"},
		{Digest: "run", Command: "RUN /bin/sh -c apk add curl", Vulns: &types.SeverityCounts{High: 2}},
		{Digest: "copy", Command: "COPY . /app"},
	}}}

	HighlightLayers(tr, r, instructions, "Dockerfile", renderer.Options{})

	markers := tr.Markers("Dockerfile")
	if len(markers) != 1 {
		t.Fatalf("expected stale markers cleared and one layer marker, got %d", len(markers))
	}
	if markers[0].Range.Start.Line != 1 || markers[0].After != "🔴 2" {
		t.Errorf("unexpected layer marker: %+v", markers[0])
	}
	if markers[0].Hover.Title() != "Vulnerabilities for Layer: RUN /bin/sh -c apk add curl" {
		t.Errorf("unexpected hover title %q", markers[0].Hover.Title())
	}
}
