package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/northcutted/dock-lens/pkg/highlight"
	"github.com/northcutted/dock-lens/pkg/parser"
	"github.com/northcutted/dock-lens/pkg/renderer"
	"github.com/northcutted/dock-lens/pkg/runner"
	"github.com/northcutted/dock-lens/pkg/tree"
	"github.com/northcutted/dock-lens/pkg/types"
)

type fakeScanner struct {
	mu      sync.Mutex
	reports map[string]*types.Report
	built   *types.Report
	calls   []string
}

func (f *fakeScanner) ScanImage(_ context.Context, image string) (*types.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, image)
	if strings.HasPrefix(image, runner.BuildImagePrefix) && f.built != nil {
		return f.built, nil
	}
	if r, ok := f.reports[image]; ok {
		return r, nil
	}
	return nil, errors.New("scan failed")
}

type fakeEditor struct{ active string }

func (f *fakeEditor) ActiveDocument() string { return f.active }
func (f *fakeEditor) SetDecorations(string, *highlight.DecorationType, []highlight.Marker) {
}

type fakeBuilder struct {
	available bool
	buildErr  error
	built     []runner.BuildOptions
	removed   []string
}

func (f *fakeBuilder) IsAvailable(context.Context) bool { return f.available }

func (f *fakeBuilder) Build(_ context.Context, opts runner.BuildOptions) error {
	if f.buildErr != nil {
		return f.buildErr
	}
	f.built = append(f.built, opts)
	return nil
}

func (f *fakeBuilder) Exists(_ context.Context, name string) bool {
	for _, b := range f.built {
		if b.Tag == name {
			return true
		}
	}
	return false
}

func (f *fakeBuilder) Remove(_ context.Context, name string) error {
	f.removed = append(f.removed, name)
	return nil
}

func report(image string, critical int) *types.Report {
	return &types.Report{
		Info: types.Info{ResultURL: "https://secure.example/" + image},
		Result: types.Result{
			Metadata:            types.Metadata{PullString: image},
			VulnTotalBySeverity: types.SeverityCounts{Critical: critical, High: 2},
			Packages: []types.Package{
				{Name: "openssl", Version: "3.0", Type: "os", LayerDigest: "sha256:run", Vulns: []types.Vulnerability{
					{Name: "CVE-1", Severity: types.SeverityValue{Value: types.SeverityCritical}},
				}},
				{Name: "zlib", Version: "1.2", Type: "os"},
			},
			PolicyEvaluations: []types.Policy{{Name: "baseline", EvaluationResult: types.EvaluationFailed}},
		},
	}
}

func doc(path string, kind parser.Kind, text string) *parser.Document {
	return &parser.Document{Path: path, Kind: kind, Text: text}
}

func TestStatusLine(t *testing.T) {
	if got := StatusLine(report("alpine", 1)); got != "C 1  H 2  M 0  L 0  N 0" {
		t.Errorf("unexpected status line %q", got)
	}
	if got := StatusLine(nil); got != "C 0  H 0  M 0  L 0  N 0" {
		t.Errorf("unexpected status line for nil report %q", got)
	}
}

func TestScanImage_UpdatesTrees(t *testing.T) {
	scanner := &fakeScanner{reports: map[string]*types.Report{"alpine:3.19": report("alpine:3.19", 1)}}
	var status string
	s := NewSession(scanner, &fakeEditor{}, Options{
		FilterEmptyPackages: true,
		OnStatus:            func(line string) { status = line },
	})

	if _, err := s.ScanImage(context.Background(), "alpine:3.19", ScanOptions{}); err != nil {
		t.Fatalf("ScanImage() error: %v", err)
	}
	if len(s.Vulns.Packages()) != 0 || status != "" {
		t.Fatal("expected trees untouched without UpdateTrees")
	}

	if _, err := s.ScanImage(context.Background(), "alpine:3.19", ScanOptions{UpdateTrees: true}); err != nil {
		t.Fatalf("ScanImage() error: %v", err)
	}
	if len(s.Vulns.Packages()) != 1 {
		t.Errorf("expected empty package filtered out, got %d packages", len(s.Vulns.Packages()))
	}
	if s.Vulns.Backlink() != "https://secure.example/alpine:3.19" {
		t.Errorf("unexpected backlink %q", s.Vulns.Backlink())
	}
	if len(s.Policies.Policies()) != 1 {
		t.Errorf("expected 1 policy, got %d", len(s.Policies.Policies()))
	}
	if status != "C 1  H 2  M 0  L 0  N 0" {
		t.Errorf("unexpected status %q", status)
	}

	if _, err := s.ScanImage(context.Background(), "missing", ScanOptions{UpdateTrees: true}); err == nil {
		t.Error("expected scan error")
	}
	if len(s.Vulns.Packages()) != 1 {
		t.Error("expected failed scan to leave trees alone")
	}
}

const composeFile = `services:
  web:
    image: nginx:1.25
  db:
    image: postgres:16
  cache:
    image: nginx:1.25
`

func TestScanCompose(t *testing.T) {
	scanner := &fakeScanner{reports: map[string]*types.Report{"nginx:1.25": report("nginx:1.25", 0)}}
	ed := &fakeEditor{active: "/src/compose.yaml"}
	s := NewSession(scanner, ed, Options{Concurrency: 2})

	err := s.ScanCompose(context.Background(), doc("/src/compose.yaml", parser.KindCompose, composeFile))
	if err == nil || !strings.Contains(err.Error(), "postgres:16") {
		t.Errorf("expected error naming postgres:16, got %v", err)
	}
	if len(scanner.calls) != 2 {
		t.Errorf("expected each distinct image scanned once, got %v", scanner.calls)
	}

	markers := s.Tracker.Markers("/src/compose.yaml")
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers for nginx, got %d", len(markers))
	}
	if markers[0].Range.Start.Line != 2 || markers[1].Range.Start.Line != 6 {
		t.Errorf("unexpected marker lines %d and %d", markers[0].Range.Start.Line, markers[1].Range.Start.Line)
	}
	if len(s.Vulns.Packages()) != 0 {
		t.Error("expected compose scans to leave trees untouched")
	}

	// A rescan replaces rather than accumulates decorations.
	_ = s.ScanCompose(context.Background(), doc("/src/compose.yaml", parser.KindCompose, composeFile))
	if got := len(s.Tracker.Markers("/src/compose.yaml")); got != 2 {
		t.Errorf("expected 2 markers after rescan, got %d", got)
	}
}

// pathScanner stands in for sysdig-cli-scanner on PATH and reports one
// critical vulnerability for whatever image it is given.
const pathScanner = `#!/bin/sh
out=""
image=""
while [ $# -gt 0 ]; do
  case "$1" in
    --json-scan-result) out="$2"; shift;;
    --apiurl|--dbpath|--cachepath) shift;;
    --*) ;;
    *) image="$1";;
  esac
  shift
done
printf '{"result":{"metadata":{"pullString":"%s"},"vulnTotalBySeverity":{"critical":1}}}' "$image" > "$out"
`

func TestScanCompose_ConcurrentScanner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	bin := t.TempDir()
	if err := os.WriteFile(filepath.Join(bin, runner.ScannerBinary), []byte(pathScanner), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("HOME", t.TempDir())

	compose := `services:
  web:
    image: nginx:1.25
  db:
    image: postgres:16
  cache:
    image: redis:7
`
	scanner := &runner.VMScanner{WorkDir: t.TempDir(), Endpoint: "https://secure", Token: "tok"}
	ed := &fakeEditor{active: "/src/compose.yaml"}
	s := NewSession(scanner, ed, Options{Concurrency: 3})

	if err := s.ScanCompose(context.Background(), doc("/src/compose.yaml", parser.KindCompose, compose)); err != nil {
		t.Fatalf("ScanCompose() error: %v", err)
	}
	markers := s.Tracker.Markers("/src/compose.yaml")
	if len(markers) != 3 {
		t.Fatalf("expected 3 markers, got %d", len(markers))
	}
	for i, line := range []int{2, 4, 6} {
		if markers[i].Range.Start.Line != line {
			t.Errorf("expected marker %d on line %d, got %d", i, line, markers[i].Range.Start.Line)
		}
	}
	if scanner.Binary != "" {
		t.Errorf("expected the shared scanner to stay unmodified, got Binary %q", scanner.Binary)
	}
}

func TestScanKubernetes(t *testing.T) {
	manifest := `apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  template:
    spec:
      containers:
        - name: web
          image: nginx:1.25
        - name: sidecar
          image: nginx:1.25
`
	scanner := &fakeScanner{reports: map[string]*types.Report{"nginx:1.25": report("nginx:1.25", 0)}}
	s := NewSession(scanner, &fakeEditor{}, Options{})

	if err := s.ScanKubernetes(context.Background(), doc("/k8s/deploy.yaml", parser.KindKubernetes, manifest)); err != nil {
		t.Fatalf("ScanKubernetes() error: %v", err)
	}
	if len(scanner.calls) != 1 {
		t.Errorf("expected deduplicated scans, got %v", scanner.calls)
	}
	if got := len(s.Tracker.Markers("/k8s/deploy.yaml")); got != 2 {
		t.Errorf("expected 2 markers, got %d", got)
	}
}

const dockerfile = `ARG BASE=alpine:3.19
FROM ${BASE}
RUN apk add curl
COPY . /app
`

func builtReport() *types.Report {
	r := report("built", 0)
	r.Result.Layers = []types.Layer{
		{Digest: "sha256:base", Command: "ADD file:rootfs in /"},
		{Digest: "sha256:run", Command: "RUN /bin/sh -c apk add curl", Vulns: &types.SeverityCounts{Critical: 1}},
		{Digest: "sha256:copy", Command: "COPY dir:abc in /app"},
	}
	return r
}

func TestScanDockerfile_BaseImageOnly(t *testing.T) {
	scanner := &fakeScanner{reports: map[string]*types.Report{"alpine:3.19": report("alpine:3.19", 1)}}
	s := NewSession(scanner, &fakeEditor{}, Options{})

	d := doc("/src/Dockerfile", parser.KindDockerfile, dockerfile)
	if err := s.ScanDockerfile(context.Background(), d, DocumentOptions{}); err != nil {
		t.Fatalf("ScanDockerfile() error: %v", err)
	}

	markers := s.Tracker.Markers(d.ID())
	if len(markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(markers))
	}
	if markers[0].Range.Start.Line != 1 {
		t.Errorf("expected marker on the FROM line, got line %d", markers[0].Range.Start.Line)
	}
	if markers[0].Hover.Title() != "Vulnerabilities for alpine:3.19" {
		t.Errorf("unexpected hover title %q", markers[0].Hover.Title())
	}
	if len(s.Vulns.Packages()) == 0 {
		t.Error("expected base image scan to update the trees")
	}
}

func TestScanDockerfile_BuildAndScan(t *testing.T) {
	scanner := &fakeScanner{
		reports: map[string]*types.Report{"alpine:3.19": report("alpine:3.19", 1)},
		built:   builtReport(),
	}
	builder := &fakeBuilder{available: true}
	s := NewSession(scanner, &fakeEditor{}, Options{
		Builder:             builder,
		FilterEmptyPackages: true,
		Render:              renderer.Options{NoMoji: true},
	})

	path := filepath.Join("/src", "Dockerfile")
	d := doc(path, parser.KindDockerfile, dockerfile)
	err := s.ScanDocument(context.Background(), d, DocumentOptions{Build: true, BuildArgs: map[string]string{"BASE": "alpine:edge"}})
	if err != nil {
		t.Fatalf("ScanDocument() error: %v", err)
	}

	if len(builder.built) != 1 {
		t.Fatalf("expected one build, got %d", len(builder.built))
	}
	opts := builder.built[0]
	if opts.ContextDir != "/src" || opts.Dockerfile != path {
		t.Errorf("unexpected build options %+v", opts)
	}
	if opts.BuildArgs["BASE"] != "alpine:edge" {
		t.Errorf("expected override for BASE, got %v", opts.BuildArgs)
	}
	if len(builder.removed) != 1 || builder.removed[0] != opts.Tag {
		t.Errorf("expected built image %s removed, got %v", opts.Tag, builder.removed)
	}

	// Layer highlighting replaces the base image marker.
	markers := s.Tracker.Markers(d.ID())
	if len(markers) != 1 {
		t.Fatalf("expected 1 layer marker, got %d", len(markers))
	}
	if markers[0].Range.Start.Line != 2 || markers[0].After != "C:1" {
		t.Errorf("unexpected layer marker at line %d with %q", markers[0].Range.Start.Line, markers[0].After)
	}

	// Packages link back to the instruction that introduced their layer.
	roots := s.Vulns.Expand(nil)
	if len(roots) != 1 {
		t.Fatalf("expected 1 package, got %d", len(roots))
	}
	pkg, ok := roots[0].(*tree.PackageNode)
	if !ok || pkg.Label() != "openssl:3.0" {
		t.Fatalf("unexpected root %v", roots[0])
	}
	if pkg.Source == nil || pkg.Source.Document != d.ID() || pkg.Source.Range.Start.Line != 2 {
		t.Errorf("expected link to the RUN line, got %+v", pkg.Source)
	}
}

func TestScanDockerfile_BuildFailures(t *testing.T) {
	scanner := &fakeScanner{reports: map[string]*types.Report{"alpine:3.19": report("alpine:3.19", 1)}}

	t.Run("docker unavailable", func(t *testing.T) {
		s := NewSession(scanner, &fakeEditor{}, Options{Builder: &fakeBuilder{}})
		if err := s.ScanDockerfile(context.Background(), doc("/src/Dockerfile", parser.KindDockerfile, dockerfile), DocumentOptions{Build: true}); err != nil {
			t.Errorf("expected a warning only, got %v", err)
		}
	})

	t.Run("build error", func(t *testing.T) {
		builder := &fakeBuilder{available: true, buildErr: errors.New("exit status 1")}
		s := NewSession(scanner, &fakeEditor{}, Options{Builder: builder})
		err := s.ScanDockerfile(context.Background(), doc("/src/Dockerfile", parser.KindDockerfile, dockerfile), DocumentOptions{Build: true})
		if err == nil || !strings.Contains(err.Error(), "failed to build") {
			t.Errorf("expected build error, got %v", err)
		}
		if len(builder.removed) != 0 {
			t.Error("expected nothing to remove after a failed build")
		}
	})
}

func TestScanDocument_Unsupported(t *testing.T) {
	s := NewSession(&fakeScanner{}, &fakeEditor{}, Options{})
	err := s.ScanDocument(context.Background(), doc("/src/notes.txt", parser.KindUnknown, "hello"), DocumentOptions{})
	if !errors.Is(err, ErrUnsupportedDocument) {
		t.Errorf("expected ErrUnsupportedDocument, got %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	declared := []parser.BuildArg{
		{Name: "BASE", Default: "alpine", HasDefault: true},
		{Name: "VERSION"},
		{Name: "PORT", Default: "8080", HasDefault: true},
	}
	got := buildArgs(declared, map[string]string{"PORT": "9090", "EXTRA": "x"})

	expected := map[string]string{"BASE": "alpine", "PORT": "9090", "EXTRA": "x"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for k, v := range expected {
		if got[k] != v {
			t.Errorf("expected %s=%s, got %s", k, v, got[k])
		}
	}
}
