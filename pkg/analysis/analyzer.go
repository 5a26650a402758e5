package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/northcutted/dock-lens/pkg/correlate"
	"github.com/northcutted/dock-lens/pkg/highlight"
	"github.com/northcutted/dock-lens/pkg/parser"
	"github.com/northcutted/dock-lens/pkg/renderer"
	"github.com/northcutted/dock-lens/pkg/runner"
	"github.com/northcutted/dock-lens/pkg/tree"
	"github.com/northcutted/dock-lens/pkg/types"
)

// ErrUnsupportedDocument is returned for files that are not a Dockerfile,
// Compose file or Kubernetes manifest.
var ErrUnsupportedDocument = errors.New("unsupported document")

// ImageScanner scans one image.
type ImageScanner interface {
	ScanImage(ctx context.Context, image string) (*types.Report, error)
}

// Builder builds and removes throwaway images for build-and-scan.
type Builder interface {
	IsAvailable(ctx context.Context) bool
	Build(ctx context.Context, opts runner.BuildOptions) error
	Exists(ctx context.Context, name string) bool
	Remove(ctx context.Context, name string) error
}

// Options configures a Session.
type Options struct {
	Render              renderer.Options
	FilterEmptyPackages bool
	// Concurrency bounds parallel scans of a multi-image manifest.
	Concurrency int
	// Builder enables build-and-scan of Dockerfiles when set.
	Builder Builder
	// OnStatus receives the severity status line after each tree update.
	OnStatus func(line string)
}

// Session owns the trees and decorations of one dock-lens run and applies
// scan results to them.
type Session struct {
	Scanner  ImageScanner
	Vulns    *tree.VulnTree
	Policies *tree.PolicyTree
	Tracker  *highlight.Tracker

	opts Options
}

// NewSession wires a scanner and an editor into fresh trees and a tracker.
func NewSession(scanner ImageScanner, editor highlight.Editor, opts Options) *Session {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	vulns := tree.NewVulnTree()
	vulns.FilterEmptyPackages = opts.FilterEmptyPackages
	return &Session{
		Scanner:  scanner,
		Vulns:    vulns,
		Policies: tree.NewPolicyTree(),
		Tracker:  highlight.NewTracker(editor),
		opts:     opts,
	}
}

// ScanOptions controls what a single image scan updates.
type ScanOptions struct {
	UpdateTrees bool
	// Document and Instructions let tree packages link back to the
	// Dockerfile line that introduced their layer.
	Document     *parser.Document
	Instructions []parser.Instruction
	// Range is the fallback link target for packages without a layer match.
	Range *types.Range
}

// ScanImage scans image and, when asked, reloads both trees from the report.
func (s *Session) ScanImage(ctx context.Context, image string, opts ScanOptions) (*types.Report, error) {
	report, err := s.Scanner.ScanImage(ctx, image)
	if err != nil {
		return nil, err
	}
	if opts.UpdateTrees {
		s.apply(report, opts)
	}
	return report, nil
}

func (s *Session) apply(report *types.Report, opts ScanOptions) {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(StatusLine(report))
	}
	s.Vulns.Update(report, locator(report, opts))
	s.Policies.Update(report)
}

func locator(report *types.Report, opts ScanOptions) tree.Locator {
	if opts.Document == nil {
		return nil
	}
	doc := opts.Document.ID()
	layers := report.Result.Layers
	return func(p types.Package) (tree.SourceLink, bool) {
		if p.LayerDigest != "" && len(opts.Instructions) > 0 {
			if r, ok := correlate.SourceRange(opts.Instructions, layers, p.LayerDigest); ok {
				return tree.SourceLink{Document: doc, Range: r}, true
			}
		}
		if opts.Range != nil {
			return tree.SourceLink{Document: doc, Range: *opts.Range}, true
		}
		return tree.SourceLink{}, false
	}
}

// DocumentOptions controls ScanDocument.
type DocumentOptions struct {
	// Build enables build-and-scan for Dockerfiles.
	Build bool
	// BuildArgs override ARG defaults of the Dockerfile.
	BuildArgs map[string]string
}

// ScanDocument dispatches on the document kind.
func (s *Session) ScanDocument(ctx context.Context, doc *parser.Document, opts DocumentOptions) error {
	switch doc.Kind {
	case parser.KindDockerfile:
		return s.ScanDockerfile(ctx, doc, opts)
	case parser.KindCompose:
		return s.ScanCompose(ctx, doc)
	case parser.KindKubernetes:
		return s.ScanKubernetes(ctx, doc)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedDocument, doc.Path)
}

// ScanDockerfile scans the base image of the final stage and, when enabled,
// builds the Dockerfile and annotates each instruction with its layer's
// vulnerabilities. The built image is removed afterwards.
func (s *Session) ScanDockerfile(ctx context.Context, doc *parser.Document, opts DocumentOptions) error {
	df, err := parser.ParseDockerfile(strings.NewReader(doc.Text))
	if err != nil {
		return err
	}
	s.Tracker.Clear(doc.ID())

	var errs []error
	if inst, image, ok := df.BaseImage(); ok {
		report, err := s.ScanImage(ctx, image, ScanOptions{UpdateTrees: true})
		if err != nil {
			slog.Warn("failed to scan base image", "image", image, "error", err)
			errs = append(errs, fmt.Errorf("failed to scan base image %s: %w", image, err))
		} else {
			highlight.HighlightImage(s.Tracker, report, doc.ID(), []types.Range{inst.Range}, s.opts.Render)
		}
	}

	if !opts.Build {
		return errors.Join(errs...)
	}
	if err := s.buildAndScan(ctx, doc, df, opts.BuildArgs); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) buildAndScan(ctx context.Context, doc *parser.Document, df *parser.Dockerfile, overrides map[string]string) error {
	b := s.opts.Builder
	if b == nil || !b.IsAvailable(ctx) {
		slog.Warn("docker is not available, cannot build and scan Dockerfile", "file", doc.Path)
		return nil
	}

	name := runner.NewBuildImageName()
	err := b.Build(ctx, runner.BuildOptions{
		Dockerfile: doc.Path,
		ContextDir: filepath.Dir(doc.Path),
		Tag:        name,
		BuildArgs:  buildArgs(df.Args(), overrides),
	})
	if err != nil {
		return fmt.Errorf("failed to build Dockerfile %s: %w", doc.Path, err)
	}
	if !b.Exists(ctx, name) {
		return fmt.Errorf("failed to build Dockerfile %s: image %s not found after build", doc.Path, name)
	}
	defer func() {
		if err := b.Remove(context.WithoutCancel(ctx), name); err != nil {
			slog.Warn("failed to delete built image", "image", name, "error", err)
		}
	}()

	report, err := s.ScanImage(ctx, name, ScanOptions{
		UpdateTrees:  true,
		Document:     doc,
		Instructions: df.Instructions,
	})
	if err != nil {
		return fmt.Errorf("failed to scan built image %s: %w", name, err)
	}
	if len(report.Result.Layers) == 0 {
		slog.Warn("no layers found in image", "image", name)
		return nil
	}
	highlight.HighlightLayers(s.Tracker, report, df.Instructions, doc.ID(), s.opts.Render)
	return nil
}

// buildArgs resolves declared ARGs to their override or default. Overrides
// for undeclared ARGs are passed through as given.
func buildArgs(declared []parser.BuildArg, overrides map[string]string) map[string]string {
	out := map[string]string{}
	for _, a := range declared {
		if v, ok := overrides[a.Name]; ok {
			out[a.Name] = v
		} else if a.HasDefault {
			out[a.Name] = a.Default
		}
	}
	for k, v := range overrides {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// ScanCompose scans every image referenced by a Compose file.
func (s *Session) ScanCompose(ctx context.Context, doc *parser.Document) error {
	refs, err := parser.ComposeImages([]byte(doc.Text))
	if err != nil {
		return err
	}
	return s.scanRefs(ctx, doc, refs)
}

// ScanKubernetes scans the container images of every workload in a manifest.
func (s *Session) ScanKubernetes(ctx context.Context, doc *parser.Document) error {
	refs, err := parser.KubernetesImages([]byte(doc.Text))
	if err != nil {
		return err
	}
	return s.scanRefs(ctx, doc, refs)
}

type scanResult struct {
	report *types.Report
	err    error
}

// scanRefs scans the distinct images of refs with bounded parallelism, then
// highlights them in document order. Trees are left untouched.
func (s *Session) scanRefs(ctx context.Context, doc *parser.Document, refs []parser.ImageRef) error {
	s.Tracker.Clear(doc.ID())

	images := parser.UniqueImages(refs)
	results := make([]scanResult, len(images))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, image := range images {
		g.Go(func() error {
			report, err := s.Scanner.ScanImage(ctx, image)
			results[i] = scanResult{report: report, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, image := range images {
		if err := results[i].err; err != nil {
			slog.Warn("failed to scan image", "image", image, "error", err)
			errs = append(errs, fmt.Errorf("failed to scan image %s: %w", image, err))
			continue
		}
		highlight.HighlightImage(s.Tracker, results[i].report, doc.ID(), parser.RangesFor(refs, image), s.opts.Render)
	}
	return errors.Join(errs...)
}
