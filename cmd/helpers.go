package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/northcutted/dock-lens/pkg/analysis"
	"github.com/northcutted/dock-lens/pkg/config"
	"github.com/northcutted/dock-lens/pkg/console"
	"github.com/northcutted/dock-lens/pkg/installer"
	"github.com/northcutted/dock-lens/pkg/metrics"
	"github.com/northcutted/dock-lens/pkg/parser"
	"github.com/northcutted/dock-lens/pkg/renderer"
	"github.com/northcutted/dock-lens/pkg/runner"
	"github.com/northcutted/dock-lens/pkg/types"
)

// checkToolStatus returns a string indicating the status of required tools.
func checkToolStatus() string {
	var status strings.Builder
	status.WriteString("\nPrerequisites:\n")

	if path, source, err := installer.FindTool(installer.ScannerBinary); err == nil {
		fmt.Fprintf(&status, "  [OK] %s (%s: %s)\n", installer.ScannerBinary, source, path)
	} else {
		fmt.Fprintf(&status, "  [MISSING] %s (run 'dock-lens setup' to install)\n", installer.ScannerBinary)
	}

	if _, err := exec.LookPath("docker"); err == nil {
		status.WriteString("  [OK] docker\n")
	} else {
		status.WriteString("  [MISSING] docker (required for build-and-scan)\n")
	}
	return status.String()
}

// environment is everything a scanning command needs from settings,
// credentials and flags.
type environment struct {
	settings config.Settings
	creds    config.Credentials
	metrics  *metrics.Recorder
	workDir  string
}

// loadSettings reads --config, or the default settings file when present.
func loadSettings() (config.Settings, error) {
	path, allowMissing := configFile, false
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.Settings{}, err
		}
		path, allowMissing = p, true
	}
	return config.Load(path, allowMissing)
}

func loadEnvironment() (*environment, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	files, err := config.NewFileStore()
	if err != nil {
		return nil, err
	}
	creds, err := (&config.EnvStore{Base: files}).Load()
	if err != nil {
		return nil, err
	}

	cache, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}

	return &environment{
		settings: settings,
		creds:    creds,
		metrics:  metrics.New(),
		workDir:  filepath.Join(cache, "dock-lens", "scans"),
	}, nil
}

func (e *environment) renderOptions() renderer.Options {
	return renderer.Options{
		Detailed: detailed || e.settings.VulnerabilityManagement.DetailedReports,
		NoMoji:   noMoji,
	}
}

// iacScanner is the part of runner.IaCScanner the iac command uses.
type iacScanner interface {
	Scan(ctx context.Context, path string) (map[string][]runner.Diagnostic, error)
}

// Scanner constructors are variables so tests can substitute fakes.
var (
	newImageScanner = func(e *environment) analysis.ImageScanner {
		vm := e.settings.VulnerabilityManagement
		return &runner.VMScanner{
			WorkDir:       e.workDir,
			Endpoint:      e.creds.Endpoint,
			Token:         e.creds.Token,
			Policies:      vm.AddPolicies,
			UploadResults: vm.UploadResults,
			SkipTLSVerify: e.settings.SkipTLSVerify,
			Standalone:    runner.StandaloneMode(vm.StandaloneMode),
			Metrics:       e.metrics,
		}
	}
	newIaCScanner = func(e *environment, recursive bool, threshold string) iacScanner {
		return &runner.IaCScanner{
			WorkDir:           e.workDir,
			Endpoint:          e.creds.Endpoint,
			Token:             e.creds.Token,
			SkipTLSVerify:     e.settings.SkipTLSVerify,
			Recursive:         recursive,
			SeverityThreshold: threshold,
			Metrics:           e.metrics,
		}
	}
	newBuilder = func(e *environment) analysis.Builder {
		return runner.NewDockerBuilder(e.metrics)
	}
)

// newSession wires a scanner, a terminal editor and the trees together.
func newSession(e *environment, editor *console.Editor, build bool) *analysis.Session {
	opts := analysis.Options{
		Render:              e.renderOptions(),
		FilterEmptyPackages: e.settings.VulnerabilityManagement.FilterPackagesWithNoVulnerabilities,
		Concurrency:         e.settings.ScanConcurrency,
		OnStatus: func(line string) {
			slog.Info("scan finished", "status", line)
		},
	}
	if build {
		opts.Builder = newBuilder(e)
	}
	s := analysis.NewSession(newImageScanner(e), editor, opts)
	s.Vulns.SetFilters(checkFilters(vulnFilters, types.VulnFilters))
	s.Policies.SetFilters(checkFilters(policyFilters, types.RuleFilters))
	return s
}

// checkFilters drops names the trees do not know, with a warning.
func checkFilters(names, known []string) []string {
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !slices.Contains(known, n) {
			slog.Warn("ignoring unknown filter", "filter", n, "known", strings.Join(known, ", "))
			continue
		}
		out = append(out, n)
	}
	return out
}

// printTrees writes the active document with its annotations when one is
// open, then both trees when withTrees is set.
func printTrees(s *analysis.Session, editor *console.Editor, withTrees bool) error {
	if editor.ActiveDocument() != "" {
		if err := editor.Flush(stdout, true); err != nil {
			return fmt.Errorf("failed to write annotated document: %w", err)
		}
		if withTrees {
			fmt.Fprintln(stdout)
		}
	}
	if !withTrees {
		return nil
	}
	fmt.Fprint(stdout, console.RenderTree("Vulnerabilities", s.Vulns))
	fmt.Fprintln(stdout)
	fmt.Fprint(stdout, console.RenderTree("Policies", s.Policies))
	return nil
}

// showsTrees reports whether scanning doc loads the trees. Compose and
// Kubernetes scans only annotate the document.
func showsTrees(doc *parser.Document) bool {
	return doc.Kind == parser.KindDockerfile
}

// serveMetrics starts the Prometheus endpoint when --metrics-addr is set.
// The returned function shuts it down.
func serveMetrics(e *environment) (func(), error) {
	if metricsAddr == "" {
		return func() {}, nil
	}
	ln, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", metricsAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// parseBuildArgs turns KEY=VALUE pairs into a map. A bare KEY takes its
// value from the environment, as docker build does.
func parseBuildArgs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid build arg %q, expected KEY=VALUE", p)
		}
		if !ok {
			v, set := os.LookupEnv(key)
			if !set {
				continue
			}
			value = v
		}
		out[key] = value
	}
	return out, nil
}
