// Shared test helpers for the cmd package, and tests for the root command
// and helpers.go.
//
// Globals mutated: every flag variable, stdout, newImageScanner,
// newIaCScanner, newBuilder.
// All tests use defer resetFlags()() for cleanup.
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/northcutted/dock-lens/pkg/analysis"
	"github.com/northcutted/dock-lens/pkg/runner"
	"github.com/northcutted/dock-lens/pkg/types"
)

// captureOutput runs f with stdout redirected to a buffer.
func captureOutput(f func()) string {
	old := stdout
	var buf bytes.Buffer
	stdout = &buf
	defer func() { stdout = old }()

	f()
	return buf.String()
}

// resetFlags restores every flag and seam to its default. Call it as
// defer resetFlags()() so state is reset both before and after a test.
func resetFlags() func() {
	reset := func() {
		configFile, verbose, noMoji, detailed, markdown = "", false, false, false, false
		outputFile, metricsAddr = "", ""
		vulnFilters, policyFilters = nil, nil
		imageSource = ""
		fileBuild, fileBuildArgs = false, nil
		watchBuild, watchBuildArgs = false, nil
		iacRecursive, iacThreshold = false, runner.ThresholdNever
		authEndpoint, authToken, authCheck = "", "", false
		setupCheck, setupDir, setupForce = false, "", false
	}
	scanner, iac, builder := newImageScanner, newIaCScanner, newBuilder
	version, commit, date := Version, Commit, Date

	reset()
	return func() {
		reset()
		newImageScanner, newIaCScanner, newBuilder = scanner, iac, builder
		Version, Commit, Date = version, commit, date
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}
}

// isolate points every user directory at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("SECURE_API_URL", "")
	t.Setenv("SECURE_API_TOKEN", "")
	return dir
}

type fakeScanner struct {
	mu      sync.Mutex
	reports map[string]*types.Report
	calls   []string
}

func (f *fakeScanner) ScanImage(_ context.Context, image string) (*types.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, image)
	if r, ok := f.reports[image]; ok {
		return r, nil
	}
	return nil, errors.New("scan failed")
}

// useScanner makes every session scan with fake.
func useScanner(fake *fakeScanner) {
	newImageScanner = func(*environment) analysis.ImageScanner { return fake }
}

func sampleReport(image string) *types.Report {
	return &types.Report{
		Info: types.Info{ResultURL: "https://secure.example/scan/" + image},
		Result: types.Result{
			Metadata:            types.Metadata{PullString: image},
			VulnTotalBySeverity: types.SeverityCounts{Critical: 1},
			Packages: []types.Package{{
				Name: "openssl", Version: "3.0.2", Type: "os",
				Vulns: []types.Vulnerability{{
					Name:           "CVE-2024-0001",
					Severity:       types.SeverityValue{Value: types.SeverityCritical},
					FixedInVersion: "3.0.3",
				}},
			}},
			PolicyEvaluations: []types.Policy{{
				Name:             "baseline",
				EvaluationResult: types.EvaluationFailed,
				Bundles: []types.RuleBundle{{
					Name: "bundle",
					Rules: []types.Rule{{
						Description:      "No critical vulnerabilities",
						EvaluationResult: types.EvaluationFailed,
						FailureType:      types.FailurePkgVuln,
					}},
				}},
			}},
		},
	}
}

func TestCheckToolStatus(t *testing.T) {
	isolate(t)
	t.Setenv("PATH", t.TempDir())

	status := checkToolStatus()
	if !strings.Contains(status, "Prerequisites:") {
		t.Errorf("expected 'Prerequisites:' header, got: %s", status)
	}
	if !strings.Contains(status, "[MISSING] sysdig-cli-scanner") {
		t.Errorf("expected missing scanner, got: %s", status)
	}
	if !strings.Contains(status, "[MISSING] docker") {
		t.Errorf("expected missing docker, got: %s", status)
	}
}

func TestParseBuildArgs(t *testing.T) {
	t.Setenv("FROM_ENV", "env-value")

	tests := []struct {
		name     string
		input    []string
		expected map[string]string
		wantErr  bool
	}{
		{"key value", []string{"VERSION=1.2"}, map[string]string{"VERSION": "1.2"}, false},
		{"value with equals", []string{"OPTS=a=b"}, map[string]string{"OPTS": "a=b"}, false},
		{"empty value", []string{"EMPTY="}, map[string]string{"EMPTY": ""}, false},
		{"from environment", []string{"FROM_ENV"}, map[string]string{"FROM_ENV": "env-value"}, false},
		{"unset environment", []string{"NOT_SET_ANYWHERE"}, map[string]string{}, false},
		{"missing key", []string{"=x"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBuildArgs(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseBuildArgs() error: %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for k, v := range tt.expected {
				if got[k] != v {
					t.Errorf("expected %s=%q, got %q", k, v, got[k])
				}
			}
		})
	}
}

func TestCheckFilters(t *testing.T) {
	got := checkFilters([]string{"Critical", " Fix Available ", "Bogus", ""}, types.VulnFilters)
	if len(got) != 2 || got[0] != "Critical" || got[1] != "Fix Available" {
		t.Errorf("expected [Critical Fix Available], got %v", got)
	}
}

func TestServeMetrics_Disabled(t *testing.T) {
	defer resetFlags()()

	stop, err := serveMetrics(&environment{})
	if err != nil {
		t.Fatalf("serveMetrics() error: %v", err)
	}
	stop()
}

func TestLoadEnvironment(t *testing.T) {
	defer resetFlags()()
	dir := isolate(t)
	t.Setenv("SECURE_API_URL", "https://secure.example")
	t.Setenv("SECURE_API_TOKEN", "'token'")

	cfg := filepath.Join(dir, "settings.yaml")
	writeTestFile(t, cfg, "vulnerabilityManagement:\n  detailedReports: true\nscanConcurrency: 3\n")
	configFile = cfg

	env, err := loadEnvironment()
	if err != nil {
		t.Fatalf("loadEnvironment() error: %v", err)
	}
	if env.creds.Endpoint != "https://secure.example" || env.creds.Token != "token" {
		t.Errorf("expected credentials from the environment, got %+v", env.creds)
	}
	if env.settings.ScanConcurrency != 3 {
		t.Errorf("expected concurrency 3, got %d", env.settings.ScanConcurrency)
	}
	if !env.renderOptions().Detailed {
		t.Error("expected detailed reports from settings")
	}
	if !strings.HasPrefix(env.workDir, filepath.Join(dir, "cache")) {
		t.Errorf("expected work dir under the cache dir, got %s", env.workDir)
	}
}

func TestLoadEnvironment_BadConfig(t *testing.T) {
	defer resetFlags()()
	isolate(t)

	configFile = filepath.Join(t.TempDir(), "missing.json")
	if _, err := loadEnvironment(); err == nil {
		t.Error("expected error for an explicit config file that does not exist")
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
