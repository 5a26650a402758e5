package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/northcutted/dock-lens/pkg/metrics"
)

// Severity thresholds accepted by --severity-threshold.
const (
	ThresholdNever  = "never"
	ThresholdLow    = "low"
	ThresholdMedium = "medium"
	ThresholdHigh   = "high"
)

// DiagnosticLevel is how serious an IaC finding is.
type DiagnosticLevel int

const (
	LevelInfo DiagnosticLevel = iota
	LevelWarning
	LevelError
)

func (l DiagnosticLevel) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	}
	return "info"
}

// Diagnostic is one IaC finding against one resource of a file.
type Diagnostic struct {
	Level   DiagnosticLevel
	Message string
}

// IaCScanner runs infrastructure-as-code scans with sysdig-cli-scanner.
type IaCScanner struct {
	Binary            string
	WorkDir           string
	Endpoint          string
	Token             string
	SkipTLSVerify     bool
	Recursive         bool
	SeverityThreshold string
	Metrics           *metrics.Recorder
}

// Name returns the display name for this runner.
func (s *IaCScanner) Name() string { return ScannerBinary + " --iac" }

// IsAvailable checks whether the scanner binary can be found.
func (s *IaCScanner) IsAvailable() bool {
	_, err := resolveBinary(s.Binary)
	return err == nil
}

// Args builds the scanner argument list for an IaC scan of path.
func (s *IaCScanner) Args(path, outputJSON string) []string {
	args := []string{"--iac", "--apiurl", s.Endpoint}
	if s.Recursive {
		args = append(args, "--recursive")
	}
	if s.SkipTLSVerify {
		args = append(args, "--skiptlsverify")
	}
	threshold := s.SeverityThreshold
	if threshold == "" {
		threshold = ThresholdNever
	}
	return append(args, "--severity-threshold", threshold, "--output-json", outputJSON, path)
}

// Scan scans path and returns the findings grouped by source file.
func (s *IaCScanner) Scan(ctx context.Context, path string) (diags map[string][]Diagnostic, err error) {
	started := time.Now()
	defer func() { s.Metrics.ObserveScan(metrics.KindIaC, started, err) }()

	if s.Endpoint == "" || s.Token == "" {
		return nil, ErrMissingCredentials
	}
	bin, err := resolveBinary(s.Binary)
	if err != nil {
		return nil, err
	}
	// cmd.Dir is set from the target below.
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scans directory: %w", err)
	}
	out, err := os.CreateTemp(s.WorkDir, "iac_scan-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	_ = out.Close()
	defer func() { _ = os.Remove(out.Name()) }()

	runCtx, cancel := context.WithTimeout(ctx, TimeoutScan)
	defer cancel()
	cmd := exec.CommandContext(runCtx, bin, s.Args(target, out.Name())...)
	cmd.Env = append(os.Environ(), "SECURE_API_TOKEN="+s.Token)
	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		cmd.Dir = target
	} else {
		cmd.Dir = filepath.Dir(target)
	}

	slog.Info("scanning IaC", "path", path, "recursive", s.Recursive)
	if _, err := runScanner(cmd, 1); err != nil {
		return nil, fmt.Errorf("IaC scan of %s failed: %w", path, err)
	}

	data, err := os.ReadFile(out.Name())
	if err != nil || len(data) == 0 {
		return nil, ErrEmptyResult
	}
	return parseIaCOutput(data)
}

// parseIaCOutput turns the scanner's findings into per-file diagnostics.
func parseIaCOutput(data []byte) (map[string][]Diagnostic, error) {
	var scan struct {
		Result struct {
			Findings []struct {
				Name      string `json:"name"`
				Severity  string `json:"severity"`
				Resources []struct {
					Source   string `json:"source"`
					Location string `json:"location"`
					Type     string `json:"type"`
					Name     string `json:"name"`
				} `json:"resources"`
			} `json:"findings"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &scan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal IaC scan output: %w", err)
	}

	levels := map[string]DiagnosticLevel{
		"high":   LevelError,
		"medium": LevelWarning,
		"low":    LevelInfo,
	}

	diags := make(map[string][]Diagnostic)
	for _, f := range scan.Result.Findings {
		level := levels[strings.ToLower(f.Severity)]
		for _, r := range f.Resources {
			diags[r.Source] = append(diags[r.Source], Diagnostic{
				Level:   level,
				Message: fmt.Sprintf("%s: %s (%s: %s)", f.Name, r.Location, r.Type, r.Name),
			})
		}
	}
	for _, list := range diags {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Level > list[j].Level })
	}
	return diags, nil
}
