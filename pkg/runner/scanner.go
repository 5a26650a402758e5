package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/northcutted/dock-lens/pkg/metrics"
	"github.com/northcutted/dock-lens/pkg/types"
)

// StandaloneMode decides when the scanner runs without the backend.
type StandaloneMode string

const (
	StandaloneNever            StandaloneMode = "Never"
	StandaloneAlways           StandaloneMode = "Always"
	StandaloneWhenDisconnected StandaloneMode = "When Disconnected"
)

var (
	// ErrMissingCredentials is returned when no endpoint or token is configured.
	ErrMissingCredentials = errors.New("missing Sysdig Secure endpoint or API token, run 'dock-lens auth' first")
	// ErrNoImage is returned when there is nothing to scan.
	ErrNoImage = errors.New("no image to scan")
)

// ScanArgs are the command line options of an image scan.
type ScanArgs struct {
	Endpoint      string
	DBPath        string
	CachePath     string
	Policies      []string
	SkipUpload    bool
	SkipTLSVerify bool
	Standalone    bool
	OutputJSON    string
}

// Args builds the scanner argument list for image.
func (a ScanArgs) Args(image string) []string {
	args := []string{"--apiurl", a.Endpoint, "--dbpath", a.DBPath, "--cachepath", a.CachePath}
	for _, p := range a.Policies {
		args = append(args, "--policy="+p)
	}
	// Standalone mode already skips the upload.
	if a.SkipUpload && !a.Standalone {
		args = append(args, "--skipupload")
	}
	if a.SkipTLSVerify {
		args = append(args, "--skiptlsverify")
	}
	if a.Standalone {
		args = append(args, "--standalone")
	}
	return append(args, "--json-scan-result", a.OutputJSON, image, "--console-log")
}

// VMScanner runs image scans with sysdig-cli-scanner.
type VMScanner struct {
	Binary        string
	WorkDir       string
	Endpoint      string
	Token         string
	Policies      []string
	UploadResults bool
	SkipTLSVerify bool
	Standalone    StandaloneMode
	Metrics       *metrics.Recorder

	checkConnectivity func(ctx context.Context, endpoint string, skipTLSVerify bool) error
}

// Name returns the display name for this runner.
func (s *VMScanner) Name() string { return ScannerBinary }

// IsAvailable checks whether the scanner binary can be found.
func (s *VMScanner) IsAvailable() bool {
	_, err := resolveBinary(s.Binary)
	return err == nil
}

func (s *VMScanner) standalone(ctx context.Context) bool {
	switch s.Standalone {
	case StandaloneAlways:
		return true
	case StandaloneWhenDisconnected:
		check := s.checkConnectivity
		if check == nil {
			check = CheckConnectivity
		}
		if err := check(ctx, s.Endpoint, s.SkipTLSVerify); err != nil {
			slog.Info("cannot reach backend, running in standalone mode", "endpoint", s.Endpoint, "error", err)
			return true
		}
	}
	return false
}

// ScanImage scans image and parses the JSON result. Exit code 1 means a
// policy failed and still yields a report.
func (s *VMScanner) ScanImage(ctx context.Context, image string) (report *types.Report, err error) {
	started := time.Now()
	defer func() { s.Metrics.ObserveScan(metrics.KindImage, started, err) }()

	image = strings.TrimSpace(image)
	if image == "" {
		return nil, ErrNoImage
	}
	if s.Endpoint == "" || s.Token == "" {
		return nil, ErrMissingCredentials
	}
	bin, err := resolveBinary(s.Binary)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scans directory: %w", err)
	}
	scanDir, err := os.MkdirTemp(s.WorkDir, "scan-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scan directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(scanDir) }()

	args := ScanArgs{
		Endpoint:      s.Endpoint,
		DBPath:        filepath.Join(s.WorkDir, "main.db"),
		CachePath:     filepath.Join(s.WorkDir, "cache"),
		Policies:      s.Policies,
		SkipUpload:    !s.UploadResults,
		SkipTLSVerify: s.SkipTLSVerify,
		Standalone:    s.standalone(ctx),
		OutputJSON:    filepath.Join(scanDir, "vm_scan.json"),
	}

	runCtx, cancel := context.WithTimeout(ctx, TimeoutScan)
	defer cancel()
	cmd := exec.CommandContext(runCtx, bin, args.Args(image)...)
	cmd.Env = append(os.Environ(), "SECURE_API_TOKEN="+s.Token)

	slog.Info("scanning image", "image", image, "standalone", args.Standalone)
	if _, err := runScanner(cmd, 1); err != nil {
		return nil, fmt.Errorf("scan of %s failed: %w", image, err)
	}

	report, err = readReport(args.OutputJSON)
	if err != nil {
		return nil, err
	}
	s.Metrics.ObserveReport(report)
	return report, nil
}

func readReport(path string) (*types.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, ErrEmptyResult
	}
	var report types.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan result: %w", err)
	}
	return &report, nil
}
