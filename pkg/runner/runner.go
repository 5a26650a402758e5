package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/northcutted/dock-lens/pkg/installer"
)

// Timeouts for external commands.
const (
	TimeoutScan    = 10 * time.Minute
	TimeoutBuild   = 15 * time.Minute
	TimeoutInspect = 30 * time.Second
)

// ScannerBinary is the name of the scanner executable.
const ScannerBinary = installer.ScannerBinary

// lookupTool resolves the path to an external tool binary. It checks
// the system PATH first and falls back to the dock-lens install
// directory (~/.dock-lens/bin/).
var lookupTool = func(name string) (string, error) {
	path, _, err := installer.FindTool(name)
	return path, err
}

// resolveBinary returns configured when it exists, otherwise the result of
// lookupTool. Scanners call it per scan and never store the result, so one
// scanner can serve concurrent scans.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
	}
	path, err := lookupTool(ScannerBinary)
	if err != nil {
		return "", fmt.Errorf("%s not found, run 'dock-lens setup' to install it", ScannerBinary)
	}
	return path, nil
}

// ErrEmptyResult is returned when the scanner exits cleanly but writes no result.
var ErrEmptyResult = errors.New("scan output file is empty or does not exist")

// ExitError is a scanner exit code the caller cannot recover a result from.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("scanner exited with code %d: %s", e.Code, e.Output)
}

// runCommand executes a command and returns its stdout. On failure the
// error carries the captured stderr.
func runCommand(cmd *exec.Cmd) ([]byte, error) {
	slog.Debug("running command", "cmd", cmd.String())

	output, err := cmd.Output()
	if err != nil {
		var stderr []byte
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr = exitErr.Stderr
		}
		return nil, fmt.Errorf("command failed: %w\nStderr: %s", err, string(stderr))
	}

	slog.Debug("command output", "bytes", len(output), "output", string(output))
	return output, nil
}

// runScanner executes the scanner with stdout and stderr combined, the way
// it logs with --console-log. Exit codes up to maxOK are not errors.
func runScanner(cmd *exec.Cmd, maxOK int) ([]byte, error) {
	slog.Debug("running scanner", "cmd", cmd.String())

	output, err := cmd.CombinedOutput()
	slog.Debug("scanner output", "bytes", len(output), "output", string(output))
	if err == nil {
		return output, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code >= 0 && code <= maxOK {
			return output, nil
		}
		return output, &ExitError{Code: code, Output: string(output)}
	}
	return output, fmt.Errorf("failed to run scanner: %w", err)
}
