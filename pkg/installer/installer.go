// Package installer locates and downloads the scanner binary.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

const (
	// ScannerVersion is the scanner release downloaded by default.
	ScannerVersion = "1.11.0"
	// ScannerBaseURL is where scanner releases are published.
	ScannerBaseURL = "https://download.sysdig.com/scanning/bin/sysdig-cli-scanner/"
	// ScannerBinary is the executable name.
	ScannerBinary = "sysdig-cli-scanner"

	// SourcePath and SourceLocal tell where FindTool found a binary.
	SourcePath  = "PATH"
	SourceLocal = "dock-lens"
)

// ErrUnsupportedPlatform is returned when no scanner build exists for the host.
var ErrUnsupportedPlatform = errors.New("sysdig-cli-scanner is not available for this platform")

var (
	supportedOS   = map[string]bool{"darwin": true, "linux": true}
	supportedArch = map[string]bool{"amd64": true, "arm64": true}
)

// InstallDir returns ~/.dock-lens/bin.
func InstallDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".dock-lens", "bin"), nil
}

// FindTool looks for name on the PATH, then in the install directory.
// It returns the binary path and where it was found.
func FindTool(name string) (string, string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, SourcePath, nil
	}
	dir, err := InstallDir()
	if err != nil {
		return "", "", err
	}
	path := filepath.Join(dir, name)
	if info, err := os.Stat(path); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
		return path, SourceLocal, nil
	}
	return "", "", fmt.Errorf("%s not found in PATH or %s", name, dir)
}

// ScannerURL returns source when set, otherwise the release URL for the
// current platform.
func ScannerURL(source string) (string, error) {
	return scannerURL(source, runtime.GOOS, runtime.GOARCH)
}

func scannerURL(source, goos, goarch string) (string, error) {
	if source != "" {
		return source, nil
	}
	if !supportedOS[goos] || !supportedArch[goarch] {
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	return ScannerBaseURL + ScannerVersion + "/" + goos + "/" + goarch + "/" + ScannerBinary, nil
}

// Download fetches url into dest and marks it executable. An existing
// dest is left alone unless force is set.
func Download(ctx context.Context, url, dest string, force bool) error {
	if !force {
		if _, err := os.Stat(dest); err == nil {
			slog.Info("binary already exists, no download needed", "path", dest)
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid download URL %q: %w", url, err)
	}
	slog.Info("downloading scanner", "url", url)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server responded with %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write binary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write binary: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return fmt.Errorf("failed to make binary executable: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to install binary: %w", err)
	}
	slog.Info("installed scanner", "path", dest)
	return nil
}
