// Package config loads dock-lens settings and stores Secure credentials.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Settings mirrors the user-facing configuration keys.
type Settings struct {
	VulnerabilityManagement VulnerabilityManagement `json:"vulnerabilityManagement" yaml:"vulnerabilityManagement"`
	// CLIScannerSource overrides the scanner download URL.
	CLIScannerSource string `json:"cliScannerSource,omitempty" yaml:"cliScannerSource,omitempty"`
	ScanConcurrency  int    `json:"scanConcurrency,omitempty" yaml:"scanConcurrency,omitempty"`
	SkipTLSVerify    bool   `json:"skipTLSVerify,omitempty" yaml:"skipTLSVerify,omitempty"`
}

// VulnerabilityManagement holds image scan options.
type VulnerabilityManagement struct {
	DetailedReports                     bool     `json:"detailedReports" yaml:"detailedReports"`
	FilterPackagesWithNoVulnerabilities bool     `json:"filterPackagesWithNoVulnerabilities" yaml:"filterPackagesWithNoVulnerabilities"`
	UploadResults                       bool     `json:"uploadResults" yaml:"uploadResults"`
	AddPolicies                         []string `json:"addPolicies,omitempty" yaml:"addPolicies,omitempty"`
	ImageToScan                         string   `json:"imageToScan,omitempty" yaml:"imageToScan,omitempty"`
	StandaloneMode                      string   `json:"standaloneMode,omitempty" yaml:"standaloneMode,omitempty"`
}

var standaloneModes = map[string]bool{"Never": true, "Always": true, "When Disconnected": true}

// Default returns the settings used when no file is present.
func Default() Settings {
	return Settings{
		VulnerabilityManagement: VulnerabilityManagement{
			FilterPackagesWithNoVulnerabilities: true,
			StandaloneMode:                      "Never",
		},
		ScanConcurrency: 1,
	}
}

// Dir returns the dock-lens configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(base, "dock-lens"), nil
}

// DefaultPath returns settings.json under Dir.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.json"), nil
}

// Load reads settings from path. Keys missing from the file keep their
// defaults. A missing file yields the defaults when allowMissing is set.
func Load(path string, allowMissing bool) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		std, err := hujson.Standardize(data)
		if err != nil {
			return s, fmt.Errorf("failed to standardize jsonc: %w", err)
		}
		if err := json.Unmarshal(std, &s); err != nil {
			return s, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return s, s.Validate()
}

// Validate rejects values the scanner cannot use.
func (s *Settings) Validate() error {
	if s.ScanConcurrency < 1 {
		return fmt.Errorf("scanConcurrency must be at least 1, got %d", s.ScanConcurrency)
	}
	if !standaloneModes[s.VulnerabilityManagement.StandaloneMode] {
		return fmt.Errorf("invalid standaloneMode %q (expected Never, Always or When Disconnected)",
			s.VulnerabilityManagement.StandaloneMode)
	}
	return nil
}
