// Test file for the image command (runImage, writeSummary).
//
// Globals mutated: imageSource, markdown, outputFile, vulnFilters, configFile,
// newImageScanner, stdout (via captureOutput).
// All tests use defer resetFlags()() for cleanup.
package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/northcutted/dock-lens/pkg/runner"
	"github.com/northcutted/dock-lens/pkg/types"
)

func TestImageCommand(t *testing.T) {
	defer resetFlags()()
	isolate(t)

	fake := &fakeScanner{reports: map[string]*types.Report{"nginx:1.25": sampleReport("nginx:1.25")}}
	useScanner(fake)

	rootCmd.SetArgs([]string{"image", "nginx:1.25"})
	output := captureOutput(func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("image command failed: %v", err)
		}
	})

	for _, want := range []string{
		"Vulnerabilities for nginx:1.25",
		"openssl:3.0.2",
		"CVE-2024-0001",
		"baseline",
		"https://secure.example/scan/nginx:1.25",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
	if len(fake.calls) != 1 || fake.calls[0] != "nginx:1.25" {
		t.Errorf("expected one scan of nginx:1.25, got %v", fake.calls)
	}
}

func TestImageCommand_FromSettings(t *testing.T) {
	defer resetFlags()()
	dir := isolate(t)

	cfg := filepath.Join(dir, "settings.jsonc")
	writeTestFile(t, cfg, `{
  // scanned when no image is given
  "vulnerabilityManagement": {"imageToScan": "alpine:3.19"},
}`)

	fake := &fakeScanner{reports: map[string]*types.Report{"alpine:3.19": sampleReport("alpine:3.19")}}
	useScanner(fake)

	rootCmd.SetArgs([]string{"image", "--config", cfg})
	captureOutput(func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("image command failed: %v", err)
		}
	})
	if len(fake.calls) != 1 || fake.calls[0] != "alpine:3.19" {
		t.Errorf("expected the configured image to be scanned, got %v", fake.calls)
	}
}

func TestImageCommand_NoImage(t *testing.T) {
	defer resetFlags()()
	isolate(t)
	useScanner(&fakeScanner{})

	rootCmd.SetArgs([]string{"image"})
	err := rootCmd.Execute()
	if !errors.Is(err, runner.ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}
}

func TestImageCommand_ScanFails(t *testing.T) {
	defer resetFlags()()
	isolate(t)
	useScanner(&fakeScanner{})

	rootCmd.SetArgs([]string{"image", "missing:latest"})
	captureOutput(func() {
		if err := rootCmd.Execute(); err == nil {
			t.Error("expected error when the scan fails")
		}
	})
}

func TestImageCommand_SourceAndMarkdown(t *testing.T) {
	defer resetFlags()()
	dir := isolate(t)

	source := filepath.Join(dir, "compose.yaml")
	writeTestFile(t, source, "services:\n  web:\n    image: nginx:1.25\n")
	out := filepath.Join(dir, "SCAN.md")

	useScanner(&fakeScanner{reports: map[string]*types.Report{"nginx:1.25": sampleReport("nginx:1.25")}})

	rootCmd.SetArgs([]string{"image", "nginx:1.25", "--source", source, "--markdown", "-o", out, "--filter", "Critical"})
	output := captureOutput(func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("image command failed: %v", err)
		}
	})

	if !strings.Contains(output, "image: nginx:1.25  Failed Policies: (1/1)") {
		t.Errorf("expected annotated source line, got:\n%s", output)
	}
	if !strings.Contains(output, "compose.yaml:3") {
		t.Errorf("expected packages linked to the image line, got:\n%s", output)
	}
	if !strings.Contains(output, "filters: Critical") {
		t.Errorf("expected active filters in the tree title, got:\n%s", output)
	}

	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if !strings.Contains(string(written), "|") {
		t.Errorf("expected a Markdown table in the output file, got:\n%s", written)
	}
	if !strings.Contains(output, string(written)) {
		t.Error("expected the printed Markdown to match the output file")
	}
}
