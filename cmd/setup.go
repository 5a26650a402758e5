package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/northcutted/dock-lens/pkg/installer"
)

var (
	setupCheck bool
	setupDir   string
	setupForce bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Install sysdig-cli-scanner",
	Long: `Download sysdig-cli-scanner for this platform into ~/.dock-lens/bin.

The download URL can be overridden with cliScannerSource in the settings file.
A scanner already on the PATH is used as is.`,
	Example: `  dock-lens setup
  dock-lens setup --check
  dock-lens setup --dir /usr/local/bin --force`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&setupCheck, "check", false, "Only print the tool status")
	setupCmd.Flags().StringVar(&setupDir, "dir", "", "Install directory (default: ~/.dock-lens/bin)")
	setupCmd.Flags().BoolVar(&setupForce, "force", false, "Download even if the scanner is already installed")
}

// printToolStatus reports where each tool was found, or that it is missing.
func printToolStatus(dir string) error {
	fmt.Fprintln(stdout, "Tool Status:")
	if path, source, err := installer.FindTool(installer.ScannerBinary); err == nil {
		fmt.Fprintf(stdout, "  [OK] %s (%s: %s)\n", installer.ScannerBinary, source, path)
	} else {
		fmt.Fprintf(stdout, "  [MISSING] %s (install dir: %s)\n", installer.ScannerBinary, dir)
	}
	if path, _, err := installer.FindTool("docker"); err == nil {
		fmt.Fprintf(stdout, "  [OK] docker (%s)\n", path)
	} else {
		fmt.Fprintln(stdout, "  [MISSING] docker (required for build-and-scan)")
	}
	return nil
}

func runSetup(cmd *cobra.Command, args []string) error {
	dir := setupDir
	if dir == "" {
		d, err := installer.InstallDir()
		if err != nil {
			return err
		}
		dir = d
	}

	if setupCheck {
		return printToolStatus(dir)
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	url, err := installer.ScannerURL(settings.CLIScannerSource)
	if err != nil {
		return err
	}

	dest := filepath.Join(dir, installer.ScannerBinary)
	if err := installer.Download(cmd.Context(), url, dest, setupForce); err != nil {
		return fmt.Errorf("failed to install %s: %w", installer.ScannerBinary, err)
	}
	fmt.Fprintf(stdout, "Installed %s %s to %s\n\n", installer.ScannerBinary, installer.ScannerVersion, dest)
	return printToolStatus(dir)
}
