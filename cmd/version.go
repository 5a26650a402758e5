package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/northcutted/dock-lens/pkg/installer"
)

// Set at build time with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dock-lens version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(stdout, "dock-lens %s (commit %s, built %s)\n", Version, Commit, Date)
		fmt.Fprintf(stdout, "%s %s\n", installer.ScannerBinary, installer.ScannerVersion)
	},
}
