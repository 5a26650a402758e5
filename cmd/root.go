package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// stdout is where commands write their results. Tests swap it.
var stdout io.Writer = os.Stdout

var (
	configFile    string
	verbose       bool
	noMoji        bool
	detailed      bool
	markdown      bool
	outputFile    string
	metricsAddr   string
	vulnFilters   []string
	policyFilters []string
)

var rootCmd = &cobra.Command{
	Use:   "dock-lens",
	Short: "Scan container images and manifests for vulnerabilities",
	Long: `Scan container images, Dockerfiles, Compose files and Kubernetes manifests
with sysdig-cli-scanner and show the results in the terminal.

Results are shown as:
- a severity summary and failed policy report
- a vulnerability tree grouped by package
- a policy tree with the failing rules
- the scanned manifest, annotated line by line with the findings

Credentials come from 'dock-lens auth' or SECURE_API_URL / SECURE_API_TOKEN.`,
	Example: `  # Store the Sysdig Secure endpoint and token
  dock-lens auth --endpoint https://secure.sysdig.com

  # Scan an image
  dock-lens image nginx:1.25

  # Scan every image of a Compose file
  dock-lens file ./compose.yaml

  # Build a Dockerfile and attribute vulnerabilities to its instructions
  dock-lens file ./Dockerfile --build --build-arg VERSION=1.2

  # Re-scan whenever a manifest changes
  dock-lens watch ./k8s/deployment.yaml`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(cmd.ErrOrStderr())
	},
}

// Execute runs the root cobra command and exits on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func setupLogging(w io.Writer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func init() {
	// Dynamically append tool status to the help description
	rootCmd.Long += "\n" + checkToolStatus()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Path to settings file (.json, .jsonc or .yaml; default: <user config dir>/dock-lens/settings.json)")
	flags.BoolVar(&verbose, "verbose", false, "Enable verbose logging, including scanner output")
	flags.BoolVar(&noMoji, "nomoji", false, "Disable emojis in the output")
	flags.BoolVar(&detailed, "detailed", false, "Add a failure table under every failed policy rule")
	flags.BoolVar(&markdown, "markdown", false, "Print the report summary as Markdown")
	flags.StringVarP(&outputFile, "output", "o", "", "Also write the Markdown report summary to this file")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.StringSliceVar(&vulnFilters, "filter", nil, "Vulnerability tree filters (Exploitable, Fix Available, Critical, High, Medium, Low, Negligible)")
	flags.StringSliceVar(&policyFilters, "policy-filter", nil, "Policy tree filters (Failed, Passed, Image Config Failure, Package Vulnerability)")

	rootCmd.AddCommand(imageCmd, fileCmd, iacCmd, watchCmd, authCmd, setupCmd, versionCmd)

	// Add version flag as shortcut for "version" command
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("dock-lens {{.Version}}\n")
}
