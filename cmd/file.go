package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/northcutted/dock-lens/pkg/analysis"
	"github.com/northcutted/dock-lens/pkg/console"
	"github.com/northcutted/dock-lens/pkg/parser"
)

var (
	fileBuild     bool
	fileBuildArgs []string
)

var fileCmd = &cobra.Command{
	Use:   "file PATH",
	Short: "Scan the images of a Dockerfile, Compose file or Kubernetes manifest",
	Long: `Scan every image referenced by a manifest and print it annotated with the results.

- Dockerfile: the base image of the last stage is scanned. With --build the
  Dockerfile is built, scanned layer by layer, and the image removed again.
- Compose file: every service image is scanned.
- Kubernetes manifest: the container images of every workload are scanned once.`,
	Example: `  dock-lens file ./Dockerfile
  dock-lens file ./Dockerfile --build --build-arg VERSION=1.2
  dock-lens file ./docker-compose.yml --filter Critical,High`,
	Args: cobra.ExactArgs(1),
	RunE: runFile,
}

func init() {
	addBuildFlags(fileCmd, &fileBuild, &fileBuildArgs)
}

func addBuildFlags(cmd *cobra.Command, build *bool, buildArgs *[]string) {
	cmd.Flags().BoolVar(build, "build", false, "Build Dockerfiles with docker and attribute vulnerabilities to their instructions")
	cmd.Flags().StringArrayVar(buildArgs, "build-arg", nil, "Build argument KEY=VALUE (or KEY to take it from the environment)")
}

func runFile(cmd *cobra.Command, args []string) error {
	buildArgs, err := parseBuildArgs(fileBuildArgs)
	if err != nil {
		return err
	}
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	stopMetrics, err := serveMetrics(env)
	if err != nil {
		return err
	}
	defer stopMetrics()

	doc, err := parser.LoadDocument(args[0])
	if err != nil {
		return err
	}

	editor := console.NewEditor()
	session := newSession(env, editor, fileBuild)
	editor.Open(doc)

	opts := analysis.DocumentOptions{Build: fileBuild, BuildArgs: buildArgs}
	if err := session.ScanDocument(cmd.Context(), doc, opts); err != nil {
		if errors.Is(err, analysis.ErrUnsupportedDocument) {
			return fmt.Errorf("%w (expected a Dockerfile, Compose file or Kubernetes manifest)", err)
		}
		// Per-image failures still leave the other results worth showing.
		slog.Warn("some scans failed", "error", err)
	}
	return printTrees(session, editor, showsTrees(doc))
}
