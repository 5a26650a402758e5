package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/northcutted/dock-lens/pkg/analysis"
	"github.com/northcutted/dock-lens/pkg/console"
	"github.com/northcutted/dock-lens/pkg/highlight"
	"github.com/northcutted/dock-lens/pkg/parser"
	"github.com/northcutted/dock-lens/pkg/renderer"
	"github.com/northcutted/dock-lens/pkg/runner"
	"github.com/northcutted/dock-lens/pkg/types"
)

var imageSource string

var imageCmd = &cobra.Command{
	Use:   "image [IMAGE]",
	Short: "Scan a container image",
	Long: `Scan a container image and print its summary and trees.

Without an argument the image from vulnerabilityManagement.imageToScan is used.
With --source, every literal occurrence of the image in that file is annotated.`,
	Example: `  dock-lens image nginx:1.25
  dock-lens image nginx:1.25 --source ./compose.yaml --markdown -o SCAN.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImage,
}

func init() {
	imageCmd.Flags().StringVar(&imageSource, "source", "", "File that references the image, annotated with the results")
}

func runImage(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	stopMetrics, err := serveMetrics(env)
	if err != nil {
		return err
	}
	defer stopMetrics()

	image := env.settings.VulnerabilityManagement.ImageToScan
	if len(args) == 1 {
		image = args[0]
	}
	image = strings.TrimSpace(image)
	if image == "" {
		return runner.ErrNoImage
	}
	if err := parser.ValidateImageRef(image); err != nil {
		slog.Warn("image reference does not parse, scanning anyway", "image", image, "error", err)
	}

	editor := console.NewEditor()
	session := newSession(env, editor, false)

	opts := analysis.ScanOptions{UpdateTrees: true}
	var doc *parser.Document
	var ranges []types.Range
	if imageSource != "" {
		doc, err = parser.LoadDocument(imageSource)
		if err != nil {
			return err
		}
		editor.Open(doc)
		ranges = highlight.FindAll(doc.Text, image)
		if len(ranges) == 0 {
			slog.Warn("image not found in source file", "image", image, "file", doc.Path)
		} else {
			opts.Document = doc
			opts.Range = &ranges[0]
		}
	}

	report, err := session.ScanImage(cmd.Context(), image, opts)
	if err != nil {
		return fmt.Errorf("failed to scan image %s: %w", image, err)
	}
	if len(ranges) > 0 {
		highlight.HighlightImage(session.Tracker, report, doc.ID(), ranges, env.renderOptions())
	}

	summary := renderer.Summarize(report, env.renderOptions())
	if err := writeSummary(summary); err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	return printTrees(session, editor, true)
}

// writeSummary prints the summary and, with --output, writes its Markdown
// form to a file.
func writeSummary(s renderer.Summary) error {
	var md string
	if markdown || outputFile != "" {
		var err error
		if md, err = s.Markdown(); err != nil {
			return fmt.Errorf("failed to render summary: %w", err)
		}
	}

	if markdown {
		fmt.Fprintln(stdout, md)
	} else {
		fmt.Fprint(stdout, console.RenderSummary(s))
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(md), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		slog.Info("wrote output file", "path", outputFile)
	}
	return nil
}
