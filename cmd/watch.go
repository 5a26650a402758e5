package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/northcutted/dock-lens/pkg/analysis"
	"github.com/northcutted/dock-lens/pkg/console"
	"github.com/northcutted/dock-lens/pkg/parser"
	"github.com/northcutted/dock-lens/pkg/watch"
)

var (
	watchBuild     bool
	watchBuildArgs []string
	watchDelay     = watch.DefaultOptions().Delay
)

var watchCmd = &cobra.Command{
	Use:   "watch PATH...",
	Short: "Re-scan manifests whenever they change",
	Long: `Scan the given manifests, then watch them and scan again on every save.
Annotations from the previous scan are cleared before each re-scan.
Press Ctrl+C to stop.`,
	Example: `  dock-lens watch ./Dockerfile --build
  dock-lens watch ./compose.yaml ./k8s/app.yaml --metrics-addr :9090`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	addBuildFlags(watchCmd, &watchBuild, &watchBuildArgs)
	watchCmd.Flags().DurationVar(&watchDelay, "delay", watchDelay, "Wait this long after the last change before scanning")
}

func runWatch(cmd *cobra.Command, args []string) error {
	buildArgs, err := parseBuildArgs(watchBuildArgs)
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

	editor := console.NewEditor()
	session := newSession(env, editor, watchBuild)
	opts := analysis.DocumentOptions{Build: watchBuild, BuildArgs: buildArgs}

	rescan := func(ctx context.Context, path string) error {
		doc, err := parser.LoadDocument(path)
		if err != nil {
			return err
		}
		session.Tracker.Clear(doc.ID())
		editor.Open(doc)
		scanErr := session.ScanDocument(ctx, doc, opts)
		if errors.Is(scanErr, analysis.ErrUnsupportedDocument) {
			return scanErr
		}
		if err := printTrees(session, editor, showsTrees(doc)); err != nil {
			return err
		}
		return scanErr
	}

	w, err := watch.New(args, watch.Options{Delay: watchDelay, InitialRun: true}, rescan)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	slog.Info("watching for changes", "files", args)
	if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
