package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conneroisu/buttonstudio/internal/build"
	"github.com/conneroisu/buttonstudio/internal/errors"
	"github.com/conneroisu/buttonstudio/internal/manifest"
	"github.com/conneroisu/buttonstudio/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch [dir]",
	Aliases: []string{"w"},
	Short:   "Regenerate the manifest whenever routes or islands change",
	Long: `Watch routes/ and islands/ and regenerate the manifest after every batch of
changes. No server is started; use "serve --dev" for live reload.

Examples:
  buttonstudio watch
  buttonstudio watch ./site`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(dirArg(args))
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	pipeline := build.NewPipeline(build.Options{
		Root:         cfg.Project.Root,
		ManifestPath: cfg.ManifestPath(),
		Ignore:       cfg.Project.Ignore,
		Logger:       logger,
	})
	pipeline.AddCallback(func(result build.Result) {
		reportResult(out, filepath.Base(cfg.ManifestPath()), result)
	})

	fw, err := watcher.NewFileWatcher(cfg.Development.Debounce, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Stop()

	if err := watchProject(ctx, fw, pipeline, cfg.Project.Root); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s watching %s (Ctrl+C to stop)\n", color.CyanString("▶"), cfg.Project.Root)
	if result := pipeline.Run(ctx); result.Error != nil && !errors.IsRecoverable(result.Error) {
		return errors.Enhance("Manifest generation failed", result.Error)
	}

	<-ctx.Done()
	return nil
}

// watchProject wires fw to regenerate the manifest for changes under
// routes/ and islands/ and starts it.
func watchProject(ctx context.Context, fw *watcher.FileWatcher, pipeline *build.Pipeline, root string) error {
	fw.AddFilter(watcher.SourceFilter)
	fw.AddFilter(watcher.NoTestFilter)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		pipeline.Run(ctx)
		return nil
	})

	for _, dir := range []string{manifest.RoutesDir, manifest.IslandsDir} {
		if err := fw.AddRecursive(filepath.Join(root, dir)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return fw.Start(ctx)
}

func reportResult(w io.Writer, name string, result build.Result) {
	switch {
	case result.Error != nil:
		fmt.Fprintf(w, "%s %s\n", color.RedString("✗"), errors.FormatError(result.Error))
	case result.Changed:
		fmt.Fprintf(w, "%s wrote %s (%d routes, %d islands)\n",
			color.GreenString("✓"), name, len(result.Manifest.Routes), len(result.Manifest.Islands))
	default:
		fmt.Fprintf(w, "%s %s unchanged\n", color.HiBlackString("•"), name)
	}
}
