package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conneroisu/buttonstudio/internal/build"
	"github.com/conneroisu/buttonstudio/internal/errors"
)

var (
	manifestCheck  bool
	manifestDryRun bool
)

var manifestCmd = &cobra.Command{
	Use:     "manifest [dir]",
	Aliases: []string{"m", "gen"},
	Short:   "Collect routes and islands and write the manifest",
	Long: `Collect the files under routes/ and islands/ and write the route manifest
(fresh.gen.ts by default). The file is only rewritten when its content changes.

Examples:
  buttonstudio manifest               # Regenerate ./fresh.gen.ts
  buttonstudio manifest ./site        # Use ./site as the project root
  buttonstudio manifest --check       # Fail if the manifest is out of date
  buttonstudio manifest --dry-run     # Print the manifest instead of writing it`,
	Args: cobra.MaximumNArgs(1),
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)

	manifestCmd.Flags().BoolVar(&manifestCheck, "check", false, "Exit with an error if the manifest is out of date")
	manifestCmd.Flags().BoolVar(&manifestDryRun, "dry-run", false, "Print the manifest to stdout without writing it")
	manifestCmd.MarkFlagsMutuallyExclusive("check", "dry-run")
}

func runManifest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(dirArg(args))
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	pipeline := build.NewPipeline(build.Options{
		Root:         cfg.Project.Root,
		ManifestPath: cfg.ManifestPath(),
		Ignore:       cfg.Project.Ignore,
		DryRun:       manifestCheck || manifestDryRun,
		Logger:       logger,
	})

	result := pipeline.Run(cmd.Context())
	if result.Error != nil {
		return errors.Enhance("Manifest generation failed", result.Error)
	}

	out := cmd.OutOrStdout()
	name := filepath.Base(cfg.ManifestPath())

	switch {
	case manifestDryRun:
		_, err := out.Write(result.Output)
		return err

	case manifestCheck:
		if result.Changed {
			stale := errors.NewManifestError(errors.ErrCodeManifestStale, name+" is out of date", nil).
				WithPath(cfg.ManifestPath())
			return errors.Enhance("Manifest check failed", stale)
		}
		fmt.Fprintf(out, "%s %s is up to date\n", color.GreenString("✓"), name)

	case result.Changed:
		fmt.Fprintf(out, "%s wrote %s (%d routes, %d islands) in %s\n",
			color.GreenString("✓"), name,
			len(result.Manifest.Routes), len(result.Manifest.Islands),
			result.Duration.Round(time.Microsecond))

	default:
		fmt.Fprintf(out, "%s %s unchanged\n", color.HiBlackString("•"), name)
	}

	return nil
}
