package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/a-h/templ"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conneroisu/buttonstudio/internal/accessibility"
	"github.com/conneroisu/buttonstudio/internal/components"
	"github.com/conneroisu/buttonstudio/internal/config"
	"github.com/conneroisu/buttonstudio/internal/manifest"
	"github.com/conneroisu/buttonstudio/internal/studio"
)

var (
	auditFlags     OutputFlags
	auditWCAGLevel string
)

// auditCmd represents the audit command.
var auditCmd = &cobra.Command{
	Use:   "audit [dir]",
	Short: "Check the studio pages for accessibility issues",
	Long: `Render the studio pages (home in every audio state, manifest and 404) and
check them for WCAG issues visible in the markup. The command fails when any
error-severity violation is found.

Examples:
  buttonstudio audit
  buttonstudio audit --wcag-level A
  buttonstudio audit -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	addOutputFlags(auditCmd, &auditFlags)
	auditCmd.Flags().StringVar(&auditWCAGLevel, "wcag-level", "AA", "WCAG level to check (A, AA)")
}

type auditPage struct {
	name      string
	component templ.Component
}

func runAudit(cmd *cobra.Command, args []string) error {
	if err := auditFlags.Validate(); err != nil {
		return err
	}
	level := accessibility.WCAGLevel(auditWCAGLevel)
	if level != accessibility.WCAGLevelA && level != accessibility.WCAGLevelAA {
		return fmt.Errorf("unsupported WCAG level %q (A, AA)", auditWCAGLevel)
	}

	cfg, err := loadConfig(dirArg(args))
	if err != nil {
		return err
	}

	reports, err := auditPages(cmd.Context(), accessibility.NewChecker(level), studioPages(cmd.Context(), cfg))
	if err != nil {
		return err
	}

	if err := auditFlags.write(cmd.OutOrStdout(), reports, func(w io.Writer) error {
		return printAuditTable(w, reports)
	}); err != nil {
		return err
	}

	failures := 0
	for _, r := range reports {
		failures += r.Errors()
	}
	if failures > 0 {
		return fmt.Errorf("accessibility audit found %d error(s)", failures)
	}
	return nil
}

// studioPages renders the pages the server serves, from the same
// configuration.
func studioPages(ctx context.Context, cfg *config.Config) []auditPage {
	title := cfg.Studio.Title
	pages := make([]auditPage, 0, 5)
	for _, status := range []studio.AudioStatus{studio.AudioIdle, studio.AudioReady, studio.AudioRecording} {
		pages = append(pages, auditPage{
			name: "home (" + string(status) + ")",
			component: components.AppShell(title, false, components.Home(components.HomeProps{
				Title:     title,
				CounterID: studio.DefaultCounterID,
				Count:     cfg.Studio.CounterStart,
				Audio:     status,
			})),
		})
	}

	var body templ.Component
	m, err := manifest.Collect(ctx, cfg.Project.Root, manifest.Options{Ignore: cfg.Project.Ignore})
	if err != nil {
		body = components.ManifestError(err.Error())
	} else {
		body = components.ManifestTable(manifest.Entries(m))
	}
	pages = append(pages,
		auditPage{name: "manifest", component: components.AppShell("Manifest", true, body)},
		auditPage{name: "404", component: components.AppShell("404 - Page not found", false, components.NotFound("/missing"))},
	)
	return pages
}

func auditPages(ctx context.Context, checker *accessibility.Checker, pages []auditPage) ([]accessibility.Report, error) {
	reports := make([]accessibility.Report, 0, len(pages))
	for _, page := range pages {
		var buf bytes.Buffer
		if err := page.component.Render(ctx, &buf); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", page.name, err)
		}
		report, err := checker.Check(page.name, &buf)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func printAuditTable(w io.Writer, reports []accessibility.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tSEVERITY\tRULE\tWCAG\tELEMENT\tMESSAGE")
	total := 0
	for _, r := range reports {
		if len(r.Violations) == 0 {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\n", r.Page, color.GreenString("pass"))
			continue
		}
		for _, v := range r.Violations {
			severity := color.YellowString(string(v.Severity))
			if v.Severity == accessibility.SeverityError {
				severity = color.RedString(string(v.Severity))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Page, severity, v.Rule, v.Criteria, v.Selector, v.Message)
			total++
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d pages, %d violations\n", len(reports), total)
	return err
}
