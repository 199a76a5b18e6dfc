package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conneroisu/buttonstudio/internal/errors"
	"github.com/conneroisu/buttonstudio/internal/manifest"
)

var routesFlags OutputFlags

var routesCmd = &cobra.Command{
	Use:     "routes [dir]",
	Aliases: []string{"r", "ls"},
	Short:   "List the routes and islands of a project",
	Long: `List every route and island the manifest would contain, with its kind,
URL pattern and import identifier.

Examples:
  buttonstudio routes               # Table output
  buttonstudio routes -o json       # JSON output
  buttonstudio routes ./site -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
	addOutputFlags(routesCmd, &routesFlags)
}

func runRoutes(cmd *cobra.Command, args []string) error {
	if err := routesFlags.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfig(dirArg(args))
	if err != nil {
		return err
	}

	m, err := manifest.Collect(cmd.Context(), cfg.Project.Root, manifest.Options{Ignore: cfg.Project.Ignore})
	if err != nil {
		return errors.Enhance("Route collection failed", err)
	}

	entries := manifest.Entries(m)
	return routesFlags.write(cmd.OutOrStdout(), entries, func(w io.Writer) error {
		return printRoutesTable(w, entries)
	})
}

var kindColors = map[manifest.RouteKind]*color.Color{
	manifest.KindPage:       color.New(color.FgGreen),
	manifest.KindApp:        color.New(color.FgCyan),
	manifest.KindLayout:     color.New(color.FgCyan),
	manifest.KindMiddleware: color.New(color.FgMagenta),
	manifest.KindNotFound:   color.New(color.FgYellow),
	manifest.KindError:      color.New(color.FgRed),
	manifest.KindIsland:     color.New(color.FgBlue, color.Bold),
}

func printRoutesTable(w io.Writer, entries []manifest.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No routes or islands found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPATTERN\tFILE\tIDENTIFIER")
	routes, islands := 0, 0
	for _, e := range entries {
		kind := string(e.Kind)
		if c, ok := kindColors[e.Kind]; ok {
			kind = c.Sprint(kind)
		}
		pattern := e.Pattern
		if pattern == "" {
			pattern = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kind, pattern, e.File, e.Identifier)

		if e.Kind == manifest.KindIsland {
			islands++
		} else {
			routes++
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d routes, %d islands\n", routes, islands)
	return err
}
