package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/logicgate/internal/export"
	"github.com/dusk-indust/logicgate/internal/graph"
	"github.com/dusk-indust/logicgate/internal/scan"
)

// scanSummary is the --json output of the scan command.
type scanSummary struct {
	RunID       string           `json:"runId"`
	Root        string           `json:"root"`
	Stats       graph.GraphStats `json:"stats"`
	Diagnostics scan.Diagnostics `json:"diagnostics"`
	Duration    string           `json:"duration"`
}

func newScanCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Build the call graph and report what was extracted",
		Long: `Discover source files, extract records and build the call graph, then print
counts and the files that were skipped.

Examples:
  logicgate scan
  logicgate scan --project-root ./api --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProject(func(p *project) error {
				res, err := p.scan(cmd.Context(), a)
				if err != nil {
					return err
				}
				if jsonOut {
					return export.WriteJSON(cmd.OutOrStdout(), scanSummary{
						RunID:       res.RunID,
						Root:        res.Root,
						Stats:       res.Graph.Stats(),
						Diagnostics: res.Diagnostics,
						Duration:    res.Duration.Round(time.Millisecond).String(),
					})
				}
				printScan(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the summary as JSON")
	return cmd
}

func printScan(w io.Writer, res *scan.Result) {
	st := res.Graph.Stats()
	d := res.Diagnostics
	fmt.Fprintf(w, "Run %s (%s)\n\n", res.RunID, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Files:      %d discovered, %d parsed, %d from cache, %d skipped\n",
		d.Discovered, d.Parsed, d.CacheHits, len(d.Skipped))
	fmt.Fprintf(w, "Routes:     %d\n", st.RouteCount)
	fmt.Fprintf(w, "Functions:  %d\n", st.FunctionCount)
	fmt.Fprintf(w, "Edges:      %d (%d handler, %d resolved calls)\n", st.EdgeCount, st.Build.HandlerEdges, st.Build.Resolved)
	fmt.Fprintf(w, "Unresolved: %d calls, %d handlers\n", st.Build.Unresolved, st.Build.UnresolvedHandlers)
	if d.Dropped > 0 {
		fmt.Fprintf(w, "Dropped:    %d malformed matches\n", d.Dropped)
	}
	if len(d.Skipped) > 0 {
		fmt.Fprintln(w, "\nSkipped:")
		for _, s := range d.Skipped {
			fmt.Fprintf(w, "  %s: %s\n", s.Path, s.Reason)
		}
	}
}

func newRoutesCmd(a *app) *cobra.Command {
	var (
		method  string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the HTTP routes registered in the project",
		Long: `List every route registration with its handler and middleware.

Examples:
  logicgate routes
  logicgate routes --method post --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProject(func(p *project) error {
				res, err := p.scan(cmd.Context(), a)
				if err != nil {
					return err
				}
				routes := res.Graph.FindRoutes(method, "")
				if routes == nil {
					routes = []graph.RouteInfo{}
				}
				if jsonOut {
					return export.WriteJSON(cmd.OutOrStdout(), routes)
				}
				printRoutes(cmd.OutOrStdout(), routes)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "only routes with this method")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print routes as JSON")
	return cmd
}

func printRoutes(w io.Writer, routes []graph.RouteInfo) {
	if len(routes) == 0 {
		fmt.Fprintln(w, "No routes found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tPATH\tHANDLER\tMIDDLEWARE\tLOCATION")
	for _, r := range routes {
		mw := strings.Join(r.Middleware, ", ")
		if mw == "" {
			mw = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s:%d\n",
			strings.ToUpper(string(r.Method)), r.Path, r.Handler, mw, r.File, r.Line)
	}
	_ = tw.Flush()
}
