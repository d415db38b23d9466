package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/logicgate/internal/graph"
)

func newLookupCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "lookup PATTERN",
		Short: "Print graph context for functions matching PATTERN",
		Long: `Query the graph persisted by 'export --format kuzu' or 'serve-mcp --persist'
and print matching functions, the routes and functions that call them, and
their cluster. Prints nothing when no graph exists, so it is safe to run from
editor hooks.

Examples:
  logicgate lookup findById`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Join(a.projectRoot, defaultKuzuDir)
			return runLookup(cmd.Context(), cmd.OutOrStdout(), dir, args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum functions to show")
	return cmd
}

// writeLookup renders lookup results as Markdown.
func writeLookup(w io.Writer, pattern string, fns []graph.FunctionInfo, edges []graph.Edge, clusters []graph.ClusterNode) {
	callers := make(map[graph.NodeKey][]graph.Edge)
	for _, e := range edges {
		callers[e.To] = append(callers[e.To], e)
	}
	clusterOf := make(map[string]graph.ClusterNode)
	for _, c := range clusters {
		for _, m := range c.Members {
			clusterOf[m] = c
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Graph Context for %q\n\n", pattern)
	for _, fn := range fns {
		fmt.Fprintf(&sb, "- `%s` in `%s:%d`\n", fn.Name, fn.File, fn.StartLine)
		for _, e := range callers[fn.Key()] {
			if e.Kind == graph.EdgeKindHandler {
				fmt.Fprintf(&sb, "  - handles route `%s` (%s)\n", e.From.Name, e.From.File)
				continue
			}
			fmt.Fprintf(&sb, "  - called by `%s` at `%s:%d`\n", e.From.Name, e.From.File, e.Line)
		}
	}

	if c, ok := clusterOf[fns[0].File]; ok {
		fmt.Fprintf(&sb, "\n**Cluster:** %s (cohesion: %.2f), %d files\n", c.Name, c.CohesionScore, len(c.Members))
	}
	_, _ = io.WriteString(w, sb.String())
}
