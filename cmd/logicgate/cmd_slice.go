package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/logicgate/internal/export"
	"github.com/dusk-indust/logicgate/internal/graph"
)

func newSliceCmd(a *app) *cobra.Command {
	var (
		depth  int
		format string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "slice [METHOD PATH]",
		Short: "Print the functions reachable from a route handler",
		Long: `Slice one route, or every route with --all. Depth 0 is the handler itself,
depth 1 the functions it calls, and so on.

When several registrations share METHOD and PATH, each is sliced.

Examples:
  logicgate slice get /users/:id
  logicgate slice post /orders --depth 2 --format mermaid
  logicgate slice --all --format json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "text", "json", "mermaid":
			default:
				return fmt.Errorf("unknown format %q (want text, json or mermaid)", format)
			}
			return a.withProject(func(p *project) error {
				if !cmd.Flags().Changed("depth") {
					depth = p.cfg.Depth
				}
				res, err := p.scan(cmd.Context(), a)
				if err != nil {
					return err
				}
				g := res.Graph

				var slices []*graph.Slice
				if all {
					slices, err = g.SliceAll(depth)
					if err != nil {
						return err
					}
				} else {
					routes := g.FindRoutes(args[0], args[1])
					if len(routes) == 0 {
						return fmt.Errorf("%w: %s %s", graph.ErrRouteNotFound, args[0], args[1])
					}
					for _, r := range routes {
						s, err := g.Slice(r.Key(), depth)
						if err != nil {
							return err
						}
						slices = append(slices, s)
					}
				}
				return writeSlices(cmd.OutOrStdout(), g, slices, format)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 5, "maximum call depth below the handler (default: config depth)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or mermaid")
	cmd.Flags().BoolVar(&all, "all", false, "slice every route")
	return cmd
}

func writeSlices(w io.Writer, g *graph.CallGraph, slices []*graph.Slice, format string) error {
	switch format {
	case "json":
		if slices == nil {
			slices = []*graph.Slice{}
		}
		return export.WriteJSON(w, slices)
	case "mermaid":
		for i, s := range slices {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprint(w, export.SliceMermaid(g, s))
		}
		return nil
	}
	for i, s := range slices {
		if i > 0 {
			fmt.Fprintln(w)
		}
		printSlice(w, s)
	}
	return nil
}

func printSlice(w io.Writer, s *graph.Slice) {
	r := s.Route
	fmt.Fprintf(w, "%s %s  (%s:%d, handler %s)\n", strings.ToUpper(string(r.Method)), r.Path, r.File, r.Line, r.Handler)
	if len(s.Nodes) == 0 {
		fmt.Fprintln(w, "  handler not resolved")
		return
	}
	for _, n := range s.Nodes {
		fn := n.Function
		fmt.Fprintf(w, "  %s%s  %s:%d-%d\n", strings.Repeat("  ", n.Depth), fn.Name, fn.File, fn.StartLine, fn.EndLine)
	}
	if s.Truncated {
		fmt.Fprintf(w, "  ... truncated at depth %d\n", s.MaxDepth)
	}
}
