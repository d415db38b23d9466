package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/logicgate/internal/graph"
	"github.com/dusk-indust/logicgate/internal/mcptools"
	"github.com/dusk-indust/logicgate/internal/scan"
	"github.com/dusk-indust/logicgate/internal/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		httpAddr string
		persist  bool
	)
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the graph tools over the Model Context Protocol",
		Long: `Run an MCP server exposing build_graph, list_routes, get_slice,
query_functions and get_clusters. Serves stdio unless --http is given.

Scan settings (workers, exclusions, extensions, cache, queries) come from the
project's logicgate.yml.

Examples:
  logicgate serve-mcp
  logicgate serve-mcp --http :8811 --persist`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProject(func(p *project) error {
				opts := mcptools.ServiceOptions{
					Scan:         p.scanOptions(a),
					DefaultDepth: p.cfg.Depth,
					Logger:       a.logger,
				}
				if persist {
					opts.Persist = func(ctx context.Context, root string, g *graph.CallGraph, clusters []graph.ClusterNode) error {
						return writeKuzu(ctx, filepath.Join(root, defaultKuzuDir), g, clusters)
					}
				}
				svc := mcptools.NewCodeIntelService(graph.NewMemStore(), p.parser, opts)

				if httpAddr != "" {
					a.logger.Info("serving MCP over HTTP", "addr", httpAddr)
					return mcptools.RunHTTP(cmd.Context(), svc, httpAddr)
				}
				return mcptools.RunStdio(cmd.Context(), svc)
			})
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	cmd.Flags().BoolVar(&persist, "persist", false, "write each built graph to <repo>/.logicgate/graph (cgo builds)")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		debounce    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the call graph whenever source files change",
		Long: `Scan once, then rescan after every debounced batch of source file changes
and print the new counts. Stop with Ctrl-C.

Examples:
  logicgate watch
  logicgate watch --metrics-addr :9102`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProject(func(p *project) error {
				out := cmd.OutOrStdout()
				rebuild := func(ctx context.Context, changed []string) {
					res, err := p.scan(ctx, a)
					if err != nil {
						if errors.Is(err, context.Canceled) {
							return
						}
						a.logger.Error("rebuild failed", "error", err)
						return
					}
					st := res.Graph.Stats()
					fmt.Fprintf(out, "[%s] %d routes, %d functions, %d edges, %d skipped",
						time.Now().Format(time.TimeOnly), st.RouteCount, st.FunctionCount, st.EdgeCount, len(res.Diagnostics.Skipped))
					if len(changed) > 0 {
						fmt.Fprintf(out, " after %s", strings.Join(changed, ", "))
					}
					fmt.Fprintln(out)
				}

				ctx := cmd.Context()
				rebuild(ctx, nil)

				w, err := scan.NewWatcher(p.root, func(ctx context.Context, paths []string) {
					if ctx.Err() != nil {
						return
					}
					rebuild(ctx, paths)
				}, scan.WatchOptions{
					Debounce:    debounce,
					ExcludeDirs: p.cfg.ExcludeDirs,
					Logger:      a.logger,
				})
				if err != nil {
					return err
				}

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error { return w.Run(ctx) })
				if metricsAddr != "" {
					g.Go(func() error { return telemetry.ServeMetrics(ctx, metricsAddr, a.logger) })
				}
				a.logger.Info("watching", "root", p.root)
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period before a rebuild")
	return cmd
}
