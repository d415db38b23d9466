package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/logicgate/internal/export"
)

// defaultKuzuDir is where the Kuzu graph lives, relative to the project root.
const defaultKuzuDir = ".logicgate/graph"

func newDiagramCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "diagram",
		Short: "Render the whole call graph as a Mermaid diagram",
		Long: `Render every file, route and edge as Mermaid, with files grouped into their
clusters. Use 'slice --format mermaid' for a single route.

Examples:
  logicgate diagram > graph.mmd
  logicgate diagram --out docs/graph.mmd`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withProject(func(p *project) error {
				ctx := cmd.Context()
				_, store, _, err := p.loadGraph(ctx, a)
				if err != nil {
					return err
				}
				mermaid, err := export.GenerateMermaid(ctx, store)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, func(w io.Writer) error {
					_, err := io.WriteString(w, mermaid)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to this file instead of stdout")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format    string
		out       string
		name      string
		neo4jURI  string
		neo4jUser string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the call graph as JSON, to Neo4j or to a Kuzu database",
		Long: `Export the call graph.

Formats:
  json   nodes, edges, routes and clusters as one JSON document
  neo4j  load into Neo4j (connection from logicgate.yml or flags;
         password from LOGICGATE_NEO4J_PASSWORD)
  kuzu   write a Kuzu database (default: .logicgate/graph; cgo builds only)

Examples:
  logicgate export --out graph.json
  logicgate export --format neo4j --neo4j-uri neo4j://localhost:7687 --neo4j-user neo4j
  logicgate export --format kuzu`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch format {
			case "json", "neo4j", "kuzu":
			default:
				return fmt.Errorf("unknown format %q (want json, neo4j or kuzu)", format)
			}
			return a.withProject(func(p *project) error {
				ctx := cmd.Context()
				res, store, clusters, err := p.loadGraph(ctx, a)
				if err != nil {
					return err
				}

				switch format {
				case "neo4j":
					cfg := p.cfg.Neo4j
					if neo4jURI != "" {
						cfg.URI = neo4jURI
					}
					if neo4jUser != "" {
						cfg.User = neo4jUser
					}
					if cfg.URI == "" {
						return errors.New("neo4j export needs a URI (--neo4j-uri or neo4j.uri in logicgate.yml)")
					}
					if name == "" {
						name = filepath.Base(p.root)
					}
					loader, err := export.NewNeo4jLoader(ctx, export.Neo4jConfig{
						URI:      cfg.URI,
						User:     cfg.User,
						Password: cfg.Password,
						Database: cfg.Database,
						Logger:   a.logger,
					})
					if err != nil {
						return err
					}
					defer closeLoader(ctx, a, loader)
					if err := loader.Load(ctx, name, res.Graph, clusters); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Loaded project %q into %s\n", name, cfg.URI)
					return nil

				case "kuzu":
					dir := out
					if dir == "" {
						dir = filepath.Join(p.root, defaultKuzuDir)
					}
					if err := writeKuzu(ctx, dir, res.Graph, clusters); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote graph to %s\n", dir)
					return nil
				}

				doc, err := export.ExportGraph(ctx, store, p.root, res.RunID)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, func(w io.Writer) error {
					return export.WriteJSON(w, doc)
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&format, "format", "json", "export format: json, neo4j or kuzu")
	f.StringVar(&out, "out", "", "output file (json) or database directory (kuzu)")
	f.StringVar(&name, "name", "", "project name used to key Neo4j nodes (default: project directory name)")
	f.StringVar(&neo4jURI, "neo4j-uri", "", "Neo4j URI, overrides logicgate.yml")
	f.StringVar(&neo4jUser, "neo4j-user", "", "Neo4j user, overrides logicgate.yml")
	return cmd
}

func closeLoader(ctx context.Context, a *app, l *export.Neo4jLoader) {
	if err := l.Close(ctx); err != nil {
		a.logger.Warn("closing neo4j driver", "error", err)
	}
}

// writeOutput runs write against path, or against stdout when path is empty.
func writeOutput(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
