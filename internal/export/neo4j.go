package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// defaultBatchSize bounds the rows sent in one UNWIND statement.
const defaultBatchSize = 500

// cypherRunner executes one Cypher statement.
type cypherRunner interface {
	run(ctx context.Context, cypher string, params map[string]any) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (d driverRunner) run(ctx context.Context, cypher string, params map[string]any) error {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if d.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, d.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	return err
}

// Neo4jConfig configures a Neo4jLoader.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	// Database selects a named database. Empty uses the server default.
	Database  string
	BatchSize int
	Logger    *slog.Logger
}

// Neo4jLoader loads a call graph into Neo4j using batch UNWIND queries.
// Nodes are merged on their NodeKey string, so loading the same project
// twice replaces rather than duplicates it.
type Neo4jLoader struct {
	runner    cypherRunner
	closeFn   func(context.Context) error
	batchSize int
	logger    *slog.Logger
}

// NewNeo4jLoader connects to Neo4j and verifies connectivity.
func NewNeo4jLoader(ctx context.Context, cfg Neo4jConfig) (*Neo4jLoader, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: connect %s: %w", cfg.URI, err)
	}
	l := newNeo4jLoader(driverRunner{driver: driver, database: cfg.Database}, cfg)
	l.closeFn = driver.Close
	return l, nil
}

func newNeo4jLoader(r cypherRunner, cfg Neo4jConfig) *Neo4jLoader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jLoader{runner: r, batchSize: cfg.BatchSize, logger: logger}
}

// Close releases the underlying driver.
func (l *Neo4jLoader) Close(ctx context.Context) error {
	if l.closeFn == nil {
		return nil
	}
	return l.closeFn(ctx)
}

// Load replaces the graph rooted at project with g and its clusters.
func (l *Neo4jLoader) Load(ctx context.Context, project string, g *graph.CallGraph, clusters []graph.ClusterNode) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"clean", func() error { return l.clean(ctx, project) }},
		{"indexes", func() error { return l.createIndexes(ctx) }},
		{"files", func() error { return l.loadFiles(ctx, project, g.Files()) }},
		{"functions", func() error { return l.loadFunctions(ctx, project, g.Functions()) }},
		{"routes", func() error { return l.loadRoutes(ctx, project, g.Routes()) }},
		{"edges", func() error { return l.loadEdges(ctx, project, g.Edges()) }},
		{"clusters", func() error { return l.loadClusters(ctx, project, clusters) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("neo4j: load %s: %w", s.name, err)
		}
	}
	stats := g.Stats()
	l.logger.Info("neo4j load complete",
		"project", project,
		"files", stats.FileCount,
		"functions", stats.FunctionCount,
		"routes", stats.RouteCount,
		"edges", stats.EdgeCount,
	)
	return nil
}

func (l *Neo4jLoader) clean(ctx context.Context, project string) error {
	return l.runner.run(ctx,
		`MATCH (n {project: $project})
		 WHERE n:LgFile OR n:LgFunction OR n:LgRoute OR n:LgCluster
		 DETACH DELETE n`,
		map[string]any{"project": project},
	)
}

func (l *Neo4jLoader) createIndexes(ctx context.Context) error {
	for _, q := range []string{
		"CREATE INDEX lg_file_key IF NOT EXISTS FOR (n:LgFile) ON (n.project, n.path)",
		"CREATE INDEX lg_function_key IF NOT EXISTS FOR (n:LgFunction) ON (n.project, n.key)",
		"CREATE INDEX lg_route_key IF NOT EXISTS FOR (n:LgRoute) ON (n.project, n.key)",
		"CREATE INDEX lg_cluster_key IF NOT EXISTS FOR (n:LgCluster) ON (n.project, n.name)",
	} {
		if err := l.runner.run(ctx, q, nil); err != nil {
			return err
		}
	}
	return nil
}

func (l *Neo4jLoader) loadFiles(ctx context.Context, project string, files []graph.FileNode) error {
	rows := make([]map[string]any, 0, len(files))
	for _, f := range files {
		rows = append(rows, map[string]any{"path": f.Path, "dialect": string(f.Dialect), "loc": f.LOC})
	}
	return l.unwind(ctx, project, rows,
		`UNWIND $batch AS row
		 MERGE (n:LgFile {project: $project, path: row.path})
		 SET n.dialect = row.dialect, n.loc = row.loc`)
}

func (l *Neo4jLoader) loadFunctions(ctx context.Context, project string, fns []graph.FunctionInfo) error {
	rows := make([]map[string]any, 0, len(fns))
	for _, fn := range fns {
		rows = append(rows, map[string]any{
			"key": fn.Key().String(), "name": fn.Name, "file": fn.File,
			"kind": string(fn.Kind), "start": fn.StartLine, "end": fn.EndLine,
		})
	}
	return l.unwind(ctx, project, rows,
		`UNWIND $batch AS row
		 MERGE (n:LgFunction {project: $project, key: row.key})
		 SET n.name = row.name, n.file = row.file, n.kind = row.kind,
		     n.start_line = row.start, n.end_line = row.end
		 WITH n, row
		 MATCH (f:LgFile {project: $project, path: row.file})
		 MERGE (f)-[:DEFINES]->(n)`)
}

func (l *Neo4jLoader) loadRoutes(ctx context.Context, project string, routes []graph.RouteInfo) error {
	rows := make([]map[string]any, 0, len(routes))
	for _, r := range routes {
		rows = append(rows, map[string]any{
			"key": r.Key().String(), "file": r.File, "line": r.Line,
			"method": string(r.Method), "path": r.Path,
			"handler": r.Handler.String(), "middleware": strings.Join(r.Middleware, ","),
		})
	}
	return l.unwind(ctx, project, rows,
		`UNWIND $batch AS row
		 MERGE (n:LgRoute {project: $project, key: row.key})
		 SET n.file = row.file, n.line = row.line, n.method = row.method,
		     n.path = row.path, n.handler = row.handler, n.middleware = row.middleware`)
}

func (l *Neo4jLoader) loadEdges(ctx context.Context, project string, edges []graph.Edge) error {
	var handlers, calls []map[string]any
	for _, e := range edges {
		row := map[string]any{"from": e.From.String(), "to": e.To.String(), "line": e.Line}
		if e.Kind == graph.EdgeKindHandler {
			handlers = append(handlers, row)
		} else {
			calls = append(calls, row)
		}
	}
	if err := l.unwind(ctx, project, handlers,
		`UNWIND $batch AS row
		 MATCH (r:LgRoute {project: $project, key: row.from}), (f:LgFunction {project: $project, key: row.to})
		 MERGE (r)-[h:HANDLER]->(f)
		 SET h.line = row.line`); err != nil {
		return err
	}
	return l.unwind(ctx, project, calls,
		`UNWIND $batch AS row
		 MATCH (a:LgFunction {project: $project, key: row.from}), (b:LgFunction {project: $project, key: row.to})
		 MERGE (a)-[c:CALLS {line: row.line}]->(b)`)
}

func (l *Neo4jLoader) loadClusters(ctx context.Context, project string, clusters []graph.ClusterNode) error {
	rows := make([]map[string]any, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, map[string]any{"name": c.Name, "cohesion": c.CohesionScore, "members": c.Members})
	}
	return l.unwind(ctx, project, rows,
		`UNWIND $batch AS row
		 MERGE (c:LgCluster {project: $project, name: row.name})
		 SET c.cohesion_score = row.cohesion
		 WITH c, row
		 UNWIND row.members AS member
		 MATCH (f:LgFile {project: $project, path: member})
		 MERGE (f)-[:BELONGS_TO]->(c)`)
}

// unwind runs cypher once per batch of rows. Empty input issues nothing.
func (l *Neo4jLoader) unwind(ctx context.Context, project string, rows []map[string]any, cypher string) error {
	for start := 0; start < len(rows); start += l.batchSize {
		end := min(start+l.batchSize, len(rows))
		params := map[string]any{"project": project, "batch": rows[start:end]}
		if err := l.runner.run(ctx, cypher, params); err != nil {
			return err
		}
	}
	return nil
}
