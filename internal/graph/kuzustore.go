//go:build cgo

package graph

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements the Store interface using KuzuDB as the graph backend.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
	seq  atomic.Int64
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given path. KuzuDB creates the leaf directory itself for new databases.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by InitSchema.
// Node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS File(
		path STRING,
		dialect STRING,
		loc INT64,
		PRIMARY KEY(path)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Function(
		id STRING,
		name STRING,
		file_path STRING,
		kind STRING,
		start_line INT64,
		end_line INT64,
		seq INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Route(
		id STRING,
		name STRING,
		file_path STRING,
		line INT64,
		col INT64,
		method STRING,
		path STRING,
		receiver STRING,
		handler_kind STRING,
		handler_name STRING,
		handler_object STRING,
		handler_start INT64,
		handler_end INT64,
		middleware STRING,
		seq INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Cluster(
		name STRING,
		cohesion_score DOUBLE,
		PRIMARY KEY(name)
	)`,
	`CREATE REL TABLE IF NOT EXISTS DEFINES(FROM File TO Function)`,
	`CREATE REL TABLE IF NOT EXISTS HANDLER(FROM Route TO Function, line INT64, seq INT64)`,
	`CREATE REL TABLE IF NOT EXISTS CALLS(FROM Function TO Function, line INT64, seq INT64)`,
	`CREATE REL TABLE IF NOT EXISTS BELONGS_TO(FROM File TO Cluster)`,
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Write operations ----------

// AddFile inserts a File node.
func (s *KuzuStore) AddFile(_ context.Context, node FileNode) error {
	return s.exec(
		"CREATE (f:File {path: $path, dialect: $dialect, loc: $loc})",
		map[string]any{
			"path":    node.Path,
			"dialect": string(node.Dialect),
			"loc":     int64(node.LOC),
		},
	)
}

// AddFunction inserts a Function node and links it to its defining file.
func (s *KuzuStore) AddFunction(_ context.Context, fn FunctionInfo) error {
	err := s.exec(
		`CREATE (f:Function {
			id: $id,
			name: $name,
			file_path: $fp,
			kind: $kind,
			start_line: $sl,
			end_line: $el,
			seq: $seq
		})`,
		map[string]any{
			"id":   fn.Key().String(),
			"name": fn.Name,
			"fp":   fn.File,
			"kind": string(fn.Kind),
			"sl":   int64(fn.StartLine),
			"el":   int64(fn.EndLine),
			"seq":  s.seq.Add(1),
		},
	)
	if err != nil {
		return err
	}
	return s.exec(
		`MATCH (a:File {path: $fp}), (b:Function {id: $id}) CREATE (a)-[:DEFINES]->(b)`,
		map[string]any{"fp": fn.File, "id": fn.Key().String()},
	)
}

// AddRoute inserts a Route node.
func (s *KuzuStore) AddRoute(_ context.Context, r RouteInfo) error {
	return s.exec(
		`CREATE (r:Route {
			id: $id,
			name: $name,
			file_path: $fp,
			line: $line,
			col: $col,
			method: $method,
			path: $path,
			receiver: $recv,
			handler_kind: $hk,
			handler_name: $hn,
			handler_object: $ho,
			handler_start: $hs,
			handler_end: $he,
			middleware: $mw,
			seq: $seq
		})`,
		map[string]any{
			"id":     r.Key().String(),
			"name":   r.ID(),
			"fp":     r.File,
			"line":   int64(r.Line),
			"col":    int64(r.Column),
			"method": string(r.Method),
			"path":   r.Path,
			"recv":   r.Receiver,
			"hk":     string(r.Handler.Kind),
			"hn":     r.Handler.Name,
			"ho":     r.Handler.Object,
			"hs":     int64(r.Handler.StartLine),
			"he":     int64(r.Handler.EndLine),
			"mw":     strings.Join(r.Middleware, ","),
			"seq":    s.seq.Add(1),
		},
	)
}

// AddCluster inserts a Cluster node and a BELONGS_TO edge per member file.
func (s *KuzuStore) AddCluster(_ context.Context, c ClusterNode) error {
	err := s.exec(
		"CREATE (c:Cluster {name: $name, cohesion_score: $score})",
		map[string]any{"name": c.Name, "score": c.CohesionScore},
	)
	if err != nil {
		return err
	}
	for _, member := range c.Members {
		err := s.exec(
			`MATCH (a:File {path: $src}), (b:Cluster {name: $dst}) CREATE (a)-[:BELONGS_TO]->(b)`,
			map[string]any{"src": member, "dst": c.Name},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// AddEdge inserts a HANDLER or CALLS relationship.
func (s *KuzuStore) AddEdge(_ context.Context, edge Edge) error {
	var cypher string
	switch edge.Kind {
	case EdgeKindHandler:
		cypher = `MATCH (a:Route {id: $src}), (b:Function {id: $dst})
				CREATE (a)-[:HANDLER {line: $line, seq: $seq}]->(b)`
	case EdgeKindCalls:
		cypher = `MATCH (a:Function {id: $src}), (b:Function {id: $dst})
				CREATE (a)-[:CALLS {line: $line, seq: $seq}]->(b)`
	default:
		return fmt.Errorf("kuzu: unsupported edge kind: %s", edge.Kind)
	}
	return s.exec(cypher, map[string]any{
		"src":  edge.From.String(),
		"dst":  edge.To.String(),
		"line": int64(edge.Line),
		"seq":  s.seq.Add(1),
	})
}

// ---------- Read operations ----------

const functionColumns = "f.name, f.file_path, f.kind, f.start_line, f.end_line"

// GetFunction retrieves a single Function node, or nil if not found.
func (s *KuzuStore) GetFunction(_ context.Context, file, name string) (*FunctionInfo, error) {
	key := NodeKey{File: file, Name: name, Kind: NodeKindFunction}
	rows, err := s.query(
		"MATCH (f:Function {id: $id}) RETURN "+functionColumns,
		map[string]any{"id": key.String()},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	fn := rowToFunction(rows[0])
	return &fn, nil
}

// QueryFunctions returns functions whose name contains the query string.
// An empty query returns every function.
func (s *KuzuStore) QueryFunctions(_ context.Context, queryStr string, limit int) ([]FunctionInfo, error) {
	if limit <= 0 {
		limit = 1 << 30
	}
	// Kuzu's CONTAINS never matches the empty string.
	match := `MATCH (f:Function) WHERE lower(f.name) CONTAINS lower($q)`
	params := map[string]any{"q": queryStr}
	if queryStr == "" {
		match, params = `MATCH (f:Function)`, nil
	}
	rows, err := s.query(
		match+` RETURN `+functionColumns+fmt.Sprintf(" ORDER BY f.seq LIMIT %d", limit),
		params,
	)
	if err != nil {
		return nil, err
	}
	out := make([]FunctionInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToFunction(r))
	}
	return out, nil
}

// ListRoutes returns every Route node in insertion order.
func (s *KuzuStore) ListRoutes(_ context.Context) ([]RouteInfo, error) {
	rows, err := s.query(
		`MATCH (r:Route)
		 RETURN r.file_path, r.line, r.col, r.method, r.path, r.receiver,
		        r.handler_kind, r.handler_name, r.handler_object, r.handler_start,
		        r.handler_end, r.middleware
		 ORDER BY r.seq`,
		nil,
	)
	if err != nil {
		return nil, err
	}
	out := make([]RouteInfo, 0, len(rows))
	for _, r := range rows {
		route := RouteInfo{
			File:     toString(r[0]),
			Line:     toInt(r[1]),
			Column:   toInt(r[2]),
			Method:   HTTPMethod(toString(r[3])),
			Path:     toString(r[4]),
			Receiver: toString(r[5]),
			Handler: HandlerRef{
				Kind:      HandlerKind(toString(r[6])),
				Name:      toString(r[7]),
				Object:    toString(r[8]),
				StartLine: toInt(r[9]),
				EndLine:   toInt(r[10]),
			},
		}
		if mw := toString(r[11]); mw != "" {
			route.Middleware = strings.Split(mw, ",")
		}
		out = append(out, route)
	}
	return out, nil
}

// GetClusters returns all Cluster nodes with their member files.
func (s *KuzuStore) GetClusters(_ context.Context) ([]ClusterNode, error) {
	rows, err := s.query("MATCH (c:Cluster) RETURN c.name, c.cohesion_score ORDER BY c.name", nil)
	if err != nil {
		return nil, err
	}
	out := make([]ClusterNode, 0, len(rows))
	for _, r := range rows {
		name := toString(r[0])
		memberRows, err := s.query(
			"MATCH (f:File)-[:BELONGS_TO]->(c:Cluster {name: $name}) RETURN f.path ORDER BY f.path",
			map[string]any{"name": name},
		)
		if err != nil {
			return nil, err
		}
		members := make([]string, 0, len(memberRows))
		for _, mr := range memberRows {
			members = append(members, toString(mr[0]))
		}
		out = append(out, ClusterNode{Name: name, CohesionScore: toFloat64(r[1]), Members: members})
	}
	return out, nil
}

// GetAllEdges returns HANDLER and CALLS edges in insertion order.
func (s *KuzuStore) GetAllEdges(_ context.Context) ([]Edge, error) {
	type relQuery struct {
		cypher   string
		kind     EdgeKind
		fromKind NodeKind
	}
	queries := []relQuery{
		{`MATCH (a:Route)-[e:HANDLER]->(b:Function)
		  RETURN a.file_path, a.name, b.file_path, b.name, e.line, e.seq`, EdgeKindHandler, NodeKindRoute},
		{`MATCH (a:Function)-[e:CALLS]->(b:Function)
		  RETURN a.file_path, a.name, b.file_path, b.name, e.line, e.seq`, EdgeKindCalls, NodeKindFunction},
	}

	type seqEdge struct {
		seq  int
		edge Edge
	}
	var all []seqEdge
	for _, q := range queries {
		rows, err := s.query(q.cypher, nil)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			all = append(all, seqEdge{
				seq: toInt(r[5]),
				edge: Edge{
					From: NodeKey{File: toString(r[0]), Name: toString(r[1]), Kind: q.fromKind},
					To:   NodeKey{File: toString(r[2]), Name: toString(r[3]), Kind: NodeKindFunction},
					Kind: q.kind,
					Line: toInt(r[4]),
				},
			})
		}
	}
	slices.SortStableFunc(all, func(a, b seqEdge) int { return cmp.Compare(a.seq, b.seq) })

	edges := make([]Edge, len(all))
	for i, e := range all {
		edges[i] = e.edge
	}
	return edges, nil
}

// ---------- Stats ----------

// Stats returns counts of all node and edge tables.
func (s *KuzuStore) Stats(_ context.Context) (*StoreStats, error) {
	var st StoreStats
	counts := []struct {
		table string
		dst   *int
	}{
		{"File", &st.FileCount},
		{"Route", &st.RouteCount},
		{"Function", &st.FunctionCount},
		{"Cluster", &st.ClusterCount},
	}
	for _, c := range counts {
		n, err := s.countTable(c.table)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}
	for _, rel := range []string{"HANDLER", "CALLS"} {
		rows, err := s.query(fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", rel), nil)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 && len(rows[0]) > 0 {
			st.EdgeCount += toInt(rows[0][0])
		}
	}
	return &st, nil
}

// ---------- Internal helpers ----------

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// countTable returns the number of rows in a node table.
func (s *KuzuStore) countTable(table string) (int, error) {
	// Table name is a fixed internal constant, not user input.
	rows, err := s.query(fmt.Sprintf("MATCH (n:%s) RETURN count(n)", table), nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// rowToFunction converts a functionColumns row into a FunctionInfo.
func rowToFunction(r []any) FunctionInfo {
	return FunctionInfo{
		Name:      toString(r[0]),
		File:      toString(r[1]),
		Kind:      FunctionKind(toString(r[2])),
		StartLine: toInt(r[3]),
		EndLine:   toInt(r[4]),
	}
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
