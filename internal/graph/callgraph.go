package graph

import (
	"slices"
	"strings"
)

// CallGraph is the directed graph over routes and functions for one analysis
// run. It is frozen once Builder.Build returns: every method is read-only and
// safe for concurrent use.
type CallGraph struct {
	files     []FileNode
	routes    []RouteInfo
	routeIdx  map[NodeKey]int
	functions []FunctionInfo
	funcIdx   map[NodeKey]int
	edges     []Edge
	out       map[NodeKey][]Edge
	build     BuildStats
}

func newCallGraph() *CallGraph {
	return &CallGraph{
		routeIdx: make(map[NodeKey]int),
		funcIdx:  make(map[NodeKey]int),
		out:      make(map[NodeKey][]Edge),
	}
}

// addFunction inserts or replaces a function node. A later definition with
// the same key replaces the earlier one but keeps its insertion position.
func (g *CallGraph) addFunction(fn FunctionInfo) {
	key := fn.Key()
	if i, ok := g.funcIdx[key]; ok {
		g.functions[i] = fn
		return
	}
	g.funcIdx[key] = len(g.functions)
	g.functions = append(g.functions, fn)
}

func (g *CallGraph) addRoute(r RouteInfo) {
	key := r.Key()
	if _, ok := g.routeIdx[key]; ok {
		return
	}
	g.routeIdx[key] = len(g.routes)
	g.routes = append(g.routes, r)
}

func (g *CallGraph) addEdge(e Edge) {
	g.edges = append(g.edges, e)
	g.out[e.From] = append(g.out[e.From], e)
}

// Routes returns every route node in scan order.
func (g *CallGraph) Routes() []RouteInfo {
	return slices.Clone(g.routes)
}

// Route returns the route with the given key.
func (g *CallGraph) Route(key NodeKey) (RouteInfo, bool) {
	i, ok := g.routeIdx[key]
	if !ok {
		return RouteInfo{}, false
	}
	return g.routes[i], true
}

// FindRoutes returns routes whose method equals method (when non-empty) and
// whose path equals path (when non-empty), in scan order.
func (g *CallGraph) FindRoutes(method, path string) []RouteInfo {
	var out []RouteInfo
	for _, r := range g.routes {
		if method != "" && !strings.EqualFold(string(r.Method), method) {
			continue
		}
		if path != "" && r.Path != path {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Function returns the function node with the given key.
func (g *CallGraph) Function(key NodeKey) (FunctionInfo, bool) {
	i, ok := g.funcIdx[key]
	if !ok {
		return FunctionInfo{}, false
	}
	return g.functions[i], true
}

// Functions returns every function node in scan order.
func (g *CallGraph) Functions() []FunctionInfo {
	return slices.Clone(g.functions)
}

// QueryFunctions returns functions whose name contains query
// (case-insensitive), up to limit results. A limit <= 0 returns all matches.
func (g *CallGraph) QueryFunctions(query string, limit int) []FunctionInfo {
	lowerQuery := strings.ToLower(query)
	var results []FunctionInfo
	for _, fn := range g.functions {
		if strings.Contains(strings.ToLower(fn.Name), lowerQuery) {
			results = append(results, fn)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results
}

// Edges returns every edge in the order it was recorded.
func (g *CallGraph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Out returns the outgoing edges of key in recorded order.
func (g *CallGraph) Out(key NodeKey) []Edge {
	return slices.Clone(g.out[key])
}

// Files returns every file the graph was built from, sorted by path.
func (g *CallGraph) Files() []FileNode {
	return slices.Clone(g.files)
}

// Stats summarizes the graph.
func (g *CallGraph) Stats() GraphStats {
	return GraphStats{
		FileCount:     len(g.files),
		RouteCount:    len(g.routes),
		FunctionCount: len(g.functions),
		EdgeCount:     len(g.edges),
		Build:         g.build,
	}
}
