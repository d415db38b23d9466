package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/logicgate/internal/export"
	"github.com/dusk-indust/logicgate/internal/graph"
	"github.com/dusk-indust/logicgate/internal/scan"
)

// ErrNoGraph is returned by tools that need a graph before build_graph ran.
var ErrNoGraph = errors.New("no graph built; call build_graph first")

// PersistFunc copies a freshly built graph somewhere durable.
type PersistFunc func(ctx context.Context, root string, g *graph.CallGraph, clusters []graph.ClusterNode) error

// ServiceOptions configures a CodeIntelService.
type ServiceOptions struct {
	// Scan is the base scanner configuration. build_graph inputs override
	// its ExcludeDirs and Extensions.
	Scan scan.Options

	// DefaultDepth is used by get_slice when no depth is given. Default: 5.
	DefaultDepth int

	// Persist, when set, runs after every successful build. Failures are
	// logged and do not fail the tool call.
	Persist PersistFunc

	Logger *slog.Logger
}

// CodeIntelService holds the graph store and parser used by MCP tool handlers.
type CodeIntelService struct {
	store  graph.Store
	parser graph.Parser
	opts   ServiceOptions
	logger *slog.Logger

	mu     sync.RWMutex
	result *scan.Result
}

// NewCodeIntelService creates a CodeIntelService with the given store and parser.
func NewCodeIntelService(store graph.Store, parser graph.Parser, opts ServiceOptions) *CodeIntelService {
	if opts.DefaultDepth <= 0 {
		opts.DefaultDepth = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Scan.Logger == nil {
		opts.Scan.Logger = logger
	}
	return &CodeIntelService{store: store, parser: parser, opts: opts, logger: logger}
}

// BuildGraph scans a repository, rebuilds the call graph, loads it into the
// store and computes file clusters. Returns graph statistics.
func (s *CodeIntelService) BuildGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BuildGraphInput,
) (*mcp.CallToolResult, BuildGraphOutput, error) {
	if input.RepoPath == "" {
		return nil, BuildGraphOutput{}, fmt.Errorf("repoPath is required")
	}
	info, err := os.Stat(input.RepoPath)
	if err != nil {
		return nil, BuildGraphOutput{}, fmt.Errorf("cannot access repoPath: %w", err)
	}
	if !info.IsDir() {
		return nil, BuildGraphOutput{}, fmt.Errorf("repoPath is not a directory: %s", input.RepoPath)
	}

	opts := s.opts.Scan
	if len(input.ExcludeDirs) > 0 {
		opts.ExcludeDirs = input.ExcludeDirs
	}
	if len(input.Extensions) > 0 {
		opts.Extensions = input.Extensions
	}
	res, err := scan.NewScanner(s.parser, opts).Run(ctx, input.RepoPath)
	if err != nil {
		return nil, BuildGraphOutput{}, fmt.Errorf("scan: %w", err)
	}

	clusters := graph.ComputeClusters(res.Graph)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := graph.Persist(ctx, s.store, res.Graph, clusters); err != nil {
		return nil, BuildGraphOutput{}, fmt.Errorf("store graph: %w", err)
	}
	s.result = res

	if s.opts.Persist != nil {
		if err := s.opts.Persist(ctx, input.RepoPath, res.Graph, clusters); err != nil {
			s.logger.Warn("failed to persist graph", "error", err)
		}
	}

	diag := res.Diagnostics
	if diag.Skipped == nil {
		diag.Skipped = []scan.SkippedFile{}
	}
	return nil, BuildGraphOutput{
		RunID:       res.RunID,
		Stats:       res.Graph.Stats(),
		Diagnostics: diag,
	}, nil
}

// ListRoutes lists the routes of the stored graph, optionally filtered.
func (s *CodeIntelService) ListRoutes(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListRoutesInput,
) (*mcp.CallToolResult, ListRoutesOutput, error) {
	routes, err := s.store.ListRoutes(ctx)
	if err != nil {
		return nil, ListRoutesOutput{}, fmt.Errorf("list routes: %w", err)
	}

	out := ListRoutesOutput{Routes: []RouteSummary{}}
	for _, r := range routes {
		if input.Method != "" && !strings.EqualFold(string(r.Method), input.Method) {
			continue
		}
		if input.Path != "" && !strings.Contains(r.Path, input.Path) {
			continue
		}
		out.Routes = append(out.Routes, RouteSummary{
			ID:         r.Key().String(),
			Method:     string(r.Method),
			Path:       r.Path,
			File:       r.File,
			Line:       r.Line,
			Handler:    r.Handler.String(),
			Middleware: r.Middleware,
		})
	}
	out.Total = len(out.Routes)
	return nil, out, nil
}

// GetSlice returns the bounded call slice of one route.
func (s *CodeIntelService) GetSlice(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetSliceInput,
) (*mcp.CallToolResult, GetSliceOutput, error) {
	s.mu.RLock()
	res := s.result
	s.mu.RUnlock()
	if res == nil {
		return nil, GetSliceOutput{}, ErrNoGraph
	}
	g := res.Graph

	route, err := findRoute(g, input)
	if err != nil {
		return nil, GetSliceOutput{}, err
	}
	depth := s.opts.DefaultDepth
	if input.Depth != nil {
		depth = *input.Depth
	}
	slice, err := g.Slice(route.Key(), depth)
	if err != nil {
		return nil, GetSliceOutput{}, fmt.Errorf("slice: %w", err)
	}

	out := GetSliceOutput{Slice: *slice}
	if input.Mermaid {
		out.Mermaid = export.SliceMermaid(g, slice)
	}
	return nil, out, nil
}

// findRoute picks the route named by a route ID, or by method and path.
// A method and path shared by several registrations is ambiguous.
func findRoute(g *graph.CallGraph, input GetSliceInput) (graph.RouteInfo, error) {
	if input.RouteID != "" {
		for _, r := range g.Routes() {
			if r.Key().String() == input.RouteID {
				return r, nil
			}
		}
		return graph.RouteInfo{}, fmt.Errorf("%w: %s", graph.ErrRouteNotFound, input.RouteID)
	}
	if input.Method == "" || input.Path == "" {
		return graph.RouteInfo{}, fmt.Errorf("routeId or both method and path are required")
	}
	matches := g.FindRoutes(input.Method, input.Path)
	switch len(matches) {
	case 0:
		return graph.RouteInfo{}, fmt.Errorf("%w: %s %s", graph.ErrRouteNotFound, input.Method, input.Path)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.Key().String()
		}
		return graph.RouteInfo{}, fmt.Errorf("%s %s matches %d routes, pass routeId: %s",
			input.Method, input.Path, len(matches), strings.Join(ids, ", "))
	}
}

// QueryFunctions searches for functions by name substring match.
func (s *CodeIntelService) QueryFunctions(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryFunctionsInput,
) (*mcp.CallToolResult, QueryFunctionsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	fns, err := s.store.QueryFunctions(ctx, input.Query, limit)
	if err != nil {
		return nil, QueryFunctionsOutput{}, fmt.Errorf("query functions: %w", err)
	}
	if fns == nil {
		fns = []graph.FunctionInfo{}
	}
	return nil, QueryFunctionsOutput{Functions: fns, Total: len(fns)}, nil
}

// GetClusters returns all file clusters in the graph.
func (s *CodeIntelService) GetClusters(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GetClustersInput,
) (*mcp.CallToolResult, GetClustersOutput, error) {
	clusters, err := s.store.GetClusters(ctx)
	if err != nil {
		return nil, GetClustersOutput{}, fmt.Errorf("get clusters: %w", err)
	}
	if clusters == nil {
		clusters = []graph.ClusterNode{}
	}
	return nil, GetClustersOutput{Clusters: clusters}, nil
}
