package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// GraphExport is the top-level JSON export structure.
type GraphExport struct {
	Root       string               `json:"root"`
	RunID      string               `json:"runId,omitempty"`
	ExportedAt string               `json:"exportedAt"`
	Stats      *graph.StoreStats    `json:"stats"`
	Routes     []RouteExport        `json:"routes"`
	Functions  []graph.FunctionInfo `json:"functions"`
	Edges      []EdgeExport         `json:"edges"`
	Clusters   []graph.ClusterNode  `json:"clusters,omitempty"`
}

// RouteExport is a route with its node ID and handler spelled out.
type RouteExport struct {
	ID string `json:"id"`
	graph.RouteInfo
	HandlerName string `json:"handlerName"`
}

// EdgeExport is an edge between node IDs, as rendered by NodeKey.String.
type EdgeExport struct {
	From string         `json:"from"`
	To   string         `json:"to"`
	Kind graph.EdgeKind `json:"kind"`
	Line int            `json:"line"`
}

// ExportGraph builds a GraphExport from everything held by store.
func ExportGraph(ctx context.Context, store graph.Store, root, runID string) (*GraphExport, error) {
	stats, err := store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	routes, err := store.ListRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	functions, err := store.QueryFunctions(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	edges, err := store.GetAllEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("get edges: %w", err)
	}
	clusters, err := store.GetClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("get clusters: %w", err)
	}

	export := &GraphExport{
		Root:       root,
		RunID:      runID,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Stats:      stats,
		Routes:     make([]RouteExport, 0, len(routes)),
		Functions:  functions,
		Edges:      make([]EdgeExport, 0, len(edges)),
		Clusters:   clusters,
	}
	if export.Functions == nil {
		export.Functions = []graph.FunctionInfo{}
	}
	for _, r := range routes {
		export.Routes = append(export.Routes, RouteExport{
			ID:          r.Key().String(),
			RouteInfo:   r,
			HandlerName: r.Handler.String(),
		})
	}
	for _, e := range edges {
		export.Edges = append(export.Edges, EdgeExport{
			From: e.From.String(),
			To:   e.To.String(),
			Kind: e.Kind,
			Line: e.Line,
		})
	}
	return export, nil
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
