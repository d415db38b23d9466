package graph

import (
	"context"
	"fmt"
	"io"
)

// Store persists a built call graph for later querying.
// Implementations: KuzuStore (on-disk, requires cgo), MemStore (in-process).
type Store interface {
	io.Closer

	// Schema setup, called once before any data is inserted.
	InitSchema(ctx context.Context) error

	// Write operations.
	AddFile(ctx context.Context, node FileNode) error
	AddFunction(ctx context.Context, fn FunctionInfo) error
	AddRoute(ctx context.Context, route RouteInfo) error
	AddCluster(ctx context.Context, cluster ClusterNode) error
	AddEdge(ctx context.Context, edge Edge) error

	// Read operations.
	GetFunction(ctx context.Context, file, name string) (*FunctionInfo, error)
	QueryFunctions(ctx context.Context, query string, limit int) ([]FunctionInfo, error)
	ListRoutes(ctx context.Context) ([]RouteInfo, error)
	GetClusters(ctx context.Context) ([]ClusterNode, error)
	GetAllEdges(ctx context.Context) ([]Edge, error)

	// Stats.
	Stats(ctx context.Context) (*StoreStats, error)
}

// StoreStats counts the rows held by a Store.
type StoreStats struct {
	FileCount     int `json:"fileCount"`
	RouteCount    int `json:"routeCount"`
	FunctionCount int `json:"functionCount"`
	ClusterCount  int `json:"clusterCount"`
	EdgeCount     int `json:"edgeCount"`
}

// Persist writes every node and edge of g, plus clusters, into store.
// The store schema is initialized first.
func Persist(ctx context.Context, store Store, g *CallGraph, clusters []ClusterNode) error {
	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	for _, f := range g.Files() {
		if err := store.AddFile(ctx, f); err != nil {
			return fmt.Errorf("add file %s: %w", f.Path, err)
		}
	}
	for _, fn := range g.Functions() {
		if err := store.AddFunction(ctx, fn); err != nil {
			return fmt.Errorf("add function %s: %w", fn.Key(), err)
		}
	}
	for _, r := range g.Routes() {
		if err := store.AddRoute(ctx, r); err != nil {
			return fmt.Errorf("add route %s: %w", r.Key(), err)
		}
	}
	for _, e := range g.Edges() {
		if err := store.AddEdge(ctx, e); err != nil {
			return fmt.Errorf("add edge %s->%s: %w", e.From, e.To, err)
		}
	}
	for _, c := range clusters {
		if err := store.AddCluster(ctx, c); err != nil {
			return fmt.Errorf("add cluster %s: %w", c.Name, err)
		}
	}
	return nil
}
