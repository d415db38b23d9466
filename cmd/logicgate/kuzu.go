//go:build cgo

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// writeKuzu replaces the Kuzu database at dir with g and its clusters.
func writeKuzu(ctx context.Context, dir string, g *graph.CallGraph, clusters []graph.ClusterNode) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove old graph: %w", err)
	}
	store, err := graph.NewKuzuFileStore(dir)
	if err != nil {
		return err
	}
	defer store.Close()
	return graph.Persist(ctx, store, g, clusters)
}

// runLookup prints functions matching pattern from the persisted graph at
// dir, with their callers and cluster. It prints nothing when no graph exists.
func runLookup(ctx context.Context, w io.Writer, dir, pattern string, limit int) error {
	if _, err := os.Stat(dir); err != nil {
		return nil
	}
	store, err := graph.NewKuzuFileStore(dir)
	if err != nil {
		return nil
	}
	defer store.Close()

	fns, err := store.QueryFunctions(ctx, pattern, limit)
	if err != nil || len(fns) == 0 {
		return nil
	}
	edges, err := store.GetAllEdges(ctx)
	if err != nil {
		return err
	}
	clusters, err := store.GetClusters(ctx)
	if err != nil {
		return err
	}
	writeLookup(w, pattern, fns, edges, clusters)
	return nil
}
