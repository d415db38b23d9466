package graph

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
// Insertion order is kept so reads are deterministic.
type MemStore struct {
	mu        sync.RWMutex
	files     map[string]FileNode
	functions map[NodeKey]FunctionInfo
	funcOrder []NodeKey
	routes    []RouteInfo
	edges     []Edge
	clusters  []ClusterNode
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		files:     make(map[string]FileNode),
		functions: make(map[NodeKey]FunctionInfo),
	}
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

// InitSchema clears any previously stored graph.
func (m *MemStore) InitSchema(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = make(map[string]FileNode)
	m.functions = make(map[NodeKey]FunctionInfo)
	m.funcOrder = nil
	m.routes = nil
	m.edges = nil
	m.clusters = nil
	return nil
}

// AddFile stores a file node keyed by its path.
func (m *MemStore) AddFile(_ context.Context, node FileNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[node.Path] = node
	return nil
}

// AddFunction stores a function keyed by file and name.
func (m *MemStore) AddFunction(_ context.Context, fn FunctionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fn.Key()
	if _, ok := m.functions[key]; !ok {
		m.funcOrder = append(m.funcOrder, key)
	}
	m.functions[key] = fn
	return nil
}

// AddRoute appends a route.
func (m *MemStore) AddRoute(_ context.Context, route RouteInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route)
	return nil
}

// AddCluster appends a cluster.
func (m *MemStore) AddCluster(_ context.Context, cluster ClusterNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusters = append(m.clusters, cluster)
	return nil
}

// AddEdge appends an edge.
func (m *MemStore) AddEdge(_ context.Context, edge Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, edge)
	return nil
}

// GetFunction returns the function for the given file and name, or nil if not found.
func (m *MemStore) GetFunction(_ context.Context, file, name string) (*FunctionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.functions[NodeKey{File: file, Name: name, Kind: NodeKindFunction}]
	if !ok {
		return nil, nil
	}
	return &fn, nil
}

// QueryFunctions returns functions whose name contains query
// (case-insensitive), up to limit results. A limit <= 0 returns all matches.
func (m *MemStore) QueryFunctions(_ context.Context, query string, limit int) ([]FunctionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lowerQuery := strings.ToLower(query)
	var results []FunctionInfo
	for _, key := range m.funcOrder {
		fn := m.functions[key]
		if strings.Contains(strings.ToLower(fn.Name), lowerQuery) {
			results = append(results, fn)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// ListRoutes returns every stored route in insertion order.
func (m *MemStore) ListRoutes(_ context.Context) ([]RouteInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.routes), nil
}

// GetClusters returns every stored cluster.
func (m *MemStore) GetClusters(_ context.Context) ([]ClusterNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.clusters), nil
}

// GetAllEdges returns every stored edge in insertion order.
func (m *MemStore) GetAllEdges(_ context.Context) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.edges), nil
}

// Stats returns row counts.
func (m *MemStore) Stats(_ context.Context) (*StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &StoreStats{
		FileCount:     len(m.files),
		RouteCount:    len(m.routes),
		FunctionCount: len(m.functions),
		ClusterCount:  len(m.clusters),
		EdgeCount:     len(m.edges),
	}, nil
}
