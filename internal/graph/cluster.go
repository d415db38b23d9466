package graph

import (
	"fmt"
	"slices"
	"strings"
)

// ComputeClusters groups files into connected components of the file graph
// induced by cross-file HANDLER and CALLS edges.
//
// Algorithm:
//  1. Build an undirected adjacency list from edges whose endpoints live in different files.
//  2. Find connected components via BFS, visiting files in path order.
//  3. For each component with >= 2 files, compute a cohesion score and name it
//     after the members' longest common directory prefix.
func ComputeClusters(g *CallGraph) []ClusterNode {
	files := g.Files()
	adj := buildAdjacency(g, files)

	visited := make(map[string]bool, len(files))
	names := make(map[string]int)
	var clusters []ClusterNode

	for _, f := range files {
		if visited[f.Path] {
			continue
		}
		component := bfsComponent(f.Path, adj, visited)
		if len(component) < 2 {
			continue
		}
		slices.Sort(component)

		name := longestCommonPrefix(component)
		if name == "" {
			name = "./"
		}
		// Cluster names are primary keys in the graph store.
		if n := names[name]; n > 0 {
			names[name] = n + 1
			name = fmt.Sprintf("%s#%d", name, n+1)
		} else {
			names[name] = 1
		}

		clusters = append(clusters, ClusterNode{
			Name:          name,
			CohesionScore: computeCohesion(component, g.Edges()),
			Members:       component,
		})
	}
	return clusters
}

// buildAdjacency constructs a bidirectional file adjacency list in a single
// pass over the graph's edges.
func buildAdjacency(g *CallGraph, files []FileNode) map[string]map[string]bool {
	adj := make(map[string]map[string]bool, len(files))
	for _, f := range files {
		adj[f.Path] = make(map[string]bool)
	}
	for _, e := range g.Edges() {
		if e.From.File == e.To.File {
			continue
		}
		if adj[e.From.File] != nil && adj[e.To.File] != nil {
			adj[e.From.File][e.To.File] = true
			adj[e.To.File][e.From.File] = true
		}
	}
	return adj
}

// bfsComponent performs BFS from start on the adjacency list and returns
// all reachable nodes. It marks visited nodes as it goes.
func bfsComponent(start string, adj map[string]map[string]bool, visited map[string]bool) []string {
	var component []string
	queue := []string{start}
	visited[start] = true

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		component = append(component, node)
		neighbors := make([]string, 0, len(adj[node]))
		for n := range adj[node] {
			neighbors = append(neighbors, n)
		}
		slices.Sort(neighbors)
		for _, n := range neighbors {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return component
}

// computeCohesion returns intra_file / (intra_file + cross_file) over the
// edges that originate in the component. A component whose members mostly
// call into themselves scores close to 1.
func computeCohesion(component []string, edges []Edge) float64 {
	members := make(map[string]bool, len(component))
	for _, m := range component {
		members[m] = true
	}

	intra, cross := 0, 0
	for _, e := range edges {
		if !members[e.From.File] {
			continue
		}
		if e.From.File == e.To.File {
			intra++
		} else {
			cross++
		}
	}

	total := intra + cross
	if total == 0 {
		return 0
	}
	return float64(intra) / float64(total)
}

// longestCommonPrefix finds the longest common path prefix among a set of
// file paths. Returns an empty string if no common prefix is found.
func longestCommonPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	if len(paths) == 1 {
		return paths[0]
	}

	prefix := paths[0]
	for _, p := range paths[1:] {
		for !strings.HasPrefix(p, prefix) {
			trimmed := strings.TrimRight(prefix, "/")
			idx := strings.LastIndex(trimmed, "/")
			if idx < 0 {
				return ""
			}
			prefix = trimmed[:idx+1]
			if prefix == "/" || prefix == "" {
				return prefix
			}
		}
	}

	// Ensure prefix ends at a directory boundary.
	if !strings.HasSuffix(prefix, "/") {
		idx := strings.LastIndex(prefix, "/")
		if idx >= 0 {
			prefix = prefix[:idx+1]
		} else {
			return ""
		}
	}
	return prefix
}
