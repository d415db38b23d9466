package graph

import "fmt"

// Slice returns the functions reachable from the route with key routeKey,
// in breadth-first discovery order. Depth 0 holds the resolved handler,
// depth 1 the functions it calls, and so on up to maxDepth. Each function
// appears once, at the depth it was first reached. Slice never mutates the
// graph and repeated calls return identical results.
func (g *CallGraph) Slice(routeKey NodeKey, maxDepth int) (*Slice, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, maxDepth)
	}
	route, ok := g.Route(routeKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, routeKey)
	}

	s := &Slice{Route: route, MaxDepth: maxDepth, Nodes: []SliceNode{}}
	visited := make(map[NodeKey]bool)

	frontier := g.expand(routeKey, visited, s, 0)
	for depth := 1; len(frontier) > 0; depth++ {
		if depth > maxDepth {
			s.Truncated = g.hasUnvisited(frontier, visited)
			break
		}
		var next []NodeKey
		for _, key := range frontier {
			next = append(next, g.expand(key, visited, s, depth)...)
		}
		frontier = next
	}
	return s, nil
}

// expand visits the unvisited targets of key's outgoing edges at depth and
// returns them in edge order.
func (g *CallGraph) expand(key NodeKey, visited map[NodeKey]bool, s *Slice, depth int) []NodeKey {
	var found []NodeKey
	for _, e := range g.out[key] {
		if visited[e.To] {
			continue
		}
		fn, ok := g.Function(e.To)
		if !ok {
			continue
		}
		visited[e.To] = true
		s.Nodes = append(s.Nodes, SliceNode{Function: fn, Depth: depth})
		found = append(found, e.To)
	}
	return found
}

// hasUnvisited reports whether any node in frontier has an outgoing edge to
// a node not yet visited.
func (g *CallGraph) hasUnvisited(frontier []NodeKey, visited map[NodeKey]bool) bool {
	for _, key := range frontier {
		for _, e := range g.out[key] {
			if !visited[e.To] {
				return true
			}
		}
	}
	return false
}

// SliceAll slices every route at maxDepth, in route order.
func (g *CallGraph) SliceAll(maxDepth int) ([]*Slice, error) {
	out := make([]*Slice, 0, len(g.routes))
	for _, r := range g.routes {
		s, err := g.Slice(r.Key(), maxDepth)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
