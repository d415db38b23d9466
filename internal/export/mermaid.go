// Package export renders a call graph for people and other tools: Mermaid
// diagrams, a JSON document and a Neo4j load.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// mermaidIDs hands out alphanumeric Mermaid node IDs in first-use order.
type mermaidIDs struct {
	ids  map[string]string
	next int
}

func newMermaidIDs() *mermaidIDs {
	return &mermaidIDs{ids: make(map[string]string)}
}

func (m *mermaidIDs) get(key string) string {
	if id, ok := m.ids[key]; ok {
		return id
	}
	id := fmt.Sprintf("N%d", m.next)
	m.next++
	m.ids[key] = id
	return id
}

// SliceMermaid draws a route slice as a Mermaid graph TD: the route as a
// stadium node, each sliced function labelled with its depth, and every
// handler or call edge between members of the slice.
func SliceMermaid(g *graph.CallGraph, s *graph.Slice) string {
	ids := newMermaidIDs()
	member := make(map[graph.NodeKey]bool, len(s.Nodes)+1)
	routeKey := s.Route.Key()
	member[routeKey] = true

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	fmt.Fprintf(&sb, "  %s([\"%s\"])\n", ids.get(routeKey.String()), escapeLabel(strings.ToUpper(string(s.Route.Method))+" "+s.Route.Path))
	for _, n := range s.Nodes {
		key := n.Function.Key()
		member[key] = true
		fmt.Fprintf(&sb, "  %s[\"%s<br/>%s · d%d\"]\n", ids.get(key.String()), escapeLabel(n.Function.Name), shortPath(n.Function.File), n.Depth)
	}

	writeEdges := func(from graph.NodeKey) {
		for _, e := range g.Out(from) {
			if member[e.To] {
				fmt.Fprintf(&sb, "  %s %s %s\n", ids.get(e.From.String()), arrow(e.Kind), ids.get(e.To.String()))
			}
		}
	}
	writeEdges(routeKey)
	for _, n := range s.Nodes {
		writeEdges(n.Function.Key())
	}
	if s.Truncated {
		fmt.Fprintf(&sb, "  %s[\"… depth limit %d\"]\n", ids.get("<truncated>"), s.MaxDepth)
	}
	return sb.String()
}

// GenerateMermaid draws everything held by store as a Mermaid graph TD.
// Functions are grouped into one subgraph per file and files that belong
// to a cluster are nested under it.
func GenerateMermaid(ctx context.Context, store graph.Store) (string, error) {
	routes, err := store.ListRoutes(ctx)
	if err != nil {
		return "", fmt.Errorf("list routes: %w", err)
	}
	functions, err := store.QueryFunctions(ctx, "", 0)
	if err != nil {
		return "", fmt.Errorf("list functions: %w", err)
	}
	clusters, err := store.GetClusters(ctx)
	if err != nil {
		return "", fmt.Errorf("get clusters: %w", err)
	}
	edges, err := store.GetAllEdges(ctx)
	if err != nil {
		return "", fmt.Errorf("get edges: %w", err)
	}

	byFile := make(map[string][]graph.FunctionInfo)
	var files []string
	for _, fn := range functions {
		if _, ok := byFile[fn.File]; !ok {
			files = append(files, fn.File)
		}
		byFile[fn.File] = append(byFile[fn.File], fn)
	}
	slices.Sort(files)

	ids := newMermaidIDs()
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	writeFile := func(indent, file string) {
		fmt.Fprintf(&sb, "%ssubgraph %s[\"%s\"]\n", indent, ids.get("file:"+file), escapeLabel(shortPath(file)))
		for _, fn := range byFile[file] {
			fmt.Fprintf(&sb, "%s  %s[\"%s\"]\n", indent, ids.get(fn.Key().String()), escapeLabel(fn.Name))
		}
		fmt.Fprintf(&sb, "%send\n", indent)
	}

	placed := make(map[string]bool)
	for _, c := range clusters {
		members := slices.Clone(c.Members)
		slices.Sort(members)
		fmt.Fprintf(&sb, "  subgraph %s[\"%.40s\"]\n", ids.get("cluster:"+c.Name), escapeLabel(c.Name))
		for _, file := range members {
			if len(byFile[file]) == 0 || placed[file] {
				continue
			}
			placed[file] = true
			writeFile("    ", file)
		}
		sb.WriteString("  end\n")
	}
	for _, file := range files {
		if !placed[file] {
			writeFile("  ", file)
		}
	}

	for _, r := range routes {
		fmt.Fprintf(&sb, "  %s([\"%s\"])\n", ids.get(r.Key().String()), escapeLabel(strings.ToUpper(string(r.Method))+" "+r.Path))
	}
	for _, e := range edges {
		fmt.Fprintf(&sb, "  %s %s %s\n", ids.get(e.From.String()), arrow(e.Kind), ids.get(e.To.String()))
	}
	return sb.String(), nil
}

func arrow(kind graph.EdgeKind) string {
	if kind == graph.EdgeKindHandler {
		return "==>"
	}
	return "-->"
}

// escapeLabel makes text safe inside a quoted Mermaid label.
func escapeLabel(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "<", "#lt;", ">", "#gt;").Replace(s)
}

// shortPath returns the last 2 path segments for readability.
func shortPath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= 2 {
		return path
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
