package mcptools

import (
	"github.com/dusk-indust/logicgate/internal/graph"
	"github.com/dusk-indust/logicgate/internal/scan"
)

// --- MCP Tool Input Types ---
// These structs define the JSON schema for each MCP tool's input.
// The MCP Go SDK auto-generates JSON schemas from struct tags.

// BuildGraphInput is the input for the build_graph MCP tool.
type BuildGraphInput struct {
	RepoPath    string   `json:"repoPath" jsonschema:"the absolute path to the JavaScript or TypeScript project to index"`
	ExcludeDirs []string `json:"excludeDirs,omitempty" jsonschema:"directory names or relative paths to skip (default: node_modules, .git, dist, build, .next, coverage)"`
	Extensions  []string `json:"extensions,omitempty" jsonschema:"file extensions to index (default: every JS/TS extension)"`
}

// BuildGraphOutput is the result of the build_graph MCP tool.
type BuildGraphOutput struct {
	RunID       string           `json:"runId"`
	Stats       graph.GraphStats `json:"stats"`
	Diagnostics scan.Diagnostics `json:"diagnostics"`
}

// ListRoutesInput is the input for the list_routes MCP tool.
type ListRoutesInput struct {
	Method string `json:"method,omitempty" jsonschema:"only routes registered with this method (get, post, put, patch, delete, use, all)"`
	Path   string `json:"path,omitempty" jsonschema:"only routes whose path pattern contains this text"`
}

// RouteSummary is one route as listed by list_routes.
type RouteSummary struct {
	ID         string   `json:"id"`
	Method     string   `json:"method"`
	Path       string   `json:"path"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Handler    string   `json:"handler"`
	Middleware []string `json:"middleware,omitempty"`
}

// ListRoutesOutput is the result of the list_routes MCP tool.
type ListRoutesOutput struct {
	Routes []RouteSummary `json:"routes"`
	Total  int            `json:"total"`
}

// GetSliceInput is the input for the get_slice MCP tool.
type GetSliceInput struct {
	RouteID string `json:"routeId,omitempty" jsonschema:"route id as returned by list_routes; takes precedence over method and path"`
	Method  string `json:"method,omitempty" jsonschema:"route method, used with path when routeId is empty"`
	Path    string `json:"path,omitempty" jsonschema:"route path pattern, used with method when routeId is empty"`
	Depth   *int   `json:"depth,omitempty" jsonschema:"maximum call depth below the handler; 0 returns the handler only (default: 5)"`
	Mermaid bool   `json:"mermaid,omitempty" jsonschema:"also render the slice as a Mermaid diagram"`
}

// GetSliceOutput is the result of the get_slice MCP tool.
type GetSliceOutput struct {
	Slice   graph.Slice `json:"slice"`
	Mermaid string      `json:"mermaid,omitempty"`
}

// QueryFunctionsInput is the input for the query_functions MCP tool.
type QueryFunctionsInput struct {
	Query string `json:"query" jsonschema:"search query for function names (case-insensitive substring match)"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results (default: 20)"`
}

// QueryFunctionsOutput is the result of the query_functions MCP tool.
type QueryFunctionsOutput struct {
	Functions []graph.FunctionInfo `json:"functions"`
	Total     int                  `json:"total"`
}

// GetClustersInput is the input for the get_clusters MCP tool.
type GetClustersInput struct{}

// GetClustersOutput is the result of the get_clusters MCP tool.
type GetClustersOutput struct {
	Clusters []graph.ClusterNode `json:"clusters"`
}
