package graph

import (
	"errors"
	"fmt"
)

// --- Enums ---

// Dialect identifies which ECMAScript grammar parses a file.
type Dialect string

const (
	DialectJavaScript Dialect = "javascript"
	DialectTypeScript Dialect = "typescript"
	DialectTSX        Dialect = "tsx"
)

// HTTPMethod is a route registration method name as written in source.
// Matching is exact and case-sensitive.
type HTTPMethod string

const (
	MethodGet    HTTPMethod = "get"
	MethodPost   HTTPMethod = "post"
	MethodPut    HTTPMethod = "put"
	MethodPatch  HTTPMethod = "patch"
	MethodDelete HTTPMethod = "delete"
	MethodUse    HTTPMethod = "use"
	MethodAll    HTTPMethod = "all"
)

// httpMethods is the closed set of recognized route methods.
var httpMethods = map[HTTPMethod]bool{
	MethodGet:    true,
	MethodPost:   true,
	MethodPut:    true,
	MethodPatch:  true,
	MethodDelete: true,
	MethodUse:    true,
	MethodAll:    true,
}

// IsHTTPMethod reports whether name is one of the recognized route methods.
func IsHTTPMethod(name string) bool {
	return httpMethods[HTTPMethod(name)]
}

// FunctionKind classifies how a function was defined.
type FunctionKind string

const (
	FunctionKindDeclaration        FunctionKind = "declaration"
	FunctionKindArrowAssignment    FunctionKind = "arrow-assignment"
	FunctionKindFunctionExpression FunctionKind = "function-expression-assignment"
	FunctionKindMethod             FunctionKind = "method"
	FunctionKindInlineHandler      FunctionKind = "inline-handler"
)

// HandlerKind classifies the handler argument of a route registration.
type HandlerKind string

const (
	HandlerIdentifier HandlerKind = "identifier"
	HandlerMember     HandlerKind = "member"
	HandlerInline     HandlerKind = "inline"
)

// CallForm distinguishes bare identifier calls from member calls.
type CallForm string

const (
	CallDirect CallForm = "direct"
	CallMember CallForm = "member"
)

// ImportKind distinguishes CommonJS require bindings from ES imports.
type ImportKind string

const (
	ImportRequire ImportKind = "require"
	ImportES      ImportKind = "es-import"
)

// NodeKind classifies call graph nodes.
type NodeKind string

const (
	NodeKindRoute    NodeKind = "route"
	NodeKindFunction NodeKind = "function"
)

// EdgeKind classifies call graph edges.
type EdgeKind string

const (
	EdgeKindHandler EdgeKind = "HANDLER"
	EdgeKindCalls   EdgeKind = "CALLS"
)

// ModuleScope is the synthetic caller name for calls made outside any function.
const ModuleScope = "<module>"

// Imported names used for bindings that do not name a specific export.
const (
	ImportDefault   = "default"
	ImportNamespace = "*"
)

// --- Errors ---

var (
	// ErrParseFailure marks a file whose syntax tree contains errors.
	ErrParseFailure = errors.New("parse failure")

	// ErrUnsupportedDialect is returned for file extensions with no grammar.
	ErrUnsupportedDialect = errors.New("unsupported dialect")

	// ErrInvalidDepth is returned when a slice is requested with a negative depth.
	ErrInvalidDepth = errors.New("invalid depth")

	// ErrRouteNotFound is returned when a slice is requested for an unknown route.
	ErrRouteNotFound = errors.New("route not found")
)

// --- Records ---

// HandlerRef names the function bound as a route handler.
type HandlerRef struct {
	Kind HandlerKind `json:"kind"`
	// Name is the identifier, or the property for member handlers, or the
	// synthetic inline function name.
	Name string `json:"name"`
	// Object is set for member handlers (ctrl in ctrl.list).
	Object    string `json:"object,omitempty"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// String renders the handler the way it appears in source.
func (h HandlerRef) String() string {
	if h.Kind == HandlerMember {
		return h.Object + "." + h.Name
	}
	return h.Name
}

// RouteInfo is one HTTP route registration.
type RouteInfo struct {
	File       string     `json:"file"`
	Line       int        `json:"line"`
	Column     int        `json:"column"`
	Method     HTTPMethod `json:"method"`
	Path       string     `json:"path"`
	Receiver   string     `json:"receiver"`
	Handler    HandlerRef `json:"handler"`
	Middleware []string   `json:"middleware,omitempty"`
}

// ID returns the route node name, unique per call site within a file.
func (r RouteInfo) ID() string {
	return fmt.Sprintf("%s %s@%d:%d", r.Method, r.Path, r.Line, r.Column)
}

// Key returns the call graph key of the route node.
func (r RouteInfo) Key() NodeKey {
	return NodeKey{File: r.File, Name: r.ID(), Kind: NodeKindRoute}
}

// FunctionInfo is one function definition.
type FunctionInfo struct {
	Name      string       `json:"name"`
	File      string       `json:"file"`
	StartLine int          `json:"startLine"`
	EndLine   int          `json:"endLine"`
	Kind      FunctionKind `json:"kind"`
}

// Key returns the call graph key of the function node.
func (f FunctionInfo) Key() NodeKey {
	return NodeKey{File: f.File, Name: f.Name, Kind: NodeKindFunction}
}

// CallRef is the textual target of a call site.
type CallRef struct {
	Form CallForm `json:"form"`
	// Name is the identifier for direct calls or the property for member calls.
	Name   string `json:"name"`
	Object string `json:"object,omitempty"`
}

// String renders the callee the way it appears in source.
func (c CallRef) String() string {
	if c.Form == CallMember {
		return c.Object + "." + c.Name
	}
	return c.Name
}

// CallInfo is one call site.
type CallInfo struct {
	File   string  `json:"file"`
	Line   int     `json:"line"`
	Caller string  `json:"caller"`
	Callee CallRef `json:"callee"`
}

// ImportBinding is one locally bound name introduced by an import.
type ImportBinding struct {
	Local    string `json:"local"`
	Imported string `json:"imported"`
}

// ImportInfo is one require() binding or ES import statement.
type ImportInfo struct {
	File      string          `json:"file"`
	Line      int             `json:"line"`
	Kind      ImportKind      `json:"kind"`
	Specifier string          `json:"specifier"`
	Bindings  []ImportBinding `json:"bindings"`
}

// FileRecords holds everything extracted from a single source file.
type FileRecords struct {
	Path      string         `json:"path"`
	Dialect   Dialect        `json:"dialect"`
	LOC       int            `json:"loc"`
	Routes    []RouteInfo    `json:"routes"`
	Functions []FunctionInfo `json:"functions"`
	Calls     []CallInfo     `json:"calls"`
	Imports   []ImportInfo   `json:"imports"`
	Dropped   int            `json:"dropped"`
}

// --- Graph ---

// FileNode is a scanned source file.
type FileNode struct {
	Path    string  `json:"path"`
	Dialect Dialect `json:"dialect"`
	LOC     int     `json:"loc"`
}

// NodeKey identifies a call graph node.
type NodeKey struct {
	File string   `json:"file"`
	Name string   `json:"name"`
	Kind NodeKind `json:"kind"`
}

// String renders the key as "file:name".
func (k NodeKey) String() string {
	return k.File + ":" + k.Name
}

// Edge is a directed caller to callee relationship.
type Edge struct {
	From NodeKey  `json:"from"`
	To   NodeKey  `json:"to"`
	Kind EdgeKind `json:"kind"`
	Line int      `json:"line"`
}

// BuildStats summarizes call resolution during graph construction.
type BuildStats struct {
	Resolved           int `json:"resolved"`
	Unresolved         int `json:"unresolved"`
	ModuleScope        int `json:"moduleScope"`
	HandlerEdges       int `json:"handlerEdges"`
	UnresolvedHandlers int `json:"unresolvedHandlers"`
}

// GraphStats summarizes a call graph.
type GraphStats struct {
	FileCount     int        `json:"fileCount"`
	RouteCount    int        `json:"routeCount"`
	FunctionCount int        `json:"functionCount"`
	EdgeCount     int        `json:"edgeCount"`
	Build         BuildStats `json:"build"`
}

// SliceNode is one function reached while slicing, with its BFS depth.
type SliceNode struct {
	Function FunctionInfo `json:"function"`
	Depth    int          `json:"depth"`
}

// Slice is the bounded set of functions reachable from a route.
type Slice struct {
	Route    RouteInfo   `json:"route"`
	MaxDepth int         `json:"maxDepth"`
	Nodes    []SliceNode `json:"nodes"`
	// Truncated is set when unvisited functions remained past MaxDepth.
	Truncated bool `json:"truncated"`
}

// Functions returns the slice members in discovery order.
func (s *Slice) Functions() []FunctionInfo {
	out := make([]FunctionInfo, len(s.Nodes))
	for i, n := range s.Nodes {
		out[i] = n.Function
	}
	return out
}

// ClusterNode is a group of files connected by resolved calls.
type ClusterNode struct {
	Name          string   `json:"name"`
	CohesionScore float64  `json:"cohesionScore"`
	Members       []string `json:"members"`
}
