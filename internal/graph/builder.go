package graph

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/dusk-indust/logicgate/internal/graph")

// boundImport is an import binding whose specifier resolved to a scanned file.
type boundImport struct {
	target   string
	imported string
}

// Builder assembles a CallGraph from per-file records. Build is single
// threaded and must only run after every file has been extracted.
type Builder struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewBuilder creates a Builder. A nil resolver resolves relative imports
// against the scanned files only; a nil logger uses slog.Default().
func NewBuilder(resolver *Resolver, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{resolver: resolver, logger: logger}
}

// buildState is the per-Build lookup state.
type buildState struct {
	g       *CallGraph
	byName  map[string]map[string]FunctionInfo
	imports map[string]map[string]boundImport
}

// Build creates one node per route and function, then resolves every route
// handler and call site. Resolution tries, in order: a function with the
// same name in the same file, then the function named through an import
// binding in the resolved file. Anything else is dropped and counted.
func (b *Builder) Build(ctx context.Context, files []FileRecords) *CallGraph {
	_, span := tracer.Start(ctx, "graph.Builder.Build")
	defer span.End()

	sorted := slices.Clone(files)
	slices.SortStableFunc(sorted, func(a, b FileRecords) int { return cmp.Compare(a.Path, b.Path) })

	resolver := b.resolver
	if resolver == nil {
		paths := make([]string, len(sorted))
		for i, f := range sorted {
			paths[i] = f.Path
		}
		resolver = NewResolver("", paths)
	}

	st := &buildState{
		g:       newCallGraph(),
		byName:  make(map[string]map[string]FunctionInfo, len(sorted)),
		imports: make(map[string]map[string]boundImport, len(sorted)),
	}

	// Nodes first so cross-file lookups see every file.
	for _, f := range sorted {
		st.g.files = append(st.g.files, FileNode{Path: f.Path, Dialect: f.Dialect, LOC: f.LOC})
		names := make(map[string]FunctionInfo, len(f.Functions))
		for _, fn := range f.Functions {
			names[fn.Name] = fn
			st.g.addFunction(fn)
		}
		st.byName[f.Path] = names
		for _, r := range f.Routes {
			st.g.addRoute(r)
		}
		st.imports[f.Path] = b.bindImports(resolver, f)
	}

	for _, f := range sorted {
		for _, r := range f.Routes {
			b.linkHandler(st, r)
		}
		for _, c := range f.Calls {
			b.linkCall(st, c)
		}
	}

	stats := st.g.build
	span.SetAttributes(
		attribute.Int("files", len(sorted)),
		attribute.Int("edges", len(st.g.edges)),
		attribute.Int("unresolved", stats.Unresolved),
	)
	b.logger.Info("call graph built",
		"files", len(sorted),
		"routes", len(st.g.routes),
		"functions", len(st.g.functions),
		"edges", len(st.g.edges),
		"resolved_calls", stats.Resolved,
		"unresolved_calls", stats.Unresolved,
		"module_scope_calls", stats.ModuleScope,
	)
	return st.g
}

// bindImports maps each locally bound import name in f to its resolved
// target file. Later imports of the same local name win.
func (b *Builder) bindImports(resolver *Resolver, f FileRecords) map[string]boundImport {
	out := make(map[string]boundImport)
	for _, imp := range f.Imports {
		target, ok := resolver.Resolve(imp.Specifier, f.Path)
		if !ok {
			continue
		}
		for _, bind := range imp.Bindings {
			out[bind.Local] = boundImport{target: target, imported: bind.Imported}
		}
	}
	return out
}

func (b *Builder) linkHandler(st *buildState, r RouteInfo) {
	var (
		target FunctionInfo
		ok     bool
	)
	switch r.Handler.Kind {
	case HandlerInline:
		target, ok = st.byName[r.File][r.Handler.Name]
	case HandlerMember:
		target, ok = st.resolve(r.File, CallRef{Form: CallMember, Name: r.Handler.Name, Object: r.Handler.Object})
	default:
		target, ok = st.resolve(r.File, CallRef{Form: CallDirect, Name: r.Handler.Name})
	}
	if !ok {
		st.g.build.UnresolvedHandlers++
		b.logger.Debug("route handler unresolved",
			"file", r.File, "route", r.ID(), "handler", r.Handler.String())
		return
	}
	st.g.build.HandlerEdges++
	st.g.addEdge(Edge{From: r.Key(), To: target.Key(), Kind: EdgeKindHandler, Line: r.Line})
}

func (b *Builder) linkCall(st *buildState, c CallInfo) {
	if c.Caller == ModuleScope {
		st.g.build.ModuleScope++
		return
	}
	from := NodeKey{File: c.File, Name: c.Caller, Kind: NodeKindFunction}
	if _, ok := st.g.funcIdx[from]; !ok {
		st.g.build.Unresolved++
		return
	}
	target, ok := st.resolve(c.File, c.Callee)
	if !ok {
		st.g.build.Unresolved++
		b.logger.Debug("call unresolved", "file", c.File, "line", c.Line, "callee", c.Callee.String())
		return
	}
	st.g.build.Resolved++
	st.g.addEdge(Edge{From: from, To: target.Key(), Kind: EdgeKindCalls, Line: c.Line})
}

// resolve finds the function a callee reference names, as seen from file.
func (st *buildState) resolve(file string, ref CallRef) (FunctionInfo, bool) {
	if fn, ok := st.byName[file][ref.Name]; ok {
		return fn, true
	}

	local := ref.Name
	if ref.Form == CallMember {
		local = ref.Object
	}
	bind, ok := st.imports[file][local]
	if !ok {
		return FunctionInfo{}, false
	}

	name := ref.Name
	if ref.Form == CallDirect && bind.imported != ImportDefault && bind.imported != ImportNamespace {
		name = bind.imported
	}
	fn, ok := st.byName[bind.target][name]
	return fn, ok
}
