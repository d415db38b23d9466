package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// span is the byte range of a function body used for caller association.
type span struct {
	name       string
	start, end uint
}

// positioned keeps a record alongside the byte offset it was found at so
// records can be put back into source order.
type positioned[T any] struct {
	at  uint
	rec T
}

// extractor converts matches into records for one file.
type extractor struct {
	path   string
	source []byte

	functions []positioned[FunctionInfo]
	routes    []positioned[RouteInfo]
	calls     []positioned[CallInfo]
	imports   []positioned[ImportInfo]
	spans     []span
	dropped   int
}

// extract runs every query family over root in dependency order: function
// spans first, then routes (whose inline handlers add spans), then calls and
// imports.
func extract(m *Matcher, root *tree_sitter.Node, source []byte, path string) *FileRecords {
	e := &extractor{path: path, source: source}

	for _, fam := range QueryFamilies {
		for match := range m.Matches(fam, root, source) {
			e.add(match)
		}
		if fam == FamilyFunctions {
			e.indexSpans()
		}
	}

	return &FileRecords{
		Path:      path,
		Routes:    records(e.routes),
		Functions: records(e.functions),
		Calls:     records(e.calls),
		Imports:   records(e.imports),
		Dropped:   e.dropped,
	}
}

// add dispatches a match to the handler for its family.
func (e *extractor) add(m Match) {
	switch m := m.(type) {
	case FunctionMatch:
		e.addFunction(m)
	case RouteMatch:
		e.addRoute(m)
	case CallMatch:
		e.addCall(m)
	case ImportMatch:
		e.addImport(m)
	default:
		e.dropped++
	}
}

// --- Functions ---

func (e *extractor) addFunction(m FunctionMatch) {
	if m.Def == nil || m.Name == nil {
		e.dropped++
		return
	}
	name := e.text(m.Name)
	if name == "" {
		e.dropped++
		return
	}

	var kind FunctionKind
	switch m.Def.Kind() {
	case "function_declaration", "generator_function_declaration":
		kind = FunctionKindDeclaration
	case "method_definition":
		kind = FunctionKindMethod
	default:
		if m.Value == nil {
			e.dropped++
			return
		}
		if m.Value.Kind() == "arrow_function" {
			kind = FunctionKindArrowAssignment
		} else {
			kind = FunctionKindFunctionExpression
		}
	}

	e.functions = append(e.functions, positioned[FunctionInfo]{
		at: m.Def.StartByte(),
		rec: FunctionInfo{
			Name:      name,
			File:      e.path,
			StartLine: startLine(m.Def),
			EndLine:   endLine(m.Def),
			Kind:      kind,
		},
	})
	e.spans = append(e.spans, span{name: name, start: m.Def.StartByte(), end: m.Def.EndByte()})
}

// indexSpans orders function records and spans by source position.
func (e *extractor) indexSpans() {
	slices.SortStableFunc(e.functions, byPosition[FunctionInfo])
	slices.SortStableFunc(e.spans, func(a, b span) int { return cmp.Compare(a.start, b.start) })
}

// enclosing returns the smallest function span containing offset, or the
// module-scope caller when no function contains it.
func (e *extractor) enclosing(offset uint) string {
	best := -1
	for i, s := range e.spans {
		if offset < s.start || offset >= s.end {
			continue
		}
		if best < 0 || s.end-s.start <= e.spans[best].end-e.spans[best].start {
			best = i
		}
	}
	if best < 0 {
		return ModuleScope
	}
	return e.spans[best].name
}

// --- Routes ---

func (e *extractor) addRoute(m RouteMatch) {
	if m.Call == nil || m.Object == nil || m.Method == nil || m.Args == nil {
		e.dropped++
		return
	}
	method := e.text(m.Method)
	if !IsHTTPMethod(method) {
		return
	}

	args := namedChildren(m.Args)
	if len(args) == 0 {
		return
	}

	receiver := m.Object
	path, rest, hasPath := "", args, false
	if isStringLike(args[0]) {
		path, rest, hasPath = unquote(e.text(args[0])), args[1:], true
	} else if chainPath, chainRecv, ok := e.routeChain(m.Object); ok {
		path, receiver, hasPath = chainPath, chainRecv, true
	}
	if !hasPath {
		// cache.get(key) and friends: only use() may omit the path.
		if HTTPMethod(method) != MethodUse {
			return
		}
		path = "*"
	}
	if len(rest) == 0 {
		return
	}

	handlerNode := unwrapHandler(rest[len(rest)-1])
	if HTTPMethod(method) == MethodUse && !isFunctionNode(handlerNode) {
		// app.use(express.json()) registers middleware, not a handler.
		return
	}

	route := RouteInfo{
		File:     e.path,
		Line:     startLine(m.Call),
		Column:   int(m.Call.StartPosition().Column) + 1,
		Method:   HTTPMethod(method),
		Path:     path,
		Receiver: e.text(receiver),
	}
	for _, mw := range rest[:len(rest)-1] {
		switch mw.Kind() {
		case "identifier", "member_expression":
			route.Middleware = append(route.Middleware, e.text(mw))
		}
	}

	ref, ok := e.handlerRef(route, handlerNode)
	if !ok {
		e.dropped++
		return
	}
	route.Handler = ref

	e.routes = append(e.routes, positioned[RouteInfo]{at: m.Call.StartByte(), rec: route})
}

// routeChain recognizes router.route('/path').get(handler) and returns the
// path and the router expression.
func (e *extractor) routeChain(object *tree_sitter.Node) (string, *tree_sitter.Node, bool) {
	if object.Kind() != "call_expression" {
		return "", nil, false
	}
	fn := object.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "member_expression" {
		return "", nil, false
	}
	prop := fn.ChildByFieldName("property")
	if prop == nil || e.text(prop) != "route" {
		return "", nil, false
	}
	args := namedChildren(object.ChildByFieldName("arguments"))
	if len(args) == 0 || !isStringLike(args[0]) {
		return "", nil, false
	}
	recv := fn.ChildByFieldName("object")
	if recv == nil {
		return "", nil, false
	}
	return unquote(e.text(args[0])), recv, true
}

// handlerRef builds the handler reference. Inline handlers also become
// FunctionInfo records so calls inside them attribute to the handler.
func (e *extractor) handlerRef(route RouteInfo, n *tree_sitter.Node) (HandlerRef, bool) {
	ref := HandlerRef{StartLine: startLine(n), EndLine: endLine(n)}
	switch {
	case n.Kind() == "identifier":
		ref.Kind = HandlerIdentifier
		ref.Name = e.text(n)
	case n.Kind() == "member_expression":
		obj := n.ChildByFieldName("object")
		prop := n.ChildByFieldName("property")
		if obj == nil || prop == nil {
			return HandlerRef{}, false
		}
		ref.Kind = HandlerMember
		ref.Object = e.text(obj)
		ref.Name = e.text(prop)
	case isFunctionNode(n):
		ref.Kind = HandlerInline
		ref.Name = InlineHandlerName(route)
		e.functions = append(e.functions, positioned[FunctionInfo]{
			at: n.StartByte(),
			rec: FunctionInfo{
				Name:      ref.Name,
				File:      e.path,
				StartLine: ref.StartLine,
				EndLine:   ref.EndLine,
				Kind:      FunctionKindInlineHandler,
			},
		})
		e.spans = append(e.spans, span{name: ref.Name, start: n.StartByte(), end: n.EndByte()})
	default:
		return HandlerRef{}, false
	}
	if ref.Name == "" {
		return HandlerRef{}, false
	}
	return ref, true
}

// InlineHandlerName is the synthetic function name given to an anonymous
// route handler.
func InlineHandlerName(r RouteInfo) string {
	return fmt.Sprintf("<inline %s>", r.ID())
}

// unwrapHandler looks through one wrapper call such as asyncHandler(fn) and
// returns the wrapped function, identifier or member expression.
func unwrapHandler(n *tree_sitter.Node) *tree_sitter.Node {
	if n.Kind() != "call_expression" {
		return n
	}
	args := namedChildren(n.ChildByFieldName("arguments"))
	if len(args) == 0 {
		return n
	}
	inner := args[len(args)-1]
	switch {
	case isFunctionNode(inner), inner.Kind() == "identifier", inner.Kind() == "member_expression":
		return inner
	}
	return n
}

// --- Calls ---

func (e *extractor) addCall(m CallMatch) {
	if m.Site == nil {
		e.dropped++
		return
	}

	var ref CallRef
	var at *tree_sitter.Node
	switch {
	case m.Name != nil:
		ref = CallRef{Form: CallDirect, Name: e.text(m.Name)}
		at = m.Name
	case m.Object != nil && m.Property != nil:
		ref = CallRef{Form: CallMember, Name: e.text(m.Property), Object: e.text(m.Object)}
		at = m.Property
	default:
		e.dropped++
		return
	}
	if ref.Name == "" {
		e.dropped++
		return
	}

	e.calls = append(e.calls, positioned[CallInfo]{
		at: m.Site.StartByte(),
		rec: CallInfo{
			File:   e.path,
			Line:   startLine(at),
			Caller: e.enclosing(m.Site.StartByte()),
			Callee: ref,
		},
	})
}

// --- Imports ---

func (e *extractor) addImport(m ImportMatch) {
	if m.Decl == nil || m.Source == nil {
		e.dropped++
		return
	}
	spec := unquote(e.text(m.Source))
	if spec == "" {
		e.dropped++
		return
	}

	imp := ImportInfo{File: e.path, Line: startLine(m.Decl), Specifier: spec}
	switch m.Decl.Kind() {
	case "import_statement":
		imp.Kind = ImportES
		imp.Bindings = e.esBindings(m.Decl)
	default:
		if m.Require == nil || e.text(m.Require) != "require" || m.Binding == nil {
			e.dropped++
			return
		}
		imp.Kind = ImportRequire
		imp.Bindings = e.requireBindings(m.Binding)
	}

	e.imports = append(e.imports, positioned[ImportInfo]{at: m.Decl.StartByte(), rec: imp})
}

// esBindings reads default, namespace and named bindings from an import clause.
func (e *extractor) esBindings(stmt *tree_sitter.Node) []ImportBinding {
	var out []ImportBinding
	for _, child := range namedChildren(stmt) {
		if child.Kind() != "import_clause" {
			continue
		}
		for _, part := range namedChildren(child) {
			switch part.Kind() {
			case "identifier":
				out = append(out, ImportBinding{Local: e.text(part), Imported: ImportDefault})
			case "namespace_import":
				for _, id := range namedChildren(part) {
					if id.Kind() == "identifier" {
						out = append(out, ImportBinding{Local: e.text(id), Imported: ImportNamespace})
					}
				}
			case "named_imports":
				for _, spec := range namedChildren(part) {
					if spec.Kind() != "import_specifier" {
						continue
					}
					name := spec.ChildByFieldName("name")
					if name == nil {
						continue
					}
					b := ImportBinding{Local: e.text(name), Imported: e.text(name)}
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						b.Local = e.text(alias)
					}
					out = append(out, b)
				}
			}
		}
	}
	return out
}

// requireBindings reads the names bound by const x = require(...) or
// const { a, b: c } = require(...).
func (e *extractor) requireBindings(n *tree_sitter.Node) []ImportBinding {
	switch n.Kind() {
	case "identifier":
		return []ImportBinding{{Local: e.text(n), Imported: ImportNamespace}}
	case "object_pattern":
		var out []ImportBinding
		for _, prop := range namedChildren(n) {
			switch prop.Kind() {
			case "shorthand_property_identifier_pattern":
				name := e.text(prop)
				out = append(out, ImportBinding{Local: name, Imported: name})
			case "pair_pattern":
				key := prop.ChildByFieldName("key")
				val := prop.ChildByFieldName("value")
				if key == nil || val == nil || val.Kind() != "identifier" {
					continue
				}
				out = append(out, ImportBinding{Local: e.text(val), Imported: unquote(e.text(key))})
			}
		}
		return out
	}
	return nil
}

// --- Helpers ---

func (e *extractor) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(e.source)
}

func byPosition[T any](a, b positioned[T]) int {
	return cmp.Compare(a.at, b.at)
}

// records sorts by source position and strips the positions.
func records[T any](in []positioned[T]) []T {
	slices.SortStableFunc(in, byPosition[T])
	out := make([]T, len(in))
	for i, p := range in {
		out[i] = p.rec
	}
	return out
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	if n == nil {
		return nil
	}
	count := n.NamedChildCount()
	out := make([]*tree_sitter.Node, 0, count)
	for i := uint(0); i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func isStringLike(n *tree_sitter.Node) bool {
	k := n.Kind()
	return k == "string" || k == "template_string"
}

func isFunctionNode(n *tree_sitter.Node) bool {
	switch n.Kind() {
	case "arrow_function", "function_expression", "function":
		return true
	}
	return false
}

// unquote strips the quote characters around a string literal.
func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}

func startLine(n *tree_sitter.Node) int { return int(n.StartPosition().Row) + 1 }
func endLine(n *tree_sitter.Node) int   { return int(n.EndPosition().Row) + 1 }
