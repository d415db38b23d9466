package graph

import (
	"fmt"
	"iter"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Match is one structural query match. The concrete types form a closed set:
// RouteMatch, FunctionMatch, CallMatch and ImportMatch. Every captured node is
// optional; consumers validate required captures themselves.
type Match interface {
	Family() QueryFamily
	// Anchor is the node spanning the whole match, nil if not captured.
	Anchor() *tree_sitter.Node
	isMatch()
}

// RouteMatch is a member call that may register a route.
type RouteMatch struct {
	Call   *tree_sitter.Node
	Object *tree_sitter.Node
	Method *tree_sitter.Node
	Args   *tree_sitter.Node
}

// FunctionMatch is a named function definition. Value is the function node
// for assignment-style definitions and nil for declarations and methods.
type FunctionMatch struct {
	Pattern uint
	Def     *tree_sitter.Node
	Name    *tree_sitter.Node
	Value   *tree_sitter.Node
}

// CallMatch is a call site. Name is set for direct calls; Object and Property
// are set for member calls.
type CallMatch struct {
	Site     *tree_sitter.Node
	Name     *tree_sitter.Node
	Object   *tree_sitter.Node
	Property *tree_sitter.Node
}

// ImportMatch is a require() binding or an ES import statement.
type ImportMatch struct {
	Decl    *tree_sitter.Node
	Binding *tree_sitter.Node
	Require *tree_sitter.Node
	Source  *tree_sitter.Node
}

func (RouteMatch) Family() QueryFamily    { return FamilyRoutes }
func (FunctionMatch) Family() QueryFamily { return FamilyFunctions }
func (CallMatch) Family() QueryFamily     { return FamilyCalls }
func (ImportMatch) Family() QueryFamily   { return FamilyImports }

func (m RouteMatch) Anchor() *tree_sitter.Node    { return m.Call }
func (m FunctionMatch) Anchor() *tree_sitter.Node { return m.Def }
func (m CallMatch) Anchor() *tree_sitter.Node     { return m.Site }
func (m ImportMatch) Anchor() *tree_sitter.Node   { return m.Decl }

func (RouteMatch) isMatch()    {}
func (FunctionMatch) isMatch() {}
func (CallMatch) isMatch()     {}
func (ImportMatch) isMatch()   {}

// compiledQuery pairs a tree-sitter query with its capture names.
type compiledQuery struct {
	family   QueryFamily
	query    *tree_sitter.Query
	captures []string
}

// Matcher runs the four query families against syntax trees of one dialect.
// A Matcher is safe for concurrent use; each Matches call owns its cursor.
type Matcher struct {
	dialect Dialect
	version string
	queries map[QueryFamily]*compiledQuery
}

// NewMatcher compiles every family of qs for the given grammar.
func NewMatcher(dialect Dialect, lang *tree_sitter.Language, qs QuerySet) (*Matcher, error) {
	m := &Matcher{
		dialect: dialect,
		version: qs.Version,
		queries: make(map[QueryFamily]*compiledQuery, len(QueryFamilies)),
	}
	for _, fam := range QueryFamilies {
		src, ok := qs.Sources[fam]
		if !ok {
			m.Close()
			return nil, fmt.Errorf("%s: no %s query", dialect, fam)
		}
		q, qerr := tree_sitter.NewQuery(lang, src)
		if qerr != nil {
			m.Close()
			return nil, fmt.Errorf("%s: compile %s query: %s", dialect, fam, qerr.Error())
		}
		m.queries[fam] = &compiledQuery{family: fam, query: q, captures: q.CaptureNames()}
	}
	return m, nil
}

// Version returns the version of the query set this matcher was built from.
func (m *Matcher) Version() string { return m.version }

// Close releases the compiled queries.
func (m *Matcher) Close() {
	for _, cq := range m.queries {
		cq.query.Close()
	}
	m.queries = nil
}

// Matches lazily yields the matches of one family over root. A tree that
// contains syntax errors yields nothing. Running the same family twice over
// the same tree yields the same sequence.
func (m *Matcher) Matches(family QueryFamily, root *tree_sitter.Node, source []byte) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		cq, ok := m.queries[family]
		if !ok || root == nil || root.HasError() {
			return
		}

		qc := tree_sitter.NewQueryCursor()
		defer qc.Close()

		matches := qc.Matches(cq.query, root, source)
		for qm := matches.Next(); qm != nil; qm = matches.Next() {
			if !yield(cq.build(qm)) {
				return
			}
		}
	}
}

// build converts a raw query match into its typed form.
func (cq *compiledQuery) build(qm *tree_sitter.QueryMatch) Match {
	nodes := make(map[string]*tree_sitter.Node, len(qm.Captures))
	for _, c := range qm.Captures {
		n := c.Node
		name := cq.captures[c.Index]
		if _, seen := nodes[name]; !seen {
			nodes[name] = &n
		}
	}

	switch cq.family {
	case FamilyRoutes:
		return RouteMatch{
			Call:   nodes["route.call"],
			Object: nodes["route.object"],
			Method: nodes["route.method"],
			Args:   nodes["route.args"],
		}
	case FamilyFunctions:
		return FunctionMatch{
			Pattern: qm.PatternIndex,
			Def:     nodes["function.def"],
			Name:    nodes["function.name"],
			Value:   nodes["function.value"],
		}
	case FamilyCalls:
		return CallMatch{
			Site:     nodes["call.site"],
			Name:     nodes["call.name"],
			Object:   nodes["call.object"],
			Property: nodes["call.property"],
		}
	default:
		return ImportMatch{
			Decl:    nodes["import.decl"],
			Binding: nodes["import.binding"],
			Require: nodes["import.require"],
			Source:  nodes["import.source"],
		}
	}
}
