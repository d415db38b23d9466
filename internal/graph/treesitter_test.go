package graph

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestParser returns a parser over the embedded query set.
func newTestParser(t *testing.T) *TreeSitterParser {
	t.Helper()
	p, err := NewTreeSitterParser(DefaultQueries())
	require.NoError(t, err, "NewTreeSitterParser should not fail")
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// parseSource parses src as the file at path, choosing the dialect from the
// extension.
func parseSource(t *testing.T, p *TreeSitterParser, path, src string) *FileRecords {
	t.Helper()
	dialect, ok := DialectForPath(path)
	require.True(t, ok, "no dialect for %s", path)
	rec, err := p.Parse(context.Background(), path, []byte(src), dialect)
	require.NoError(t, err, "parsing %s", path)
	return rec
}

// findFunction returns the first FunctionInfo whose Name matches, or nil.
func findFunction(fns []FunctionInfo, name string) *FunctionInfo {
	for i := range fns {
		if fns[i].Name == name {
			return &fns[i]
		}
	}
	return nil
}

// findRoute returns the first route with the given method and path, or nil.
func findRoute(routes []RouteInfo, method HTTPMethod, path string) *RouteInfo {
	for i := range routes {
		if routes[i].Method == method && routes[i].Path == path {
			return &routes[i]
		}
	}
	return nil
}

// callsFrom returns the callee strings recorded for caller, in source order.
func callsFrom(calls []CallInfo, caller string) []string {
	var out []string
	for _, c := range calls {
		if c.Caller == caller {
			out = append(out, c.Callee.String())
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Dialects
// ---------------------------------------------------------------------------

func TestDialectForPath(t *testing.T) {
	tests := []struct {
		path   string
		want   Dialect
		wantOK bool
	}{
		{"src/app.js", DialectJavaScript, true},
		{"src/view.jsx", DialectJavaScript, true},
		{"src/esm.mjs", DialectJavaScript, true},
		{"src/legacy.cjs", DialectJavaScript, true},
		{"src/app.ts", DialectTypeScript, true},
		{"src/app.MTS", DialectTypeScript, true},
		{"src/page.tsx", DialectTSX, true},
		{"src/main.go", "", false},
		{"README", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := DialectForPath(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTreeSitterParser_UnsupportedDialect(t *testing.T) {
	p := newTestParser(t)
	_, err := p.Parse(context.Background(), "main.go", []byte("package main"), Dialect("go"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}

func TestTreeSitterParser_SyntaxErrorIsParseFailure(t *testing.T) {
	p := newTestParser(t)
	src := "function broken( {\n  return app.get('/x', \n"
	_, err := p.Parse(context.Background(), "broken.js", []byte(src), DialectJavaScript)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseFailure)
	assert.Contains(t, err.Error(), "broken.js")
}

func TestTreeSitterParser_LOCAndDialect(t *testing.T) {
	p := newTestParser(t)
	rec := parseSource(t, p, "src/a.ts", "const a = 1;\nconst b = 2;\n")
	assert.Equal(t, DialectTypeScript, rec.Dialect)
	assert.Equal(t, 3, rec.LOC)
	assert.Equal(t, "src/a.ts", rec.Path)

	empty := parseSource(t, p, "src/empty.js", "")
	assert.Equal(t, 0, empty.LOC)
	assert.Empty(t, empty.Functions)
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func TestExtract_FunctionKinds(t *testing.T) {
	p := newTestParser(t)
	src := `function declared() {}
const arrow = () => {};
let expr = function () {};
exports.exported = (req, res) => {};
class Controller {
  list(req, res) {}
}
const handlers = {
  show: (req, res) => {},
};
function* gen() {}
`
	rec := parseSource(t, p, "src/fns.js", src)

	tests := []struct {
		name      string
		kind      FunctionKind
		startLine int
	}{
		{"declared", FunctionKindDeclaration, 1},
		{"arrow", FunctionKindArrowAssignment, 2},
		{"expr", FunctionKindFunctionExpression, 3},
		{"exported", FunctionKindArrowAssignment, 4},
		{"list", FunctionKindMethod, 6},
		{"show", FunctionKindArrowAssignment, 9},
		{"gen", FunctionKindDeclaration, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := findFunction(rec.Functions, tt.name)
			require.NotNil(t, fn, "function %s not extracted", tt.name)
			assert.Equal(t, tt.kind, fn.Kind)
			assert.Equal(t, tt.startLine, fn.StartLine)
			assert.LessOrEqual(t, fn.StartLine, fn.EndLine)
			assert.Equal(t, "src/fns.js", fn.File)
		})
	}

	// Records come back in source order.
	var names []string
	for _, fn := range rec.Functions {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"declared", "arrow", "expr", "exported", "list", "show", "gen"}, names)
}

func TestExtract_WrappedFunctionBinding(t *testing.T) {
	p := newTestParser(t)
	src := `const wrapped = asyncHandler(async (req, res) => {
  await svc.process();
});
const legacy = wrap(function (req, res) {});
const configured = wrap(opts, () => {});
`
	rec := parseSource(t, p, "src/wrapped.js", src)

	fn := findFunction(rec.Functions, "wrapped")
	require.NotNil(t, fn)
	assert.Equal(t, FunctionKindArrowAssignment, fn.Kind)
	assert.Equal(t, 1, fn.StartLine)
	assert.Equal(t, 3, fn.EndLine)

	legacy := findFunction(rec.Functions, "legacy")
	require.NotNil(t, legacy)
	assert.Equal(t, FunctionKindFunctionExpression, legacy.Kind)

	assert.Nil(t, findFunction(rec.Functions, "configured"), "only single-argument wrappers bind a function")

	assert.Contains(t, callsFrom(rec.Calls, "wrapped"), "svc.process")
	assert.NotContains(t, callsFrom(rec.Calls, ModuleScope), "svc.process")
}

func TestExtract_NonFunctionBindingsIgnored(t *testing.T) {
	p := newTestParser(t)
	src := `const x = 1;
const y = compute();
module.exports = { x, y };
`
	rec := parseSource(t, p, "src/values.js", src)
	assert.Empty(t, rec.Functions)
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func TestExtract_Routes(t *testing.T) {
	p := newTestParser(t)
	src := `const express = require('express');
const app = express();
const router = express.Router();
app.use(express.json());
app.get('/users', listUsers);
router.post('/users/:id', auth, validate, ctrl.update);
router.delete(` + "`/items/${id}`" + `, removeItem);
app.use((req, res, next) => next());
cache.get(key);
router.route('/orders').get(listOrders);
app.patch('/wrapped', asyncHandler(patchThing));
app.PUT('/ignored', nope);
app.all('/any', function (req, res) {});
`
	rec := parseSource(t, p, "src/routes.js", src)

	t.Run("identifier handler", func(t *testing.T) {
		r := findRoute(rec.Routes, MethodGet, "/users")
		require.NotNil(t, r)
		assert.Equal(t, 5, r.Line)
		assert.Equal(t, 1, r.Column)
		assert.Equal(t, "app", r.Receiver)
		assert.Equal(t, HandlerIdentifier, r.Handler.Kind)
		assert.Equal(t, "listUsers", r.Handler.Name)
		assert.Empty(t, r.Middleware)
		assert.Equal(t, "get /users@5:1", r.ID())
	})

	t.Run("member handler with middleware", func(t *testing.T) {
		r := findRoute(rec.Routes, MethodPost, "/users/:id")
		require.NotNil(t, r)
		assert.Equal(t, "router", r.Receiver)
		assert.Equal(t, HandlerMember, r.Handler.Kind)
		assert.Equal(t, "ctrl", r.Handler.Object)
		assert.Equal(t, "update", r.Handler.Name)
		assert.Equal(t, "ctrl.update", r.Handler.String())
		assert.Equal(t, []string{"auth", "validate"}, r.Middleware)
	})

	t.Run("template path", func(t *testing.T) {
		r := findRoute(rec.Routes, MethodDelete, "/items/${id}")
		require.NotNil(t, r)
		assert.Equal(t, "removeItem", r.Handler.Name)
	})

	t.Run("use with inline middleware", func(t *testing.T) {
		r := findRoute(rec.Routes, MethodUse, "*")
		require.NotNil(t, r)
		assert.Equal(t, 8, r.Line)
		assert.Equal(t, HandlerInline, r.Handler.Kind)
	})

	t.Run("route chain", func(t *testing.T) {
		r := findRoute(rec.Routes, MethodGet, "/orders")
		require.NotNil(t, r)
		assert.Equal(t, "router", r.Receiver)
		assert.Equal(t, "listOrders", r.Handler.Name)
	})

	t.Run("wrapped handler", func(t *testing.T) {
		r := findRoute(rec.Routes, MethodPatch, "/wrapped")
		require.NotNil(t, r)
		assert.Equal(t, "patchThing", r.Handler.Name)
	})

	t.Run("inline function expression", func(t *testing.T) {
		r := findRoute(rec.Routes, MethodAll, "/any")
		require.NotNil(t, r)
		assert.Equal(t, HandlerInline, r.Handler.Kind)
		fn := findFunction(rec.Functions, r.Handler.Name)
		require.NotNil(t, fn, "inline handler should be a function node")
		assert.Equal(t, FunctionKindInlineHandler, fn.Kind)
	})

	t.Run("filtered", func(t *testing.T) {
		// express.json() middleware, cache.get(key) and the upper-case PUT
		// are not routes.
		assert.Len(t, rec.Routes, 7)
		for _, r := range rec.Routes {
			assert.NotEqual(t, "cache", r.Receiver)
			assert.NotEqual(t, "/ignored", r.Path)
		}
	})
}

func TestExtract_InlineHandlerOwnsItsCalls(t *testing.T) {
	p := newTestParser(t)
	src := `function helper() {}
router.post('/y', (req, res) => {
  helper();
});
helper();
`
	rec := parseSource(t, p, "src/inline.js", src)

	r := findRoute(rec.Routes, MethodPost, "/y")
	require.NotNil(t, r)
	require.Equal(t, HandlerInline, r.Handler.Kind)
	assert.Equal(t, "<inline post /y@2:1>", r.Handler.Name)
	assert.NotEqual(t, "helper", r.Handler.Name, "inline handler must be distinct from named functions")

	assert.Equal(t, []string{"helper"}, callsFrom(rec.Calls, r.Handler.Name))
	assert.Contains(t, callsFrom(rec.Calls, ModuleScope), "helper")
}

func TestExtract_TypeScriptRoutes(t *testing.T) {
	p := newTestParser(t)
	src := `import { Request, Response } from 'express';
import { router } from './router';

export async function getUser(req: Request, res: Response): Promise<void> {
  const user = await findUser(req.params.id as string);
  res.json(user);
}

router.get('/users/:id', getUser);
router.post('/users', async (req: Request, res: Response) => {
  await createUser(req.body);
});
`
	rec := parseSource(t, p, "src/users.ts", src)
	require.Len(t, rec.Routes, 2)

	get := findRoute(rec.Routes, MethodGet, "/users/:id")
	require.NotNil(t, get)
	assert.Equal(t, "getUser", get.Handler.Name)

	post := findRoute(rec.Routes, MethodPost, "/users")
	require.NotNil(t, post)
	assert.Equal(t, HandlerInline, post.Handler.Kind)
	assert.Equal(t, []string{"createUser"}, callsFrom(rec.Calls, post.Handler.Name))

	fn := findFunction(rec.Functions, "getUser")
	require.NotNil(t, fn)
	assert.Equal(t, 4, fn.StartLine)
	assert.Equal(t, 7, fn.EndLine)
	assert.Equal(t, []string{"findUser", "res.json"}, callsFrom(rec.Calls, "getUser"))
}

func TestExtract_TSXComponent(t *testing.T) {
	p := newTestParser(t)
	src := `export const Page = () => {
  const data = load();
  return <div>{data}</div>;
};
`
	rec := parseSource(t, p, "src/page.tsx", src)
	assert.Equal(t, DialectTSX, rec.Dialect)
	require.NotNil(t, findFunction(rec.Functions, "Page"))
	assert.Equal(t, []string{"load"}, callsFrom(rec.Calls, "Page"))
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func TestExtract_CallAttribution(t *testing.T) {
	p := newTestParser(t)
	src := `function outer() {
  first();
  const inner = () => {
    second();
  };
  svc.process(data);
}
init();
`
	rec := parseSource(t, p, "src/calls.js", src)

	assert.Equal(t, []string{"first", "svc.process"}, callsFrom(rec.Calls, "outer"))
	assert.Equal(t, []string{"second"}, callsFrom(rec.Calls, "inner"), "nested function owns its calls")
	assert.Equal(t, []string{"init"}, callsFrom(rec.Calls, ModuleScope))

	for _, c := range rec.Calls {
		if c.Callee.Name == "process" {
			assert.Equal(t, CallMember, c.Callee.Form)
			assert.Equal(t, "svc", c.Callee.Object)
			assert.Equal(t, 6, c.Line)
		}
	}
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

func TestExtract_RequireImports(t *testing.T) {
	p := newTestParser(t)
	src := `const express = require('express');
const { svc, other: renamed } = require('./service');
const notRequire = load('./x');
`
	rec := parseSource(t, p, "src/app.js", src)
	require.Len(t, rec.Imports, 2)

	assert.Equal(t, ImportInfo{
		File: "src/app.js", Line: 1, Kind: ImportRequire, Specifier: "express",
		Bindings: []ImportBinding{{Local: "express", Imported: ImportNamespace}},
	}, rec.Imports[0])

	assert.Equal(t, ImportInfo{
		File: "src/app.js", Line: 2, Kind: ImportRequire, Specifier: "./service",
		Bindings: []ImportBinding{
			{Local: "svc", Imported: "svc"},
			{Local: "renamed", Imported: "other"},
		},
	}, rec.Imports[1])
}

func TestExtract_ESImports(t *testing.T) {
	p := newTestParser(t)
	src := `import express, { Router as R, json } from 'express';
import * as users from './users';
import './side-effect';
`
	rec := parseSource(t, p, "src/app.ts", src)
	require.Len(t, rec.Imports, 3)

	assert.Equal(t, []ImportBinding{
		{Local: "express", Imported: ImportDefault},
		{Local: "R", Imported: "Router"},
		{Local: "json", Imported: "json"},
	}, rec.Imports[0].Bindings)
	assert.Equal(t, ImportES, rec.Imports[0].Kind)

	assert.Equal(t, "./users", rec.Imports[1].Specifier)
	assert.Equal(t, []ImportBinding{{Local: "users", Imported: ImportNamespace}}, rec.Imports[1].Bindings)

	assert.Equal(t, "./side-effect", rec.Imports[2].Specifier)
	assert.Empty(t, rec.Imports[2].Bindings)
}

// ---------------------------------------------------------------------------
// Determinism and query overrides
// ---------------------------------------------------------------------------

func TestExtract_Deterministic(t *testing.T) {
	p := newTestParser(t)
	src := `function a() { b(); c.d(); }
function b() {}
app.get('/a', a);
app.post('/b', (req, res) => { b(); });
`
	first := parseSource(t, p, "src/det.js", src)
	second := parseSource(t, p, "src/det.js", src)
	assert.Equal(t, first, second)
}

func TestLoadQueries_OverridesOneFamily(t *testing.T) {
	dir := t.TempDir()
	// Only function declarations, no arrow assignments.
	custom := "(function_declaration name: (identifier) @function.name) @function.def\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "functions.scm"), []byte(custom), 0o644))

	qs, err := LoadQueries(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(qs.Version, "custom-"), "version %q", qs.Version)
	assert.NotEqual(t, DefaultQueries().Version, qs.Version)
	assert.Equal(t, DefaultQueries().Sources[FamilyRoutes], qs.Sources[FamilyRoutes])

	p, err := NewTreeSitterParser(qs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	assert.Equal(t, qs.Version, p.QueryVersion())

	rec := parseSource(t, p, "src/q.js", "function kept() {}\nconst dropped = () => {};\n")
	require.Len(t, rec.Functions, 1)
	assert.Equal(t, "kept", rec.Functions[0].Name)
}

func TestNewTreeSitterParser_InvalidQuery(t *testing.T) {
	qs := DefaultQueries()
	qs.Sources = map[QueryFamily]string{
		FamilyRoutes:    qs.Sources[FamilyRoutes],
		FamilyFunctions: "(function_declaration name: (nonexistent_node) @function.name)",
		FamilyCalls:     qs.Sources[FamilyCalls],
		FamilyImports:   qs.Sources[FamilyImports],
	}
	_, err := NewTreeSitterParser(qs)
	require.Error(t, err)
}
