package mcptools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// fixtureAbsPath returns the absolute path to the express_js test fixture.
// Tests run from internal/mcptools/.
func fixtureAbsPath(t *testing.T) string {
	t.Helper()
	abs, err := filepath.Abs("../../testdata/fixtures/express_js")
	require.NoError(t, err)
	return abs
}

func newTestService(t *testing.T, opts ServiceOptions) (*CodeIntelService, *graph.MemStore) {
	t.Helper()
	parser, err := graph.NewTreeSitterParser(graph.DefaultQueries())
	require.NoError(t, err)
	t.Cleanup(func() { _ = parser.Close() })

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	store := graph.NewMemStore()
	return NewCodeIntelService(store, parser, opts), store
}

func buildFixture(t *testing.T, svc *CodeIntelService) BuildGraphOutput {
	t.Helper()
	_, out, err := svc.BuildGraph(context.Background(), nil, BuildGraphInput{RepoPath: fixtureAbsPath(t)})
	require.NoError(t, err)
	return out
}

func intPtr(v int) *int { return &v }

func sliceNames(s graph.Slice) []string {
	names := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		names[i] = n.Function.Name
	}
	return names
}

func TestBuildGraph(t *testing.T) {
	svc, store := newTestService(t, ServiceOptions{})
	out := buildFixture(t, svc)

	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, 5, out.Stats.FileCount)
	assert.Equal(t, 4, out.Stats.RouteCount)
	assert.Greater(t, out.Stats.EdgeCount, 0)
	assert.Equal(t, 6, out.Diagnostics.Discovered)
	require.Len(t, out.Diagnostics.Skipped, 1)
	assert.Equal(t, "broken.js", out.Diagnostics.Skipped[0].Path)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, out.Stats.FunctionCount, stats.FunctionCount)
}

func TestBuildGraph_InvalidInput(t *testing.T) {
	svc, _ := newTestService(t, ServiceOptions{})
	file := filepath.Join(t.TempDir(), "app.js")
	require.NoError(t, os.WriteFile(file, []byte("app.get('/', h);\n"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"missing", filepath.Join(t.TempDir(), "nope")},
		{"not a directory", file},
		{"no sources", t.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.BuildGraph(context.Background(), nil, BuildGraphInput{RepoPath: tt.path})
			assert.Error(t, err)
		})
	}
}

func TestBuildGraph_ExcludeOverride(t *testing.T) {
	svc, _ := newTestService(t, ServiceOptions{})
	_, out, err := svc.BuildGraph(context.Background(), nil, BuildGraphInput{
		RepoPath:    fixtureAbsPath(t),
		ExcludeDirs: []string{"node_modules", "controllers"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Stats.FileCount)
}

func TestBuildGraph_PersistHook(t *testing.T) {
	var gotRoot string
	var gotClusters int
	svc, _ := newTestService(t, ServiceOptions{
		Persist: func(_ context.Context, root string, g *graph.CallGraph, clusters []graph.ClusterNode) error {
			gotRoot = root
			gotClusters = len(clusters)
			return nil
		},
	})
	buildFixture(t, svc)
	assert.Equal(t, fixtureAbsPath(t), gotRoot)
	assert.Greater(t, gotClusters, 0)
}

func TestBuildGraph_PersistFailureIsNotFatal(t *testing.T) {
	svc, _ := newTestService(t, ServiceOptions{
		Persist: func(context.Context, string, *graph.CallGraph, []graph.ClusterNode) error {
			return errors.New("disk full")
		},
	})
	out := buildFixture(t, svc)
	assert.Equal(t, 4, out.Stats.RouteCount)
}

func TestListRoutes(t *testing.T) {
	svc, _ := newTestService(t, ServiceOptions{})
	buildFixture(t, svc)
	ctx := context.Background()

	_, all, err := svc.ListRoutes(ctx, nil, ListRoutesInput{})
	require.NoError(t, err)
	require.Equal(t, 4, all.Total)
	first := all.Routes[0]
	assert.Equal(t, "get", first.Method)
	assert.Equal(t, "/users", first.Path)
	assert.Equal(t, "app.js", first.File)
	assert.Equal(t, "listUsers", first.Handler)
	assert.Equal(t, []string{"requireAuth"}, first.Middleware)
	assert.Equal(t, "app.js:get /users@9:1", first.ID)

	_, gets, err := svc.ListRoutes(ctx, nil, ListRoutesInput{Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, 2, gets.Total)

	_, orders, err := svc.ListRoutes(ctx, nil, ListRoutesInput{Path: "orders"})
	require.NoError(t, err)
	require.Equal(t, 2, orders.Total)
	assert.Equal(t, "orders.create", orders.Routes[0].Handler)

	_, none, err := svc.ListRoutes(ctx, nil, ListRoutesInput{Method: "patch"})
	require.NoError(t, err)
	assert.Equal(t, 0, none.Total)
	assert.NotNil(t, none.Routes)
}

func TestGetSlice(t *testing.T) {
	svc, _ := newTestService(t, ServiceOptions{})
	buildFixture(t, svc)
	ctx := context.Background()

	_, out, err := svc.GetSlice(ctx, nil, GetSliceInput{Method: "get", Path: "/users/:id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"getUser", "findById", "findAll"}, sliceNames(out.Slice))
	assert.Equal(t, 5, out.Slice.MaxDepth)
	assert.Empty(t, out.Mermaid)

	_, byID, err := svc.GetSlice(ctx, nil, GetSliceInput{RouteID: out.Slice.Route.Key().String()})
	require.NoError(t, err)
	assert.Equal(t, out.Slice, byID.Slice)
}

func TestGetSlice_DepthAndMermaid(t *testing.T) {
	svc, _ := newTestService(t, ServiceOptions{DefaultDepth: 3})
	buildFixture(t, svc)

	_, out, err := svc.GetSlice(context.Background(), nil, GetSliceInput{
		Method:  "delete",
		Path:    "/orders/:id",
		Depth:   intPtr(1),
		Mermaid: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Slice.MaxDepth)
	assert.True(t, out.Slice.Truncated)
	assert.True(t, strings.HasPrefix(out.Mermaid, "graph TD\n"))
	assert.Contains(t, out.Mermaid, "DELETE /orders/:id")

	_, dflt, err := svc.GetSlice(context.Background(), nil, GetSliceInput{Method: "delete", Path: "/orders/:id"})
	require.NoError(t, err)
	assert.Equal(t, 3, dflt.Slice.MaxDepth)
}

func TestGetSlice_Errors(t *testing.T) {
	svc, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	_, _, err := svc.GetSlice(ctx, nil, GetSliceInput{Method: "get", Path: "/users"})
	assert.ErrorIs(t, err, ErrNoGraph)

	buildFixture(t, svc)

	_, _, err = svc.GetSlice(ctx, nil, GetSliceInput{Method: "get", Path: "/nope"})
	assert.ErrorIs(t, err, graph.ErrRouteNotFound)

	_, _, err = svc.GetSlice(ctx, nil, GetSliceInput{RouteID: "app.js:get /nope@1:1"})
	assert.ErrorIs(t, err, graph.ErrRouteNotFound)

	_, _, err = svc.GetSlice(ctx, nil, GetSliceInput{Method: "get"})
	assert.Error(t, err)

	_, _, err = svc.GetSlice(ctx, nil, GetSliceInput{Method: "get", Path: "/users", Depth: intPtr(-1)})
	assert.ErrorIs(t, err, graph.ErrInvalidDepth)
}

func TestGetSlice_AmbiguousRoute(t *testing.T) {
	dir := t.TempDir()
	src := "function a(req, res) {}\nfunction b(req, res) {}\napp.get('/x', a);\napp.get('/x', b);\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte(src), 0o644))

	svc, _ := newTestService(t, ServiceOptions{})
	_, _, err := svc.BuildGraph(context.Background(), nil, BuildGraphInput{RepoPath: dir})
	require.NoError(t, err)

	_, _, err = svc.GetSlice(context.Background(), nil, GetSliceInput{Method: "get", Path: "/x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matches 2 routes")
}

func TestQueryFunctions(t *testing.T) {
	svc, _ := newTestService(t, ServiceOptions{})
	buildFixture(t, svc)
	ctx := context.Background()

	_, out, err := svc.QueryFunctions(ctx, nil, QueryFunctionsInput{Query: "find"})
	require.NoError(t, err)
	names := make([]string, len(out.Functions))
	for i, fn := range out.Functions {
		names[i] = fn.Name
	}
	assert.ElementsMatch(t, []string{"findAll", "findById"}, names)
	assert.Equal(t, 2, out.Total)

	_, limited, err := svc.QueryFunctions(ctx, nil, QueryFunctionsInput{Query: "", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, limited.Total)

	_, none, err := svc.QueryFunctions(ctx, nil, QueryFunctionsInput{Query: "zzz"})
	require.NoError(t, err)
	assert.Equal(t, 0, none.Total)
	assert.NotNil(t, none.Functions)
}

func TestGetClusters(t *testing.T) {
	svc, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	_, empty, err := svc.GetClusters(ctx, nil, GetClustersInput{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Clusters)
	assert.Empty(t, empty.Clusters)

	buildFixture(t, svc)
	_, out, err := svc.GetClusters(ctx, nil, GetClustersInput{})
	require.NoError(t, err)
	require.NotEmpty(t, out.Clusters)

	var members []string
	for _, c := range out.Clusters {
		members = append(members, c.Members...)
	}
	assert.Contains(t, members, "app.js")
	assert.Contains(t, members, "lib/db.js")
}
