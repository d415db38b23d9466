package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// persistedFixture is a two-file app with a cross-file call, an inline
// handler and one cluster.
var persistedFixture = map[string]string{
	"src/app.js": `const { svc } = require('./service');
function handle(req, res) { svc.process(); }
app.get('/orders', auth, handle);
app.post('/orders', (req, res) => { handle(req, res); });
`,
	"src/service.js": `function process() { normalize(); }
function normalize() {}
`,
}

// testStoreContract persists the fixture graph into s and checks every read
// operation. It is shared by the MemStore and KuzuStore tests.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	g := buildGraph(t, persistedFixture)
	clusters := ComputeClusters(g)
	require.Len(t, clusters, 1)
	require.NoError(t, Persist(ctx, s, g, clusters))

	t.Run("stats", func(t *testing.T) {
		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, &StoreStats{
			FileCount:     2,
			RouteCount:    2,
			FunctionCount: 4,
			ClusterCount:  1,
			EdgeCount:     len(g.Edges()),
		}, st)
	})

	t.Run("routes", func(t *testing.T) {
		routes, err := s.ListRoutes(ctx)
		require.NoError(t, err)
		assert.Equal(t, g.Routes(), routes)
	})

	t.Run("edges", func(t *testing.T) {
		edges, err := s.GetAllEdges(ctx)
		require.NoError(t, err)
		assert.Equal(t, g.Edges(), edges)
	})

	t.Run("get function", func(t *testing.T) {
		fn, err := s.GetFunction(ctx, "src/service.js", "process")
		require.NoError(t, err)
		require.NotNil(t, fn)
		assert.Equal(t, FunctionKindDeclaration, fn.Kind)
		assert.Equal(t, 1, fn.StartLine)

		missing, err := s.GetFunction(ctx, "src/service.js", "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("query functions", func(t *testing.T) {
		fns, err := s.QueryFunctions(ctx, "NORMAL", 0)
		require.NoError(t, err)
		require.Len(t, fns, 1)
		assert.Equal(t, "normalize", fns[0].Name)

		fns, err = s.QueryFunctions(ctx, "", 2)
		require.NoError(t, err)
		assert.Len(t, fns, 2)
	})

	t.Run("clusters", func(t *testing.T) {
		got, err := s.GetClusters(ctx)
		require.NoError(t, err)
		assert.Equal(t, clusters, got)
	})
}

func TestMemStore_Contract(t *testing.T) {
	s := NewMemStore()
	t.Cleanup(func() { _ = s.Close() })
	testStoreContract(t, s)
}

func TestMemStore_InitSchemaResets(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.AddFile(ctx, FileNode{Path: "a.js"}))
	require.NoError(t, s.AddFunction(ctx, FunctionInfo{Name: "f", File: "a.js"}))

	require.NoError(t, s.InitSchema(ctx))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &StoreStats{}, st)
}

func TestMemStore_AddFunctionReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.AddFunction(ctx, FunctionInfo{Name: "f", File: "a.js", StartLine: 1}))
	require.NoError(t, s.AddFunction(ctx, FunctionInfo{Name: "g", File: "a.js", StartLine: 2}))
	require.NoError(t, s.AddFunction(ctx, FunctionInfo{Name: "f", File: "a.js", StartLine: 9}))

	fns, err := s.QueryFunctions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, fns, 2)
	assert.Equal(t, "f", fns[0].Name)
	assert.Equal(t, 9, fns[0].StartLine)
}
