package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with the route slicing tools registered.
func NewServer(svc *CodeIntelService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "logicgate",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_graph",
		Description: "Index a JavaScript or TypeScript project. Discovers source files, extracts routes, functions, calls and imports with tree-sitter, builds the call graph and computes file clusters.",
	}, svc.BuildGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_routes",
		Description: "List the HTTP routes found by build_graph, optionally filtered by method or path text.",
	}, svc.ListRoutes)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_slice",
		Description: "Return the functions reachable from one route handler up to a call depth, in breadth-first order. Optionally renders the slice as Mermaid.",
	}, svc.GetSlice)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_functions",
		Description: "Search for functions by name substring match.",
	}, svc.QueryFunctions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_clusters",
		Description: "Return the file clusters discovered during graph building, with cohesion scores.",
	}, svc.GetClusters)

	return server
}

// RunHTTP serves the MCP tools over streamable HTTP until ctx is cancelled.
func RunHTTP(ctx context.Context, svc *CodeIntelService, addr string) error {
	server := NewServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunStdio serves the MCP tools on stdin/stdout, blocking until stdin is
// closed or ctx is cancelled.
func RunStdio(ctx context.Context, svc *CodeIntelService) error {
	return NewServer(svc).Run(ctx, &mcp.StdioTransport{})
}
