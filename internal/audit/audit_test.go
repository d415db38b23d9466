package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const appSource = `const { load } = require('./store');

function show(req, res) {
  const doc = load(req.params.id);
  res.json(doc);
}

app.get('/docs/:id', show);
app.delete('/docs/:id', (req, res) => {
  res.end();
});
`

const storeSource = `function load(id) {
  return db[id];
}

module.exports = { load };
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildProject writes the two-file project to a temp dir and returns its
// root and call graph.
func buildProject(t *testing.T) (string, *graph.CallGraph) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{"app.js": appSource, "store.js": storeSource}
	var recs []graph.FileRecords

	p, err := graph.NewTreeSitterParser(graph.DefaultQueries())
	require.NoError(t, err)
	defer p.Close()

	var paths []string
	for _, rel := range []string{"app.js", "store.js"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(files[rel]), 0o644))
		rec, err := p.Parse(context.Background(), rel, []byte(files[rel]), graph.DialectJavaScript)
		require.NoError(t, err)
		recs = append(recs, *rec)
		paths = append(paths, rel)
	}
	g := graph.NewBuilder(graph.NewResolver(root, paths), quietLogger()).Build(context.Background(), recs)
	return root, g
}

func finding(sev Severity) Finding {
	return Finding{
		Category:   CategoryIDOR,
		Severity:   sev,
		Title:      "Document read without ownership check",
		File:       "app.js",
		StartLine:  3,
		EndLine:    6,
		Confidence: 0.8,
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestAuditResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Finding)
		wantErr bool
	}{
		{"valid", func(*Finding) {}, false},
		{"unknown category", func(f *Finding) { f.Category = "XSS" }, true},
		{"unknown severity", func(f *Finding) { f.Severity = "severe" }, true},
		{"missing title", func(f *Finding) { f.Title = "" }, true},
		{"confidence above one", func(f *Finding) { f.Confidence = 1.5 }, true},
		{"confidence below zero", func(f *Finding) { f.Confidence = -0.1 }, true},
		{"negative line", func(f *Finding) { f.StartLine = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := finding(SeverityHigh)
			tt.mutate(&f)
			res := &AuditResult{Route: "get /x", Findings: []Finding{f}}
			err := res.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResult)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuditResult_EmptyFindingsValid(t *testing.T) {
	res := &AuditResult{Route: "get /x", Reasoning: "scoped by tenant"}
	assert.NoError(t, res.Validate())
}

func TestSeverity_Blocking(t *testing.T) {
	assert.True(t, SeverityCritical.Blocking())
	assert.True(t, SeverityHigh.Blocking())
	assert.False(t, SeverityMedium.Blocking())
	assert.False(t, SeverityLow.Blocking())
	assert.False(t, SeverityInfo.Blocking())
}

// ---------------------------------------------------------------------------
// Context
// ---------------------------------------------------------------------------

func TestNewRequest_RendersSliceSource(t *testing.T) {
	root, g := buildProject(t)
	route := g.FindRoutes("get", "/docs/:id")[0]
	s, err := g.Slice(route.Key(), 3)
	require.NoError(t, err)

	req := NewRequest(NewSourceReader(root), s)
	assert.Equal(t, "get /docs/:id", req.Label)
	require.Len(t, req.Functions, 2)
	assert.Equal(t, "show", req.Functions[0].Name)
	assert.Equal(t, 0, req.Functions[0].Depth)
	assert.Equal(t, "load", req.Functions[1].Name)
	assert.Equal(t, 1, req.Functions[1].Depth)

	want := "// File: app.js, Lines 3-6\n" +
		"function show(req, res) {\n  const doc = load(req.params.id);\n  res.json(doc);\n}\n\n" +
		"// File: store.js, Lines 1-3\n" +
		"function load(id) {\n  return db[id];\n}\n"
	assert.Equal(t, want, req.Context)
}

func TestBuildContext_FallsBackToHandlerSpan(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.js"), []byte("one\ntwo\nthree\n"), 0o644))

	req := AuditRequest{Route: graph.RouteInfo{
		File:    "a.js",
		Line:    2,
		Handler: graph.HandlerRef{Kind: graph.HandlerIdentifier, Name: "missing", StartLine: 2, EndLine: 3},
	}}
	assert.Equal(t, "// File: a.js, Lines 2-3\ntwo\nthree\n", BuildContext(NewSourceReader(root), req))
}

func TestSourceReader_ClampsRange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.js"), []byte("l1\nl2\n"), 0o644))
	r := NewSourceReader(root)

	got, err := r.Lines("a.js", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "l1\nl2", got)

	got, err = r.Lines("a.js", 5, 9)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.Lines("missing.js", 1, 1)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

func TestRunner_CollectsFindingsInRouteOrder(t *testing.T) {
	root, g := buildProject(t)

	var seen atomic.Int32
	oracle := OracleFunc(func(_ context.Context, req AuditRequest) (*AuditResult, error) {
		seen.Add(1)
		if req.Route.Method == "get" {
			return &AuditResult{Findings: []Finding{finding(SeverityCritical), finding(SeverityLow)}}, nil
		}
		return &AuditResult{Route: req.Label, Reasoning: "no data access"}, nil
	})

	report, err := NewRunner(oracle, root, RunnerConfig{Concurrency: 2, Logger: quietLogger()}).Run(context.Background(), g)
	require.NoError(t, err)
	assert.EqualValues(t, 2, seen.Load())
	assert.Empty(t, report.Skipped)

	require.Len(t, report.Audits, 2)
	assert.Equal(t, "get /docs/:id", report.Audits[0].Result.Route, "empty route label is filled in")
	assert.Equal(t, "delete /docs/:id", report.Audits[1].Result.Route)

	counts := report.Counts()
	assert.Equal(t, 1, counts[SeverityCritical])
	assert.Equal(t, 1, counts[SeverityLow])
	assert.Equal(t, 0, counts[SeverityHigh])
	assert.Len(t, counts, len(Severities))
	assert.Equal(t, 1, report.Blocking())
}

func TestRunner_SkipsFailedRoutes(t *testing.T) {
	root, g := buildProject(t)

	oracle := OracleFunc(func(ctx context.Context, req AuditRequest) (*AuditResult, error) {
		switch req.Route.Method {
		case "get":
			return nil, errors.New("agent unavailable")
		default:
			bad := finding(SeverityHigh)
			bad.Confidence = 3
			return &AuditResult{Findings: []Finding{bad}}, nil
		}
	})

	report, err := NewRunner(oracle, root, RunnerConfig{Logger: quietLogger()}).Run(context.Background(), g)
	require.NoError(t, err, "oracle failures never fail the run")
	assert.Empty(t, report.Audits)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, "get /docs/:id", report.Skipped[0].Route)
	assert.Contains(t, report.Skipped[0].Reason, "agent unavailable")
	assert.Contains(t, report.Skipped[1].Reason, ErrInvalidResult.Error())
	assert.Zero(t, report.Blocking())
}

func TestRunner_PerRouteTimeout(t *testing.T) {
	root, g := buildProject(t)

	oracle := OracleFunc(func(ctx context.Context, req AuditRequest) (*AuditResult, error) {
		if req.Route.Method == "get" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &AuditResult{}, nil
	})

	report, err := NewRunner(oracle, root, RunnerConfig{Timeout: 20 * time.Millisecond, Logger: quietLogger()}).
		Run(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	assert.Contains(t, report.Skipped[0].Reason, "timed out")
	assert.Len(t, report.Audits, 1)
}

func TestRunner_DepthBound(t *testing.T) {
	root, g := buildProject(t)

	var mu sync.Mutex
	got := map[string][]string{}
	oracle := OracleFunc(func(_ context.Context, req AuditRequest) (*AuditResult, error) {
		names := make([]string, 0, len(req.Functions))
		for _, fn := range req.Functions {
			names = append(names, fn.Name)
		}
		mu.Lock()
		got[req.Label] = names
		mu.Unlock()
		return &AuditResult{}, nil
	})

	tests := []struct {
		depth int
		want  []string
	}{
		{depth: 0, want: []string{"show"}},
		{depth: 1, want: []string{"show", "load"}},
	}
	for _, tt := range tests {
		_, err := NewRunner(oracle, root, RunnerConfig{Depth: tt.depth, Logger: quietLogger()}).Run(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got["get /docs/:id"], "depth %d", tt.depth)
	}

	_, err := NewRunner(oracle, root, RunnerConfig{Depth: -1, Logger: quietLogger()}).Run(context.Background(), g)
	assert.ErrorIs(t, err, graph.ErrInvalidDepth)
}

func TestRunner_Cancelled(t *testing.T) {
	root, g := buildProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	oracle := OracleFunc(func(context.Context, AuditRequest) (*AuditResult, error) {
		return &AuditResult{}, nil
	})
	_, err := NewRunner(oracle, root, RunnerConfig{Logger: quietLogger()}).Run(ctx, g)
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// RemoteOracle
// ---------------------------------------------------------------------------

// agentHandler decodes a message/send call, checks the audit request in its
// data part and answers with a completed task carrying artifactParts.
func agentHandler(t *testing.T, artifactParts []map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, jsonRPCVersion, req.JSONRPC)
		assert.Equal(t, methodSendMessage, req.Method)

		var params sendMessageParams
		require.NoError(t, json.Unmarshal(req.Params, &params))
		assert.True(t, params.Configuration.Blocking)
		require.Len(t, params.Message.Parts, 1)

		var audit AuditRequest
		require.NoError(t, json.Unmarshal(params.Message.Parts[0].Data, &audit))
		assert.Equal(t, "get /docs/:id", audit.Label)

		result, err := json.Marshal(map[string]any{
			"id":        "task-1",
			"status":    map[string]any{"state": "completed"},
			"artifacts": []map[string]any{{"name": "audit", "parts": artifactParts}},
		})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": jsonRPCVersion,
			"id":      req.ID,
			"result":  json.RawMessage(result),
		}))
	}
}

const resultJSON = `{"route":"get /docs/:id","findings":[{"vuln_type":"IDOR","severity":"high","title":"t","description":"d","affected_route":"get /docs/:id","file_path":"app.js","start_line":3,"end_line":6,"recommendation":"r","confidence":0.9,"evidence":"e"}],"reasoning":"why"}`

func TestRemoteOracle_DataArtifact(t *testing.T) {
	ts := httptest.NewServer(agentHandler(t, []map[string]any{
		{"data": json.RawMessage(resultJSON), "mediaType": "application/json"},
	}))
	defer ts.Close()

	res, err := NewRemoteOracle(ts.URL).Audit(context.Background(), AuditRequest{Label: "get /docs/:id"})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, CategoryIDOR, res.Findings[0].Category)
	assert.Equal(t, SeverityHigh, res.Findings[0].Severity)
	assert.InDelta(t, 0.9, res.Findings[0].Confidence, 1e-9)
	assert.Equal(t, "why", res.Reasoning)
}

func TestRemoteOracle_FencedTextArtifact(t *testing.T) {
	ts := httptest.NewServer(agentHandler(t, []map[string]any{
		{"text": "```json\n" + resultJSON + "\n```\n"},
	}))
	defer ts.Close()

	res, err := NewRemoteOracle(ts.URL).Audit(context.Background(), AuditRequest{Label: "get /docs/:id"})
	require.NoError(t, err)
	assert.Len(t, res.Findings, 1)
}

func TestRemoteOracle_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "rpc error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"model overloaded"}}`)
			},
			check: func(t *testing.T, err error) {
				var rpcErr *RPCError
				require.ErrorAs(t, err, &rpcErr)
				assert.Equal(t, -32603, rpcErr.Code)
			},
		},
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "HTTP 502")
			},
		},
		{
			name: "failed task",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"id":"t","status":{"state":"failed"}}}`)
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), `"failed"`)
			},
		},
		{
			name: "no artifact",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"id":"t","status":{"state":"completed"}}}`)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoArtifact)
			},
		},
		{
			name: "prose instead of json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"id":"t","status":{"state":"completed"},"artifacts":[{"parts":[{"text":"looks fine to me"}]}]}}`)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrInvalidResult)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()
			_, err := NewRemoteOracle(ts.URL).Audit(context.Background(), AuditRequest{})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestRemoteOracle_HonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewRemoteOracle(ts.URL).Audit(ctx, AuditRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStripFence(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFence(tt.in), strings.ReplaceAll(tt.in, "\n", `\n`))
	}
}
