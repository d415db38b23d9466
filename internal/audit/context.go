package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// SourceReader returns line ranges of project files, reading each file once.
// Safe for concurrent use.
type SourceReader struct {
	root string

	mu    sync.Mutex
	lines map[string][]string
}

// NewSourceReader creates a SourceReader for files under root.
func NewSourceReader(root string) *SourceReader {
	return &SourceReader{root: root, lines: make(map[string][]string)}
}

// Lines returns lines start..end (1-based, inclusive) of the file at the
// slash-relative path rel, clamped to the file length.
func (r *SourceReader) Lines(rel string, start, end int) (string, error) {
	lines, err := r.load(rel)
	if err != nil {
		return "", err
	}
	start = max(start, 1)
	end = min(end, len(lines))
	if start > end {
		return "", nil
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

func (r *SourceReader) load(rel string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lines, ok := r.lines[rel]; ok {
		return lines, nil
	}
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", rel, err)
	}
	lines := strings.Split(string(bytes.TrimRight(data, "\n")), "\n")
	r.lines[rel] = lines
	return lines, nil
}

// NewRequest assembles the oracle request for a slice. Functions whose file
// can no longer be read keep an empty source.
func NewRequest(src *SourceReader, s *graph.Slice) AuditRequest {
	req := AuditRequest{
		Route:     s.Route,
		Label:     RouteLabel(s.Route),
		Truncated: s.Truncated,
		Functions: make([]SliceFunction, 0, len(s.Nodes)),
	}
	for _, n := range s.Nodes {
		text, _ := src.Lines(n.Function.File, n.Function.StartLine, n.Function.EndLine)
		req.Functions = append(req.Functions, SliceFunction{
			FunctionInfo: n.Function,
			Depth:        n.Depth,
			Source:       text,
		})
	}
	req.Context = BuildContext(src, req)
	return req
}

// BuildContext renders every sliced function as a source block headed by
// "// File: <path>, Lines <start>-<end>". With no sliced functions the route
// handler span is rendered instead.
func BuildContext(src *SourceReader, req AuditRequest) string {
	if len(req.Functions) == 0 {
		start, end := req.Route.Handler.StartLine, req.Route.Handler.EndLine
		if start == 0 {
			start, end = req.Route.Line, req.Route.Line
		}
		text, _ := src.Lines(req.Route.File, start, end)
		return fmt.Sprintf("// File: %s, Lines %d-%d\n%s\n", req.Route.File, start, end, text)
	}

	blocks := make([]string, len(req.Functions))
	for i, fn := range req.Functions {
		blocks[i] = fmt.Sprintf("// File: %s, Lines %d-%d\n%s", fn.File, fn.StartLine, fn.EndLine, fn.Source)
	}
	return strings.Join(blocks, "\n\n") + "\n"
}
