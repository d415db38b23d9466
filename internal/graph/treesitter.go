package graph

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// extDialects maps source file extensions to the grammar that parses them.
var extDialects = map[string]Dialect{
	".js":  DialectJavaScript,
	".jsx": DialectJavaScript,
	".mjs": DialectJavaScript,
	".cjs": DialectJavaScript,
	".ts":  DialectTypeScript,
	".mts": DialectTypeScript,
	".cts": DialectTypeScript,
	".tsx": DialectTSX,
}

// DialectForPath returns the dialect for a file path based on its extension.
func DialectForPath(path string) (Dialect, bool) {
	d, ok := extDialects[strings.ToLower(filepath.Ext(path))]
	return d, ok
}

// SupportedExtensions returns every extension DialectForPath recognizes.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extDialects))
	for ext := range extDialects {
		exts = append(exts, ext)
	}
	return exts
}

// Compile-time check that TreeSitterParser satisfies Parser.
var _ Parser = (*TreeSitterParser)(nil)

// TreeSitterParser implements Parser with the JavaScript, TypeScript and TSX
// grammars. Queries are compiled once per dialect; a new tree-sitter parser
// is created per Parse call, so Parse may run concurrently.
type TreeSitterParser struct {
	languages map[Dialect]*tree_sitter.Language
	matchers  map[Dialect]*Matcher
	version   string
}

// NewTreeSitterParser compiles qs against every supported grammar.
func NewTreeSitterParser(qs QuerySet) (*TreeSitterParser, error) {
	p := &TreeSitterParser{
		languages: map[Dialect]*tree_sitter.Language{
			DialectJavaScript: tree_sitter.NewLanguage(tree_sitter_javascript.Language()),
			DialectTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			DialectTSX:        tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
		},
		matchers: make(map[Dialect]*Matcher, 3),
		version:  qs.Version,
	}

	for dialect, lang := range p.languages {
		m, err := NewMatcher(dialect, lang, qs)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.matchers[dialect] = m
	}
	return p, nil
}

// Parse extracts records from a single source file. The syntax tree is
// released before Parse returns.
func (p *TreeSitterParser) Parse(_ context.Context, path string, source []byte, dialect Dialect) (*FileRecords, error) {
	lang, ok := p.languages[dialect]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", path, ErrUnsupportedDialect, dialect)
	}
	matcher := p.matchers[dialect]

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("set language %s: %w", dialect, err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("%s: %w: no tree produced", path, ErrParseFailure)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%s: %w: syntax error", path, ErrParseFailure)
	}

	rec := extract(matcher, root, source, path)
	rec.Dialect = dialect
	rec.LOC = countLOC(source)
	return rec, nil
}

// QueryVersion returns the version of the compiled query set.
func (p *TreeSitterParser) QueryVersion() string {
	return p.version
}

// Close releases the compiled queries.
func (p *TreeSitterParser) Close() error {
	for _, m := range p.matchers {
		m.Close()
	}
	p.matchers = nil
	return nil
}

// countLOC counts the number of lines in source by counting newline bytes
// and adding one for the final line if the source is non-empty.
func countLOC(source []byte) int {
	if len(source) == 0 {
		return 0
	}
	return bytes.Count(source, []byte{'\n'}) + 1
}
