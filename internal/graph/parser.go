package graph

import "context"

// Parser turns one source file into extraction records.
// Implementations: TreeSitterParser (production), stub parsers in tests.
type Parser interface {
	// Parse extracts routes, functions, calls and imports from a single file.
	// A file whose syntax tree contains errors returns ErrParseFailure.
	Parse(ctx context.Context, path string, source []byte, dialect Dialect) (*FileRecords, error)

	// QueryVersion identifies the query set records are extracted with.
	QueryVersion() string

	// Close releases parser resources (compiled queries).
	Close() error
}
