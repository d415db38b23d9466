package graph

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"
)

//go:embed queries/*.scm
var embeddedQueries embed.FS

// QueryVersion tags the embedded query set. Bump it whenever a .scm file
// changes so cached extraction records are invalidated.
const QueryVersion = "lg-queries-4"

// QueryFamily names one of the four independent structural query sets.
type QueryFamily string

const (
	FamilyRoutes    QueryFamily = "routes"
	FamilyFunctions QueryFamily = "functions"
	FamilyCalls     QueryFamily = "calls"
	FamilyImports   QueryFamily = "imports"
)

// QueryFamilies lists every family in extraction order.
var QueryFamilies = []QueryFamily{FamilyFunctions, FamilyRoutes, FamilyCalls, FamilyImports}

// QuerySet is the declarative input to the pattern matcher.
type QuerySet struct {
	Version string
	Sources map[QueryFamily]string
}

// DefaultQueries returns the query set compiled into the binary.
func DefaultQueries() QuerySet {
	qs := QuerySet{Version: QueryVersion, Sources: make(map[QueryFamily]string, len(QueryFamilies))}
	for _, fam := range QueryFamilies {
		data, err := embeddedQueries.ReadFile("queries/" + string(fam) + ".scm")
		if err != nil {
			// The embed pattern guarantees presence.
			panic(fmt.Sprintf("graph: embedded query %s missing: %v", fam, err))
		}
		qs.Sources[fam] = string(data)
	}
	return qs
}

// LoadQueries reads <family>.scm files from dir. Families without a file in
// dir keep their embedded definition. The version is derived from the
// combined query text so that edits invalidate cached records.
func LoadQueries(dir string) (QuerySet, error) {
	qs := DefaultQueries()
	if dir == "" {
		return qs, nil
	}

	overridden := 0
	for _, fam := range QueryFamilies {
		data, err := os.ReadFile(filepath.Join(dir, string(fam)+".scm"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return QuerySet{}, fmt.Errorf("read %s query: %w", fam, err)
		}
		qs.Sources[fam] = string(data)
		overridden++
	}
	if overridden == 0 {
		return qs, nil
	}

	var sb strings.Builder
	for _, fam := range QueryFamilies {
		sb.WriteString(qs.Sources[fam])
	}
	qs.Version = fmt.Sprintf("custom-%016x", xxh3.HashString(sb.String()))
	return qs, nil
}
