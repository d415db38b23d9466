package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// DefaultExcludeDirs are build output and dependency directories that never
// hold first-party route code.
var DefaultExcludeDirs = []string{
	"node_modules", ".git", "dist", "build", ".next", "coverage", "__pycache__",
}

// Discover walks root and returns the repo-relative, slash-separated paths of
// every file with a supported extension, in lexical order. A directory is
// skipped when its base name is in excludeDirs, or when its relative path
// equals an entry containing a slash. exts defaults to every extension the
// parser understands.
func Discover(root string, excludeDirs, exts []string) ([]string, error) {
	if len(exts) == 0 {
		exts = graph.SupportedExtensions()
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(e)] = true
	}
	names, paths := splitExcludes(excludeDirs)

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // skip inaccessible paths
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != root && (names[d.Name()] || paths[rel]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if extSet[strings.ToLower(filepath.Ext(path))] {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

func splitExcludes(excludeDirs []string) (names, paths map[string]bool) {
	names = make(map[string]bool, len(excludeDirs))
	paths = make(map[string]bool)
	for _, d := range excludeDirs {
		d = strings.Trim(filepath.ToSlash(d), "/")
		if d == "" {
			continue
		}
		if strings.Contains(d, "/") {
			paths[d] = true
		} else {
			names[d] = true
		}
	}
	return names, paths
}
