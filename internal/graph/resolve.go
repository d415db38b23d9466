package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Resolver maps import specifiers to repo-relative file paths that match
// FileRecords.Path values. It is built once per graph build from the set of
// scanned files and any npm/bun workspace metadata found at the repo root.
type Resolver struct {
	repoRoot   string
	fileSet    map[string]bool
	workspaces map[string]*workspace
}

// workspace holds metadata about a single npm/bun workspace package.
type workspace struct {
	dir            string            // repo-relative directory (e.g. "packages/db")
	mainFile       string            // default export target, repo-relative
	subpathExports map[string]string // "./queries" → "packages/db/src/queries.ts"
}

// NewResolver builds a Resolver from the repository root and the set of
// known repo-relative file paths. repoRoot may be empty, in which case
// workspace packages are not resolved.
func NewResolver(repoRoot string, knownFiles []string) *Resolver {
	r := &Resolver{
		repoRoot:   repoRoot,
		fileSet:    make(map[string]bool, len(knownFiles)),
		workspaces: make(map[string]*workspace),
	}
	for _, f := range knownFiles {
		r.fileSet[filepath.ToSlash(f)] = true
	}
	if repoRoot != "" {
		r.scanWorkspaces()
	}
	return r
}

// moduleExtensions are probed, in order, after an extensionless specifier.
var moduleExtensions = []string{
	".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs",
	"/index.ts", "/index.tsx", "/index.js", "/index.jsx",
}

// Resolve maps specifier, as written in fromFile, to a known file path.
// Relative specifiers are probed against the file set; bare specifiers
// resolve only when they name a workspace package. Everything else is an
// external module and reports false.
func (r *Resolver) Resolve(specifier, fromFile string) (string, bool) {
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || specifier == "." || specifier == ".." {
		base := joinPath(filepath.Dir(filepath.ToSlash(fromFile)), specifier)
		if resolved, ok := r.probeFile(base, moduleExtensions); ok {
			return resolved, true
		}
		// ESM TypeScript imports name the emitted file: './svc.js' → svc.ts.
		if ext := filepath.Ext(base); ext == ".js" || ext == ".jsx" || ext == ".mjs" || ext == ".cjs" {
			return r.probeFile(strings.TrimSuffix(base, ext), moduleExtensions)
		}
		return "", false
	}
	return r.resolveWorkspace(specifier)
}

func (r *Resolver) resolveWorkspace(importPath string) (string, bool) {
	// Exact package name: "@test/logger" → mainFile.
	if ws, ok := r.workspaces[importPath]; ok {
		if ws.mainFile != "" {
			return ws.mainFile, true
		}
		return "", false
	}

	// Split "@scope/pkg/sub/path" or "pkg/sub/path" into package + subpath.
	var pkgName, subpath string
	if strings.HasPrefix(importPath, "@") {
		afterScope := strings.Index(importPath[1:], "/")
		if afterScope == -1 {
			return "", false
		}
		scopeEnd := afterScope + 1
		secondSlash := strings.Index(importPath[scopeEnd+1:], "/")
		if secondSlash == -1 {
			return "", false
		}
		splitAt := scopeEnd + 1 + secondSlash
		pkgName = importPath[:splitAt]
		subpath = "./" + importPath[splitAt+1:]
	} else {
		slash := strings.Index(importPath, "/")
		if slash == -1 {
			return "", false
		}
		pkgName = importPath[:slash]
		subpath = "./" + importPath[slash+1:]
	}

	ws, ok := r.workspaces[pkgName]
	if !ok {
		return "", false
	}
	if target, ok := ws.subpathExports[subpath]; ok {
		return target, true
	}
	return r.probeFile(joinPath(ws.dir, subpath[2:]), moduleExtensions)
}

// probeFile checks if basePath, or basePath with one of extensions appended,
// is a known file. No filesystem I/O.
func (r *Resolver) probeFile(basePath string, extensions []string) (string, bool) {
	if r.fileSet[basePath] {
		return basePath, true
	}
	for _, ext := range extensions {
		candidate := basePath + ext
		if r.fileSet[candidate] {
			return candidate, true
		}
	}
	return "", false
}

// joinPath joins slash-separated path segments and cleans the result.
func joinPath(elem ...string) string {
	return filepath.ToSlash(filepath.Clean(filepath.Join(elem...)))
}

// --- Workspace scanning ---

// packageJSON is a minimal representation for reading package.json files.
type packageJSON struct {
	Name       string          `json:"name"`
	Main       string          `json:"main"`
	Workspaces json.RawMessage `json:"workspaces"`
	Exports    json.RawMessage `json:"exports"`
}

func (r *Resolver) scanWorkspaces() {
	data, err := os.ReadFile(filepath.Join(r.repoRoot, "package.json"))
	if err != nil {
		return
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return
	}

	for _, pattern := range parseWorkspacePatterns(pkg.Workspaces) {
		matches, err := filepath.Glob(filepath.Join(r.repoRoot, pattern))
		if err != nil {
			continue
		}
		for _, dir := range matches {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				r.loadWorkspacePackage(dir)
			}
		}
	}
}

// parseWorkspacePatterns accepts ["packages/*"] or {"packages": ["packages/*"]}.
func parseWorkspacePatterns(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Packages
	}
	return nil
}

func (r *Resolver) loadWorkspacePackage(absDir string) {
	data, err := os.ReadFile(filepath.Join(absDir, "package.json"))
	if err != nil {
		return
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil || pkg.Name == "" {
		return
	}
	relDir, err := filepath.Rel(r.repoRoot, absDir)
	if err != nil {
		return
	}

	ws := &workspace{dir: filepath.ToSlash(relDir), subpathExports: make(map[string]string)}
	r.parseExports(ws, pkg.Exports)

	if ws.mainFile == "" && pkg.Main != "" {
		if resolved, ok := r.probeFile(joinPath(ws.dir, pkg.Main), moduleExtensions); ok {
			ws.mainFile = resolved
		}
	}
	if ws.mainFile == "" {
		for _, try := range []string{joinPath(ws.dir, "src", "index"), joinPath(ws.dir, "index")} {
			if resolved, ok := r.probeFile(try, moduleExtensions); ok {
				ws.mainFile = resolved
				break
			}
		}
	}

	r.workspaces[pkg.Name] = ws
}

func (r *Resolver) parseExports(ws *workspace, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if probed, ok := r.probeFile(joinPath(ws.dir, str), moduleExtensions); ok {
			ws.mainFile = probed
		}
		return
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return
	}
	for key, val := range obj {
		target := resolveExportValue(val)
		if target == "" {
			continue
		}
		finalPath, ok := r.probeFile(joinPath(ws.dir, target), moduleExtensions)
		if !ok {
			continue
		}
		if key == "." {
			ws.mainFile = finalPath
		} else {
			ws.subpathExports[key] = finalPath
		}
	}
}

// resolveExportValue extracts a file path from an export value, which can be
// a string or a conditional object {"import": ..., "require": ..., "default": ...}.
func resolveExportValue(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"import", "require", "default"} {
		if v, ok := obj[key]; ok {
			return resolveExportValue(v)
		}
	}
	return ""
}
