package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dusk-indust/logicgate/internal/config"
	"github.com/dusk-indust/logicgate/internal/graph"
	"github.com/dusk-indust/logicgate/internal/scan"
)

// project is an opened analysis target: its config, parser and optional
// record cache.
type project struct {
	root   string
	cfg    *config.ProjectConfig
	parser *graph.TreeSitterParser
	cache  *scan.RecordCache
}

// openProject resolves the project root, loads its config and compiles the
// query set. Callers must Close the project.
func (a *app) openProject() (*project, error) {
	root, err := filepath.Abs(a.projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", root)
	}

	cfgDir := a.configDir
	if cfgDir == "" {
		cfgDir = root
	}
	cfg, err := config.Load(cfgDir)
	if err != nil {
		return nil, err
	}
	if a.workers > 0 {
		cfg.Workers = a.workers
	}

	qs, err := graph.LoadQueries(config.ResolvePath(root, cfg.QueryDir))
	if err != nil {
		return nil, err
	}
	parser, err := graph.NewTreeSitterParser(qs)
	if err != nil {
		return nil, err
	}

	p := &project{root: root, cfg: cfg, parser: parser}
	if cfg.CacheDir != "" {
		cache, err := scan.OpenRecordCache(scan.CacheConfig{
			Dir:    config.ResolvePath(root, cfg.CacheDir),
			Logger: a.logger,
		})
		if err != nil {
			_ = parser.Close()
			return nil, err
		}
		p.cache = cache
	}
	a.logger.Debug("project opened", "root", root, "query_version", parser.QueryVersion(), "cache", p.cache != nil)
	return p, nil
}

// Close releases the parser and cache.
func (p *project) Close() error {
	var errs []error
	if p.cache != nil {
		errs = append(errs, p.cache.Close())
	}
	errs = append(errs, p.parser.Close())
	return errors.Join(errs...)
}

func (p *project) scanOptions(a *app) scan.Options {
	return scan.Options{
		Workers:     p.cfg.Workers,
		ExcludeDirs: p.cfg.ExcludeDirs,
		Extensions:  p.cfg.Extensions,
		Cache:       p.cache,
		Logger:      a.logger,
	}
}

// scan runs one full analysis of the project.
func (p *project) scan(ctx context.Context, a *app) (*scan.Result, error) {
	return scan.NewScanner(p.parser, p.scanOptions(a)).Run(ctx, p.root)
}

// withProject opens the project, runs fn and closes the project.
func (a *app) withProject(fn func(p *project) error) error {
	p, err := a.openProject()
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			a.logger.Warn("closing project", "error", err)
		}
	}()
	return fn(p)
}

// loadGraph scans the project and loads the result into an in-memory store
// alongside its clusters.
func (p *project) loadGraph(ctx context.Context, a *app) (*scan.Result, *graph.MemStore, []graph.ClusterNode, error) {
	res, err := p.scan(ctx, a)
	if err != nil {
		return nil, nil, nil, err
	}
	clusters := graph.ComputeClusters(res.Graph)
	store := graph.NewMemStore()
	if err := graph.Persist(ctx, store, res.Graph, clusters); err != nil {
		return nil, nil, nil, err
	}
	return res, store, clusters, nil
}
