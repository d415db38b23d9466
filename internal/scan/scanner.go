// Package scan runs the extraction pipeline over a project directory:
// discovery, parallel per-file parsing behind a join barrier, and the
// single-threaded graph build that follows it.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/logicgate/internal/graph"
)

var tracer = otel.Tracer("github.com/dusk-indust/logicgate/internal/scan")

// ErrNoSourceFiles is returned when a scan finds no readable source file.
var ErrNoSourceFiles = errors.New("no readable source files")

// Options configures a Scanner.
type Options struct {
	// Workers bounds concurrent parses. Zero uses GOMAXPROCS.
	Workers int

	// ExcludeDirs are skipped during discovery. Nil uses DefaultExcludeDirs.
	ExcludeDirs []string

	// Extensions limits discovery. Nil uses every supported extension.
	Extensions []string

	// Cache, when set, serves unchanged files without parsing them.
	Cache *RecordCache

	// Logger receives per-file warnings and the run summary. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

// SkippedFile is a discovered file that contributed no records.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Diagnostics summarizes what a run did with each discovered file.
type Diagnostics struct {
	Discovered int           `json:"discovered"`
	Parsed     int           `json:"parsed"`
	CacheHits  int           `json:"cacheHits"`
	Dropped    int           `json:"droppedMatches"`
	Skipped    []SkippedFile `json:"skipped"`
}

// Result is the outcome of one analysis run.
type Result struct {
	RunID       string              `json:"runId"`
	Root        string              `json:"root"`
	Records     []graph.FileRecords `json:"-"`
	Graph       *graph.CallGraph    `json:"-"`
	Diagnostics Diagnostics         `json:"diagnostics"`
	Duration    time.Duration       `json:"duration"`
}

// Scanner turns a project directory into a call graph.
type Scanner struct {
	parser graph.Parser
	opts   Options
	logger *slog.Logger
}

// NewScanner creates a Scanner that extracts records with parser.
func NewScanner(parser graph.Parser, opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.ExcludeDirs == nil {
		opts.ExcludeDirs = DefaultExcludeDirs
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{parser: parser, opts: opts, logger: logger}
}

// unit is the per-file result slot written by exactly one worker.
type unit struct {
	rec    *graph.FileRecords
	skip   *SkippedFile
	cached bool
	read   bool
}

// Run scans root and builds the call graph. Files that cannot be read or
// parsed are skipped and listed in the diagnostics. Run returns
// ErrNoSourceFiles when nothing readable was found and ctx.Err() when
// cancelled; in both cases no graph is produced.
func (s *Scanner) Run(ctx context.Context, root string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "scan.Scanner.Run",
		trace.WithAttributes(attribute.String("root", root), attribute.Int("workers", s.opts.Workers)))
	defer span.End()

	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)

	paths, err := Discover(root, s.opts.ExcludeDirs, s.opts.Extensions)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", root, ErrNoSourceFiles)
	}

	slots := make([]unit, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for i, rel := range paths {
		// Coarse-grained cancellation: stop scheduling new units.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = s.process(gctx, root, rel)
			return nil
		})
	}
	// Join barrier: slots are only read after every unit completes.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, Root: root}
	res.Diagnostics.Discovered = len(paths)
	readable := 0
	for _, u := range slots {
		if u.read {
			readable++
		}
		switch {
		case u.skip != nil:
			res.Diagnostics.Skipped = append(res.Diagnostics.Skipped, *u.skip)
			logger.Warn("file skipped", "path", u.skip.Path, "reason", u.skip.Reason)
		case u.rec != nil:
			res.Records = append(res.Records, *u.rec)
			res.Diagnostics.Dropped += u.rec.Dropped
			if u.cached {
				res.Diagnostics.CacheHits++
			} else {
				res.Diagnostics.Parsed++
			}
		}
	}
	if readable == 0 {
		return nil, fmt.Errorf("%s: %w", root, ErrNoSourceFiles)
	}

	recPaths := make([]string, len(res.Records))
	for i, r := range res.Records {
		recPaths[i] = r.Path
	}
	builder := graph.NewBuilder(graph.NewResolver(root, recPaths), logger)
	res.Graph = builder.Build(ctx, res.Records)
	res.Duration = time.Since(start)

	recordMetrics(res)
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("files.discovered", len(paths)),
		attribute.Int("files.skipped", len(res.Diagnostics.Skipped)),
	)
	logger.Info("scan complete",
		"root", root,
		"discovered", len(paths),
		"parsed", res.Diagnostics.Parsed,
		"cache_hits", res.Diagnostics.CacheHits,
		"skipped", len(res.Diagnostics.Skipped),
		"duration", res.Duration,
	)
	return res, nil
}

// process reads and parses one file. It never returns an error: failures
// become a skip entry in the slot.
func (s *Scanner) process(ctx context.Context, root, rel string) unit {
	source, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return unit{skip: &SkippedFile{Path: rel, Reason: fmt.Sprintf("read: %v", err)}}
	}

	dialect, ok := graph.DialectForPath(rel)
	if !ok {
		return unit{read: true, skip: &SkippedFile{Path: rel, Reason: graph.ErrUnsupportedDialect.Error()}}
	}

	version := s.parser.QueryVersion()
	if s.opts.Cache != nil {
		if rec, hit := s.opts.Cache.Get(rel, source, dialect, version); hit {
			return unit{read: true, rec: rec, cached: true}
		}
	}

	rec, err := s.parser.Parse(ctx, rel, source, dialect)
	if err != nil {
		return unit{read: true, skip: &SkippedFile{Path: rel, Reason: err.Error()}}
	}
	if s.opts.Cache != nil {
		if err := s.opts.Cache.Put(rel, source, version, rec); err != nil {
			s.logger.Debug("record cache write failed", "path", rel, "error", err)
		}
	}
	return unit{read: true, rec: rec}
}
