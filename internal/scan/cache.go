package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/zeebo/xxh3"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// CacheConfig configures a RecordCache.
type CacheConfig struct {
	// Dir is the Badger directory. Required unless InMemory is set.
	Dir string

	// InMemory keeps the cache in RAM only. Useful for tests and watch mode.
	InMemory bool

	// Logger receives Badger's internal log output. Nil disables it.
	Logger *slog.Logger
}

// RecordCache stores extracted FileRecords keyed by file content, dialect and
// query version, so unchanged files skip parsing on the next run. Editing a
// query file changes the version and so misses every entry.
//
// Safe for concurrent use.
type RecordCache struct {
	db *badger.DB
}

// OpenRecordCache opens (or creates) the cache described by cfg.
func OpenRecordCache(cfg CacheConfig) (*RecordCache, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("record cache: dir is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("record cache: create %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("record cache: open badger: %w", err)
	}
	return &RecordCache{db: db}, nil
}

// Close flushes and closes the underlying database.
func (c *RecordCache) Close() error {
	return c.db.Close()
}

// Get returns the cached records for path with the given content, if any.
func (c *RecordCache) Get(path string, source []byte, dialect graph.Dialect, queryVersion string) (*graph.FileRecords, bool) {
	var rec graph.FileRecords
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(path, source, dialect, queryVersion))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, false
	}
	return &rec, true
}

// Put stores rec for path with the given content.
func (c *RecordCache) Put(path string, source []byte, queryVersion string, rec *graph.FileRecords) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("record cache: encode %s: %w", path, err)
	}
	key := cacheKey(path, source, rec.Dialect, queryVersion)
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// cacheKey is "rec/<version>/<dialect>/<path>/<xxh3 of content>".
func cacheKey(path string, source []byte, dialect graph.Dialect, queryVersion string) []byte {
	return fmt.Appendf(nil, "rec/%s/%s/%s/%016x", queryVersion, dialect, path, xxh3.Hash(source))
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
