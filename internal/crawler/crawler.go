package crawler

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"verimap/internal/extractor"
)

// DefaultIgnored lists directories never descended into.
var DefaultIgnored = []string{".git", "target", "node_modules", ".verus-cache"}

// Options configures a Crawler.
type Options struct {
	// Ignore holds extra directory names to skip.
	Ignore  []string
	Workers int
	Logger  *slog.Logger
}

// Crawler scans a directory tree for Rust source files.
type Crawler struct {
	extractor *extractor.Extractor
	ignored   map[string]bool
	workers   int
	logger    *slog.Logger
}

// Skipped records a file that could not be indexed.
type Skipped struct {
	File string
	Err  error
}

// Result is the outcome of a scan.
type Result struct {
	Index   *extractor.Index
	Skipped []Skipped
}

// NewCrawler creates a new crawler instance.
func NewCrawler(ext *extractor.Extractor, opts Options) *Crawler {
	ignored := make(map[string]bool)
	for _, d := range DefaultIgnored {
		ignored[d] = true
	}
	for _, d := range opts.Ignore {
		ignored[d] = true
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Crawler{
		extractor: ext,
		ignored:   ignored,
		workers:   workers,
		logger:    logger,
	}
}

// ListFiles returns the slash-separated paths of all .rs files under root,
// relative to root and sorted.
func (c *Crawler) ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && c.ignored[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".rs") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ScanProject extracts every source file under root. Files that fail to
// read or parse are logged and reported in Result.Skipped; the scan itself
// only fails when the tree cannot be walked or ctx is cancelled.
func (c *Crawler) ScanProject(ctx context.Context, root string) (*Result, error) {
	files, err := c.ListFiles(root)
	if err != nil {
		return nil, err
	}

	perFile := make([][]*extractor.FunctionEntity, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entities, err := c.extractor.ExtractFromFile(gctx, root, rel)
			if err != nil {
				errs[i] = err
				return nil
			}
			perFile[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	var all []*extractor.FunctionEntity
	for i, rel := range files {
		if errs[i] != nil {
			c.logger.Warn("skipping file", "file", rel, "error", errs[i])
			res.Skipped = append(res.Skipped, Skipped{File: rel, Err: errs[i]})
			continue
		}
		all = append(all, perFile[i]...)
	}
	res.Index = extractor.NewIndex(all)
	c.logger.Debug("scan complete", "files", len(files), "entities", len(all), "skipped", len(res.Skipped))
	return res, nil
}
