package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"verimap/internal/crawler"
	"verimap/internal/extractor"
	"verimap/internal/graph"
	"verimap/internal/locate"
	"verimap/internal/scip"
	"verimap/internal/symbols"
)

// Options configures an Indexer.
type Options struct {
	SCIP          scip.Options
	Ladder        *symbols.Ladder
	WithLocations bool
	Logger        *slog.Logger
}

// Indexer orchestrates source scanning, symbol disambiguation and call
// graph construction.
type Indexer struct {
	crawler *crawler.Crawler
	opts    Options
	logger  *slog.Logger
}

// Result carries every intermediate product of BuildGraph.
type Result struct {
	Index    *extractor.Index
	Skipped  []crawler.Skipped
	Registry *symbols.Registry
	Graph    *graph.Graph
}

// NewIndexer creates a new indexer.
func NewIndexer(c *crawler.Crawler, opts Options) *Indexer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indexer{
		crawler: c,
		opts:    opts,
		logger:  logger,
	}
}

// Scan indexes the source tree under root.
func (i *Indexer) Scan(ctx context.Context, root string) (*crawler.Result, error) {
	res, err := i.crawler.ScanProject(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return res, nil
}

// BuildGraph scans root, converts the code-structure index, assigns atoms
// and links calls. Collisions and duplicate atoms are returned unwrapped
// enough for errors.As.
func (i *Indexer) BuildGraph(ctx context.Context, root string, in *scip.Input) (*Result, error) {
	scan, err := i.Scan(ctx, root)
	if err != nil {
		return nil, err
	}

	raws := AttachHints(in.Symbols(i.opts.SCIP), scan.Index)
	i.logger.Info("index symbols loaded", "definitions", len(raws), "entities", len(scan.Index.All))

	reg, err := symbols.NewRegistry(raws, symbols.Options{Ladder: i.opts.Ladder, Logger: i.logger})
	if err != nil {
		return nil, fmt.Errorf("symbol registry: %w", err)
	}
	for _, st := range reg.Stats() {
		if st.Groups > 0 {
			i.logger.Debug("disambiguation stage", "stage", st.Stage, "groups", st.Groups, "records", st.Records)
		}
	}

	g, err := graph.Build(reg, scan.Index, graph.Options{WithLocations: i.opts.WithLocations, Logger: i.logger})
	if err != nil {
		return nil, fmt.Errorf("call graph: %w", err)
	}

	return &Result{
		Index:    scan.Index,
		Skipped:  scan.Skipped,
		Registry: reg,
		Graph:    g,
	}, nil
}

// AttachHints fills missing self-type and trait hints of raw records from
// the source entity with the same name that contains the definition line.
// The input slice is not modified.
func AttachHints(raws []symbols.RawIndexSymbol, idx *extractor.Index) []symbols.RawIndexSymbol {
	out := make([]symbols.RawIndexSymbol, len(raws))
	copy(out, raws)
	if idx == nil {
		return out
	}

	matcher := locate.NewPathMatcher(idx.Files())
	for k := range out {
		r := &out[k]
		if r.SelfType != "" && r.Trait != "" {
			continue
		}
		file, _, ok := matcher.Match(r.File)
		if !ok {
			continue
		}
		var best *extractor.FunctionEntity
		for _, e := range idx.ByFile[file] {
			if e.Name != r.DisplayName || !e.Contains(r.Line) {
				continue
			}
			if best == nil || e.EndLine-e.StartLine < best.EndLine-best.StartLine {
				best = e
			}
		}
		if best == nil {
			continue
		}
		if r.SelfType == "" {
			r.SelfType = best.SelfType
		}
		if r.Trait == "" {
			r.Trait = best.TraitName
		}
	}
	return out
}

// SaveAtoms persists the atoms map to a JSON file.
func SaveAtoms(path string, records map[string]graph.AtomRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create atoms file: %w", err)
	}
	defer f.Close()

	if err := graph.WriteAtoms(f, records); err != nil {
		return err
	}
	return f.Close()
}

// LoadAtoms loads an atoms map from a JSON file.
func LoadAtoms(path string) (map[string]graph.AtomRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open atoms file: %w", err)
	}
	defer f.Close()

	return graph.ReadAtoms(f)
}
