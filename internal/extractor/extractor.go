package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Options configures which macro invocations are re-parsed as item lists.
type Options struct {
	// BlockMacros hold ordinary items in the verification dialect (verus!).
	BlockMacros []string
	// CfgMacros wrap items in conditional-compilation branches (cfg_if!).
	CfgMacros []string
}

// DefaultOptions returns the macro sets used when none are configured.
func DefaultOptions() Options {
	return Options{
		BlockMacros: []string{"verus"},
		CfgMacros:   []string{"cfg_if"},
	}
}

// Extractor turns Rust source files into FunctionEntity lists.
// It is safe for concurrent use; each call creates its own parser.
type Extractor struct {
	lang        *sitter.Language
	blockMacros map[string]bool
	cfgMacros   map[string]bool
}

// ParseError reports a file whose syntax tree contains errors.
type ParseError struct {
	File string
	Line int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syntax error in %s near line %d", e.File, e.Line)
}

// NewExtractor creates an extractor for the verification dialect.
func NewExtractor(opts Options) *Extractor {
	if len(opts.BlockMacros) == 0 && len(opts.CfgMacros) == 0 {
		opts = DefaultOptions()
	}
	e := &Extractor{
		lang:        rust.GetLanguage(),
		blockMacros: make(map[string]bool),
		cfgMacros:   make(map[string]bool),
	}
	for _, m := range opts.BlockMacros {
		e.blockMacros[m] = true
	}
	for _, m := range opts.CfgMacros {
		e.cfgMacros[m] = true
	}
	return e
}

// ExtractFromFile reads root/rel and extracts its entities. Entity file
// paths are reported relative to root.
func (e *Extractor) ExtractFromFile(ctx context.Context, root, rel string) ([]*FunctionEntity, error) {
	src, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", rel, err)
	}
	return e.ExtractFromSource(ctx, filepath.ToSlash(rel), src)
}

// ExtractFromSource parses src and returns its function entities in source
// order.
func (e *Extractor) ExtractFromSource(ctx context.Context, rel string, src []byte) ([]*FunctionEntity, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(e.lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse file %s: %w", rel, err)
	}

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{File: rel, Line: firstErrorLine(root)}
	}

	w := &walker{
		ext:  e,
		src:  src,
		file: rel,
	}
	w.items(root, scope{module: ModulePathFromFile(rel), ctx: ContextStandalone})
	SortEntities(w.out)
	return w.out, nil
}

// firstErrorLine finds the first ERROR or MISSING node, depth first.
func firstErrorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && c.HasError() {
			return firstErrorLine(c)
		}
	}
	return int(n.StartPoint().Row) + 1
}
