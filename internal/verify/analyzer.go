package verify

import (
	"context"
	"log/slog"
	"strings"

	"verimap/internal/extractor"
	"verimap/internal/graph"
	"verimap/internal/locate"
)

const (
	DefaultLookback     = 10
	DefaultContextLines = 15
)

// Options configures an Analyzer.
type Options struct {
	// Lookback is how many lines above a location annotation are searched
	// for the error header it belongs to.
	Lookback int
	// ContextLines caps the raw context kept per failure.
	ContextLines int
	// Module and Function restrict the categorized functions. Errors are
	// still mapped against every indexed function.
	Module   string
	Function string
	Logger   *slog.Logger
}

// Analyzer turns verifier transcripts into per-function verdicts.
type Analyzer struct {
	opts   Options
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer, filling unset options with defaults.
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.ContextLines <= 0 {
		opts.ContextLines = DefaultContextLines
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{opts: opts, logger: logger}
}

// Analyze parses transcript, maps every located diagnostic onto the
// innermost function of idx containing it and categorizes the functions
// carrying a precondition or postcondition. A specified function fails when
// any mapped error lies inside its span, nested helpers included. exitCode is the verifier's
// exit status, 0 when unknown.
func (a *Analyzer) Analyze(ctx context.Context, transcript string, exitCode int, idx *extractor.Index) (*AnalysisResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrEmptyTranscript
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if idx == nil {
		idx = extractor.NewIndex(nil)
	}

	lines := splitLines(transcript)
	tally := parseTally(lines)
	compileErrs, warnings := parseCompilation(lines, tally != nil)
	failures := scanFailures(lines, a.opts.Lookback, a.opts.ContextLines)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spans := newSpanIndex(idx.All)
	owners := newSpanIndex(idx.Specified())
	res := &AnalysisResult{
		Status:              determineStatus(tally, compileErrs, failures, exitCode),
		CompilationErrors:   nonNil(compileErrs),
		CompilationWarnings: nonNil(warnings),
		VerificationErrors:  nonNil(failures),
		Verified:            []FunctionVerdict{},
		Failed:              []FunctionVerdict{},
		Unverified:          []FunctionVerdict{},
		UnattributedErrors:  []VerificationError{},
	}

	byEntity := make(map[*extractor.FunctionEntity][]VerificationError)
	attribute := func(errs []VerificationError) {
		for k := range errs {
			e := &errs[k]
			if !e.Located() {
				res.UnattributedErrors = append(res.UnattributedErrors, *e)
				continue
			}
			ent, _, ok := spans.Lookup(e.File, e.Line)
			if !ok {
				a.logger.Warn("error outside any indexed function", "file", e.File, "line", e.Line, "kind", e.Kind)
				res.UnattributedErrors = append(res.UnattributedErrors, *e)
				continue
			}
			e.Function = ent.Name
			e.FunctionFile = ent.File
			e.FunctionLine = ent.StartLine
			// The verdict goes to the innermost specified function, which
			// may enclose the unspecified one named above.
			if owner, _, ok := owners.Lookup(e.File, e.Line); ok {
				byEntity[owner] = append(byEntity[owner], *e)
			}
		}
	}
	attribute(res.CompilationErrors)
	attribute(res.VerificationErrors)

	for _, ent := range idx.Filter(a.opts.Module, a.opts.Function).Specified() {
		v := FunctionVerdict{
			DisplayName: ent.Name,
			CodePath:    ent.File,
			CodeModule:  ent.ModulePath,
			CodeText:    graph.CodeText{LinesStart: ent.StartLine, LinesEnd: ent.EndLine},
			Errors:      byEntity[ent],
		}
		switch {
		case ent.HasTrustedAssumption:
			v.Category = CategoryUnverified
			res.Unverified = append(res.Unverified, v)
		case len(v.Errors) > 0:
			v.Category = CategoryFailed
			res.Failed = append(res.Failed, v)
		default:
			v.Category = CategoryVerified
			res.Verified = append(res.Verified, v)
		}
	}

	res.Summary = Summary{
		TotalFunctions:      len(res.Verified) + len(res.Failed) + len(res.Unverified),
		VerifiedFunctions:   len(res.Verified),
		FailedFunctions:     len(res.Failed),
		UnverifiedFunctions: len(res.Unverified),
		VerificationErrors:  len(res.VerificationErrors),
		CompilationErrors:   len(res.CompilationErrors),
		CompilationWarnings: len(res.CompilationWarnings),
		UnattributedErrors:  len(res.UnattributedErrors),
		Reported:            tally,
	}
	a.logger.Debug("verification analyzed",
		"errors", len(res.VerificationErrors),
		"compile_errors", len(res.CompilationErrors),
		"warnings", len(res.CompilationWarnings))
	return res, nil
}

// determineStatus applies, in order: the verifier's own tally, compiler
// errors, extracted failures, then the exit code.
func determineStatus(tally *Tally, compileErrs, failures []VerificationError, exitCode int) Status {
	switch {
	case tally != nil && tally.Errors == 0:
		return StatusSuccess
	case tally != nil:
		return StatusVerificationFailed
	case len(compileErrs) > 0:
		return StatusCompilationFailed
	case len(failures) > 0:
		return StatusVerificationFailed
	case exitCode != 0:
		return StatusCompilationFailed
	}
	return StatusSuccess
}

func newSpanIndex(entities []*extractor.FunctionEntity) *locate.SpanIndex[*extractor.FunctionEntity] {
	byFile := make(map[string][]locate.Interval[*extractor.FunctionEntity])
	for _, e := range entities {
		byFile[e.File] = append(byFile[e.File], locate.Interval[*extractor.FunctionEntity]{
			Start: e.StartLine,
			End:   e.EndLine,
			Value: e,
		})
	}
	return locate.NewSpanIndex(byFile)
}

func nonNil(errs []VerificationError) []VerificationError {
	if errs == nil {
		return []VerificationError{}
	}
	return errs
}
