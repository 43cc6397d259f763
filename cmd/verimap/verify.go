package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"verimap/internal/extractor"
	"verimap/internal/graph"
	"verimap/internal/index"
	"verimap/internal/storage"
	"verimap/internal/verify"
)

type verifyFlags struct {
	transcript   string
	exitCode     int
	module       string
	function     string
	lookback     int
	contextLines int
}

func (f *verifyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.transcript, "transcript", "t", "-", "Captured verifier output, - for stdin")
	cmd.Flags().IntVar(&f.exitCode, "exit-code", 0, "Exit status of the verifier run")
	cmd.Flags().StringVar(&f.module, "module", "", "Only categorize functions whose module path contains this")
	cmd.Flags().StringVar(&f.function, "function", "", "Only categorize functions with this name")
	cmd.Flags().IntVar(&f.lookback, "lookback", 0, "Lines searched above a location for its error header")
	cmd.Flags().IntVar(&f.contextLines, "context-lines", 0, "Raw context lines kept per failure")
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		flags      verifyFlags
		atomsPath  string
		proofsPath string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "verify [path]",
		Short: "Map a verification transcript onto the functions of a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root := rootArg(args)
			res, err := a.analyze(cmd, root, flags, nil)
			if err != nil {
				return err
			}

			var records map[string]graph.AtomRecord
			if atomsPath != "" {
				if records, err = index.LoadAtoms(atomsPath); err != nil {
					return err
				}
			}
			if err := a.writeVerdicts(cmd, res, records, output, proofsPath); err != nil {
				return err
			}
			return a.record(ctx, "verify", root, records, saveVerdicts(res))
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&atomsPath, "atoms", "", "atoms.json used to attach atoms to verdicts")
	cmd.Flags().StringVar(&proofsPath, "proofs", "", "Also write the per-atom proofs output here (needs --atoms)")
	cmd.Flags().StringVarP(&output, "output", "o", "verification.json", "Output path")
	return cmd
}

// analyze runs the analyzer over the transcript named by f. The tree under
// root is scanned unless idx is given.
func (a *app) analyze(cmd *cobra.Command, root string, f verifyFlags, idx *extractor.Index) (*verify.AnalysisResult, error) {
	data, err := readInput(cmd, f.transcript)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		scan, err := a.newIndexer(false).Scan(cmd.Context(), root)
		if err != nil {
			return nil, err
		}
		for _, s := range scan.Skipped {
			a.logger.Warn("file skipped", "file", s.File, "error", s.Err)
		}
		idx = scan.Index
	}

	lookback := a.cfg.Verify.Lookback
	if f.lookback > 0 {
		lookback = f.lookback
	}
	contextLines := a.cfg.Verify.ContextLines
	if f.contextLines > 0 {
		contextLines = f.contextLines
	}
	analyzer := verify.NewAnalyzer(verify.Options{
		Lookback:     lookback,
		ContextLines: contextLines,
		Module:       f.module,
		Function:     f.function,
		Logger:       a.logger,
	})
	res, err := analyzer.Analyze(cmd.Context(), string(data), f.exitCode, idx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("analysis complete",
		"status", res.Status,
		"verified", res.Summary.VerifiedFunctions,
		"failed", res.Summary.FailedFunctions,
		"unverified", res.Summary.UnverifiedFunctions,
		"unattributed", res.Summary.UnattributedErrors)
	return res, nil
}

// writeVerdicts enriches res with atoms when records is set and writes the
// verification output and, when asked, the proofs output.
func (a *app) writeVerdicts(cmd *cobra.Command, res *verify.AnalysisResult, records map[string]graph.AtomRecord, output, proofsPath string) error {
	var m *graph.AtomMatcher
	if records != nil {
		m = graph.NewAtomMatcher(records, a.cfg.Verify.LineTolerance)
		n := verify.Enrich(res, m)
		a.logger.Info("verdicts enriched", "matched", n, "verdicts", len(res.Verdicts()))
	}
	if err := writeJSON(cmd, output, res); err != nil {
		return err
	}
	if proofsPath == "" {
		return nil
	}
	if m == nil {
		a.logger.Warn("proofs output needs atoms, skipped", "path", proofsPath)
		return nil
	}
	return writeJSON(cmd, proofsPath, verify.ProofsOutput(res, m))
}

func saveVerdicts(res *verify.AnalysisResult) func(context.Context, storage.Store, string) error {
	return func(ctx context.Context, store storage.Store, id string) error {
		return store.SaveVerdicts(ctx, id, res)
	}
}

func newRunCmd(a *app) *cobra.Command {
	var (
		flags         verifyFlags
		indexPath     string
		outDir        string
		withLocations bool
	)
	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Build the call graph and analyze a transcript in one pass",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root := rootArg(args)
			records, idx, err := a.atomize(ctx, root, indexPath, withLocations)
			if err != nil {
				return err
			}
			res, err := a.analyze(cmd, root, flags, idx)
			if err != nil {
				return err
			}

			if err := index.SaveAtoms(filepath.Join(outDir, "atoms.json"), records); err != nil {
				return err
			}
			err = a.writeVerdicts(cmd, res, records,
				filepath.Join(outDir, "verification.json"),
				filepath.Join(outDir, "proofs.json"))
			if err != nil {
				return err
			}
			return a.record(ctx, "run", root, records, saveVerdicts(res))
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&indexPath, "index", "i", "index.scip", "SCIP index (binary, JSON, or raw symbol list)")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "Directory for atoms.json, verification.json and proofs.json")
	cmd.Flags().BoolVar(&withLocations, "with-locations", false, "Classify every call as precondition, postcondition or body")
	return cmd
}
