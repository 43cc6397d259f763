package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"verimap/internal/extractor"
	"verimap/internal/graph"
	"verimap/internal/index"
	"verimap/internal/taxonomy"
)

func newSpecifyCmd(a *app) *cobra.Command {
	var (
		atomsPath    string
		output       string
		taxonomyPath string
		withText     bool
		noLabels     bool
		explain      string
	)
	cmd := &cobra.Command{
		Use:   "specify [path]",
		Short: "Extract preconditions and postconditions per atom and label them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tax *taxonomy.Taxonomy
			if !noLabels {
				var err error
				if tax, err = a.loadTaxonomy(taxonomyPath); err != nil {
					return err
				}
			}

			scan, err := a.newIndexer(false).Scan(cmd.Context(), rootArg(args))
			if err != nil {
				return err
			}
			for _, s := range scan.Skipped {
				a.logger.Warn("file skipped", "file", s.File, "error", s.Err)
			}

			if explain != "" {
				if tax == nil {
					return fmt.Errorf("--explain needs a taxonomy")
				}
				return explainFunction(cmd, tax, scan.Index.Filter("", explain).All)
			}

			records, err := index.LoadAtoms(atomsPath)
			if err != nil {
				return err
			}
			m := graph.NewAtomMatcher(records, a.cfg.Verify.LineTolerance)
			specs, st := taxonomy.Specify(scan.Index, m, taxonomy.SpecifyOptions{
				WithText: withText,
				Taxonomy: tax,
				Logger:   a.logger,
			})
			a.logger.Info("specs extracted",
				"matched", st.Matched,
				"unmatched", st.Unmatched,
				"specified", st.Specified,
				"labeled", st.Labeled,
				"specified_labeled", st.SpecifiedLabeled,
				"conflicts", st.Conflicts)
			return writeJSON(cmd, output, specs)
		},
	}
	cmd.Flags().StringVar(&atomsPath, "atoms", "atoms.json", "atoms.json to key the output by")
	cmd.Flags().StringVarP(&output, "output", "o", "specs.json", "Output path")
	cmd.Flags().StringVar(&taxonomyPath, "taxonomy", "", "Taxonomy rules (TOML); the built-in rules when empty")
	cmd.Flags().BoolVar(&withText, "with-text", false, "Keep the clause text")
	cmd.Flags().BoolVar(&noLabels, "no-labels", false, "Skip taxonomy labeling")
	cmd.Flags().StringVar(&explain, "explain", "", "Print every rule check for the functions with this name")
	return cmd
}

func (a *app) loadTaxonomy(path string) (*taxonomy.Taxonomy, error) {
	if path == "" {
		path = a.cfg.Taxonomy.Path
	}
	if path == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.Load(path)
}

func explainFunction(cmd *cobra.Command, tax *taxonomy.Taxonomy, entities []*extractor.FunctionEntity) error {
	if len(entities) == 0 {
		return fmt.Errorf("no function matches")
	}
	w := cmd.OutOrStdout()
	for _, e := range entities {
		fmt.Fprintf(w, "%s (%s:%d)\n", e.QualifiedPath, e.File, e.StartLine)
		for _, ex := range tax.Explain(e) {
			mark := "-"
			if ex.Matched {
				mark = "+"
			}
			fmt.Fprintf(w, "  %s %s\n", mark, ex.Label)
			if failed := ex.Failed(); len(failed) > 0 {
				fmt.Fprintf(w, "      failed: %s\n", strings.Join(failed, ", "))
			}
		}
	}
	return nil
}
