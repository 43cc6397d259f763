package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"verimap/internal/analysis"
	"verimap/internal/git"
	"verimap/internal/index"
)

func newImpactCmd(a *app) *cobra.Command {
	var (
		atomsPath string
		diffPath  string
		baseRef   string
		repo      string
		maxDepth  int
		output    string
	)
	cmd := &cobra.Command{
		Use:   "impact",
		Short: "List the atoms a change touches and their transitive callers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if diffPath != "" {
				data, err = readInput(cmd, diffPath)
			} else {
				data, err = git.Diff(cmd.Context(), repo, baseRef)
			}
			if err != nil {
				return err
			}
			changes, err := analysis.ParseDiff(data)
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				a.logger.Info("no changes detected")
			}

			records, err := index.LoadAtoms(atomsPath)
			if err != nil {
				return err
			}
			analyzer := analysis.NewAnalyzer(records)
			analyzer.MaxDepth = maxDepth
			report := analyzer.AnalyzeImpact(changes)
			a.logger.Info("impact analyzed",
				"files", len(changes),
				"direct", len(report.DirectlyAffected),
				"indirect", len(report.IndirectlyAffected))
			return writeJSON(cmd, output, report)
		},
	}
	cmd.Flags().StringVar(&atomsPath, "atoms", "atoms.json", "atoms.json of the changed tree")
	cmd.Flags().StringVar(&diffPath, "diff", "", "Unified diff to analyze, - for stdin; runs git diff when empty")
	cmd.Flags().StringVar(&baseRef, "base", "HEAD", "Base revision for git diff")
	cmd.Flags().StringVar(&repo, "repo", ".", "Repository git diff runs in")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Bound on the caller walk, 0 for none")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output path")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit   int
		compare []string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs or compare the verdicts of two runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("no database configured, pass --db")
			}
			defer store.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if len(compare) > 0 {
				if len(compare) != 2 {
					return fmt.Errorf("--compare takes two run ids")
				}
				changes, err := store.CompareRuns(cmd.Context(), compare[0], compare[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "FUNCTION\tBEFORE\tAFTER")
				for _, c := range changes {
					fmt.Fprintf(w, "%s\t%s\t%s\n", c.Function, orNone(string(c.Before)), orNone(string(c.After)))
				}
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tCOMMAND\tSTATUS\tATOMS\tVERDICTS\tCREATED\tROOT")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.Command, r.Status, r.Atoms, r.Verdicts, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Root)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list, 0 for all")
	cmd.Flags().StringSliceVar(&compare, "compare", nil, "Two run ids, BEFORE,AFTER")
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
