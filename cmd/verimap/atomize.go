package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"verimap/internal/extractor"
	"verimap/internal/graph"
	"verimap/internal/index"
	"verimap/internal/scip"
	"verimap/internal/storage"
)

func newAtomizeCmd(a *app) *cobra.Command {
	var (
		indexPath     string
		output        string
		withLocations bool
	)
	cmd := &cobra.Command{
		Use:   "atomize [path]",
		Short: "Build the call graph of a project from its SCIP index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root := rootArg(args)
			records, _, err := a.atomize(ctx, root, indexPath, withLocations)
			if err != nil {
				return err
			}
			if err := index.SaveAtoms(output, records); err != nil {
				return err
			}
			a.logger.Info("atoms written", "path", output, "atoms", len(records))
			return a.record(ctx, "atomize", root, records, nil)
		},
	}
	cmd.Flags().StringVarP(&indexPath, "index", "i", "index.scip", "SCIP index (binary, JSON, or raw symbol list)")
	cmd.Flags().StringVarP(&output, "output", "o", "atoms.json", "Output path")
	cmd.Flags().BoolVar(&withLocations, "with-locations", false, "Classify every call as precondition, postcondition or body")
	return cmd
}

// atomize builds the atoms map and returns it with the source index it was
// built from.
func (a *app) atomize(ctx context.Context, root, indexPath string, withLocations bool) (map[string]graph.AtomRecord, *extractor.Index, error) {
	in, err := scip.LoadFile(indexPath)
	if err != nil {
		return nil, nil, err
	}
	res, err := a.newIndexer(withLocations).BuildGraph(ctx, root, in)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range res.Skipped {
		a.logger.Warn("file skipped", "file", s.File, "error", s.Err)
	}
	for _, st := range res.Registry.Stats() {
		a.logger.Debug("disambiguation", "stage", st.Stage, "groups", st.Groups, "records", st.Records)
	}
	stats := res.Graph.Stats()
	a.logger.Info("graph built",
		"atoms", stats.Nodes,
		"approximate", stats.Approximate,
		"edges", stats.Edges,
		"external", stats.ExternalEdges)
	return res.Graph.Records(), res.Index, nil
}

func newListFunctionsCmd(a *app) *cobra.Command {
	var (
		module, function string
		format, output   string
	)
	cmd := &cobra.Command{
		Use:   "list-functions [path]",
		Short: "List the functions found in a source tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.newIndexer(false).Scan(cmd.Context(), rootArg(args))
			if err != nil {
				return err
			}
			for _, s := range res.Skipped {
				a.logger.Warn("file skipped", "file", s.File, "error", s.Err)
			}
			idx := res.Index.Filter(module, function)

			switch format {
			case "json":
				return writeJSON(cmd, output, idx.All)
			case "text":
				w := cmd.OutOrStdout()
				for _, e := range idx.All {
					fmt.Fprintf(w, "%s:%d-%d\t%s\t%s\t%s\t%s\n",
						e.File, e.StartLine, e.EndLine, e.Mode(), e.Visibility, e.Context, e.QualifiedPath)
				}
				return nil
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "Only functions whose module path contains this")
	cmd.Flags().StringVar(&function, "function", "", "Only functions with this name")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output path for json")
	return cmd
}

// record stores a run snapshot when a database is configured.
func (a *app) record(ctx context.Context, command, root string, records map[string]graph.AtomRecord, save func(context.Context, storage.Store, string) error) error {
	store, err := a.openStore()
	if err != nil || store == nil {
		return err
	}
	defer store.Close()

	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	id, err := store.CreateRun(ctx, storage.Run{Command: command, Root: abs, Status: "running"})
	if err != nil {
		return err
	}
	if records != nil {
		if err := store.SaveAtoms(ctx, id, records); err != nil {
			return err
		}
	}
	if save != nil {
		err = save(ctx, store, id)
	} else {
		err = store.FinishRun(ctx, id, "done")
	}
	if err != nil {
		return err
	}
	a.logger.Info("run recorded", "db", a.cfg.Storage.DB, "run", id, "command", command)
	return nil
}
