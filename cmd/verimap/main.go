package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"verimap/internal/config"
	"verimap/internal/crawler"
	"verimap/internal/extractor"
	"verimap/internal/graph"
	"verimap/internal/index"
	"verimap/internal/logging"
	"verimap/internal/scip"
	"verimap/internal/storage"
	"verimap/internal/symbols"
)

const (
	exitInvariant = 1
	exitInput     = 2
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode reports err on w. Collisions and duplicate atoms list every
// offending key.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	var collision *symbols.CollisionError
	if errors.As(err, &collision) {
		fmt.Fprintln(w, "fatal: unresolvable atom collision")
		for _, e := range collision.Entries {
			fmt.Fprintf(w, "  %s (%s:%d)\n", e.Atom, e.File, e.Line)
		}
		return exitInvariant
	}
	var dup *graph.DuplicateAtomsError
	if errors.As(err, &dup) {
		fmt.Fprintln(w, "fatal: duplicate atoms at emission")
		for _, e := range dup.Entries {
			fmt.Fprintf(w, "  %s (%s:%d)\n", e.Atom, e.File, e.Line)
		}
		return exitInvariant
	}
	fmt.Fprintln(w, "error:", err)
	return exitInput
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "verimap",
		Short:         "Call graphs and verification verdicts for Verus projects",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	flags.StringVarP(&a.dbPath, "db", "d", "", "Record the run in this SQLite database")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newAtomizeCmd(a),
		newListFunctionsCmd(a),
		newVerifyCmd(a),
		newSpecifyCmd(a),
		newRunCmd(a),
		newImpactCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.dbPath != "" {
		cfg.Storage.DB = a.dbPath
	}
	logger, err := logging.New(logging.Config{
		Format: logging.Format(cfg.Log.Format),
		Level:  cfg.Log.Level,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) newIndexer(withLocations bool) *index.Indexer {
	ext := extractor.NewExtractor(extractor.Options{
		BlockMacros: a.cfg.Indexer.BlockMacros,
		CfgMacros:   a.cfg.Indexer.CfgMacros,
	})
	cr := crawler.NewCrawler(ext, crawler.Options{
		Ignore:  a.cfg.Indexer.Ignore,
		Workers: a.cfg.Indexer.Workers,
		Logger:  a.logger,
	})
	return index.NewIndexer(cr, index.Options{
		SCIP: scip.Options{
			TypeContextLines: a.cfg.SCIP.TypeContextLines,
			TypeHintGap:      a.cfg.SCIP.TypeHintGap,
		},
		WithLocations: withLocations || a.cfg.Graph.WithLocations,
		Logger:        a.logger,
	})
}

// openStore returns nil when no database is configured.
func (a *app) openStore() (*storage.SQLiteStore, error) {
	if a.cfg.Storage.DB == "" {
		return nil, nil
	}
	store, err := storage.NewSQLiteStore(a.cfg.Storage.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func rootArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
