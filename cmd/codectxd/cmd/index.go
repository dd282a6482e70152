package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codectx/internal/chunk"
	"github.com/Aman-CERP/codectx/internal/orchestrator"
	"github.com/Aman-CERP/codectx/internal/pool"
	"github.com/Aman-CERP/codectx/internal/vectorstore"
)

func newIndexCmd() *cobra.Command {
	var mode string
	var workerCmd string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a project into the vector store",
		Long: `Scans the project root, chunks changed files, embeds the chunks
through the adaptive worker pool, and applies the result to the vector
store. --mode selects full (embed everything), incremental (diff against
the last snapshot), or reindex (clear then full).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := orchestrator.Mode(mode)
			switch m {
			case orchestrator.ModeFull, orchestrator.ModeIncremental, orchestrator.ModeReindex:
			default:
				return fmt.Errorf("invalid --mode %q (want full, incremental, or reindex)", mode)
			}
			if workerCmd == "" {
				return fmt.Errorf("--worker-cmd is required: path to the embedding worker binary")
			}
			return runIndex(cmd.Context(), m, workerCmd)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "incremental", "indexing mode: full, incremental, or reindex")
	cmd.Flags().StringVar(&workerCmd, "worker-cmd", "", "embedding worker binary (argv[0] for the process pool)")

	return cmd
}

func runIndex(ctx context.Context, mode orchestrator.Mode, workerCmd string) error {
	root, err := resolveRoot()
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	dir := resolveDataDir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Store.SnapshotPath = dir + "/vectors.json"

	spawner := &pool.CommandSpawner{Argv: []string{workerCmd}, Dir: root}
	p := pool.NewPool(cfg, spawner, runtime.NumCPU(), nil)
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start embedding pool: %w", err)
	}
	defer p.Shutdown(context.Background(), "index command exit")

	store := vectorstore.NewStore(cfg.Store, vectorstore.Model{Name: "reference", Dimension: 384}, true, nil)
	if err := store.Initialize(); err != nil {
		return fmt.Errorf("initialize vector store: %w", err)
	}

	scanner, err := orchestrator.NewFilesystemScanner(root, nil)
	if err != nil {
		return fmt.Errorf("create scanner: %w", err)
	}

	chunker := chunk.NewCodeChunker()
	defer chunker.Close()

	graphIdx, err := orchestrator.NewGraphSideIndex(dir + "/graph.sqlite")
	if err != nil {
		return fmt.Errorf("open graph index: %w", err)
	}
	defer graphIdx.Close()

	orch := orchestrator.New(scanner, chunker, p, store, graphIdx, nil)
	bg := orchestrator.NewBackgroundIndexer(orch, mode, dir)

	printer := newProgressPrinter(os.Stdout)
	done := make(chan struct{})
	go pollCheckpoint(printer, bg.Checkpoint, done)

	bg.Start(ctx)
	err = bg.Wait()
	close(done)

	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return nil
}
