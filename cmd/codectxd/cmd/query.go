package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/mmr"
	"github.com/Aman-CERP/codectx/internal/pool"
	"github.com/Aman-CERP/codectx/internal/vectorstore"
)

func newQueryCmd() *cobra.Command {
	var workerCmd string
	var k int
	var tokenBudget int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Assemble a context package for a query against the indexed project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workerCmd == "" {
				return fmt.Errorf("--worker-cmd is required: path to the embedding worker binary")
			}
			return runQuery(cmd.Context(), args[0], workerCmd, k, tokenBudget, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&workerCmd, "worker-cmd", "", "embedding worker binary (argv[0] for the process pool)")
	cmd.Flags().IntVar(&k, "k", 50, "number of nearest-neighbor candidates to retrieve before selection")
	cmd.Flags().IntVar(&tokenBudget, "token-budget", 0, "override the configured MMR token budget (0 keeps the config default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the context package as JSON")

	return cmd
}

func runQuery(ctx context.Context, query, workerCmd string, k, tokenBudget int, jsonOutput bool) error {
	root, err := resolveRoot()
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	dir := resolveDataDir(root)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Store.SnapshotPath = dir + "/vectors.json"
	if tokenBudget > 0 {
		cfg.MMR.MaxTokenBudget = tokenBudget
	}

	spawner := &pool.CommandSpawner{Argv: []string{workerCmd}, Dir: root}
	p := pool.NewPool(cfg, spawner, runtime.NumCPU(), nil)
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start embedding pool: %w", err)
	}
	defer p.Shutdown(context.Background(), "query command exit")

	store := vectorstore.NewStore(cfg.Store, vectorstore.Model{Name: "reference", Dimension: 384}, true, nil)
	if err := store.Initialize(); err != nil {
		return fmt.Errorf("initialize vector store: %w", err)
	}

	queryVec, err := p.EmbedOne(ctx, query)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}

	results := store.Search(queryVec, k, vectorstore.SearchFilter{})
	candidates := make([]*chunkmodel.CodeChunk, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, r.Chunk)
	}

	selector := mmr.NewSelector(mmr.Config{
		LambdaRelevance:     cfg.MMR.LambdaRelevance,
		MaxTokenBudget:      cfg.MMR.MaxTokenBudget,
		TokenCushionPercent: cfg.MMR.TokenCushionPercent,
		DiversityMetric:     mmr.DiversityMetric(cfg.MMR.DiversityMetric),
		MinCriticalCoverage: cfg.MMR.MinCriticalCoverage,
	})

	pkg, err := selector.Select(query, candidates)
	if err != nil {
		return fmt.Errorf("select context: %w", err)
	}

	out := os.Stdout
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(pkg)
	}

	for _, c := range pkg.SelectedChunks {
		fmt.Fprintf(out, "%s:%d-%d\n", c.FilePath, c.StartLine, c.EndLine)
	}
	fmt.Fprintf(out, "---\ntokens=%d budget_utilization=%.2f critical_coverage=%.2f chunks=%d\n",
		pkg.TotalTokens, pkg.BudgetUtilization, pkg.CriticalSetCoverage, len(pkg.SelectedChunks))
	return nil
}
