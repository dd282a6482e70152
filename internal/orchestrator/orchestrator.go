package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	codeerrors "github.com/Aman-CERP/codectx/internal/errors"
	"github.com/Aman-CERP/codectx/internal/vectorstore"
)

// defaultFanOut bounds concurrent file reads/chunkings (spec.md §4.5,
// "Parallelism"). Embedding always funnels through the pool, which owns its
// own concurrency policy.
const defaultFanOut = 8

// Orchestrator drives one of the three indexing modes over a Scanner,
// Chunker, EmbeddingPool, and Store (spec.md §4.5).
type Orchestrator struct {
	scanner Scanner
	chunker chunkmodel.Chunker
	pool    EmbeddingPool
	store   Store
	graph   GraphUpdater
	log     *slog.Logger
	fanOut  int

	progress *progressTracker
}

// New constructs an Orchestrator. graph may be nil to disable side-index
// maintenance entirely.
func New(scanner Scanner, chunker chunkmodel.Chunker, pool EmbeddingPool, store Store, graph GraphUpdater, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		scanner:  scanner,
		chunker:  chunker,
		pool:     pool,
		store:    store,
		graph:    graph,
		log:      log,
		fanOut:   defaultFanOut,
		progress: newProgressTracker(),
	}
}

// Checkpoint returns the current progress snapshot, safe to call from any
// goroutine while Index runs.
func (o *Orchestrator) Checkpoint() Checkpoint {
	return o.progress.snapshot()
}

// Index runs one indexing pass in the given mode (spec.md §4.5).
func (o *Orchestrator) Index(ctx context.Context, mode Mode) (*Result, error) {
	if mode == ModeReindex {
		if err := o.store.ClearIndex(); err != nil {
			return nil, codeerrors.Wrap(codeerrors.ErrCodeIndexFailed, err)
		}
		mode = ModeFull
	}

	o.progress.setStage(StageScanning, 0)
	files, err := o.scanner.ListFiles(ctx)
	if err != nil {
		o.progress.setError(err.Error())
		return nil, codeerrors.Wrap(codeerrors.ErrCodeIndexFailed, err)
	}
	o.progress.setStage(StageScanning, len(files))

	if mode == ModeIncremental {
		changes := o.store.CalculateFileDelta(toFileInfos(files))
		if len(changes) == 0 {
			o.progress.setStage(StageComplete, len(files))
			return &Result{Mode: mode, FilesSeen: len(files), Checkpoint: o.progress.snapshot()}, nil
		}
		return o.runIncremental(ctx, mode, files, changes)
	}
	return o.runFull(ctx, mode, files)
}

// runFull re-chunks and re-embeds every file, then replaces the store's
// contents wholesale via UpsertChunks (spec.md §4.5, "full ... embed every
// chunk and upsert").
func (o *Orchestrator) runFull(ctx context.Context, mode Mode, files []FileRecord) (*Result, error) {
	byPath, order, err := o.chunkFiles(ctx, files)
	if err != nil {
		o.progress.setError(err.Error())
		return nil, codeerrors.Wrap(codeerrors.ErrCodeIndexFailed, err)
	}

	var all []*chunkmodel.CodeChunk
	for _, path := range order {
		all = append(all, byPath[path]...)
	}

	o.progress.setStage(StageEmbedding, len(files))
	o.progress.setChunksTotal(len(all))
	embedded, err := o.pool.EmbedBatch(ctx, all)
	if err != nil {
		o.progress.setError(err.Error())
		return nil, codeerrors.Wrap(codeerrors.ErrCodeIndexFailed, err)
	}
	o.progress.chunksEmbedded(len(embedded))

	o.progress.setStage(StageIndexing, len(files))
	if err := o.store.UpsertChunks(embedded); err != nil {
		o.progress.setError(err.Error())
		return nil, codeerrors.Wrap(codeerrors.ErrCodeIndexFailed, err)
	}

	for _, f := range files {
		if err := o.store.RecordFileFingerprint(toFileInfo(f)); err != nil {
			o.log.Warn("orchestrator: record fingerprint failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		}
		o.progress.fileProcessed()
	}

	o.updateGraph(embedded, nil)

	o.progress.setStage(StageComplete, len(files))
	return &Result{
		Mode:      mode,
		FilesSeen: len(files),
		Delta:     vectorstore.Delta{Added: embedded},
		Checkpoint: o.progress.snapshot(),
	}, nil
}

// runIncremental rechunks only the changed files, computes a per-file chunk
// diff against the stored chunks, embeds the net-new chunks, and applies one
// combined Delta (spec.md §4.5, "incremental").
func (o *Orchestrator) runIncremental(ctx context.Context, mode Mode, files []FileRecord, changes vectorstore.FileChanges) (*Result, error) {
	byPath := make(map[string]FileRecord, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}

	changedNonDeleted := make([]FileRecord, 0, len(changes))
	for _, c := range changes {
		if c.Kind == vectorstore.ChangeDeleted {
			continue
		}
		if f, ok := byPath[c.Path]; ok {
			changedNonDeleted = append(changedNonDeleted, f)
		}
	}

	o.progress.setStage(StageChunking, len(changedNonDeleted))
	newChunksByPath, order, err := o.chunkFiles(ctx, changedNonDeleted)
	if err != nil {
		o.progress.setError(err.Error())
		return nil, codeerrors.Wrap(codeerrors.ErrCodeIndexFailed, err)
	}

	var toEmbed []*chunkmodel.CodeChunk
	diffs := make(map[string]vectorstore.ChunkDiff, len(order))
	for _, path := range order {
		diff := vectorstore.CompareChunks(o.store.ChunksForFile(path), newChunksByPath[path])
		diffs[path] = diff
		toEmbed = append(toEmbed, diff.ToAdd...)
	}

	o.progress.setStage(StageEmbedding, len(changedNonDeleted))
	o.progress.setChunksTotal(len(toEmbed))
	embedded, err := o.pool.EmbedBatch(ctx, toEmbed)
	if err != nil {
		o.progress.setError(err.Error())
		return nil, codeerrors.Wrap(codeerrors.ErrCodeIndexFailed, err)
	}
	o.progress.chunksEmbedded(len(embedded))

	delta := vectorstore.Delta{FileChanges: changes}
	delta.Added = embedded
	for _, path := range order {
		delta.Updated = append(delta.Updated, diffs[path].ToKeep...)
		delta.Removed = append(delta.Removed, diffs[path].ToRemove...)
	}
	for _, c := range changes {
		if c.Kind != vectorstore.ChangeDeleted {
			continue
		}
		for _, chunk := range o.store.ChunksForFile(c.Path) {
			delta.Removed = append(delta.Removed, chunk.ChunkID)
		}
	}

	o.progress.setStage(StageIndexing, len(changedNonDeleted))
	if err := o.store.ApplyDelta(delta); err != nil {
		o.progress.setError(err.Error())
		return nil, codeerrors.Wrap(codeerrors.ErrCodeIndexFailed, err)
	}

	for _, f := range changedNonDeleted {
		if err := o.store.RecordFileFingerprint(toFileInfo(f)); err != nil {
			o.log.Warn("orchestrator: record fingerprint failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		}
		o.progress.fileProcessed()
	}

	o.updateGraph(embedded, delta.Removed)

	o.progress.setStage(StageComplete, len(files))
	return &Result{Mode: mode, FilesSeen: len(files), Delta: delta, Checkpoint: o.progress.snapshot()}, nil
}

// chunkFiles reads and chunks files concurrently, bounded to o.fanOut
// in-flight files at once (spec.md §4.5, "file reads and chunkings are
// issued concurrently up to a fixed fan-out").
func (o *Orchestrator) chunkFiles(ctx context.Context, files []FileRecord) (map[string][]*chunkmodel.CodeChunk, []string, error) {
	results := make(map[string][]*chunkmodel.CodeChunk, len(files))
	order := make([]string, len(files))
	for i, f := range files {
		order[i] = f.Path
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.fanOut)

	for _, f := range files {
		f := f
		g.Go(func() error {
			content, err := o.scanner.ReadFile(gctx, f.Path)
			if err != nil {
				return err
			}
			chunks, err := o.chunker.Chunk(gctx, &chunkmodel.FileInput{
				Path:     f.Path,
				Content:  content,
				Language: f.Language,
			})
			if err != nil {
				return err
			}
			mu.Lock()
			results[f.Path] = chunks
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Strings(order)
	return results, order, nil
}

// updateGraph applies newly embedded chunks and removed chunk ids to the
// side index and best-effort persists it. Its failure is logged and never
// fails indexing (SPEC_FULL.md §5, "Graph side index").
func (o *Orchestrator) updateGraph(added []*chunkmodel.CodeChunk, removed []string) {
	if o.graph == nil {
		return
	}
	if len(added) > 0 {
		o.graph.Upsert(added)
	}
	for _, id := range removed {
		o.graph.RemoveByChunkID(id)
	}
	if err := o.graph.Save(); err != nil {
		o.log.Warn("orchestrator: graph persist failed", slog.String("error", err.Error()))
	}
}

func toFileInfo(f FileRecord) vectorstore.FileInfo {
	return vectorstore.FileInfo{Path: f.Path, ModTimeUnix: f.ModTimeUnix, ContentHash: f.ContentHash}
}

func toFileInfos(files []FileRecord) []vectorstore.FileInfo {
	out := make([]vectorstore.FileInfo, len(files))
	for i, f := range files {
		out[i] = toFileInfo(f)
	}
	return out
}

// hashContent is a convenience used by test fakes and the filesystem scanner
// to derive a FileRecord's ContentHash.
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
