package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	poolerrors "github.com/Aman-CERP/codectx/internal/errors"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/config"
	"github.com/Aman-CERP/codectx/internal/resource"
)

const growthTickInterval = 15 * time.Second

// Pool is the adaptive embedding process pool (spec.md §4.1): it accepts
// chunks lacking embeddings and returns them in the same order with
// embedding populated, bounding process count, batch size, and memory
// pressure, and tolerating worker crashes.
type Pool struct {
	cfg     config.PoolConfig
	spawner Spawner
	log     *slog.Logger

	cache   *SharedCache
	qcache  *queryCache
	sizer   *BatchSizer
	scaler  *ProcessScaler
	sampler resource.Sampler

	mu        sync.Mutex
	workers   map[int]*worker
	nextID    int
	batchSeq  int64
	startOnce sync.Once

	shuttingDown atomic.Bool
	stopGrowCh   chan struct{}
	growWG       sync.WaitGroup
}

// NewPool constructs a Pool. spawner is the worker process source (the
// embedding runtime itself is an out-of-scope collaborator per spec.md §1).
func NewPool(cfg config.Config, spawner Spawner, logicalCores int, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		cfg:        cfg.Pool,
		spawner:    spawner,
		log:        log,
		cache:      NewSharedCache(cfg.Cache),
		qcache:     newQueryCache(),
		sizer:      NewBatchSizer(cfg.Pool),
		scaler:     NewProcessScaler(cfg.Pool, resource.NewSampler(), logicalCores),
		sampler:    resource.NewSampler(),
		workers:    make(map[int]*worker),
		stopGrowCh: make(chan struct{}),
	}
}

// Start spawns the initial worker set and begins the 15s growth tick.
func (p *Pool) Start(ctx context.Context) error {
	var startErr error
	p.startOnce.Do(func() {
		target := p.scaler.Current()
		for i := 0; i < target; i++ {
			if _, err := p.spawnWorker(ctx); err != nil {
				startErr = err
				return
			}
		}
		p.growWG.Add(1)
		go p.growthLoop(ctx)
	})
	return startErr
}

func (p *Pool) growthLoop(ctx context.Context) {
	defer p.growWG.Done()
	ticker := time.NewTicker(growthTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.shuttingDown.Load() {
				return
			}
			if p.scaler.Tick(ctx) {
				if _, err := p.spawnWorker(ctx); err != nil {
					p.log.Warn("pool: growth spawn failed", slog.String("error", err.Error()))
				}
			}
		case <-p.stopGrowCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) spawnWorker(ctx context.Context) (*worker, error) {
	proc, err := p.spawner.Spawn(ctx)
	if err != nil {
		return nil, poolerrors.Wrap(poolerrors.ErrCodePoolWorkerInitFail, err)
	}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.mu.Unlock()

	w := newWorker(id, proc, p.log)
	if err := w.Init(ctx); err != nil {
		return nil, poolerrors.Wrap(poolerrors.ErrCodePoolWorkerInitFail, err)
	}

	p.mu.Lock()
	p.workers[id] = w
	p.mu.Unlock()
	return w, nil
}

// EmbedBatch embeds every chunk, preserving order and identity (invariant
// 4, §8): result[i].ChunkID == xs[i].ChunkID.
func (p *Pool) EmbedBatch(ctx context.Context, chunks []*chunkmodel.CodeChunk) ([]*chunkmodel.CodeChunk, error) {
	if p.shuttingDown.Load() {
		return nil, poolerrors.New(poolerrors.ErrCodePoolShutdown, "pool is shutting down", nil)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	result := make([]*chunkmodel.CodeChunk, len(chunks))
	var missIdx []int

	for i, c := range chunks {
		out := c.Clone()
		if vec, ok := p.cache.Get(c.Content); ok {
			out.Embedding = vec
		} else {
			missIdx = append(missIdx, i)
		}
		result[i] = out
	}

	if len(missIdx) == 0 {
		return result, nil
	}

	batchSize := p.sizer.Current()
	for start := 0; start < len(missIdx); start += batchSize {
		end := start + batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		sub := missIdx[start:end]
		if err := p.dispatchSubBatch(ctx, chunks, result, sub); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// dispatchSubBatch embeds the chunks at the given indices (into the
// original chunks/result slices), retrying with a smaller recovery batch
// on failure and finally degrading to zero vectors (spec.md §4.1).
func (p *Pool) dispatchSubBatch(ctx context.Context, chunks, result []*chunkmodel.CodeChunk, idx []int) error {
	texts := make([]string, len(idx))
	for i, ci := range idx {
		texts[i] = chunks[ci].Content
	}

	w, err := p.pickWorker(ctx)
	if err != nil {
		return err
	}

	batchID := fmt.Sprintf("b-%d", atomic.AddInt64(&p.batchSeq, 1))
	start := time.Now()
	resp, err := w.EmbedBatch(ctx, batchID, texts, nil, nil)
	if err != nil || resp == nil || !resp.Success {
		return p.recoverFailedBatch(ctx, chunks, result, idx)
	}

	durationMs := time.Since(start).Milliseconds()
	memDelta := int64(0)
	if resp.Stats != nil {
		durationMs = resp.Stats.DurationMs
		memDelta = resp.Stats.MemoryDeltaB
	}
	p.sizer.RecordSuccess(len(idx), durationMs, memDelta, len(idx))

	if len(resp.Embeddings) != len(idx) {
		return p.recoverFailedBatch(ctx, chunks, result, idx)
	}
	for i, ci := range idx {
		vec := resp.Embeddings[i]
		result[ci].Embedding = vec
		p.cache.Put(chunks[ci].Content, vec)
	}
	return nil
}

// recoverFailedBatch implements the failure-recovery path: shrink to the
// recovery size, split into sub-batches, retry on a freshly spawned
// worker, and degrade to zero vectors if sub-batches keep failing.
func (p *Pool) recoverFailedBatch(ctx context.Context, chunks, result []*chunkmodel.CodeChunk, idx []int) error {
	recoverySize := p.sizer.RecordFailure(len(idx))

	replacement, err := p.spawnWorker(ctx)
	if err != nil {
		if p.liveWorkerCount() == 0 {
			return poolerrors.New(poolerrors.ErrCodePoolAllWorkersDead, "all workers dead and cannot restart", err)
		}
		replacement, err = p.pickWorker(ctx)
		if err != nil {
			return err
		}
	}

	for start := 0; start < len(idx); start += recoverySize {
		end := start + recoverySize
		if end > len(idx) {
			end = len(idx)
		}
		sub := idx[start:end]
		texts := make([]string, len(sub))
		for i, ci := range sub {
			texts[i] = chunks[ci].Content
		}

		batchID := fmt.Sprintf("r-%d", atomic.AddInt64(&p.batchSeq, 1))
		resp, err := replacement.EmbedBatch(ctx, batchID, texts, nil, nil)
		if err != nil || resp == nil || !resp.Success || len(resp.Embeddings) != len(sub) {
			for _, ci := range sub {
				result[ci].Embedding = chunkmodel.ZeroVector()
				result[ci].Degraded = true
			}
			continue
		}

		p.sizer.RecordSuccess(len(sub), 0, 0, len(sub))
		for i, ci := range sub {
			vec := resp.Embeddings[i]
			result[ci].Embedding = vec
			p.cache.Put(chunks[ci].Content, vec)
		}
	}
	return nil
}

// EmbedOne embeds a single query-time string, preferring the query cache.
func (p *Pool) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if p.shuttingDown.Load() {
		return nil, poolerrors.New(poolerrors.ErrCodePoolShutdown, "pool is shutting down", nil)
	}
	if vec, ok := p.qcache.Get(text); ok {
		return vec, nil
	}

	w, err := p.pickWorker(ctx)
	if err != nil {
		return nil, err
	}
	batchID := fmt.Sprintf("q-%d", atomic.AddInt64(&p.batchSeq, 1))
	resp, err := w.EmbedBatch(ctx, batchID, []string{text}, nil, nil)
	if err != nil || resp == nil || !resp.Success || len(resp.Embeddings) != 1 {
		return nil, poolerrors.New(poolerrors.ErrCodePoolBatchTimeout, "embed_one failed", err)
	}
	vec := resp.Embeddings[0]
	p.qcache.Put(text, vec)
	return vec, nil
}

// pickWorker returns the first Ready worker found in map iteration order
// (no round-robin). When none is Ready it spawns a new worker only if no
// live worker remains, and otherwise returns an error.
func (p *Pool) pickWorker(ctx context.Context) (*worker, error) {
	p.mu.Lock()
	for _, w := range p.workers {
		if w.getState() == StateReady {
			p.mu.Unlock()
			return w, nil
		}
	}
	p.mu.Unlock()

	if p.liveWorkerCount() == 0 {
		return p.spawnWorker(ctx)
	}
	return nil, poolerrors.New(poolerrors.ErrCodePoolBatchTimeout, "no ready worker available", nil)
}

func (p *Pool) liveWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.workers {
		s := w.getState()
		if s != StateCrashed && s != StateTerminated {
			n++
		}
	}
	return n
}

// Shutdown stops accepting new work and gracefully terminates every worker
// (spec.md §4.1). Idempotent.
func (p *Pool) Shutdown(ctx context.Context, reason string) error {
	if !p.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	p.log.Info("pool: shutting down", slog.String("reason", reason))

	close(p.stopGrowCh)
	p.growWG.Wait()

	p.mu.Lock()
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			_ = w.Shutdown(ctx)
		}(w)
	}
	wg.Wait()
	return nil
}
