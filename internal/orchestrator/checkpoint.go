package orchestrator

import "sync"

// Stage mirrors the teacher's IndexingStage progression, extended with the
// checkpoint fields this orchestrator reports while indexing; an interrupted
// run is not resumed from them (grounded on internal/async/status.go's IndexProgress and
// internal/store/types.go's StateKeyCheckpoint* constants).
type Stage string

const (
	StageScanning  Stage = "scanning"
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
	StageIndexing  Stage = "indexing"
	StageComplete  Stage = "complete"
)

// Checkpoint is an immutable snapshot of indexing progress, safe to publish
// without copying internal locks.
type Checkpoint struct {
	Stage          Stage
	FilesTotal     int
	FilesProcessed int
	ChunksTotal    int
	ChunksEmbedded int
	ErrorMessage   string
}

// progressTracker is the mutable, thread-safe tracker behind Checkpoint
// (spec.md's SPEC_FULL supplement, "Checkpointing").
type progressTracker struct {
	mu sync.RWMutex
	cp Checkpoint
}

func newProgressTracker() *progressTracker {
	return &progressTracker{cp: Checkpoint{Stage: StageScanning}}
}

func (p *progressTracker) setStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cp.Stage = stage
	p.cp.FilesTotal = total
}

func (p *progressTracker) fileProcessed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cp.FilesProcessed++
}

func (p *progressTracker) setChunksTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cp.ChunksTotal = n
}

func (p *progressTracker) chunksEmbedded(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cp.ChunksEmbedded += n
}

func (p *progressTracker) setError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cp.ErrorMessage = msg
}

func (p *progressTracker) snapshot() Checkpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cp
}
