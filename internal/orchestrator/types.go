// Package orchestrator stitches the scanner, chunker, embedding pool, and
// vector store into the three indexing modes spec.md §4.5 requires: full,
// incremental, and reindex. It is deliberately thin — mode selection is the
// only logic load-bearing enough to test at this layer.
package orchestrator

import (
	"context"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/vectorstore"
)

// Mode selects the indexing strategy for one Index call (spec.md §4.5).
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeReindex     Mode = "reindex"
)

// FileRecord is one file discovered by a Scanner, carrying enough identity
// to feed vectorstore.CalculateFileDelta without re-reading the file.
type FileRecord struct {
	Path        string
	ModTimeUnix int64
	ContentHash string
	Language    string
}

// Scanner discovers indexable files. The production implementation (see
// NewFilesystemScanner) walks the project tree through internal/scanner and
// internal/gitignore; tests supply an in-memory fake, the same injection
// seam as the teacher's BackgroundIndexer.IndexFunc.
type Scanner interface {
	ListFiles(ctx context.Context) ([]FileRecord, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// EmbeddingPool is the subset of *pool.Pool the orchestrator drives.
type EmbeddingPool interface {
	EmbedBatch(ctx context.Context, chunks []*chunkmodel.CodeChunk) ([]*chunkmodel.CodeChunk, error)
}

// Store is the subset of *vectorstore.Store the orchestrator drives.
type Store interface {
	CalculateFileDelta(current []vectorstore.FileInfo) vectorstore.FileChanges
	ChunksForFile(path string) []*chunkmodel.CodeChunk
	UpsertChunks(chunks []*chunkmodel.CodeChunk) error
	ApplyDelta(d vectorstore.Delta) error
	RecordFileFingerprint(f vectorstore.FileInfo) error
	ClearIndex() error
	Chunks() []*chunkmodel.CodeChunk
}

// GraphUpdater is the symbol side index (implemented by GraphSideIndex over
// internal/graph's Graph and its SQLite store) the orchestrator updates
// after a successful delta. A nil GraphUpdater disables
// graph maintenance entirely.
type GraphUpdater interface {
	Upsert(chunks []*chunkmodel.CodeChunk)
	RemoveByChunkID(chunkID string)
	Save() error
}

// Result summarises one Index call.
type Result struct {
	Mode       Mode
	FilesSeen  int
	Delta      vectorstore.Delta
	Checkpoint Checkpoint
}
