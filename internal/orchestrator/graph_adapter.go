package orchestrator

import (
	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/graph"
)

// GraphSideIndex adapts internal/graph's Graph + SQLiteStore to the
// GraphUpdater seam, deriving one SymbolNode per chunk that names a symbol
// or function (SPEC_FULL.md §5, "Graph side index"). Chunks without either
// carry no symbol identity and are skipped.
type GraphSideIndex struct {
	g     *graph.Graph
	store *graph.SQLiteStore
}

// NewGraphSideIndex loads (or creates) the persisted graph at path.
func NewGraphSideIndex(path string) (*GraphSideIndex, error) {
	store, err := graph.OpenSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	g, err := store.Load()
	if err != nil {
		store.Close()
		return nil, err
	}
	return &GraphSideIndex{g: g, store: store}, nil
}

// Upsert records or updates one symbol node per chunk carrying a symbol or
// function name; it records no relations.
func (a *GraphSideIndex) Upsert(chunks []*chunkmodel.CodeChunk) {
	for _, c := range chunks {
		name := c.SymbolName
		if name == "" {
			name = c.FunctionName
		}
		if name == "" {
			continue
		}
		a.g.Upsert(graph.SymbolNode{ChunkID: c.ChunkID, Name: name, FilePath: c.FilePath})
	}
	// Relating imports/exports requires resolving identifier strings to the
	// chunk id that defines them, which needs cross-file symbol resolution —
	// an external collaborator's concern (SPEC_FULL.md §3). This index only
	// records the symbols it can identify directly from chunk metadata.
}

// RemoveByChunkID drops a chunk's symbol node and its relations.
func (a *GraphSideIndex) RemoveByChunkID(chunkID string) {
	a.g.RemoveByChunkID(chunkID)
}

// Save persists the current graph.
func (a *GraphSideIndex) Save() error {
	return a.store.Save(a.g)
}

// Close releases the underlying database handle.
func (a *GraphSideIndex) Close() error {
	return a.store.Close()
}
