package vectorstore

import (
	"sort"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
)

// view is the immutable snapshot state readers observe. A mutator builds a
// new view and publishes it with a single atomic pointer swap at the end of
// apply_delta, so search and delta application never observe a torn state
// (spec.md §5, "Search sees a consistent snapshot").
type view struct {
	model            Model
	createdAt        int64
	chunks           map[string]*chunkmodel.CodeChunk
	fileIndex        map[string][]string // file_path -> sorted chunk_ids
	fileFingerprints map[string]string
}

func emptyView(model Model) *view {
	return &view{
		model:            model,
		chunks:           make(map[string]*chunkmodel.CodeChunk),
		fileIndex:        make(map[string][]string),
		fileFingerprints: make(map[string]string),
	}
}

// buildView derives a fresh view from a primary chunk map, recomputing the
// secondary file index so the two are consistent by construction (spec.md
// §4.2 invariant 3).
func buildView(model Model, createdAt int64, chunks map[string]*chunkmodel.CodeChunk, fingerprints map[string]string) *view {
	v := &view{
		model:            model,
		createdAt:        createdAt,
		chunks:           chunks,
		fileIndex:        make(map[string][]string),
		fileFingerprints: fingerprints,
	}
	if v.fileFingerprints == nil {
		v.fileFingerprints = make(map[string]string)
	}
	byFile := make(map[string][]string)
	for id, c := range chunks {
		byFile[c.FilePath] = append(byFile[c.FilePath], id)
	}
	for path, ids := range byFile {
		sort.Strings(ids)
		v.fileIndex[path] = ids
	}
	return v
}

// clone copies the chunk map (the *CodeChunk values are shared, not copied)
// so a mutation can be applied without touching the view still visible to
// concurrent readers; cloneFingerprints does the same for the fingerprints.
func (v *view) clone() map[string]*chunkmodel.CodeChunk {
	out := make(map[string]*chunkmodel.CodeChunk, len(v.chunks))
	for id, c := range v.chunks {
		out[id] = c
	}
	return out
}

func (v *view) cloneFingerprints() map[string]string {
	out := make(map[string]string, len(v.fileFingerprints))
	for k, val := range v.fileFingerprints {
		out[k] = val
	}
	return out
}

func (v *view) toSnapshot() *Snapshot {
	return &Snapshot{
		SchemaVersion:    CurrentSchemaVersion,
		Model:            v.model,
		CreatedAt:        v.createdAt,
		Chunks:           v.chunks,
		FileFingerprints: v.fileFingerprints,
	}
}
