package vectorstore

import (
	"fmt"
	"sort"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
)

// CalculateFileDelta compares the current file list against the snapshot's
// recorded per-file fingerprints (mtime + content hash) and classifies each
// path as added, modified, or deleted (spec.md §4.2). Paths present in the
// snapshot but absent from current are deleted; paths absent from the
// snapshot are added; paths present in both with a changed fingerprint are
// modified. Unchanged paths are omitted from the result.
func (s *Store) CalculateFileDelta(current []FileInfo) FileChanges {
	v := s.load()

	seen := make(map[string]bool, len(current))
	var changes FileChanges

	for _, f := range current {
		seen[f.Path] = true
		prior, known := v.fileFingerprints[f.Path]
		fingerprint := fingerprintOf(f)
		switch {
		case !known:
			changes = append(changes, FileChange{Path: f.Path, Kind: ChangeAdded})
		case prior != fingerprint:
			changes = append(changes, FileChange{Path: f.Path, Kind: ChangeModified})
		}
	}

	for path := range v.fileFingerprints {
		if !seen[path] {
			changes = append(changes, FileChange{Path: path, Kind: ChangeDeleted})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// fingerprintOf combines mtime and content hash into the comparable value
// stored per file (spec.md §4.2, "using file-mtime and content hash").
func fingerprintOf(f FileInfo) string {
	return fmt.Sprintf("%d:%s", f.ModTimeUnix, f.ContentHash)
}

// CompareChunks matches old and new chunks for one file by chunk_id with no
// fuzzy matching (spec.md §4.2). Chunks present in both are "to keep"
// (their prior embedding is preserved); chunks only in new are "to add";
// chunks only in old are "to remove".
func CompareChunks(oldChunks, newChunks []*chunkmodel.CodeChunk) ChunkDiff {
	oldByID := make(map[string]*chunkmodel.CodeChunk, len(oldChunks))
	for _, c := range oldChunks {
		oldByID[c.ChunkID] = c
	}
	newByID := make(map[string]bool, len(newChunks))

	var diff ChunkDiff
	for _, c := range newChunks {
		newByID[c.ChunkID] = true
		if prior, ok := oldByID[c.ChunkID]; ok {
			diff.ToKeep = append(diff.ToKeep, prior)
		} else {
			diff.ToAdd = append(diff.ToAdd, c)
		}
	}
	for _, c := range oldChunks {
		if !newByID[c.ChunkID] {
			diff.ToRemove = append(diff.ToRemove, c.ChunkID)
		}
	}
	return diff
}
