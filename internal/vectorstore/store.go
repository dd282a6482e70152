package vectorstore

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
	"github.com/Aman-CERP/codectx/internal/config"
	codeerrors "github.com/Aman-CERP/codectx/internal/errors"
)

// Store holds the current embedding snapshot in memory and persists it to
// disk (spec.md §4.2). Reads observe a view published by atomic pointer
// swap; apply_delta is strictly serialised via applyMu.
type Store struct {
	localPath    string
	globalMirror string
	model        Model
	useANN       bool

	current atomic.Pointer[view]
	applyMu sync.Mutex

	ann *annIndex
	log *slog.Logger
}

// NewStore constructs a Store from configuration. Initialize must be
// called before use.
func NewStore(cfg config.StoreConfig, model Model, useANN bool, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		localPath:    cfg.SnapshotPath,
		globalMirror: cfg.GlobalMirror,
		model:        model,
		useANN:       useANN,
		log:          log.With(slog.String("component", "vectorstore")),
	}
	if useANN {
		s.ann = newANNIndex()
	}
	s.current.Store(emptyView(model))
	return s
}

func (s *Store) load() *view {
	return s.current.Load()
}

// Initialize loads the snapshot from the local path; if absent, tries the
// global mirror; if both are absent, starts empty. The newer of the two
// mtimes wins when both exist (spec.md §4.2 "Persistence"). A load failure
// degrades to an empty snapshot (logged), per spec.md's failure semantics;
// a structural corruption failing invariant checks is fatal.
func (s *Store) Initialize() error {
	localSnap, localInfo, localOK, localErr := loadSnapshotFile(s.localPath)
	globalSnap, globalInfo, globalOK, globalErr := loadSnapshotFile(s.globalMirror)

	chosen := localSnap
	chosenErr := localErr
	chosenOK := localOK
	if globalOK && globalErr == nil {
		if !localOK || (localInfo != nil && globalInfo.ModTime().After(localInfo.ModTime())) {
			chosen = globalSnap
			chosenOK = true
			chosenErr = nil
		}
	}

	if chosenErr != nil {
		s.log.Warn("vectorstore: snapshot load failed, starting empty", slog.String("error", chosenErr.Error()))
		s.current.Store(emptyView(s.model))
		return nil
	}
	if !chosenOK || chosen == nil {
		s.current.Store(emptyView(s.model))
		return nil
	}

	if err := validateSnapshot(chosen); err != nil {
		return codeerrors.New(codeerrors.ErrCodeStoreCorrupt, "snapshot failed invariant check on load", err)
	}

	v := buildView(chosen.Model, chosen.CreatedAt, chosen.Chunks, chosen.FileFingerprints)
	s.current.Store(v)
	if s.useANN {
		s.ann.rebuild(v.chunks)
	}
	return nil
}

// validateSnapshot checks the primary/secondary index consistency and
// per-chunk embedding validity a corrupt snapshot would violate.
func validateSnapshot(snap *Snapshot) error {
	if snap.SchemaVersion == "" {
		return fmt.Errorf("vectorstore: missing schema_version")
	}
	for id, c := range snap.Chunks {
		if c == nil {
			return fmt.Errorf("vectorstore: nil chunk for id %s", id)
		}
		if c.ChunkID != id {
			return fmt.Errorf("vectorstore: chunk_id mismatch: map key %s, chunk.ChunkID %s", id, c.ChunkID)
		}
		if len(c.Embedding) != 0 {
			if err := chunkmodel.ValidateEmbedding(c.Embedding); err != nil {
				return fmt.Errorf("vectorstore: chunk %s: %w", id, err)
			}
		}
	}
	return nil
}

// UpsertChunks bulk-inserts chunks for a full rebuild (spec.md §4.2).
func (s *Store) UpsertChunks(chunks []*chunkmodel.CodeChunk) error {
	if !s.applyMu.TryLock() {
		return codeerrors.New(codeerrors.ErrCodeStoreConcurrentDelta, "concurrent mutation on store", nil)
	}
	defer s.applyMu.Unlock()

	v := s.load()
	next := v.clone()
	for _, c := range chunks {
		next[c.ChunkID] = c
	}
	newView := buildView(s.model, v.createdAt, next, v.cloneFingerprints())
	return s.publish(newView)
}

// ApplyDelta updates the in-memory maps per d then persists (spec.md §4.2
// "apply_delta"). Concurrent deltas on the same store are rejected with
// ErrCodeStoreConcurrentDelta (spec.md §5).
func (s *Store) ApplyDelta(d Delta) error {
	if !s.applyMu.TryLock() {
		return codeerrors.New(codeerrors.ErrCodeStoreConcurrentDelta, "concurrent apply_delta on store", nil)
	}
	defer s.applyMu.Unlock()

	v := s.load()
	next := v.clone()

	for _, id := range d.Removed {
		delete(next, id)
	}
	for _, c := range d.Updated {
		// "updated" chunks keep their prior embedding: if the caller passed
		// a chunk that still carries the prior's embedding this is a
		// no-op; if it lacks one, fall back to what is already stored.
		if len(c.Embedding) == 0 {
			if prior, ok := v.chunks[c.ChunkID]; ok {
				c = prior
			}
		}
		next[c.ChunkID] = c
	}
	for _, c := range d.Added {
		next[c.ChunkID] = c
	}

	fingerprints := v.cloneFingerprints()
	for _, fc := range d.FileChanges {
		if fc.Kind == ChangeDeleted {
			delete(fingerprints, fc.Path)
		}
	}

	newView := buildView(s.model, v.createdAt, next, fingerprints)
	if err := s.publish(newView); err != nil {
		return err
	}
	s.log.Info("vectorstore: applied delta",
		slog.Int("added", len(d.Added)), slog.Int("updated", len(d.Updated)), slog.Int("removed", len(d.Removed)))
	return nil
}

// RecordFileFingerprint stamps the fingerprint used by calculate_file_delta
// for a path that was just (re)indexed. Called by the orchestrator after
// successfully applying a delta for that file.
func (s *Store) RecordFileFingerprint(f FileInfo) error {
	if !s.applyMu.TryLock() {
		return codeerrors.New(codeerrors.ErrCodeStoreConcurrentDelta, "concurrent mutation on store", nil)
	}
	defer s.applyMu.Unlock()

	v := s.load()
	fingerprints := v.cloneFingerprints()
	fingerprints[f.Path] = fingerprintOf(f)
	newView := buildView(s.model, v.createdAt, v.clone(), fingerprints)
	return s.publish(newView)
}

// publish persists newView then swaps it in as the current view. Save
// failures surface to the caller; the prior on-disk version, and the prior
// in-memory view, remain authoritative (spec.md §4.2 "Failure semantics").
func (s *Store) publish(newView *view) error {
	if err := s.save(newView); err != nil {
		return codeerrors.New(codeerrors.ErrCodeStoreSaveFailed, "snapshot save failed", err)
	}
	s.current.Store(newView)
	if s.useANN {
		s.ann.rebuild(newView.chunks)
	}
	return nil
}

// Search answers a top-K cosine similarity query (spec.md §4.2).
func (s *Store) Search(query []float32, k int, filter SearchFilter) []SearchResult {
	v := s.load()
	if s.useANN && s.ann.stored > 0 {
		return s.ann.search(v.chunks, query, k, filter)
	}
	return flatScanSearch(v.chunks, query, k, filter)
}

// ClearIndex wipes the in-memory and on-disk snapshot (spec.md §4.2).
func (s *Store) ClearIndex() error {
	if !s.applyMu.TryLock() {
		return codeerrors.New(codeerrors.ErrCodeStoreConcurrentDelta, "concurrent mutation on store", nil)
	}
	defer s.applyMu.Unlock()

	empty := emptyView(s.model)
	if err := s.save(empty); err != nil {
		return codeerrors.New(codeerrors.ErrCodeStoreSaveFailed, "snapshot clear failed", err)
	}
	s.current.Store(empty)
	if s.useANN {
		s.ann.rebuild(empty.chunks)
	}
	return nil
}

// Chunks returns every currently-stored chunk, in no particular order.
func (s *Store) Chunks() []*chunkmodel.CodeChunk {
	v := s.load()
	out := make([]*chunkmodel.CodeChunk, 0, len(v.chunks))
	for _, c := range v.chunks {
		out = append(out, c)
	}
	return out
}

// ChunksForFile returns the chunks currently indexed for a file path.
func (s *Store) ChunksForFile(path string) []*chunkmodel.CodeChunk {
	v := s.load()
	ids := v.fileIndex[path]
	out := make([]*chunkmodel.CodeChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := v.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of chunks currently stored.
func (s *Store) Len() int {
	return len(s.load().chunks)
}
