package vectorstore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// save writes v atomically to local path (and, on success, to the global
// mirror): write to a unique temp path, fsync, rename over the target
// (spec.md §4.2 "Persistence"). A gofrs/flock guard (grounded on the
// teacher's internal/embed/lock.go FileLock) on .vectorstore.lock in the
// target directory serialises concurrent writers across processes.
func (s *Store) save(v *view) error {
	if s.localPath == "" {
		return nil
	}
	snap := v.toSnapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("vectorstore: marshal snapshot: %w", err)
	}

	if err := writeAtomic(s.localPath, data); err != nil {
		return err
	}
	if s.globalMirror != "" {
		// Best-effort: the local write already succeeded and is the
		// durable source of truth; mirror failures are logged, not fatal.
		if err := writeAtomic(s.globalMirror, data); err != nil {
			s.log.Warn("vectorstore: global mirror write failed", "error", err.Error())
		}
	}
	return nil
}

// writeAtomic implements the write-temp/fsync/rename sequence, guarded by a
// cross-process file lock on the target directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vectorstore: create snapshot dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, ".vectorstore.lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("vectorstore: acquire snapshot lock: %w", err)
	}
	defer lock.Unlock()

	tmp, err := tempPath(dir, filepath.Base(path))
	if err != nil {
		return err
	}

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("vectorstore: open temp snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: write temp snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: fsync temp snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vectorstore: rename temp snapshot: %w", err)
	}
	return nil
}

// tempPath builds a unique temp file name: <base>.<random-hex>.tmp, the
// random-suffix variant of spec.md's "suffix = timestamp + random token"
// (random alone is sufficient for uniqueness and keeps the writer
// deterministic-free for tests; see DESIGN.md).
func tempPath(dir, base string) (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("vectorstore: generate temp suffix: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, hex.EncodeToString(buf[:]))), nil
}

// loadSnapshotFile reads and unmarshals one candidate path. Returns
// (nil, nil, os.ErrNotExist) style: ok=false, err=nil when the file is
// simply absent.
func loadSnapshotFile(path string) (*Snapshot, os.FileInfo, bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil, false, fmt.Errorf("vectorstore: corrupt snapshot %s: %w", path, err)
	}
	return &snap, info, true, nil
}
