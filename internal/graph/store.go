package graph

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

// SQLiteStore persists a Graph through modernc.org/sqlite, grounded on the
// teacher's internal/store/sqlite_bm25.go WAL-mode connection pattern.
// Graph persistence is entirely off the pool/store/selector hot path: its
// failures are logged by the caller (the orchestrator) and never fail
// indexing.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) the sqlite database at path
// and ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("graph: create db dir: %w", err)
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("graph: open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("graph: apply pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS symbols (
			idx INTEGER PRIMARY KEY,
			chunk_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			file_path TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS relations (
			from_idx INTEGER NOT NULL,
			to_idx INTEGER NOT NULL,
			kind TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("graph: migrate: %w", err)
		}
	}
	return nil
}

// Save replaces the persisted graph with g's current contents.
func (s *SQLiteStore) Save(g *Graph) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM relations"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM symbols"); err != nil {
		return err
	}
	for i, sym := range g.Symbols {
		if _, err := tx.Exec("INSERT INTO symbols (idx, chunk_id, name, file_path) VALUES (?, ?, ?, ?)",
			i, sym.ChunkID, sym.Name, sym.FilePath); err != nil {
			return fmt.Errorf("graph: insert symbol: %w", err)
		}
	}
	for _, rel := range g.Relations {
		if _, err := tx.Exec("INSERT INTO relations (from_idx, to_idx, kind) VALUES (?, ?, ?)",
			rel.FromIndex, rel.ToIndex, string(rel.Kind)); err != nil {
			return fmt.Errorf("graph: insert relation: %w", err)
		}
	}
	return tx.Commit()
}

// Load reads the persisted graph back into memory.
func (s *SQLiteStore) Load() (*Graph, error) {
	g := New()

	rows, err := s.db.Query("SELECT idx, chunk_id, name, file_path FROM symbols ORDER BY idx")
	if err != nil {
		return nil, fmt.Errorf("graph: query symbols: %w", err)
	}
	for rows.Next() {
		var idx int
		var sym SymbolNode
		if err := rows.Scan(&idx, &sym.ChunkID, &sym.Name, &sym.FilePath); err != nil {
			rows.Close()
			return nil, fmt.Errorf("graph: scan symbol: %w", err)
		}
		g.Symbols = append(g.Symbols, sym)
		g.byChunkID[sym.ChunkID] = idx
	}
	rows.Close()

	rows, err = s.db.Query("SELECT from_idx, to_idx, kind FROM relations")
	if err != nil {
		return nil, fmt.Errorf("graph: query relations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r Relation
		var kind string
		if err := rows.Scan(&r.FromIndex, &r.ToIndex, &kind); err != nil {
			return nil, fmt.Errorf("graph: scan relation: %w", err)
		}
		r.Kind = RelationKind(kind)
		g.Relations = append(g.Relations, r)
	}
	return g, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
