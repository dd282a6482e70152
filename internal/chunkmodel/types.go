// Package chunkmodel defines the content-addressable CodeChunk record shared
// by the scanner/chunker boundary, the embedding pool, the vector store, and
// the selector. It owns chunk identity (hashing) and the invariants that
// every other package in this module relies on.
package chunkmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// EmbeddingDimension is the fixed vector width produced by the reference
// embedding model (D in spec.md §3).
const EmbeddingDimension = 384

// MaxContentChars bounds a single chunk's raw content.
const MaxContentChars = 50_000

// ChunkType enumerates the semantic boundary a chunk represents.
type ChunkType string

const (
	ChunkTypeFunction ChunkType = "function"
	ChunkTypeClass    ChunkType = "class"
	ChunkTypeBlock    ChunkType = "block"
	ChunkTypeSection  ChunkType = "section"
)

// LanguageMetadata carries the language tag for a chunk.
type LanguageMetadata struct {
	Language string `json:"language"`
}

// Relationships holds ordered import/export identifier sequences.
type Relationships struct {
	Imports []string `json:"imports,omitempty"`
	Exports []string `json:"exports,omitempty"`
}

// CodeChunk is the content-addressable unit of code context (spec.md §3).
type CodeChunk struct {
	ChunkID      string           `json:"chunk_id"`
	FilePath     string           `json:"file_path"`
	StartLine    int              `json:"start_line"`
	EndLine      int              `json:"end_line"`
	ChunkType    ChunkType        `json:"chunk_type"`
	SymbolName   string           `json:"symbol_name,omitempty"`
	FunctionName string           `json:"function_name,omitempty"`
	Content      string           `json:"content"`
	Language     LanguageMetadata `json:"language_metadata"`
	Relationship Relationships    `json:"relationships"`

	// Embedding is absent (nil) until the pool embeds the chunk.
	Embedding []float32 `json:"embedding,omitempty"`

	RelevanceScore  *float64  `json:"relevance_score,omitempty"`
	SimilarityScore *float64  `json:"similarity_score,omitempty"`
	IndexedAt       time.Time `json:"indexed_at,omitempty"`

	// Degraded marks a chunk whose Embedding is a zero vector after
	// exhausted retries (spec.md §4.1 Failure recovery). Degraded chunks
	// are excluded from vector search results.
	Degraded bool `json:"degraded,omitempty"`
}

// ComputeChunkID derives the stable identifier for a chunk: a pure function
// of (file_path, start_line, end_line, content). Two chunks with the same id
// must be byte-identical (invariant (i) in spec.md §3).
func ComputeChunkID(filePath string, startLine, endLine int, content string) string {
	h := sha256.New()
	h.Write([]byte(filePath))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(startLine)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(endLine)))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// NewCodeChunk constructs a CodeChunk with its id computed from identity
// fields, validating the size and line-range invariants.
func NewCodeChunk(filePath string, startLine, endLine int, chunkType ChunkType, content string) (*CodeChunk, error) {
	if startLine > endLine {
		return nil, fmt.Errorf("chunkmodel: start_line %d > end_line %d", startLine, endLine)
	}
	if len(content) > MaxContentChars {
		return nil, fmt.Errorf("chunkmodel: content length %d exceeds max %d", len(content), MaxContentChars)
	}
	return &CodeChunk{
		ChunkID:   ComputeChunkID(filePath, startLine, endLine, content),
		FilePath:  filePath,
		StartLine: startLine,
		EndLine:   endLine,
		ChunkType: chunkType,
		Content:   content,
	}, nil
}

// ValidateEmbedding checks invariant (ii): if present, an embedding has
// exactly EmbeddingDimension finite components.
func ValidateEmbedding(v []float32) error {
	if len(v) != EmbeddingDimension {
		return fmt.Errorf("chunkmodel: embedding has %d dims, want %d", len(v), EmbeddingDimension)
	}
	for i, f := range v {
		if isNonFinite(f) {
			return fmt.Errorf("chunkmodel: embedding component %d is non-finite", i)
		}
	}
	return nil
}

func isNonFinite(f float32) bool {
	return f != f || f > maxFloat32 || f < -maxFloat32
}

const maxFloat32 = 3.4028235e+38

// IsZeroVector reports whether every component of v is exactly zero — the
// marker for a degraded embedding.
func IsZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

// ZeroVector returns a degraded placeholder embedding of the model
// dimension.
func ZeroVector() []float32 {
	return make([]float32, EmbeddingDimension)
}

// Clone returns a deep copy of the chunk, so callers can mutate a cached
// chunk's copy (e.g. to attach a relevance score) without racing readers of
// the original.
func (c *CodeChunk) Clone() *CodeChunk {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Embedding != nil {
		cp.Embedding = append([]float32(nil), c.Embedding...)
	}
	if c.Relationship.Imports != nil {
		cp.Relationship.Imports = append([]string(nil), c.Relationship.Imports...)
	}
	if c.Relationship.Exports != nil {
		cp.Relationship.Exports = append([]string(nil), c.Relationship.Exports...)
	}
	return &cp
}
