package chunkmodel

import "context"

// FileInput is the input to a Chunker.
type FileInput struct {
	Path     string
	Content  []byte
	Language string
}

// Chunker splits a file into semantic chunks. internal/chunk provides the
// tree-sitter-based implementation used by the index command; tests supply
// their own in-memory fakes.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*CodeChunk, error)
	SupportedExtensions() []string
}
