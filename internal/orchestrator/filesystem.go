package orchestrator

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/codectx/internal/chunk"
	"github.com/Aman-CERP/codectx/internal/scanner"
)

// FilesystemScanner is the production Scanner implementation, walking a
// project tree through internal/scanner (gitignore-aware, exclusion
// patterns, submodule discovery) and reading file content directly off
// disk.
type FilesystemScanner struct {
	root  string
	opts  *scanner.ScanOptions
	inner *scanner.Scanner
}

// NewFilesystemScanner builds a Scanner rooted at root. opts may be nil for
// the scanner's defaults (gitignore respected, no submodule scanning). When
// opts.IncludePatterns is empty, it defaults to the extensions
// internal/chunk can actually AST-parse plus Markdown, since anything else
// would only ever reach the chunker's line-window fallback and isn't worth
// the scan+hash cost of a full-repo walk.
func NewFilesystemScanner(root string, opts *scanner.ScanOptions) (*FilesystemScanner, error) {
	inner, err := scanner.New()
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &scanner.ScanOptions{RespectGitignore: true}
	}
	opts.RootDir = root
	if len(opts.IncludePatterns) == 0 {
		opts.IncludePatterns = chunkableIncludePatterns()
	}
	return &FilesystemScanner{root: root, opts: opts, inner: inner}, nil
}

// chunkableIncludePatterns turns the chunker's supported extensions into
// scanner glob patterns, plus Markdown since it's the store's other
// documented content type (spec.md §3, ContentType).
func chunkableIncludePatterns() []string {
	exts := chunk.DefaultRegistry().SupportedExtensions()
	patterns := make([]string, 0, len(exts)+1)
	for _, ext := range exts {
		patterns = append(patterns, "*"+ext)
	}
	patterns = append(patterns, "*.md")
	return patterns
}

// ListFiles walks the tree to completion and returns every discovered file's
// identity. Files whose scan result carries an error, or that cannot be
// read, are skipped silently rather than aborting the whole walk.
func (f *FilesystemScanner) ListFiles(ctx context.Context) ([]FileRecord, error) {
	results, err := f.inner.Scan(ctx, f.opts)
	if err != nil {
		return nil, err
	}

	var out []FileRecord
	for r := range results {
		if r.Error != nil || r.File == nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(f.root, r.File.Path))
		if err != nil {
			continue
		}
		out = append(out, FileRecord{
			Path:        r.File.Path,
			ModTimeUnix: r.File.ModTime.Unix(),
			ContentHash: hashContent(content),
			Language:    r.File.Language,
		})
	}
	return out, nil
}

// ReadFile reads one file's content relative to the scan root.
func (f *FilesystemScanner) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.root, path))
}
