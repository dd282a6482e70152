package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
)

func TestCodeChunker_ChunkGoFile_ReturnsFunctionChunks(t *testing.T) {
	source := `package main

import "fmt"

func Hello() {
	fmt.Println("Hello")
}

func Goodbye() {
	fmt.Println("Goodbye")
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &chunkmodel.FileInput{
		Path:     "main.go",
		Content:  []byte(source),
		Language: "go",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0].Content, "Hello")
	assert.Equal(t, chunkmodel.ChunkTypeFunction, chunks[0].ChunkType)
	assert.Equal(t, "Hello", chunks[0].SymbolName)
	assert.Equal(t, "Hello", chunks[0].FunctionName)

	assert.Contains(t, chunks[1].Content, "Goodbye")
	assert.Equal(t, "Goodbye", chunks[1].SymbolName)

	for _, c := range chunks {
		assert.Contains(t, c.Content, `import "fmt"`)
		assert.Contains(t, c.Content, "package main")
		assert.Equal(t, "go", c.Language.Language)
	}
}

func TestCodeChunker_ChunkGoFile_IncludesDocComments(t *testing.T) {
	source := `package main

import "fmt"

// Greet returns a greeting message for the given name.
func Greet(name string) string {
	if name == "" {
		return "Hello, stranger!"
	}
	return fmt.Sprintf("Hello, %s!", name)
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &chunkmodel.FileInput{
		Path:     "main.go",
		Content:  []byte(source),
		Language: "go",
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Greet returns a greeting")
	assert.Equal(t, "Greet", chunks[0].SymbolName)
}

func TestCodeChunker_ChunkTypeScript_IncludesImportContext(t *testing.T) {
	source := `import { Logger } from './logger';
import { Config } from './config';

export class UserService {
	private logger: Logger;

	constructor(config: Config) {
		this.logger = new Logger(config);
	}

	getUser(id: string): User | null {
		this.logger.info('Getting user: ' + id);
		return null;
	}
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &chunkmodel.FileInput{
		Path:     "user-service.ts",
		Content:  []byte(source),
		Language: "typescript",
	})

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 1)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, "./logger") {
			found = true
		}
	}
	assert.True(t, found, "at least one chunk should carry the import context")
}

func TestCodeChunker_UnsupportedLanguage_FallsBackToLines(t *testing.T) {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, "some ruby source line")
	}
	source := strings.Join(lines, "\n")

	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &chunkmodel.FileInput{
		Path:     "script.rb",
		Content:  []byte(source),
		Language: "ruby",
	})

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, chunkmodel.ChunkTypeSection, c.ChunkType)
	}
}

func TestCodeChunker_EmptyFile_ReturnsNoChunks(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()

	chunks, err := chunker.Chunk(context.Background(), &chunkmodel.FileInput{
		Path:     "empty.go",
		Content:  []byte(""),
		Language: "go",
	})

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestCodeChunker_IdenticalContentAcrossFiles_YieldsDifferentIDs(t *testing.T) {
	source := "package main\n\nfunc F() {}\n"
	chunker := NewCodeChunker()
	defer chunker.Close()

	a, err := chunker.Chunk(context.Background(), &chunkmodel.FileInput{Path: "a.go", Content: []byte(source), Language: "go"})
	require.NoError(t, err)
	b, err := chunker.Chunk(context.Background(), &chunkmodel.FileInput{Path: "b.go", Content: []byte(source), Language: "go"})
	require.NoError(t, err)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].ChunkID, b[0].ChunkID)
}

func TestCodeChunker_SupportedExtensions_IncludesGo(t *testing.T) {
	chunker := NewCodeChunker()
	defer chunker.Close()
	assert.Contains(t, chunker.SupportedExtensions(), ".go")
}
