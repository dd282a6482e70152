package chunk

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/codectx/internal/chunkmodel"
)

// CodeChunkerOptions configures chunk sizing.
type CodeChunkerOptions struct {
	MaxChunkTokens int // default DefaultMaxChunkTokens
	OverlapTokens  int // default DefaultOverlapTokens
}

// CodeChunker implements chunkmodel.Chunker using tree-sitter to find
// symbol boundaries (functions, methods, classes, types) per language,
// falling back to line-based splitting for unsupported languages, parse
// failures, and oversized symbols.
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	options   CodeChunkerOptions
}

var _ chunkmodel.Chunker = (*CodeChunker)(nil)

// NewCodeChunker creates a chunker with default sizing.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a chunker with custom sizing.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}

	registry := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(registry),
		extractor: NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
		options:   opts,
	}
}

// Close releases the underlying tree-sitter parser.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions returns the file extensions this chunker parses with
// tree-sitter. Files with any other extension fall back to chunkByLines.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk splits a file into chunkmodel.CodeChunk values along symbol
// boundaries, falling back to fixed-size line windows when the language is
// unsupported or the source fails to parse.
func (c *CodeChunker) Chunk(ctx context.Context, file *chunkmodel.FileInput) ([]*chunkmodel.CodeChunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	if _, supported := c.registry.GetByName(file.Language); !supported {
		return c.chunkByLines(file)
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return c.chunkByLines(file)
	}

	fileContext := c.extractFileContext(tree, file.Content, file.Language)
	fileContext = c.enrichContextWithFilePath(file.Path, file.Language, fileContext)
	imports := c.extractImports(tree, file.Language)

	symbolNodes := c.findSymbolNodes(tree, file.Language)
	if len(symbolNodes) == 0 {
		return nil, nil
	}

	var chunks []*chunkmodel.CodeChunk
	for _, node := range symbolNodes {
		nodeChunks, err := c.createChunksFromNode(node, tree, file, fileContext, imports)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, nodeChunks...)
	}

	return chunks, nil
}

type symbolNodeInfo struct {
	node   *Node
	symbol *Symbol
}

// findSymbolNodes walks the tree for nodes matching the language's
// function/method/class/interface/type/constant/variable node-type tables.
func (c *CodeChunker) findSymbolNodes(tree *Tree, language string) []*symbolNodeInfo {
	config, ok := c.registry.GetByName(language)
	if !ok {
		return nil
	}

	symbolTypes := make(map[string]SymbolType)
	for _, t := range config.FunctionTypes {
		symbolTypes[t] = SymbolTypeFunction
	}
	for _, t := range config.MethodTypes {
		symbolTypes[t] = SymbolTypeMethod
	}
	for _, t := range config.ClassTypes {
		symbolTypes[t] = SymbolTypeClass
	}
	for _, t := range config.InterfaceTypes {
		symbolTypes[t] = SymbolTypeInterface
	}
	for _, t := range config.TypeDefTypes {
		symbolTypes[t] = SymbolTypeType
	}
	for _, t := range config.ConstantTypes {
		symbolTypes[t] = SymbolTypeConstant
	}
	for _, t := range config.VariableTypes {
		symbolTypes[t] = SymbolTypeVariable
	}

	var symbolNodes []*symbolNodeInfo
	tree.Root.Walk(func(n *Node) bool {
		// Arrow functions and function expressions are nested inside a
		// lexical/variable declaration rather than matching a symbol type
		// directly; check those first so they're typed as functions, not
		// constants.
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			if sym := c.extractor.extractSpecialSymbol(n, tree.Source, language); sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
				return true
			}
		}

		if symType, isSymbol := symbolTypes[n.Type]; isSymbol {
			if sym := c.extractSymbol(n, tree, symType, language); sym != nil {
				symbolNodes = append(symbolNodes, &symbolNodeInfo{node: n, symbol: sym})
			}
		}
		return true
	})

	return symbolNodes
}

func (c *CodeChunker) extractSymbol(n *Node, tree *Tree, symType SymbolType, language string) *Symbol {
	config, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, config, language)
	if name == "" {
		return nil
	}

	return &Symbol{
		Name:       name,
		Type:       symType,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: c.extractor.extractDocComment(n, tree.Source, language),
	}
}

// createChunksFromNode turns one symbol node into one chunk, or several if
// the symbol is too large for a single chunk.
func (c *CodeChunker) createChunksFromNode(info *symbolNodeInfo, tree *Tree, file *chunkmodel.FileInput, fileContext string, imports []string) ([]*chunkmodel.CodeChunk, error) {
	node := info.node
	rawContent := string(tree.Source[node.StartByte:node.EndByte])
	if info.symbol.DocComment != "" {
		rawContent = c.withDocComment(node, tree.Source, info.symbol.DocComment)
	}

	if estimateTokens(rawContent) <= c.options.MaxChunkTokens {
		chunk, err := c.buildChunk(file, rawContent, fileContext, imports, info.symbol.Name, info.symbol.Type, info.symbol.StartLine, info.symbol.EndLine)
		if err != nil {
			return nil, err
		}
		return []*chunkmodel.CodeChunk{chunk}, nil
	}

	return c.splitByLines(rawContent, info.symbol, file, fileContext, imports, int(node.StartPoint.Row)+1)
}

func (c *CodeChunker) withDocComment(n *Node, source []byte, docComment string) string {
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}

	docLines := strings.Count(docComment, "\n") + 1
	for i := 0; i < docLines && lineStart > 0; i++ {
		lineStart--
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
	}

	return string(source[lineStart:n.EndByte])
}

// splitByLines splits an oversized symbol into overlapping line windows,
// naming each part "<symbol>_partN" while keeping the parent symbol name on
// the first part for discoverability.
func (c *CodeChunker) splitByLines(content string, symbol *Symbol, file *chunkmodel.FileInput, fileContext string, imports []string, startLine int) ([]*chunkmodel.CodeChunk, error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil, nil
	}

	maxLinesPerChunk := (c.options.MaxChunkTokens * TokensPerChar) / 80
	if maxLinesPerChunk < 20 {
		maxLinesPerChunk = 20
	}
	overlapLines := (c.options.OverlapTokens * TokensPerChar) / 80
	if overlapLines < 2 {
		overlapLines = 2
	}

	var chunks []*chunkmodel.CodeChunk
	for i := 0; i < len(lines); {
		end := i + maxLinesPerChunk
		if end > len(lines) {
			end = len(lines)
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		chunkStartLine := startLine + i
		chunkEndLine := startLine + end - 1

		name := symbol.Name
		if len(chunks) > 0 {
			name = fmt.Sprintf("%s_part%d", symbol.Name, len(chunks)+1)
		}

		chunk, err := c.buildChunk(file, chunkContent, fileContext, imports, name, symbol.Type, chunkStartLine, chunkEndLine)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)

		i = end - overlapLines
		if i <= 0 || end >= len(lines) {
			break
		}
	}

	return chunks, nil
}

func (c *CodeChunker) buildChunk(file *chunkmodel.FileInput, rawContent, fileContext string, imports []string, symbolName string, symType SymbolType, startLine, endLine int) (*chunkmodel.CodeChunk, error) {
	content := combineContextAndContent(fileContext, rawContent)
	chunk, err := chunkmodel.NewCodeChunk(file.Path, startLine, endLine, toChunkType(symType), content)
	if err != nil {
		return nil, err
	}
	chunk.SymbolName = symbolName
	if symType == SymbolTypeFunction || symType == SymbolTypeMethod {
		chunk.FunctionName = symbolName
	}
	chunk.Language = chunkmodel.LanguageMetadata{Language: file.Language}
	if len(imports) > 0 {
		chunk.Relationship.Imports = imports
	}
	if symbolName != "" {
		chunk.Relationship.Exports = []string{symbolName}
	}
	return chunk, nil
}

func toChunkType(t SymbolType) chunkmodel.ChunkType {
	switch t {
	case SymbolTypeFunction, SymbolTypeMethod:
		return chunkmodel.ChunkTypeFunction
	case SymbolTypeClass, SymbolTypeInterface, SymbolTypeType:
		return chunkmodel.ChunkTypeClass
	default:
		return chunkmodel.ChunkTypeBlock
	}
}

// extractFileContext extracts the package/import header prepended to every
// chunk's content so the embedding model sees a symbol's surrounding
// imports without duplicating the whole file.
func (c *CodeChunker) extractFileContext(tree *Tree, source []byte, language string) string {
	var parts []string

	switch language {
	case "go":
		parts = c.extractGoContext(tree, source)
	case "typescript", "tsx", "javascript", "jsx":
		parts = c.extractJSContext(tree, source)
	case "python":
		parts = c.extractPythonContext(tree, source)
	}

	return strings.Join(parts, "\n\n")
}

func (c *CodeChunker) extractGoContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "package_clause" {
			parts = append(parts, node.GetContent(source))
			break
		}
	}
	for _, node := range tree.Root.Children {
		if node.Type == "import_declaration" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

func (c *CodeChunker) extractJSContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

func (c *CodeChunker) extractPythonContext(tree *Tree, source []byte) []string {
	var parts []string
	for _, node := range tree.Root.Children {
		if node.Type == "import_statement" || node.Type == "import_from_statement" {
			parts = append(parts, node.GetContent(source))
		}
	}
	return parts
}

// extractImports returns the raw import path/module strings referenced by
// the file, for chunkmodel.Relationships.Imports.
func (c *CodeChunker) extractImports(tree *Tree, language string) []string {
	var raw []*Node
	switch language {
	case "go":
		for _, node := range tree.Root.Children {
			if node.Type == "import_declaration" {
				raw = append(raw, node.FindAllByType("interpreted_string_literal")...)
			}
		}
	case "typescript", "tsx", "javascript", "jsx":
		for _, node := range tree.Root.Children {
			if node.Type == "import_statement" {
				if s := node.FindChildByType("string"); s != nil {
					raw = append(raw, s)
				}
			}
		}
	case "python":
		// dotted_name under import_statement/import_from_statement
		for _, node := range tree.Root.Children {
			if node.Type == "import_statement" || node.Type == "import_from_statement" {
				raw = append(raw, node.FindAllByType("dotted_name")...)
			}
		}
	}

	imports := make([]string, 0, len(raw))
	for _, n := range raw {
		imports = append(imports, strings.Trim(n.GetContent(tree.Source), `"'`))
	}
	return imports
}

// chunkByLines is the fallback for unsupported languages, parse failures,
// and (via Chunk) any file chunked before a tree-sitter grammar existed.
func (c *CodeChunker) chunkByLines(file *chunkmodel.FileInput) ([]*chunkmodel.CodeChunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	const linesPerChunk = 128 // ~2560 tokens at 4 chars/token, 80 chars/line
	const overlapLines = 16   // ~320 tokens overlap

	var chunks []*chunkmodel.CodeChunk
	for i := 0; i < len(lines); {
		end := i + linesPerChunk
		if end > len(lines) {
			end = len(lines)
		}

		chunkContent := strings.Join(lines[i:end], "\n")
		chunk, err := chunkmodel.NewCodeChunk(file.Path, i+1, end, chunkmodel.ChunkTypeSection, chunkContent)
		if err != nil {
			return nil, err
		}
		chunk.Language = chunkmodel.LanguageMetadata{Language: file.Language}
		chunks = append(chunks, chunk)

		i = end - overlapLines
		if i <= 0 || end >= len(lines) {
			break
		}
	}

	return chunks, nil
}

func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}

func combineContextAndContent(context, rawContent string) string {
	if context == "" {
		return rawContent
	}
	return context + "\n\n" + rawContent
}

func (c *CodeChunker) enrichContextWithFilePath(filePath, language, existingContext string) string {
	if filePath == "" {
		return existingContext
	}

	marker := fmt.Sprintf("// File: %s", filePath)
	if language == "python" {
		marker = fmt.Sprintf("# File: %s", filePath)
	}

	if existingContext == "" {
		return marker
	}
	return marker + "\n" + existingContext
}
