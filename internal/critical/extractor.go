// Package critical implements the Critical-Set Extractor: a pure function
// from query text to a CriticalSet of filename/function/symbol hints with a
// confidence score (spec.md §4.4).
package critical

import (
	"regexp"
	"strings"
)

// Set is the extractor's output (spec.md §3, "CriticalSet"). Purely
// advisory: the selector promotes chunks matching it, but Confidence is
// exposed for telemetry only.
type Set struct {
	FilePaths     []string
	FunctionNames []string
	SymbolNames   []string
	Confidence    float64
}

var sourceExtensions = []string{".rs", ".go", ".cpp", ".c", ".h", ".ts", ".tsx", ".js", ".jsx", ".py", ".java"}

var (
	fileTokenRe    = regexp.MustCompile(`[A-Za-z0-9_./\-]+\.[A-Za-z]+`)
	filePhraseRe   = regexp.MustCompile(`(?i)(?:file|path|in)\s+([A-Za-z0-9_./\-]+\.[A-Za-z]+)`)
	functionRe     = regexp.MustCompile(`(?i)(?:function|method|call(?:ing)?)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	identCallRe    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	symbolPhraseRe = regexp.MustCompile(`(?i)(?:class|interface|type|component)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	pascalOrCamel  = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*[a-z0-9][A-Za-z0-9]*|[a-z][a-zA-Z0-9]*[A-Z][A-Za-z0-9]*)\b`)
)

var functionStopwords = map[string]bool{
	"and": true, "or": true, "not": true, "the": true, "for": true, "with": true, "from": true,
}

var identShapeRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Extract parses query text into a Set (spec.md §4.4).
func Extract(query string) Set {
	files := extractFilePaths(query)
	functions := extractFunctionNames(query)
	symbols := extractSymbolNames(query)

	totalMentions := len(files) + len(functions) + len(symbols)
	confidence := 0.1
	if totalMentions > 0 {
		confidence = 0.3 + 0.15*float64(totalMentions)
		if len(files) > 0 {
			confidence += 0.2
		}
		if len(functions) > 0 {
			confidence += 0.1
		}
		if confidence > 0.95 {
			confidence = 0.95
		}
	}

	return Set{
		FilePaths:     files,
		FunctionNames: functions,
		SymbolNames:   symbols,
		Confidence:    confidence,
	}
}

func extractFilePaths(query string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(tok string) {
		tok = strings.Trim(tok, ".,;:()[]{}\"'")
		if len(tok) < 4 || strings.Contains(tok, "node_modules") {
			return
		}
		if !hasSourceExtension(tok) {
			return
		}
		if seen[tok] {
			return
		}
		seen[tok] = true
		out = append(out, tok)
	}

	for _, m := range fileTokenRe.FindAllString(query, -1) {
		add(m)
	}
	for _, m := range filePhraseRe.FindAllStringSubmatch(query, -1) {
		add(m[1])
	}
	return out
}

func hasSourceExtension(tok string) bool {
	lower := strings.ToLower(tok)
	for _, ext := range sourceExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func extractFunctionNames(query string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(ident string) {
		lower := strings.ToLower(ident)
		if functionStopwords[lower] {
			return
		}
		if len(ident) < 2 || !identShapeRe.MatchString(ident) {
			return
		}
		if seen[ident] {
			return
		}
		seen[ident] = true
		out = append(out, ident)
	}

	for _, m := range functionRe.FindAllStringSubmatch(query, -1) {
		add(m[1])
	}
	for _, m := range identCallRe.FindAllStringSubmatch(query, -1) {
		add(m[1])
	}
	return out
}

func extractSymbolNames(query string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(ident string) {
		lower := strings.ToLower(ident)
		if functionStopwords[lower] {
			return
		}
		if len(ident) <= 2 || !identShapeRe.MatchString(ident) {
			return
		}
		if seen[ident] {
			return
		}
		seen[ident] = true
		out = append(out, ident)
	}

	for _, m := range symbolPhraseRe.FindAllStringSubmatch(query, -1) {
		add(m[1])
	}
	for _, m := range pascalOrCamel.FindAllString(query, -1) {
		add(m)
	}
	return out
}
