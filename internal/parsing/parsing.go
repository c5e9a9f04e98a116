// Package parsing defines the opaque parser collaborator described by the
// specification: something that turns a file's bytes into (symbol, kind,
// byte range, language) chunks. Real grammars are an external concern — the
// spec explicitly treats language-aware parsing as out of scope for the
// core — so this package exposes the interface plus one dependency-free
// default implementation, a line-window chunker, so the rest of the module
// is runnable without a tree-sitter grammar wired in.
package parsing

import (
	"context"

	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// ParsedChunk is one chunk a Parser extracted from a file, before it has a
// database identity (FileID/ID are assigned when the indexing coordinator
// persists it).
type ParsedChunk struct {
	ChunkType model.ChunkType
	Symbol    string
	Signature string
	Code      string
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int
}

// Parser splits one file's content into ParsedChunks. Implementations may
// be AST-based (a tree-sitter grammar keyed by language) or heuristic; the
// indexing coordinator treats every Parser identically.
type Parser interface {
	// Parse extracts chunks from content. language is the value already
	// resolved by the caller (extension-based or content-sniffed); an
	// unrecognized language is not an error — implementations should fall
	// back to whatever default strategy they have.
	Parse(ctx context.Context, path string, content []byte, language model.Language) ([]ParsedChunk, error)

	// SupportedLanguages reports which Language values this Parser has a
	// dedicated (non-fallback) strategy for.
	SupportedLanguages() []model.Language
}
