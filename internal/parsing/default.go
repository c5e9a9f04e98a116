package parsing

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// Default chunk-size tuning for the line-window fallback: 128-line windows
// (about 2,500 tokens at ~4 chars/token and 80 chars/line) overlapping by 16
// lines. Symbol-based chunks are bounded by the symbol itself instead.
const (
	defaultLinesPerChunk = 128
	defaultOverlapLines  = 16
)

// symbolPattern matches the first line of a top-level symbol declaration
// for one language, along with the ChunkType it produces.
type symbolPattern struct {
	re        *regexp.Regexp
	chunkType model.ChunkType
	// braceDelimited is true for languages whose symbol body ends at a
	// matching closing brace (tracked by counting '{'/'}'); false means the
	// symbol extends until the next top-level declaration or EOF (Python's
	// indentation-delimited bodies).
	braceDelimited bool
}

var languagePatterns = map[model.Language][]symbolPattern{
	"go": {
		{regexp.MustCompile(`^func\s+(\([^)]*\)\s+)?[A-Za-z_][A-Za-z0-9_]*\s*\(`), model.ChunkTypeFunction, true},
		{regexp.MustCompile(`^type\s+[A-Za-z_][A-Za-z0-9_]*\s+(struct|interface)\s*\{`), model.ChunkTypeClass, true},
	},
	"python": {
		{regexp.MustCompile(`^(async\s+)?def\s+[A-Za-z_][A-Za-z0-9_]*\s*\(`), model.ChunkTypeFunction, false},
		{regexp.MustCompile(`^class\s+[A-Za-z_][A-Za-z0-9_]*`), model.ChunkTypeClass, false},
	},
	"javascript": {
		{regexp.MustCompile(`^(export\s+)?(async\s+)?function\s*\*?\s*[A-Za-z_$][A-Za-z0-9_$]*\s*\(`), model.ChunkTypeFunction, true},
		{regexp.MustCompile(`^(export\s+)?class\s+[A-Za-z_$][A-Za-z0-9_$]*`), model.ChunkTypeClass, true},
	},
	"typescript": {
		{regexp.MustCompile(`^(export\s+)?(async\s+)?function\s*\*?\s*[A-Za-z_$][A-Za-z0-9_$]*\s*\(`), model.ChunkTypeFunction, true},
		{regexp.MustCompile(`^(export\s+)?(abstract\s+)?class\s+[A-Za-z_$][A-Za-z0-9_$]*`), model.ChunkTypeClass, true},
		{regexp.MustCompile(`^(export\s+)?interface\s+[A-Za-z_$][A-Za-z0-9_$]*`), model.ChunkTypeClass, true},
	},
	"java": {
		{regexp.MustCompile(`^\s*(public|private|protected|static|final|\s)*\s*(class|interface|enum)\s+[A-Za-z_][A-Za-z0-9_]*`), model.ChunkTypeClass, true},
	},
}

// LineWindowParser is the dependency-free default Parser: a regex pass finds
// obvious top-level symbol declarations for a handful of common languages,
// and any content it can't attribute to a symbol — including every byte of
// an unrecognized language — falls back to fixed-size overlapping line
// windows, the same shape as the teacher's CodeChunker.chunkByLines.
type LineWindowParser struct {
	LinesPerChunk int
	OverlapLines  int
}

// NewLineWindowParser constructs a LineWindowParser with the package defaults.
func NewLineWindowParser() *LineWindowParser {
	return &LineWindowParser{LinesPerChunk: defaultLinesPerChunk, OverlapLines: defaultOverlapLines}
}

func (p *LineWindowParser) SupportedLanguages() []model.Language {
	langs := make([]model.Language, 0, len(languagePatterns))
	for l := range languagePatterns {
		langs = append(langs, l)
	}
	return langs
}

// Parse extracts symbol-based chunks for languages with a registered
// pattern set, falling back to line-window chunks for any remaining content
// and for languages with no pattern set at all. ctx is honored only at the
// granularity of the caller's own per-file timeout (see
// index.Coordinator.processContent);
// the scan itself is not preemptible mid-line.
func (p *LineWindowParser) Parse(ctx context.Context, path string, content []byte, language model.Language) ([]ParsedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	patterns, ok := languagePatterns[language]
	if !ok {
		return p.chunkByLines(content)
	}

	chunks := p.chunkBySymbols(content, patterns)
	if len(chunks) == 0 {
		return p.chunkByLines(content)
	}
	return chunks, nil
}

// chunkBySymbols scans line-by-line for top-level declarations matching any
// pattern in patterns, extending each match to its closing brace (for
// brace-delimited languages) or to the line before the next top-level
// declaration at the same or lesser indentation (for indentation-delimited
// languages like Python).
func (p *LineWindowParser) chunkBySymbols(content []byte, patterns []symbolPattern) []ParsedChunk {
	lines := strings.Split(string(content), "\n")
	lineStartByte := make([]int, len(lines)+1)
	offset := 0
	for i, l := range lines {
		lineStartByte[i] = offset
		offset += len(l) + 1 // account for the stripped '\n'
	}
	lineStartByte[len(lines)] = offset

	var chunks []ParsedChunk
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimLeft(lines[i], " \t")
		indent := len(lines[i]) - len(trimmed)

		var matched *symbolPattern
		var symbol string
		for pi := range patterns {
			if loc := patterns[pi].re.FindString(trimmed); loc != "" {
				matched = &patterns[pi]
				symbol = extractSymbolName(trimmed)
				break
			}
		}
		if matched == nil {
			continue
		}

		endLine := i
		if matched.braceDelimited {
			endLine = findMatchingBrace(lines, i)
		} else {
			endLine = findIndentBlockEnd(lines, i, indent)
		}

		startByte := lineStartByte[i]
		endByte := lineStartByte[endLine+1]
		if endByte > len(content) {
			endByte = len(content)
		}
		code := string(content[startByte:endByte])
		code = strings.TrimRight(code, "\n")

		chunks = append(chunks, ParsedChunk{
			ChunkType: matched.chunkType,
			Symbol:    symbol,
			Signature: strings.TrimSpace(lines[i]),
			Code:      code,
			StartLine: i + 1,
			EndLine:   endLine + 1,
			StartByte: startByte,
			EndByte:   startByte + len(code),
		})
		i = endLine
	}
	return chunks
}

// findMatchingBrace returns the 0-indexed line on which the '{' opened by
// start's line is closed, counting braces across the intervening lines.
// If the braces never balance (malformed source), it returns the last line.
func findMatchingBrace(lines []string, start int) int {
	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i
		}
	}
	return len(lines) - 1
}

// findIndentBlockEnd returns the 0-indexed line of the last line belonging
// to an indentation-delimited block starting at start (indented further
// than declIndent), skipping blank lines when deciding where the block ends.
func findIndentBlockEnd(lines []string, start, declIndent int) int {
	last := start
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		indent := len(lines[i]) - len(strings.TrimLeft(lines[i], " \t"))
		if indent <= declIndent {
			return last
		}
		last = i
	}
	return last
}

// extractSymbolName pulls the first identifier-looking token after the
// declaration keyword (func/def/class/function/interface/etc.) out of a
// declaration line. Best-effort: an empty result just means the chunk's
// Symbol field stays blank, not a parse failure.
var identifierRE = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*`)

func extractSymbolName(declLine string) string {
	skip := map[string]bool{
		"func": true, "type": true, "struct": true, "interface": true,
		"def": true, "async": true, "class": true, "function": true,
		"export": true, "abstract": true, "public": true, "private": true,
		"protected": true, "static": true, "final": true, "enum": true,
	}
	for _, tok := range identifierRE.FindAllString(declLine, -1) {
		if !skip[tok] {
			return tok
		}
	}
	return ""
}

// chunkByLines splits content into fixed-size, overlapping line windows,
// used when no symbol pattern matched anything (or none exists for the
// language) — the teacher's CodeChunker.chunkByLines shape.
func (p *LineWindowParser) chunkByLines(content []byte) ([]ParsedChunk, error) {
	lines := strings.Split(string(content), "\n")

	lineStartByte := make([]int, len(lines)+1)
	offset := 0
	for i, l := range lines {
		lineStartByte[i] = offset
		offset += len(l) + 1
	}
	lineStartByte[len(lines)] = offset

	var chunks []ParsedChunk
	for i := 0; i < len(lines); {
		end := i + p.LinesPerChunk
		if end > len(lines) {
			end = len(lines)
		}

		startByte := lineStartByte[i]
		endByte := lineStartByte[end]
		if endByte > len(content) {
			endByte = len(content)
		}
		code := strings.TrimRight(string(content[startByte:endByte]), "\n")

		chunks = append(chunks, ParsedChunk{
			ChunkType: model.ChunkTypeBlock,
			StartLine: i + 1,
			EndLine:   end,
			StartByte: startByte,
			EndByte:   startByte + len(code),
			Code:      code,
		})

		if end >= len(lines) {
			break
		}
		i = end - p.OverlapLines
		if i <= 0 {
			i = end
		}
	}
	return chunks, nil
}
