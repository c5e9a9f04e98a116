package research

import (
	"strings"
)

var braceLanguageExtensions = map[string]bool{
	".c": true, ".cpp": true, ".cc": true, ".cxx": true, ".h": true, ".hpp": true,
	".rs": true, ".go": true, ".java": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".cs": true, ".swift": true, ".kt": true, ".scala": true,
}

func isPythonFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".py") || strings.HasSuffix(lower, ".pyw")
}

func isBraceLanguageFile(path string) bool {
	lower := strings.ToLower(path)
	for ext := range braceLanguageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// expandToNaturalBoundaries expands a chunk's [startLine, endLine] (1-indexed,
// inclusive) to the nearest enclosing function/class boundary instead of a
// fixed-size window, per §4.G's smart boundary expansion rule. lines is the
// file split on newlines, 0-indexed.
func expandToNaturalBoundaries(lines []string, startLine, endLine int, chunk Chunk, filePath string) (int, int) {
	if chunk.isCompleteUnit() {
		const padding = 3
		start := max(1, startLine-padding)
		end := min(len(lines), endLine+padding)
		return start, end
	}

	startIdx := max(0, startLine-1)
	endIdx := min(len(lines)-1, endLine-1)
	if startIdx > endIdx || len(lines) == 0 {
		return startLine, endLine
	}

	isPython := isPythonFile(filePath)
	isBrace := isBraceLanguageFile(filePath)

	expandedStart := startIdx
	switch {
	case isPython:
		expandedStart = expandPythonStart(lines, startIdx)
	case isBrace:
		expandedStart = expandBraceStart(lines, startIdx)
	}

	expandedEnd := endIdx
	switch {
	case isPython:
		expandedEnd = expandPythonEnd(lines, expandedStart, endIdx)
	case isBrace:
		expandedEnd = expandBraceEnd(lines, expandedStart, endIdx)
	}

	if expandedEnd-expandedStart > maxBoundaryExpansionLines {
		expandedEnd = expandedStart + maxBoundaryExpansionLines
	}

	return expandedStart + 1, expandedEnd + 1
}

func expandPythonStart(lines []string, startIdx int) int {
	limit := max(0, startIdx-200)
	for i := startIdx - 1; i > limit; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "def ") || strings.HasPrefix(line, "class ") || strings.HasPrefix(line, "async def ") {
			return i
		}
		if line == "" && i > 0 && i+1 < len(lines) {
			next := strings.TrimLeft(lines[i+1], " \t")
			if next != "" && !strings.HasPrefix(lines[i+1], " ") && !strings.HasPrefix(lines[i+1], "\t") {
				break
			}
		}
	}
	return startIdx
}

func expandPythonEnd(lines []string, expandedStart, endIdx int) int {
	if expandedStart >= len(lines) {
		return endIdx
	}
	startIndent := indentWidth(lines[expandedStart])
	limit := min(len(lines), endIdx+200)
	for i := endIdx + 1; i < limit; i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if indentWidth(line) <= startIndent {
			return i - 1
		}
	}
	return min(len(lines)-1, endIdx+50)
}

func indentWidth(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

func expandBraceStart(lines []string, startIdx int) int {
	limit := max(0, startIdx-200)
	braceDepth := 0
	for i := startIdx; i > limit; i-- {
		line := lines[i]
		braceDepth += strings.Count(line, "}") - strings.Count(line, "{")
		if braceDepth > 0 && strings.Contains(line, "{") {
			sigLimit := max(0, i-10)
			for j := i; j > sigLimit; j-- {
				sig := strings.TrimSpace(lines[j])
				if strings.Contains(sig, "(") && (strings.Contains(sig, ")") || j < i) {
					return j
				}
			}
			// No signature found in this window; keep walking further back.
		}
	}
	return startIdx
}

func expandBraceEnd(lines []string, expandedStart, endIdx int) int {
	braceDepth := 0
	limit := min(len(lines), endIdx+200)
	for i := expandedStart; i < limit; i++ {
		line := lines[i]
		braceDepth += strings.Count(line, "{") - strings.Count(line, "}")
		if braceDepth == 0 && i > expandedStart && strings.Contains(line, "}") {
			return i
		}
	}
	return endIdx
}
