package research

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// charsPerToken mirrors internal/llm's token-estimation heuristic; the
// research engine has no tokenizer of its own and budgets in characters.
const charsPerToken = 4

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// readFile reads path relative to baseDir (or absolute, if it already is
// one) and splits it into lines, preserving line terminators' absence (each
// entry excludes the trailing newline).
func readFile(baseDir, path string) ([]string, string, error) {
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, "", err
	}
	content := string(data)
	lines := strings.Split(content, "\n")
	return lines, content, nil
}

// readFilesWithBudget reads the files referenced by chunks, preferring whole
// files when they fit the remaining budget and falling back to
// boundary-expanded chunk windows otherwise (§4.G step 7). chunks is mutated
// in place with ExpandedStart/ExpandedEnd. Files are visited in descending
// order of summed chunk relevance, so higher-value files get whole reads
// first.
func readFilesWithBudget(baseDir string, chunks []Chunk, budgetTokens int) map[string]string {
	fileChunks := make(map[string][]int) // file -> indices into chunks
	filePriority := make(map[string]float64)
	for i, c := range chunks {
		fileChunks[c.FilePath] = append(fileChunks[c.FilePath], i)
		filePriority[c.FilePath] += c.RelevanceScore
	}

	files := make([]string, 0, len(fileChunks))
	for f := range fileChunks {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return filePriority[files[i]] > filePriority[files[j]] })

	contents := make(map[string]string)
	remaining := budgetTokens

	for _, file := range files {
		if remaining <= 0 {
			break
		}
		lines, whole, err := readFile(baseDir, file)
		if err != nil {
			slog.Debug("research_file_read_failed", slog.String("file", file), slog.Any("error", err))
			continue
		}

		wholeTokens := estimateTokens(whole)
		if wholeTokens <= remaining {
			contents[file] = whole
			remaining -= wholeTokens
			for _, idx := range fileChunks[file] {
				chunks[idx].ExpandedStart = 1
				chunks[idx].ExpandedEnd = len(lines)
			}
			continue
		}

		windows := make([]string, 0, len(fileChunks[file]))
		for _, idx := range fileChunks[file] {
			c := &chunks[idx]
			start, end := expandToNaturalBoundaries(lines, c.StartLine, c.EndLine, *c, file)
			c.ExpandedStart, c.ExpandedEnd = start, end
			windows = append(windows, "# Lines "+strconv.Itoa(start)+"-"+strconv.Itoa(end)+"\n"+sliceLines(lines, start, end))
		}

		snippet := strings.Join(windows, partialReadSeparator)
		snippetTokens := estimateTokens(snippet)
		if snippetTokens <= remaining {
			contents[file] = snippet
			remaining -= snippetTokens
			continue
		}

		maxChars := remaining * charsPerToken
		if maxChars > len(snippet) {
			maxChars = len(snippet)
		}
		contents[file] = snippet[:maxChars]
		remaining = 0
	}

	return contents
}

func sliceLines(lines []string, start, end int) string {
	lo := start - 1
	if lo < 0 {
		lo = 0
	}
	hi := end
	if hi > len(lines) {
		hi = len(lines)
	}
	if lo >= hi {
		return ""
	}
	return strings.Join(lines[lo:hi], "\n")
}
