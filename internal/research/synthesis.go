package research

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
)

// aggregateFindings collects the unique chunks and file contents across
// every node of the BFS tree, deduplicating chunks by id and preferring the
// longest file content seen for a given path (a fuller read supersedes a
// partial one).
func aggregateFindings(nodes []*BFSNode) ([]Chunk, map[string]string) {
	seenChunks := make(map[int64]bool)
	var chunks []Chunk
	files := make(map[string]string)

	for _, n := range nodes {
		for _, c := range n.Chunks {
			if seenChunks[c.ChunkID] {
				continue
			}
			seenChunks[c.ChunkID] = true
			chunks = append(chunks, c)
		}
		for path, content := range n.FileContents {
			if existing, ok := files[path]; !ok || len(content) > len(existing) {
				files[path] = content
			}
		}
	}

	return chunks, files
}

const synthesisAvailableTokens = singlePassMaxTokens - singlePassOutputTokens - singlePassOverheadTokens

const maxSnippetChunksPerFile = 5

// manageSynthesisBudget fits the aggregated chunks/files into
// synthesisAvailableTokens, preferring full files for the highest-relevance
// files and falling back to per-file snippets (top chunks) when a full file
// would not fit (§4.G single-pass synthesis).
func manageSynthesisBudget(chunks []Chunk, files map[string]string, completer Completer) (map[string]string, BudgetInfo) {
	info := BudgetInfo{AvailableTokens: synthesisAvailableTokens}

	filePriority := make(map[string]float64)
	fileChunks := make(map[string][]Chunk)
	for _, c := range chunks {
		if c.FilePath == "" {
			continue
		}
		filePriority[c.FilePath] += c.RelevanceScore
		fileChunks[c.FilePath] = append(fileChunks[c.FilePath], c)
	}

	sortedFiles := make([]string, 0, len(filePriority))
	for f := range filePriority {
		sortedFiles = append(sortedFiles, f)
	}
	sort.Slice(sortedFiles, func(i, j int) bool { return filePriority[sortedFiles[i]] > filePriority[sortedFiles[j]] })

	tokensOf := estimateTokens
	if completer != nil {
		tokensOf = completer.EstimateTokens
	}

	budgeted := make(map[string]string)
	remaining := synthesisAvailableTokens

	for _, path := range sortedFiles {
		content, ok := files[path]
		if !ok {
			continue
		}

		contentTokens := tokensOf(content)
		if remaining-contentTokens >= 0 {
			budgeted[path] = content
			remaining -= contentTokens
			info.FilesIncludedFully++
			continue
		}

		if remaining <= 1000 {
			info.FilesExcluded++
			break
		}

		snippet := buildSnippet(fileChunks[path])
		snippetTokens := tokensOf(snippet)
		if snippetTokens <= remaining {
			budgeted[path] = snippet
			remaining -= snippetTokens
			info.FilesIncludedPartial++
			continue
		}

		maxChars := remaining * charsPerToken
		if maxChars > len(snippet) {
			maxChars = len(snippet)
		}
		budgeted[path] = snippet[:maxChars]
		info.FilesIncludedPartial++
		remaining = 0
		break
	}

	info.UsedTokens = synthesisAvailableTokens - remaining
	return budgeted, info
}

func buildSnippet(chunks []Chunk) string {
	if len(chunks) > maxSnippetChunksPerFile {
		chunks = chunks[:maxSnippetChunksPerFile]
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = "# Lines " + strconv.Itoa(c.StartLine) + "-" + strconv.Itoa(c.EndLine) + "\n" + c.Content
	}
	return strings.Join(parts, "\n\n")
}

const synthesisSystem = "You are a senior engineer synthesizing code research into a single cited answer. " +
	"Every claim must cite a file path and line number in the form path/to/file.ext:123. Be concrete, not theoretical."

func synthesisPrompt(query string, files map[string]string) string {
	var b strings.Builder
	b.WriteString("Research question: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer using only the code below. Cite every claim as file:line.\n\n")

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		b.WriteString("# ")
		b.WriteString(p)
		b.WriteString("\n")
		b.WriteString(files[p])
		b.WriteString("\n\n")
	}
	return b.String()
}

// synthesize makes the single LLM call over the budgeted files and returns
// its answer.
func (s *Service) synthesize(ctx context.Context, query string, files map[string]string, info BudgetInfo) (string, error) {
	if s.completer == nil {
		return "", cherrors.Config("deep_research requires an LLM completer", nil)
	}

	answer, err := s.completer.Complete(ctx, synthesisPrompt(query, files), synthesisSystem, singlePassOutputTokens)
	if err != nil {
		return "", cherrors.LLM("synthesis failed", err)
	}

	return filterVerbosity(answer), nil
}

var verbosityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)it'?s important to note that\s+`),
	regexp.MustCompile(`(?im)it'?s worth noting that\s+`),
	regexp.MustCompile(`(?im)it should be noted that\s+`),
	regexp.MustCompile(`(?im)however, it should be mentioned that\s+`),
	regexp.MustCompile(`(?im)please note that\s+`),
	regexp.MustCompile(`(?im)as mentioned (?:earlier|above|previously),?\s+`),
	regexp.MustCompile(`(?im)^no information (?:was )?found (?:for|about)[^\n]+\n`),
	regexp.MustCompile(`(?im)^unfortunately, the (?:code|analysis) does not (?:show|provide)[^\n]+\n`),
	regexp.MustCompile(`(?im)the (?:exact|precise|specific) (?:implementation|details?|mechanism|values?) (?:is|are) not (?:provided|documented|shown|clear|available) in the (?:code|analysis)[,.]?\s*`),
	regexp.MustCompile(`(?im)(?:more|additional) (?:research|investigation|analysis|context) (?:is|would be) (?:needed|required)[,.]?\s*`),
}

var excessiveNewlines = regexp.MustCompile(`\n{3,}`)

// filterVerbosity strips common LLM meta-hedging patterns from the
// synthesis output, as a safety net even with good prompting (§4.G
// post-processing).
func filterVerbosity(text string) string {
	filtered := text
	for _, p := range verbosityPatterns {
		filtered = p.ReplaceAllString(filtered, "")
	}
	return excessiveNewlines.ReplaceAllString(filtered, "\n\n")
}

var theoreticalPlaceholders = []string{
	"provide exact", "provide precise", "specify exact", "implementation-dependent",
	"precise line-level mappings", "exact numeric budgets", "provide the actual",
	"should specify", "need to determine", "requires clarification",
}

var citationPattern = regexp.MustCompile(`[\w/]+\.\w+:\d+(?:-\d+)?`)

var vagueQuantityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(several|many|few|some|various|multiple|numerous)\s+(seconds|minutes|items|entries|elements|chunks)`),
	regexp.MustCompile(`(?i)\b(around|approximately|roughly|about)\s+\d+`),
	regexp.MustCompile(`(?i)\bhundreds of\b`),
	regexp.MustCompile(`(?i)\bthousands of\b`),
}

// validateOutputQuality checks the answer for theoretical placeholders, low
// citation density, excessive length, and vague quantifiers, appending a
// warning (not an error) for each problem found (§4.G post-processing).
func validateOutputQuality(answer string, targetTokens int, completer Completer, warnings []string) (string, []string) {
	lower := strings.ToLower(answer)
	for _, pattern := range theoreticalPlaceholders {
		if strings.Contains(lower, pattern) {
			warnings = append(warnings, "output contains theoretical placeholder: '"+pattern+"'")
		}
	}

	tokensOf := estimateTokens
	if completer != nil {
		tokensOf = completer.EstimateTokens
	}
	answerTokens := tokensOf(answer)
	citationCount := len(citationPattern.FindAllString(answer, -1))

	if answerTokens > 1000 && citationCount < 5 {
		warnings = append(warnings, "low citation density: "+strconv.Itoa(citationCount)+" citations in "+strconv.Itoa(answerTokens)+" tokens")
	}

	if float64(answerTokens) > float64(targetTokens)*1.5 {
		warnings = append(warnings, "output is verbose: "+strconv.Itoa(answerTokens)+" tokens vs "+strconv.Itoa(targetTokens)+" target")
	}

	for _, p := range vagueQuantityPatterns {
		if m := p.FindString(answer); m != "" {
			warnings = append(warnings, "vague measurement detected: "+m)
			break
		}
	}

	return answer, warnings
}

// validateCitations appends a "Key files referenced" list when the answer
// has no file:line citations but chunks were analyzed (§4.G post-processing,
// REQUIRE_CITATIONS).
func validateCitations(answer string, chunks []Chunk) string {
	if !requireCitations {
		return answer
	}
	if citationPattern.MatchString(answer) || len(chunks) == 0 {
		return answer
	}

	keyFiles := make(map[string]bool)
	limit := len(chunks)
	if limit > 5 {
		limit = 5
	}
	var ordered []string
	for _, c := range chunks[:limit] {
		if c.FilePath == "" || c.StartLine == 0 {
			continue
		}
		ref := c.FilePath + ":" + strconv.Itoa(c.StartLine)
		if !keyFiles[ref] {
			keyFiles[ref] = true
			ordered = append(ordered, ref)
		}
	}
	if len(ordered) == 0 {
		return answer
	}

	sort.Strings(ordered)
	var b strings.Builder
	b.WriteString(answer)
	b.WriteString("\n\n**Key files referenced:**\n")
	for _, ref := range ordered {
		b.WriteString("- ")
		b.WriteString(ref)
		b.WriteString("\n")
	}
	return b.String()
}
