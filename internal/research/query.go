package research

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// Completer is the subset of llm.Completer the research engine depends on.
type Completer interface {
	Complete(ctx context.Context, prompt, system string, maxTokens int) (string, error)
	EstimateTokens(text string) int
}

// buildSearchQuery puts the node's own query first and appends at most the
// last two ancestor queries as minimal context, since embedding models
// weight the head of the input most heavily (§4.G step 1). The root node
// searches on its bare query.
func buildSearchQuery(nodeQuery string, ancestors []string) string {
	if len(ancestors) == 0 {
		return nodeQuery
	}

	tail := ancestors
	if len(tail) > 2 {
		tail = tail[len(tail)-2:]
	}

	return nodeQuery + "\n\nContext: " + strings.Join(tail, " > ")
}

// rerankContext concatenates the root query, ancestor path and node query
// into the context string used for reranking symbol lists and result unions
// (§4.G steps 4 and 6).
func rerankContext(rootQuery string, ancestors []string, nodeQuery string) string {
	parts := append(append([]string{rootQuery}, ancestors...), nodeQuery)
	return strings.Join(parts, " > ")
}

var pronounSymbols = map[string]bool{"self": true, "this": true, "cls": true}

var isAllDigits = regexp.MustCompile(`^[0-9]+$`)

// extractSymbols pulls distinct, non-trivial identifiers out of a set of
// candidate symbols (§4.G step 3), dropping single characters, pure digit
// strings, and common receiver pronouns.
func extractSymbols(rawSymbols []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range rawSymbols {
		s = strings.TrimSpace(s)
		if len(s) <= 1 {
			continue
		}
		if isAllDigits.MatchString(s) {
			continue
		}
		if pronounSymbols[strings.ToLower(s)] {
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// symbolSearchPattern builds the word-bounded regex pattern used to search
// for a single extracted symbol (§4.G step 5).
func symbolSearchPattern(symbol string) string {
	return `\b` + regexp.QuoteMeta(symbol) + `\b`
}

const queryExpansionSystem = "You generate diverse search query reformulations for a code search engine."

func queryExpansionPrompt(query string, n int) string {
	return "Generate " + strconv.Itoa(n-1) + " alternative phrasings of this code search query, " +
		"each adding code-specific terminology or hypothetical structure the original might miss. " +
		"Return one per line, no numbering.\n\nQuery: " + query
}

// expandQueries asks the LLM for n-1 diverse reformulations of query and
// returns them alongside the verbatim original as element 0 (§4.G step 2:
// "first variant must be verbatim"). On any completer failure it falls back
// to just the original query.
func expandQueries(ctx context.Context, completer Completer, query string, n int) []string {
	if completer == nil || n <= 1 {
		return []string{query}
	}

	resp, err := completer.Complete(ctx, queryExpansionPrompt(query, n), queryExpansionSystem, 500)
	if err != nil {
		return []string{query}
	}

	variants := []string{query}
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		variants = append(variants, line)
		if len(variants) >= n {
			break
		}
	}
	return variants
}

const followupSystem = "You generate follow-up research questions grounded strictly in the code shown."

func followupPrompt(nodeQuery string, fileContents map[string]string) string {
	var b strings.Builder
	b.WriteString("Question under investigation: ")
	b.WriteString(nodeQuery)
	b.WriteString("\n\nBased only on the code below, list up to ")
	b.WriteString(strconv.Itoa(maxFollowupQuestions))
	b.WriteString(" follow-up questions as a numbered list. If none are warranted, return an empty response.\n\n")
	for path, content := range fileContents {
		b.WriteString("# ")
		b.WriteString(path)
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return b.String()
}

var numberedListItem = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// parseNumberedList extracts each "N. question" or "N) question" line from
// an LLM response.
func parseNumberedList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if m := numberedListItem.FindStringSubmatch(line); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	return out
}

const followupFilterSystem = "You are filtering research questions for architectural relevance."

func followupFilterPrompt(questions []string, rootQuery, currentQuery string) string {
	var b strings.Builder
	b.WriteString("Root Query: ")
	b.WriteString(rootQuery)
	b.WriteString("\nCurrent Question: ")
	b.WriteString(currentQuery)
	b.WriteString("\n\nCandidate Follow-ups:\n")
	for i, q := range questions {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(q)
		b.WriteString("\n")
	}
	b.WriteString("\nSelect the questions that deepen understanding of the root query without drifting into tangents. ")
	b.WriteString("Return ONLY the question numbers, comma-separated (e.g. \"1,3\"). Maximum ")
	b.WriteString(strconv.Itoa(maxFollowupQuestions))
	b.WriteString(" questions.")
	return b.String()
}

var listIndex = regexp.MustCompile(`\d+`)

// filterRelevantFollowups selects the architecturally-relevant follow-ups
// via a second LLM call (§4.G step 9). On any failure it falls back to the
// first maxFollowupQuestions candidates.
func filterRelevantFollowups(ctx context.Context, completer Completer, questions []string, rootQuery, currentQuery string) []string {
	if len(questions) <= 1 {
		return questions
	}
	if completer == nil {
		return clip(questions, maxFollowupQuestions)
	}

	resp, err := completer.Complete(ctx, followupFilterPrompt(questions, rootQuery, currentQuery), followupFilterSystem, 200)
	if err != nil {
		return clip(questions, maxFollowupQuestions)
	}

	var filtered []string
	for _, numStr := range listIndex.FindAllString(resp, -1) {
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		idx := n - 1
		if idx >= 0 && idx < len(questions) {
			filtered = append(filtered, questions[idx])
		}
	}
	if len(filtered) == 0 {
		return clip(questions, maxFollowupQuestions)
	}
	return clip(filtered, maxFollowupQuestions)
}

func clip(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// parsePlainLines splits a response into non-empty, un-numbered lines,
// keeping at most n.
func parsePlainLines(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) >= n {
			break
		}
	}
	return out
}
