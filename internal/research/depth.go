package research

import "math"

// calculateMaxDepth picks the BFS depth limit from the indexed corpus size,
// estimating LOC as chunks*20 (a chunk is rarely more than a couple dozen
// lines in this language mix).
func calculateMaxDepth(totalChunks int) int {
	estimatedLOC := float64(totalChunks * 20)

	switch {
	case estimatedLOC < 100_000:
		return 3
	case estimatedLOC < 1_000_000:
		return 4
	case estimatedLOC < 10_000_000:
		return 5
	default:
		return 3 + int(math.Ceil(math.Log10(estimatedLOC)-5))
	}
}

// adaptiveBudgets linearly interpolates per-node token budgets over the
// depth ratio depth/max(maxDepth,1).
func adaptiveBudgets(depth, maxDepth int, isLeaf bool) NodeBudgets {
	denom := maxDepth
	if denom < 1 {
		denom = 1
	}
	r := float64(depth) / float64(denom)

	budgets := NodeBudgets{
		FileContentTokens: fileContentTokensMin + int(float64(fileContentTokensMax-fileContentTokensMin)*r),
		LLMInputTokens:    llmInputTokensMin + int(float64(llmInputTokensMax-llmInputTokensMin)*r),
	}

	if isLeaf {
		budgets.AnswerTokens = leafAnswerTokensBase + int(float64(leafAnswerTokensBonus)*r)
	} else {
		budgets.AnswerTokens = internalRootTarget + int(float64(internalMaxTokens-internalRootTarget)*r)
	}

	return budgets
}
