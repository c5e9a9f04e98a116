// Package research implements the deep research engine (§4.G): a BFS
// exploration of the index that expands a query into a tree of sub-queries,
// reads the code each sub-query touches, and synthesizes a single cited
// answer once the tree stops producing new information.
package research

import (
	"strings"

	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// Tunables, grounded on the BFS research engine's constant block.
const (
	relevanceThreshold     = 0.5
	maxFollowupQuestions   = 3
	maxSymbolsToSearch     = 5
	numExpandedQueries     = 3

	fileContentTokensMin = 10_000
	fileContentTokensMax = 50_000

	llmInputTokensMin = 15_000
	llmInputTokensMax = 60_000

	leafAnswerTokensBase  = 18_000
	leafAnswerTokensBonus = 3_000

	internalRootTarget = 11_000
	internalMaxTokens  = 19_000

	singlePassMaxTokens     = 150_000
	singlePassOutputTokens  = 30_000
	singlePassOverheadTokens = 5_000

	maxBoundaryExpansionLines = 300

	requireCitations = true
)

// Chunk is a candidate code unit carried through BFS: a search.Result row
// enriched with the relevance score it was found or reranked at, and the
// boundary-expanded line range it was read at.
type Chunk struct {
	ChunkID         int64
	FilePath        string
	Symbol          string
	ChunkType       model.ChunkType
	Content         string
	StartLine       int
	EndLine         int
	ExpandedStart   int
	ExpandedEnd     int
	RelevanceScore  float64
}

// isCompleteUnit reports whether c's chunk type is already a self-contained
// syntactic unit, per the smart-boundary-expansion rule.
func (c Chunk) isCompleteUnit() bool {
	switch c.ChunkType {
	case model.ChunkTypeFunction, model.ChunkTypeMethod, model.ChunkTypeClass:
		return true
	default:
		return false
	}
}

// BFSNode is one node of the research tree.
type BFSNode struct {
	Query    string
	Parent   *BFSNode
	Depth    int
	Children []*BFSNode

	Chunks       []Chunk
	FileContents map[string]string // full file content, or "...": partial chunk windows joined by separators

	Answer             string
	NodeID             string
	UnansweredAspects  []string
	Budgets            NodeBudgets
	IsTerminatedLeaf   bool
	NewChunkCount      int
	DuplicateChunkCount int
}

// partialReadSeparator joins non-contiguous chunk windows read from the same
// file; its presence marks the file as partially, not fully, read.
const partialReadSeparator = "\n\n...\n\n"

// isFileFullyRead detects whether content is the whole file or an assembly
// of partial chunk windows (joined by partialReadSeparator).
func isFileFullyRead(content string) bool {
	return !strings.Contains(content, partialReadSeparator)
}

// ancestorQueries returns the queries of node's ancestors, ordered from the
// root down to (but excluding) node itself.
func ancestorQueries(node *BFSNode) []string {
	var reversed []string
	for current := node.Parent; current != nil; current = current.Parent {
		reversed = append(reversed, current.Query)
	}
	out := make([]string, len(reversed))
	for i, q := range reversed {
		out[len(reversed)-1-i] = q
	}
	return out
}

// NodeBudgets holds the adaptive per-node token budgets computed from depth.
type NodeBudgets struct {
	FileContentTokens int
	LLMInputTokens    int
	AnswerTokens      int
}

// Metadata is returned alongside the synthesized answer.
type Metadata struct {
	DepthReached     int
	NodesExplored    int
	ChunksAnalyzed   int
	AggregationStats AggregationStats
	TokenBudget      BudgetInfo
}

// AggregationStats summarizes the unique chunks/files collected across the
// whole tree, before token-budget trimming for synthesis.
type AggregationStats struct {
	UniqueChunks int
	UniqueFiles  int
	TotalNodes   int
	TerminatedLeaves int
}

// BudgetInfo reports how the single-pass synthesis budget was spent.
type BudgetInfo struct {
	AvailableTokens       int
	UsedTokens            int
	FilesIncludedFully    int
	FilesIncludedPartial  int
	FilesExcluded         int
}

// Result is the top-level deep_research output (§4.G contract).
type Result struct {
	Answer   string
	Metadata Metadata
	Warnings []string
}
