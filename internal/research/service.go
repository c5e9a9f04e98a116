package research

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
)

// StatsProvider reports the indexed corpus size used to pick the BFS depth
// limit (§4.G: "Max depth is picked from the database size").
type StatsProvider interface {
	TotalChunks(ctx context.Context) (int, error)
}

// Service runs the deep research engine: a BFS exploration of the index
// that expands a query into a tree of sub-queries and synthesizes a single
// cited answer once the tree stops producing new information.
type Service struct {
	baseDir   string
	searcher  Searcher
	completer Completer
	reranker  Reranker
	stats     StatsProvider
}

// NewService constructs a deep research engine. reranker may be nil, in
// which case symbol/chunk reranking is skipped and the raw search order is
// kept.
func NewService(baseDir string, searcher Searcher, completer Completer, reranker Reranker, stats StatsProvider) *Service {
	return &Service{baseDir: baseDir, searcher: searcher, completer: completer, reranker: reranker, stats: stats}
}

func (s *Service) allocateNodeID() string {
	return uuid.NewString()
}

// DeepResearch runs the full BFS-then-synthesize pipeline for query (§4.G
// contract).
func (s *Service) DeepResearch(ctx context.Context, query string) (Result, error) {
	if query == "" {
		return Result{}, cherrors.Config("deep_research requires a non-empty query", nil)
	}

	totalChunks := 0
	if s.stats != nil {
		if n, err := s.stats.TotalChunks(ctx); err == nil {
			totalChunks = n
		}
	}
	maxDepth := calculateMaxDepth(totalChunks)

	root := &BFSNode{Query: query, Depth: 0, NodeID: s.allocateNodeID()}
	root.Budgets = adaptiveBudgets(0, maxDepth, maxDepth == 0)

	level := []*BFSNode{root}
	allNodes := []*BFSNode{root}
	terminatedLeaves := 0

	for depth := 0; depth <= maxDepth && len(level) > 0; depth++ {
		g, gctx := errgroup.WithContext(ctx)
		for _, node := range level {
			node := node
			g.Go(func() error {
				s.exploreNode(gctx, node, query, maxDepth)
				return nil
			})
		}
		_ = g.Wait()

		var next []*BFSNode
		for _, node := range level {
			if node.IsTerminatedLeaf {
				terminatedLeaves++
				continue
			}
			next = append(next, node.Children...)
		}

		next = s.synthesizeLevelFollowups(ctx, level, next, query)
		allNodes = append(allNodes, next...)
		level = next
	}

	aggChunks, aggFiles := aggregateFindings(allNodes)
	budgetedFiles, budgetInfo := manageSynthesisBudget(aggChunks, aggFiles, s.completer)

	answer, err := s.synthesize(ctx, query, budgetedFiles, budgetInfo)
	if err != nil {
		return Result{}, err
	}

	targetTokens := singlePassOutputTokens
	var warnings []string
	answer, warnings = validateOutputQuality(answer, targetTokens, s.completer, warnings)
	answer = validateCitations(answer, aggChunks)

	return Result{
		Answer: answer,
		Metadata: Metadata{
			DepthReached:   maxDepth,
			NodesExplored:  len(allNodes),
			ChunksAnalyzed: len(aggChunks),
			AggregationStats: AggregationStats{
				UniqueChunks:     len(aggChunks),
				UniqueFiles:      len(aggFiles),
				TotalNodes:       len(allNodes),
				TerminatedLeaves: terminatedLeaves,
			},
			TokenBudget: budgetInfo,
		},
		Warnings: warnings,
	}, nil
}

// exploreNode runs §4.G's per-node procedure for a single node: search,
// dedup against ancestors, read files, and (if the node found anything new)
// generate and filter follow-up questions into child nodes.
func (s *Service) exploreNode(ctx context.Context, node *BFSNode, rootQuery string, maxDepth int) {
	chunks, err := runNodeSearch(ctx, s.searcher, s.completer, s.reranker, node, rootQuery)
	if err != nil {
		slog.Warn("research_node_search_failed", slog.String("query", node.Query), slog.Any("error", err))
		node.IsTerminatedLeaf = true
		return
	}

	newChunks, hasNew := detectNewInformation(node, chunks)
	if !hasNew {
		node.IsTerminatedLeaf = true
		return
	}

	node.Chunks = newChunks
	node.FileContents = readFilesWithBudget(s.baseDir, node.Chunks, node.Budgets.FileContentTokens)

	if node.Depth >= maxDepth {
		return
	}

	questions := s.generateFollowups(ctx, node, rootQuery)
	if len(questions) == 0 {
		node.IsTerminatedLeaf = true
		return
	}

	for _, q := range questions {
		child := &BFSNode{Query: q, Parent: node, Depth: node.Depth + 1, NodeID: s.allocateNodeID()}
		child.Budgets = adaptiveBudgets(child.Depth, maxDepth, child.Depth >= maxDepth)
		node.Children = append(node.Children, child)
	}
}

// generateFollowups asks the LLM for up to maxFollowupQuestions follow-up
// questions grounded in the node's loaded files, then filters them for
// architectural relevance (§4.G steps 9-10).
func (s *Service) generateFollowups(ctx context.Context, node *BFSNode, rootQuery string) []string {
	if s.completer == nil || len(node.FileContents) == 0 {
		return nil
	}

	resp, err := s.completer.Complete(ctx, followupPrompt(node.Query, node.FileContents), followupSystem, 1000)
	if err != nil {
		slog.Warn("research_followup_generation_failed", slog.String("query", node.Query), slog.Any("error", err))
		return nil
	}

	questions := parseNumberedList(resp)
	if len(questions) == 0 {
		return nil
	}

	return filterRelevantFollowups(ctx, s.completer, questions, rootQuery, node.Query)
}

const synthesizeFollowupsSystem = "You merge overlapping research questions into a focused set covering unexplored aspects."

func synthesizeFollowupsPrompt(rootQuery string, questions []string) string {
	var b strings.Builder
	b.WriteString("Root query: ")
	b.WriteString(rootQuery)
	b.WriteString("\n\nThe next research level produced these candidate questions:\n")
	for i, q := range questions {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(q)
		b.WriteString("\n")
	}
	b.WriteString("\nMerge them into at most ")
	b.WriteString(strconv.Itoa(maxFollowupQuestions))
	b.WriteString(" questions that explore unexplored aspects, one per line, no numbering.")
	return b.String()
}

// synthesizeLevelFollowups applies §4.G step 10: if a BFS level would
// produce more than maxFollowupQuestions follow-ups in total across all of
// that level's nodes, ask the LLM to synthesize them down to
// maxFollowupQuestions questions that explore unexplored aspects.
// Synthesized nodes start with no chunks or file contents and are reparented
// onto the first node in the level that produced children, since a
// synthesized question no longer belongs to a single parent.
func (s *Service) synthesizeLevelFollowups(ctx context.Context, level, next []*BFSNode, rootQuery string) []*BFSNode {
	if len(next) <= maxFollowupQuestions || s.completer == nil {
		return next
	}

	questions := make([]string, len(next))
	for i, n := range next {
		questions[i] = n.Query
	}

	var anchor *BFSNode
	for _, n := range level {
		if len(n.Children) > 0 {
			anchor = n
			break
		}
	}
	if anchor == nil {
		return clipNodes(next, maxFollowupQuestions)
	}

	prompt := synthesizeFollowupsPrompt(rootQuery, questions)
	resp, err := s.completer.Complete(ctx, prompt, synthesizeFollowupsSystem, 400)
	if err != nil {
		slog.Warn("research_followup_synthesis_failed", slog.Any("error", err))
		return clipNodes(next, maxFollowupQuestions)
	}

	merged := parsePlainLines(resp, maxFollowupQuestions)
	if len(merged) == 0 {
		return clipNodes(next, maxFollowupQuestions)
	}

	for _, n := range level {
		n.Children = nil
	}
	synthesized := make([]*BFSNode, 0, len(merged))
	for _, q := range merged {
		child := &BFSNode{Query: q, Parent: anchor, Depth: anchor.Depth + 1, NodeID: s.allocateNodeID()}
		anchor.Children = append(anchor.Children, child)
		synthesized = append(synthesized, child)
	}
	return synthesized
}

func clipNodes(nodes []*BFSNode, n int) []*BFSNode {
	if len(nodes) <= n {
		return nodes
	}
	return nodes[:n]
}
