package research

import (
	"context"
	"testing"

	"github.com/ofriw/chunkhound-sub000/internal/model"
)

type fakeStats struct {
	total int
	err   error
}

func (f *fakeStats) TotalChunks(ctx context.Context) (int, error) {
	return f.total, f.err
}

// scriptedCompleter returns canned responses keyed by a substring of the
// prompt, so a single fake can stand in for query expansion, follow-up
// generation/filtering, and synthesis within one DeepResearch run.
type scriptedCompleter struct {
	followupsOnce bool
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	switch {
	case system == queryExpansionSystem:
		return "alternate phrasing one\nalternate phrasing two", nil
	case system == followupSystem:
		if s.followupsOnce {
			return "", nil
		}
		s.followupsOnce = true
		return "1. What does the cache evict first?", nil
	case system == followupFilterSystem:
		return "1", nil
	case system == synthesisSystem:
		return "The widget is defined in widget.go:10.", nil
	default:
		return "", nil
	}
}

func (s *scriptedCompleter) EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

func TestDeepResearch_EmptyQueryRejected(t *testing.T) {
	svc := NewService(".", &fakeSearcher{}, &scriptedCompleter{}, nil, &fakeStats{total: 100})

	_, err := svc.DeepResearch(context.Background(), "")
	if err == nil {
		t.Fatal("expected an error for an empty query")
	}
}

func TestDeepResearch_NoLLMFailsAtSynthesis(t *testing.T) {
	searcher := &fakeSearcher{
		hasSemantic: true,
		semanticRows: map[string][]model.SearchRow{
			"what does the widget do": {{ChunkID: 1, FilePath: "widget.go", Symbol: "Widget", StartLine: 10, EndLine: 20, Content: "type Widget struct{}"}},
		},
	}

	svc := NewService(".", searcher, nil, nil, &fakeStats{total: 100})

	_, err := svc.DeepResearch(context.Background(), "what does the widget do")
	if err == nil {
		t.Fatal("expected synthesis to fail without a completer")
	}
}

func TestDeepResearch_RootNodeTerminatesWhenSearchFindsNothing(t *testing.T) {
	searcher := &fakeSearcher{hasSemantic: false}
	svc := NewService(".", searcher, &scriptedCompleter{}, nil, &fakeStats{total: 100})

	result, err := svc.DeepResearch(context.Background(), "a question with no matches")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Metadata.AggregationStats.TerminatedLeaves != 1 {
		t.Errorf("expected the root to terminate as a leaf, got stats %+v", result.Metadata.AggregationStats)
	}
	if result.Metadata.NodesExplored != 1 {
		t.Errorf("expected only the root explored, got %d", result.Metadata.NodesExplored)
	}
}

func TestDeepResearch_ProducesAnswerAndMetadata(t *testing.T) {
	searcher := &fakeSearcher{
		hasSemantic: true,
		semanticRows: map[string][]model.SearchRow{
			"what does the widget do": {{ChunkID: 1, FilePath: "widget.go", Symbol: "Widget", StartLine: 1, EndLine: 3, Content: "type Widget struct{}"}},
		},
		regexRows: map[string][]model.SearchRow{
			symbolSearchPattern("Widget"): {{ChunkID: 2, FilePath: "widget.go", Symbol: "Widget", StartLine: 1, EndLine: 3, Content: "type Widget struct{}"}},
		},
	}

	svc := NewService(".", searcher, &scriptedCompleter{}, nil, &fakeStats{total: 100})

	result, err := svc.DeepResearch(context.Background(), "what does the widget do")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer == "" {
		t.Fatal("expected a non-empty answer")
	}
	if result.Metadata.NodesExplored < 1 {
		t.Errorf("expected at least the root node explored, got %d", result.Metadata.NodesExplored)
	}
}

func TestSynthesizeLevelFollowups_BelowThresholdReturnsUnchanged(t *testing.T) {
	svc := NewService(".", &fakeSearcher{}, &scriptedCompleter{}, nil, nil)
	anchor := &BFSNode{Query: "root"}
	next := []*BFSNode{{Query: "q1", Parent: anchor}, {Query: "q2", Parent: anchor}}

	got := svc.synthesizeLevelFollowups(context.Background(), []*BFSNode{anchor}, next, "root")
	if len(got) != 2 {
		t.Fatalf("expected unchanged slice below the threshold, got %v", got)
	}
}

func TestSynthesizeLevelFollowups_MergesDownWhenOverThreshold(t *testing.T) {
	svc := NewService(".", &fakeSearcher{}, &scriptedCompleter{}, nil, nil)
	anchor := &BFSNode{Query: "root", Depth: 0}

	var next []*BFSNode
	for i := 0; i < 5; i++ {
		child := &BFSNode{Query: "candidate", Parent: anchor, Depth: 1}
		anchor.Children = append(anchor.Children, child)
		next = append(next, child)
	}
	level := []*BFSNode{anchor}

	got := svc.synthesizeLevelFollowups(context.Background(), level, next, "root")

	// scriptedCompleter's default branch returns "" for the synthesis
	// system prompt, so the fallback (clip to maxFollowupQuestions) applies.
	if len(got) > maxFollowupQuestions {
		t.Fatalf("expected at most %d follow-ups after synthesis/fallback, got %d", maxFollowupQuestions, len(got))
	}
}
