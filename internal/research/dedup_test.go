package research

import "testing"

func TestIsChunkDuplicate_FileFullyReadByAncestor(t *testing.T) {
	data := ancestorData{filesFullyRead: map[string]bool{"a.go": true}}
	chunk := Chunk{FilePath: "a.go", ExpandedStart: 1, ExpandedEnd: 5}

	if !isChunkDuplicate(chunk, data) {
		t.Fatal("expected duplicate: file was fully read by an ancestor")
	}
}

func TestIsChunkDuplicate_FullyContainedRange(t *testing.T) {
	data := ancestorData{chunkRanges: map[string][]lineRange{"a.go": {{start: 10, end: 50}}}}
	chunk := Chunk{FilePath: "a.go", ExpandedStart: 20, ExpandedEnd: 30}

	if !isChunkDuplicate(chunk, data) {
		t.Fatal("expected duplicate: fully contained in ancestor range")
	}
}

func TestIsChunkDuplicate_PartialOverlapIsNotDuplicate(t *testing.T) {
	data := ancestorData{chunkRanges: map[string][]lineRange{"a.go": {{start: 10, end: 25}}}}
	chunk := Chunk{FilePath: "a.go", ExpandedStart: 20, ExpandedEnd: 30}

	if isChunkDuplicate(chunk, data) {
		t.Fatal("partial overlap must not count as a duplicate")
	}
}

func TestIsChunkDuplicate_DifferentFileIsNotDuplicate(t *testing.T) {
	data := ancestorData{chunkRanges: map[string][]lineRange{"a.go": {{start: 1, end: 100}}}}
	chunk := Chunk{FilePath: "b.go", ExpandedStart: 1, ExpandedEnd: 10}

	if isChunkDuplicate(chunk, data) {
		t.Fatal("a range in a different file must not mark this chunk duplicate")
	}
}

func TestCollectAncestorData_WalksParentChainOnly(t *testing.T) {
	grandparent := &BFSNode{
		FileContents: map[string]string{"full.go": "whole file, no separator"},
		Chunks:       []Chunk{{FilePath: "full.go", ExpandedStart: 1, ExpandedEnd: 10}},
	}
	parent := &BFSNode{
		Parent:       grandparent,
		FileContents: map[string]string{"partial.go": "chunk one" + partialReadSeparator + "chunk two"},
		Chunks:       []Chunk{{FilePath: "partial.go", ExpandedStart: 5, ExpandedEnd: 15}},
	}
	node := &BFSNode{Parent: parent}

	data := collectAncestorData(node)

	if !data.filesFullyRead["full.go"] {
		t.Error("full.go should be marked fully read (no separator)")
	}
	if data.filesFullyRead["partial.go"] {
		t.Error("partial.go should not be marked fully read (has separator)")
	}
	if len(data.chunkRanges["full.go"]) != 1 || len(data.chunkRanges["partial.go"]) != 1 {
		t.Errorf("expected one range per file, got %v", data.chunkRanges)
	}
}

func TestDetectNewInformation_SplitsNewFromDuplicate(t *testing.T) {
	parent := &BFSNode{
		FileContents: map[string]string{"a.go": "whole file"},
	}
	node := &BFSNode{Parent: parent}

	chunks := []Chunk{
		{FilePath: "a.go", ExpandedStart: 1, ExpandedEnd: 5},    // duplicate: a.go fully read by parent
		{FilePath: "b.go", ExpandedStart: 1, ExpandedEnd: 5},    // new
	}

	newChunks, hasNew := detectNewInformation(node, chunks)

	if !hasNew {
		t.Fatal("expected hasNew=true")
	}
	if len(newChunks) != 1 || newChunks[0].FilePath != "b.go" {
		t.Fatalf("expected only b.go to survive, got %v", newChunks)
	}
	if node.NewChunkCount != 1 || node.DuplicateChunkCount != 1 {
		t.Errorf("NewChunkCount=%d DuplicateChunkCount=%d, want 1,1", node.NewChunkCount, node.DuplicateChunkCount)
	}
}

func TestDetectNewInformation_AllDuplicateTerminatesNode(t *testing.T) {
	parent := &BFSNode{FileContents: map[string]string{"a.go": "whole file"}}
	node := &BFSNode{Parent: parent}

	chunks := []Chunk{{FilePath: "a.go", ExpandedStart: 1, ExpandedEnd: 5}}

	_, hasNew := detectNewInformation(node, chunks)

	if hasNew {
		t.Fatal("expected hasNew=false when every chunk is a duplicate")
	}
}
