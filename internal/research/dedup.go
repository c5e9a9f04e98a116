package research

// lineRange is an inclusive, 1-indexed [start, end] line span.
type lineRange struct {
	start, end int
}

func (r lineRange) contains(other lineRange) bool {
	return other.start >= r.start && other.end <= r.end
}

// ancestorData is the union of a node's strict-ancestor fully-read files and
// expanded chunk ranges, used to decide whether a new chunk is a duplicate.
type ancestorData struct {
	filesFullyRead map[string]bool
	chunkRanges    map[string][]lineRange
}

// collectAncestorData walks node's parent chain, accumulating fully-read
// files and expanded chunk ranges from every ancestor.
func collectAncestorData(node *BFSNode) ancestorData {
	data := ancestorData{
		filesFullyRead: make(map[string]bool),
		chunkRanges:    make(map[string][]lineRange),
	}

	for current := node.Parent; current != nil; current = current.Parent {
		for filePath, content := range current.FileContents {
			if isFileFullyRead(content) {
				data.filesFullyRead[filePath] = true
			}
		}
		for _, chunk := range current.Chunks {
			if chunk.FilePath == "" {
				continue
			}
			data.chunkRanges[chunk.FilePath] = append(data.chunkRanges[chunk.FilePath], lineRange{
				start: chunk.ExpandedStart,
				end:   chunk.ExpandedEnd,
			})
		}
	}

	return data
}

// isChunkDuplicate reports whether chunk's expanded range is a 100% duplicate
// of something a strict ancestor already read: either its file was fully
// read by an ancestor, or its expanded range is wholly contained in an
// ancestor chunk's expanded range. Partial overlaps are new information.
func isChunkDuplicate(chunk Chunk, data ancestorData) bool {
	if chunk.FilePath == "" {
		return false
	}
	if data.filesFullyRead[chunk.FilePath] {
		return true
	}

	candidate := lineRange{start: chunk.ExpandedStart, end: chunk.ExpandedEnd}
	for _, ancestorRange := range data.chunkRanges[chunk.FilePath] {
		if ancestorRange.contains(candidate) {
			return true
		}
	}
	return false
}

// detectNewInformation splits chunks into genuinely new ones (counted
// against node.NewChunkCount) and duplicates (node.DuplicateChunkCount),
// and reports whether the node found anything new.
func detectNewInformation(node *BFSNode, chunks []Chunk) (newChunks []Chunk, hasNew bool) {
	data := collectAncestorData(node)

	for _, chunk := range chunks {
		if isChunkDuplicate(chunk, data) {
			node.DuplicateChunkCount++
			continue
		}
		node.NewChunkCount++
		newChunks = append(newChunks, chunk)
	}

	return newChunks, len(newChunks) > 0
}
