package pages

// Chunk partitions the logical page sequence into contiguous chunks of at
// most size pages, preserving order. A size <= 0 or >= len(pgs) yields a
// single chunk.
func Chunk(pgs []Page, size int) [][]Page {
	if len(pgs) == 0 {
		return nil
	}
	if size <= 0 || size >= len(pgs) {
		return [][]Page{pgs}
	}
	chunks := make([][]Page, 0, (len(pgs)+size-1)/size)
	for start := 0; start < len(pgs); start += size {
		end := start + size
		if end > len(pgs) {
			end = len(pgs)
		}
		chunks = append(chunks, pgs[start:end])
	}
	return chunks
}

// ChunkIndexForPage returns the index of the chunk containing the given
// logical page number (-1 when out of range).
func ChunkIndexForPage(chunks [][]Page, logical int) int {
	for i, chunk := range chunks {
		for _, p := range chunk {
			if p.Number == logical {
				return i
			}
		}
	}
	return -1
}
