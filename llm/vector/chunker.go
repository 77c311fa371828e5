package vector

import (
	"strings"
	"unicode/utf8"

	"contractlens/llm"

	"github.com/google/uuid"
)

// ChunkConfig configures how pages are split into chunks
type ChunkConfig struct {
	ChunkSize    int // Maximum chunk size in bytes
	ChunkOverlap int // Bytes shared between consecutive chunks of a page
}

// DefaultChunkConfig returns the default chunk configuration
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:    500,
		ChunkOverlap: 50,
	}
}

// Validate requires ChunkSize > ChunkOverlap >= 0
func (c ChunkConfig) Validate() error {
	if c.ChunkOverlap < 0 {
		return llm.InvalidConfig("chunk overlap must be >= 0, got %d", c.ChunkOverlap)
	}
	if c.ChunkSize <= c.ChunkOverlap {
		return llm.InvalidConfig("chunk size (%d) must be greater than overlap (%d)", c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// window is a half-open byte range of a page's text
type window struct {
	start, end int
}

// ChunkPages splits every non-blank page into overlapping windows.
// Metadata is copied into each chunk.
func ChunkPages(docID string, pages []llm.Page, config ChunkConfig, metadata map[string]interface{}) ([]llm.Chunk, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var chunks []llm.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}

		for _, w := range pageWindows(page.Text, config.ChunkSize, config.ChunkOverlap) {
			if w.end <= w.start {
				continue
			}
			meta := make(map[string]interface{}, len(metadata))
			for k, v := range metadata {
				meta[k] = v
			}
			chunks = append(chunks, llm.Chunk{
				ID:         uuid.New().String(),
				DocID:      docID,
				Text:       page.Text[w.start:w.end],
				PageNumber: page.PageNumber,
				Metadata:   meta,
			})
		}
	}

	return chunks, nil
}

// pageWindows walks a cursor over text. Each window is trimmed back to its
// last space unless it already reaches the end of the text. The cursor
// advances by len-overlap, or by max(1, len) when that is not positive.
func pageWindows(text string, size, overlap int) []window {
	var windows []window

	start := 0
	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			end = runeFloor(text, start, end)
			if lastSpace := strings.LastIndexByte(text[start:end], ' '); lastSpace != -1 {
				end = start + lastSpace
			}
		}

		windows = append(windows, window{start: start, end: end})

		length := end - start
		stride := length - overlap
		if stride <= 0 {
			stride = max(1, length)
		}
		start += stride

		// Keep the cursor on a rune boundary
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
	}

	return windows
}

// runeFloor moves end back to a rune boundary. If that would empty the
// window, it moves forward past the rune instead.
func runeFloor(text string, start, end int) int {
	e := end
	for e > start && !utf8.RuneStart(text[e]) {
		e--
	}
	if e > start {
		return e
	}
	_, width := utf8.DecodeRuneInString(text[start:])
	return start + width
}
