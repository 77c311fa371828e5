package vector

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"contractlens/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(chunks []llm.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestChunkConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ChunkConfig
		wantErr bool
	}{
		{"defaults", ChunkConfig{ChunkSize: 500, ChunkOverlap: 50}, false},
		{"zero overlap", ChunkConfig{ChunkSize: 10, ChunkOverlap: 0}, false},
		{"overlap equals size", ChunkConfig{ChunkSize: 10, ChunkOverlap: 10}, true},
		{"overlap exceeds size", ChunkConfig{ChunkSize: 10, ChunkOverlap: 20}, true},
		{"negative overlap", ChunkConfig{ChunkSize: 10, ChunkOverlap: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, llm.ErrInvalidConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestChunkPages_InvalidConfigFailsFast(t *testing.T) {
	pages := []llm.Page{{PageNumber: 1, Text: "some text"}}
	_, err := ChunkPages("doc", pages, ChunkConfig{ChunkSize: 5, ChunkOverlap: 5}, nil)
	assert.ErrorIs(t, err, llm.ErrInvalidConfig)
}

func TestChunkPages_TrimsToLastSpace(t *testing.T) {
	pages := []llm.Page{{PageNumber: 1, Text: "aaaa bbbb cccc"}}

	chunks, err := ChunkPages("doc-1", pages, ChunkConfig{ChunkSize: 10, ChunkOverlap: 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa bbbb", " cccc"}, texts(chunks))
}

func TestChunkPages_Overlap(t *testing.T) {
	pages := []llm.Page{{PageNumber: 1, Text: "aaaa bbbb cccc"}}

	chunks, err := ChunkPages("doc-1", pages, ChunkConfig{ChunkSize: 10, ChunkOverlap: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa bbbb", "bb cccc", "cc"}, texts(chunks))
}

func TestChunkPages_ShortPageIsOneChunk(t *testing.T) {
	pages := []llm.Page{{PageNumber: 3, Text: "Net 30 payment terms"}}

	chunks, err := ChunkPages("doc-1", pages, DefaultChunkConfig(), map[string]interface{}{"filename": "a.pdf"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Net 30 payment terms", chunks[0].Text)
	assert.Equal(t, 3, chunks[0].PageNumber)
	assert.Equal(t, "doc-1", chunks[0].DocID)
	assert.Equal(t, "a.pdf", chunks[0].Metadata["filename"])
}

func TestChunkPages_SkipsBlankPages(t *testing.T) {
	pages := []llm.Page{
		{PageNumber: 1, Text: "   \n\t "},
		{PageNumber: 2, Text: "content"},
		{PageNumber: 3, Text: ""},
	}

	chunks, err := ChunkPages("doc", pages, DefaultChunkConfig(), nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].PageNumber)
}

func TestChunkPages_UniqueIDsAndCopiedMetadata(t *testing.T) {
	pages := []llm.Page{{PageNumber: 1, Text: strings.Repeat("word ", 100)}}
	meta := map[string]interface{}{"filename": "c.txt", "type": "text"}

	chunks, err := ChunkPages("doc", pages, ChunkConfig{ChunkSize: 50, ChunkOverlap: 5}, meta)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	seen := map[string]bool{}
	for _, c := range chunks {
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}

	chunks[0].Metadata["filename"] = "changed"
	assert.Equal(t, "c.txt", chunks[1].Metadata["filename"])
	assert.Equal(t, "c.txt", meta["filename"])
}

func TestChunkPages_CoverageWithoutOverlap(t *testing.T) {
	text := strings.Repeat("The vendor shall invoice monthly. ", 40)
	pages := []llm.Page{{PageNumber: 1, Text: text}}

	chunks, err := ChunkPages("doc", pages, ChunkConfig{ChunkSize: 64, ChunkOverlap: 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, text, strings.Join(texts(chunks), ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 64)
	}
}

func TestPageWindows_CoverageWithOverlap(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 30)
	windows := pageWindows(text, 40, 10)

	require.NotEmpty(t, windows)
	assert.Equal(t, 0, windows[0].start)
	assert.Equal(t, len(text), windows[len(windows)-1].end)
	for i := 1; i < len(windows); i++ {
		assert.Greater(t, windows[i].start, windows[i-1].start, "cursor must advance")
		assert.LessOrEqual(t, windows[i].start, windows[i-1].end, "windows must not leave gaps")
	}
}

func TestPageWindows_NoSpacesTerminates(t *testing.T) {
	text := strings.Repeat("x", 1000)
	windows := pageWindows(text, 100, 99)

	assert.LessOrEqual(t, len(windows), len(text))
	assert.Equal(t, len(text), windows[len(windows)-1].end)
}

func TestPageWindows_LeadingSpaceAdvances(t *testing.T) {
	// The only space is at index 0 of the window, which empties it
	text := " " + strings.Repeat("y", 20)
	windows := pageWindows(text, 5, 0)

	require.NotEmpty(t, windows)
	assert.Equal(t, len(text), windows[len(windows)-1].end)
	assert.LessOrEqual(t, len(windows), len(text))
}

func TestChunkPages_MultibyteRunesStayValid(t *testing.T) {
	pages := []llm.Page{{PageNumber: 1, Text: "ééééé"}}

	chunks, err := ChunkPages("doc", pages, ChunkConfig{ChunkSize: 3, ChunkOverlap: 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"é", "é", "é", "é", "é"}, texts(chunks))
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text))
	}
}

func TestChunkPages_SizeSmallerThanRune(t *testing.T) {
	pages := []llm.Page{{PageNumber: 1, Text: "日本"}}

	chunks, err := ChunkPages("doc", pages, ChunkConfig{ChunkSize: 1, ChunkOverlap: 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"日", "本"}, texts(chunks))
}
