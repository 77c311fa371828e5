package parser

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyPDF is a well-formed PDF whose page tree has no kids
const emptyPDF = `%PDF-1.4
1 0 obj
<< /Type /Catalog /Pages 2 0 R >>
endobj
2 0 obj
<< /Type /Pages /Kids [] /Count 0 >>
endobj
xref
0 3
0000000000 65535 f
0000000009 00000 n
0000000058 00000 n
trailer
<< /Size 3 /Root 1 0 R >>
startxref
110
%%EOF`

func TestTabulaParser_EmptyPDF(t *testing.T) {
	path := writeFile(t, "blank.pdf", emptyPDF)

	pages, err := DefaultRegistry().Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestTabulaParser_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"missing pdf":  filepath.Join(dir, "nope.pdf"),
		"corrupt pdf":  writeFile(t, "broken.pdf", "this is not a pdf"),
		"corrupt docx": writeFile(t, "broken.docx", "this is not a zip archive"),
		"missing odt":  filepath.Join(dir, "nope.odt"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewTabulaParser().ParsePages(context.Background(), path)
			assert.Error(t, err)
		})
	}
}

func TestTabulaParser_Cancelled(t *testing.T) {
	path := writeFile(t, "blank.pdf", emptyPDF)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTabulaParser().ParsePages(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTabulaParser_FileTypes(t *testing.T) {
	reg := DefaultRegistry()
	for _, name := range []string{"a.pdf", "b.docx", "c.odt"} {
		p, ok := reg.Lookup(name)
		require.True(t, ok, name)
		assert.IsType(t, &TabulaParser{}, p, name)
	}
}
