package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/layout"
	"github.com/tsawler/tabula/reader"

	"contractlens/llm"
)

// TabulaParser handles PDF, DOCX and ODT files through tabula. PDFs yield
// one page per PDF page; word-processor documents yield a single page.
type TabulaParser struct {
	logger *slog.Logger
}

// NewTabulaParser creates a new tabula-backed parser
func NewTabulaParser() *TabulaParser {
	return &TabulaParser{logger: slog.Default()}
}

// ParsePages extracts text page by page
func (p *TabulaParser) ParsePages(ctx context.Context, filePath string) ([]llm.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if FileTypeFromPath(filePath) != FileTypePDF {
		return p.parseDocument(filePath)
	}

	r, err := reader.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer r.Close()

	count, err := r.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}

	detector := layout.NewLineDetector()
	pages := make([]llm.Page, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := pageText(r, detector, i)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i+1, err)
		}
		pages = append(pages, llm.Page{PageNumber: i + 1, Text: text})
	}

	return pages, nil
}

func (p *TabulaParser) parseDocument(filePath string) ([]llm.Page, error) {
	ext := tabula.Open(filePath)
	defer ext.Close()

	text, warnings, err := ext.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	if len(warnings) > 0 {
		p.logger.Warn("parse.tabula.warnings", "file", filePath, "warnings", tabula.FormatWarnings(warnings))
	}
	return singlePage(text), nil
}

// pageText assembles the index-th (0-based) page into lines, top to bottom
func pageText(r *reader.Reader, detector *layout.LineDetector, index int) (string, error) {
	page, err := r.GetPage(index)
	if err != nil {
		return "", err
	}
	fragments, err := r.ExtractTextFragments(page)
	if err != nil {
		return "", err
	}
	width, _ := page.Width()
	height, _ := page.Height()

	lines := detector.Detect(fragments, width, height).Lines
	texts := make([]string, 0, len(lines))
	for _, l := range lines {
		texts = append(texts, l.Text)
	}
	return strings.Join(texts, "\n"), nil
}

// FileTypes returns the file types this parser handles
func (p *TabulaParser) FileTypes() []FileType {
	return []FileType{FileTypePDF, FileTypeDocx, FileTypeODT}
}
