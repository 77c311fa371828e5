package parser

import (
	"context"
	"strings"
	"unicode/utf8"

	"contractlens/llm"
)

// TxtParser handles plain text files
type TxtParser struct{}

// NewTxtParser creates a new plain text parser
func NewTxtParser() *TxtParser {
	return &TxtParser{}
}

// ParsePages returns the whole file as a single page
func (p *TxtParser) ParsePages(ctx context.Context, filePath string) ([]llm.Page, error) {
	content, err := readText(filePath)
	if err != nil {
		return nil, err
	}
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "�")
	}
	return singlePage(content), nil
}

// FileTypes returns the file types this parser handles
func (p *TxtParser) FileTypes() []FileType {
	return []FileType{FileTypeTXT}
}
