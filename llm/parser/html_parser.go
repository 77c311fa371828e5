package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"contractlens/llm"
)

var blankRuns = regexp.MustCompile(`\n\s*\n\s*\n+`)

// HTMLParser handles HTML files. Script and style elements are dropped and
// the body is converted to markdown so headings and lists survive.
type HTMLParser struct {
	converter *md.Converter
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		converter: md.NewConverter("", true, nil),
	}
}

// ParsePages returns the document as a single page
func (p *HTMLParser) ParsePages(ctx context.Context, filePath string) ([]llm.Page, error) {
	content, err := readText(filePath)
	if err != nil {
		return nil, err
	}

	text, err := p.toText(content)
	if err != nil {
		return nil, err
	}
	return singlePage(text), nil
}

func (p *HTMLParser) toText(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript, head").Remove()

	body, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		body, err = doc.Html()
		if err != nil {
			return "", fmt.Errorf("failed to render HTML: %w", err)
		}
	}

	markdown, err := p.converter.ConvertString(body)
	if err != nil {
		// Fall back to plain text
		return strings.TrimSpace(doc.Text()), nil
	}

	markdown = blankRuns.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown), nil
}

// FileTypes returns the file types this parser handles
func (p *HTMLParser) FileTypes() []FileType {
	return []FileType{FileTypeHTML}
}
