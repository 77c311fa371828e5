package parser

import (
	"context"
	"regexp"
	"strings"

	"contractlens/llm"
)

var (
	mdHeading    = regexp.MustCompile(`(?m)^#+\s+(.*)$`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^\)]+\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	mdEmphasis   = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	mdCodeFence  = regexp.MustCompile("(?m)^```.*$")
	mdListMarker = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)
)

// MarkdownParser handles markdown files
type MarkdownParser struct{}

// NewMarkdownParser creates a new markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// ParsePages returns the document as a single page with markup stripped
func (p *MarkdownParser) ParsePages(ctx context.Context, filePath string) ([]llm.Page, error) {
	content, err := readText(filePath)
	if err != nil {
		return nil, err
	}
	return singlePage(cleanMarkdown(removeFrontmatter(content))), nil
}

// FileTypes returns the file types this parser handles
func (p *MarkdownParser) FileTypes() []FileType {
	return []FileType{FileTypeMD}
}

// removeFrontmatter removes YAML frontmatter from content
func removeFrontmatter(content string) string {
	if !hasFrontmatter(content) {
		return content
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return content
}

// hasFrontmatter checks if content has YAML frontmatter
func hasFrontmatter(content string) bool {
	lines := strings.Split(content, "\n")
	return len(lines) >= 2 && strings.TrimSpace(lines[0]) == "---"
}

// cleanMarkdown keeps the text of headings, links and emphasis and drops
// the markup. Underscores inside words are left alone.
func cleanMarkdown(content string) string {
	content = mdCodeFence.ReplaceAllString(content, "")
	content = mdHeading.ReplaceAllString(content, "$1")
	content = mdImage.ReplaceAllString(content, "$1")
	content = mdLink.ReplaceAllString(content, "$1")
	content = mdEmphasis.ReplaceAllString(content, "$2")
	content = mdListMarker.ReplaceAllString(content, "")

	lines := strings.Split(content, "\n")
	var cleanLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "<") { // Skip HTML tags
			cleanLines = append(cleanLines, line)
		}
	}

	return strings.Join(cleanLines, "\n")
}
