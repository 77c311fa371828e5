package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"contractlens/llm"
)

// FileType represents the type of document file
type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeDocx    FileType = "docx"
	FileTypeODT     FileType = "odt"
	FileTypeMD      FileType = "md"
	FileTypeHTML    FileType = "html"
	FileTypeTXT     FileType = "txt"
	FileTypeUnknown FileType = "unknown"
)

// Parser turns a file into pages of text
type Parser interface {
	// ParsePages reads the file and returns its pages in order. Page
	// numbers start at 1.
	ParsePages(ctx context.Context, filePath string) ([]llm.Page, error)

	// FileTypes returns the file types this parser handles
	FileTypes() []FileType
}

// Registry maps file types to parsers. The last parser registered for a
// type wins.
type Registry struct {
	byType map[FileType]Parser
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byType: make(map[FileType]Parser)}
}

// Register adds p for every file type it handles
func (r *Registry) Register(p Parser) {
	for _, ft := range p.FileTypes() {
		r.byType[ft] = p
	}
}

// Lookup returns the parser for a path's extension
func (r *Registry) Lookup(filePath string) (Parser, bool) {
	p, ok := r.byType[FileTypeFromPath(filePath)]
	return p, ok
}

// Supports reports whether a parser is registered for the file's extension
func (r *Registry) Supports(filePath string) bool {
	_, ok := r.Lookup(filePath)
	return ok
}

// Extensions returns the registered file types, sorted
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byType))
	for ft := range r.byType {
		exts = append(exts, ft.String())
	}
	sort.Strings(exts)
	return exts
}

// Parse reads filePath with the parser registered for its extension.
// Unregistered types return llm.ErrUnsupportedFile.
func (r *Registry) Parse(ctx context.Context, filePath string) ([]llm.Page, error) {
	name := filepath.Base(filePath)
	p, ok := r.Lookup(filePath)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, llm.ErrUnsupportedFile)
	}

	pages, err := p.ParsePages(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return pages, nil
}

// FileTypeFromPath returns the FileType for a path's extension
func FileTypeFromPath(filePath string) FileType {
	return FileTypeFromExt(strings.TrimPrefix(filepath.Ext(filePath), "."))
}

// FileTypeFromExt maps an extension, without the dot, to a FileType
func FileTypeFromExt(ext string) FileType {
	switch strings.ToLower(ext) {
	case "pdf":
		return FileTypePDF
	case "docx":
		return FileTypeDocx
	case "odt":
		return FileTypeODT
	case "md", "markdown":
		return FileTypeMD
	case "html", "htm":
		return FileTypeHTML
	case "txt":
		return FileTypeTXT
	default:
		return FileTypeUnknown
	}
}

// String returns the string representation of the FileType
func (ft FileType) String() string {
	return string(ft)
}

// DefaultRegistry handles pdf, docx, odt, md, html and txt
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(NewTabulaParser())
	reg.Register(NewTxtParser())
	reg.Register(NewMarkdownParser())
	reg.Register(NewHTMLParser())
	return reg
}

// readText reads a plain-text file whole
func readText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Base(filePath), err)
	}
	return string(data), nil
}

// singlePage wraps text as page 1
func singlePage(text string) []llm.Page {
	return []llm.Page{{PageNumber: 1, Text: text}}
}
