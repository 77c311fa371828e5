package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"contractlens/llm"
	"contractlens/storage"
)

// severityOrder 徽章的显示顺序
var severityOrder = []llm.Severity{
	llm.SeverityCritical,
	llm.SeverityHigh,
	llm.SeverityMedium,
	llm.SeverityLow,
}

// RenderFindings 渲染文档的审查报告：lipgloss 严重程度徽章 + glamour 渲染的 Markdown
func RenderFindings(doc *storage.Document, findings []llm.Finding) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dracula"),
		glamour.WithWordWrap(0),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	body, err := r.Render(ReportMarkdown(doc, findings))
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return SeveritySummary(DefaultTheme(), findings) + "\n" + body, nil
}

// SeveritySummary 按严重程度统计发现并渲染为徽章行
func SeveritySummary(theme *Theme, findings []llm.Finding) string {
	counts := make(map[llm.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}

	var parts []string
	for _, s := range severityOrder {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", theme.Badge(s), counts[s]))
		}
	}
	if len(parts) == 0 {
		return theme.Success.Render("No findings")
	}
	return strings.Join(parts, "  ")
}

// ReportMarkdown 生成审查报告的 Markdown 源文本
func ReportMarkdown(doc *storage.Document, findings []llm.Finding) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", doc.Filename)
	sb.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Document | `%s` |\n", doc.ID)
	fmt.Fprintf(&sb, "| Status | %s |\n", doc.Status)
	if doc.Extraction != nil {
		fmt.Fprintf(&sb, "| Type | %s |\n", doc.Extraction.DocType)
	}
	sb.WriteString("\n")

	if doc.Extraction != nil && len(doc.Extraction.Data) > 0 {
		writeFields(&sb, doc.Extraction)
	}

	fmt.Fprintf(&sb, "## Findings (%d)\n\n", len(findings))
	if len(findings) == 0 {
		sb.WriteString("_No findings recorded._\n")
		return sb.String()
	}

	for i, f := range findings {
		fmt.Fprintf(&sb, "### %d. %s · %s · %s\n\n", i+1, f.Type, strings.ToUpper(string(f.Severity)), f.Status)
		if f.ID != 0 {
			fmt.Fprintf(&sb, "Finding `#%d`", f.ID)
			if f.RelatedDocumentID != "" {
				fmt.Fprintf(&sb, ", compared with `%s`", f.RelatedDocumentID)
			}
			sb.WriteString("\n\n")
		}
		sb.WriteString(escapeLines(f.Description))
		sb.WriteString("\n\n")
		if f.Recommendation != "" {
			fmt.Fprintf(&sb, "> **Recommendation:** %s\n\n", f.Recommendation)
		}
		if len(f.Evidence) > 0 {
			for _, k := range sortedKeys(f.Evidence) {
				fmt.Fprintf(&sb, "- **%s**: %v\n", k, f.Evidence[k])
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// writeFields 输出可定位证据的标量字段
func writeFields(sb *strings.Builder, r *llm.ExtractionResult) {
	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("## Extracted fields\n\n| Field | Value | Page |\n|---|---|---|\n")
	for _, k := range keys {
		fv := r.Data[k]
		switch fv.Value.(type) {
		case []interface{}, map[string]interface{}:
			continue
		}
		page := "-"
		if fv.Evidence != nil {
			page = fmt.Sprintf("%d", fv.Evidence.PageNumber)
		}
		value := "-"
		if fv.Value != nil {
			value = strings.ReplaceAll(fmt.Sprintf("%v", fv.Value), "|", "\\|")
		}
		fmt.Fprintf(sb, "| %s | %s | %s |\n", k, value, page)
	}
	sb.WriteString("\n")
}

// escapeLines 保留描述中的换行
func escapeLines(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "  \n")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
