// Package tui 提供终端界面：批量处理进度视图和审查报告渲染
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"contractlens/llm"
	"contractlens/storage"
)

// Theme 主题样式配置
type Theme struct {
	Title    lipgloss.Style
	Filename lipgloss.Style
	Stage    lipgloss.Style
	Success  lipgloss.Style
	Review   lipgloss.Style
	Failure  lipgloss.Style
	Muted    lipgloss.Style
	Spinner  lipgloss.Style

	// 严重程度徽章
	Critical lipgloss.Style
	High     lipgloss.Style
	Medium   lipgloss.Style
	Low      lipgloss.Style
}

// DefaultTheme 返回默认主题
func DefaultTheme() *Theme {
	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	return &Theme{
		Title:    lipgloss.NewStyle().Foreground(lipgloss.Color("#bb9af7")).Bold(true),
		Filename: lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")),
		Stage:    lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
		Review:   lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true),
		Failure:  lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")).Italic(true),
		Spinner:  lipgloss.NewStyle().Foreground(lipgloss.Color("205")),

		Critical: badge.Foreground(lipgloss.Color("#1a1b26")).Background(lipgloss.Color("#f7768e")),
		High:     badge.Foreground(lipgloss.Color("#1a1b26")).Background(lipgloss.Color("#ff9e64")),
		Medium:   badge.Foreground(lipgloss.Color("#1a1b26")).Background(lipgloss.Color("#e0af68")),
		Low:      badge.Foreground(lipgloss.Color("#1a1b26")).Background(lipgloss.Color("#9ece6a")),
	}
}

// Badge 渲染严重程度徽章，文本为大写的严重程度
func (t *Theme) Badge(s llm.Severity) string {
	style := t.Low
	switch s {
	case llm.SeverityCritical:
		style = t.Critical
	case llm.SeverityHigh:
		style = t.High
	case llm.SeverityMedium:
		style = t.Medium
	}
	return style.Render(strings.ToUpper(string(s)))
}

// StatusStyle 返回文档状态对应的样式
func (t *Theme) StatusStyle(s storage.Status) lipgloss.Style {
	switch s {
	case storage.StatusCompleted:
		return t.Success
	case storage.StatusReviewNeeded:
		return t.Review
	case storage.StatusFailed:
		return t.Failure
	default:
		return t.Stage
	}
}

// Icons 图标配置
type Icons struct {
	Pending string
	Success string
	Review  string
	Error   string
}

// DefaultIcons 返回默认图标
func DefaultIcons() *Icons {
	return &Icons{
		Pending: "·",
		Success: "✅",
		Review:  "📝",
		Error:   "❌",
	}
}
