package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"contractlens/pubsub"
	"contractlens/storage"
	"contractlens/worker"
)

// eventsClosedMsg 事件通道已关闭
type eventsClosedMsg struct{}

// progressRow 单个文档的处理进度
type progressRow struct {
	filename string
	stage    string
	status   storage.Status
	err      string
	terminal bool
}

// ProgressModel 批量处理进度视图：spinner + 每个文档一行状态
type ProgressModel struct {
	spinner spinner.Model
	events  <-chan pubsub.Event[worker.TaskEvent]
	theme   *Theme
	icons   *Icons

	total    int
	rows     map[string]*progressRow
	order    []string
	done     int
	failed   int
	quitting bool
	aborted  bool
}

// NewProgressModel 创建进度视图，total 个文档全部结束后自动退出
func NewProgressModel(events <-chan pubsub.Event[worker.TaskEvent], total int) ProgressModel {
	theme := DefaultTheme()
	s := spinner.New()
	s.Spinner = spinner.Jump
	s.Style = theme.Spinner

	return ProgressModel{
		spinner: s,
		events:  events,
		theme:   theme,
		icons:   DefaultIcons(),
		total:   total,
		rows:    make(map[string]*progressRow),
	}
}

// Init 启动 spinner 并开始等待任务事件
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent 等待下一条任务事件的 Cmd
func (m ProgressModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return event
	}
}

// Update 处理按键、任务事件和 spinner 帧
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			m.quitting = true
			return m, tea.Quit
		}

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case pubsub.Event[worker.TaskEvent]:
		m.apply(msg)
		if m.Finished() {
			m.quitting = true
			return m, tea.Quit
		}
		return m, m.waitForEvent()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply 将事件合并到对应文档的进度行，只统计处理任务
func (m *ProgressModel) apply(ev pubsub.Event[worker.TaskEvent]) {
	p := ev.Payload
	if p.Task != worker.TaskProcess || p.DocID == "" {
		return
	}

	row, ok := m.rows[p.DocID]
	if !ok {
		row = &progressRow{filename: p.Filename, status: storage.StatusPending}
		m.rows[p.DocID] = row
		m.order = append(m.order, p.DocID)
	}
	if row.terminal {
		return
	}

	switch ev.Type {
	case pubsub.StartedEvent:
		row.status = storage.StatusProcessing
	case pubsub.ProgressEvent:
		row.stage = p.Stage
	case pubsub.FinishedEvent:
		row.status = p.Status
		row.stage = ""
	case pubsub.FailedEvent:
		row.status = storage.StatusFailed
		row.err = p.Err
		m.failed++
	}

	if ev.Type.Terminal() {
		row.terminal = true
		m.done++
	}
}

// Finished 所有文档都已结束
func (m ProgressModel) Finished() bool {
	return m.total > 0 && m.done >= m.total
}

// Aborted 用户主动中断
func (m ProgressModel) Aborted() bool {
	return m.aborted
}

// Failed 失败的文档数
func (m ProgressModel) Failed() int {
	return m.failed
}

// View 渲染进度视图
func (m ProgressModel) View() string {
	var sb strings.Builder

	header := fmt.Sprintf("Processing %d/%d documents", m.done, m.total)
	if m.quitting {
		header = fmt.Sprintf("Processed %d/%d documents, %d failed", m.done, m.total, m.failed)
		sb.WriteString(m.theme.Title.Render(header))
	} else {
		sb.WriteString(m.spinner.View() + " " + m.theme.Title.Render(header))
	}
	sb.WriteString("\n\n")

	width := 0
	for _, id := range m.order {
		width = max(width, lipgloss.Width(m.rows[id].filename))
	}
	for _, id := range m.order {
		sb.WriteString(m.renderRow(m.rows[id], width))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m ProgressModel) renderRow(row *progressRow, width int) string {
	icon := m.icons.Pending
	switch row.status {
	case storage.StatusCompleted:
		icon = m.icons.Success
	case storage.StatusReviewNeeded:
		icon = m.icons.Review
	case storage.StatusFailed:
		icon = m.icons.Error
	}

	name := m.theme.Filename.Render(row.filename + strings.Repeat(" ", width-lipgloss.Width(row.filename)))
	status := m.theme.StatusStyle(row.status).Render(string(row.status))
	line := fmt.Sprintf("%s %s  %s", icon, name, status)

	switch {
	case row.err != "":
		line += "  " + m.theme.Muted.Render(row.err)
	case row.stage != "":
		line += "  " + m.theme.Stage.Render(row.stage)
	}
	return line
}
