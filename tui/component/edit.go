package component

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// EditorSubmitMsg 自定义消息：用户提交问题
type EditorSubmitMsg struct {
	Value string
}

// uploadCommand 输入以它开头时把后面的路径作为文档上传
const uploadCommand = "/upload"

// ParseUpload 识别 "/upload <path>" 命令，路径可以带引号，缺少路径时返回空串
func ParseUpload(value string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), uploadCommand)
	if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(rest), `"'`), true
}

// EditModel 封装输入框组件
type EditModel struct {
	textarea textarea.Model
	width    int
}

// NewEditModel 创建新的输入框组件
func NewEditModel() EditModel {
	ta := textarea.New()
	ta.Placeholder = "Ask about our cheeses, or /upload <catalog.pdf|sheet.png>"
	ta.Focus()

	ta.Prompt = "> "
	ta.CharLimit = 500

	ta.SetWidth(30)
	ta.SetHeight(1)

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	// 禁用换行，Enter 用于提交
	ta.KeyMap.InsertNewline.SetEnabled(false)

	return EditModel{
		textarea: ta,
		width:    30,
	}
}

func (m EditModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update 更新组件状态
func (m EditModel) Update(msg tea.Msg) (EditModel, tea.Cmd) {
	var cmd tea.Cmd

	if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEnter {
		// 空白输入不提交
		value := strings.TrimSpace(m.textarea.Value())
		if value == "" {
			return m, nil
		}
		m.textarea.Reset()
		return m, func() tea.Msg {
			return EditorSubmitMsg{Value: value}
		}
	}

	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// View 渲染组件视图
func (m *EditModel) View() string {
	return m.textarea.View()
}

// SetWidth 设置组件宽度
func (m *EditModel) SetWidth(width int) {
	m.width = width
	m.textarea.SetWidth(width)
}

// Height 返回组件高度
func (m *EditModel) Height() int {
	return m.textarea.Height()
}
