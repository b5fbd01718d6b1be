package component

import (
	"errors"
	"fmt"
	"time"

	"salesrep/llm"
	"salesrep/llm/agent"
	"salesrep/pubsub"
	"salesrep/tui/component/renderer"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// KnowledgeReadyMsg 知识快照构建完成
type KnowledgeReadyMsg struct {
	Pages     int
	Documents int
	Active    int
	Assets    int
	Took      time.Duration
}

// AnswerDoneMsg 一次提问结束（成功或被拒绝）
type AnswerDoneMsg struct {
	Took   time.Duration
	Failed bool
	Err    error
}

// UploadStartedMsg 开始上传用户文档
type UploadStartedMsg struct {
	Name string
}

// UploadDoneMsg 用户文档上传结束，Attached 表示后续提问会附带它
type UploadDoneMsg struct {
	Name     string
	State    llm.ProcessingState
	Attached bool
	Err      error
}

const (
	loadingText  = "Loading product knowledge..."
	thinkingText = "Consulting the cheesemonger..."
)

// StatusModel 封装状态显示组件（spinner + 状态文本）
type StatusModel struct {
	spinner spinner.Model
	running bool
	text    string
	ready   string // 知识加载完成后的基础文本
	width   int
}

// NewStatusModel 创建新的状态组件，启动时即处于加载知识状态
func NewStatusModel() StatusModel {
	s := spinner.New()
	s.Spinner = spinner.Jump
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	return StatusModel{
		spinner: s,
		running: true,
		text:    loadingText,
		ready:   "Ready",
	}
}

func (m StatusModel) Init() tea.Cmd {
	if m.running {
		return m.spinner.Tick
	}
	return nil
}

// Update 更新组件状态
func (m StatusModel) Update(msg tea.Msg) (StatusModel, tea.Cmd) {
	switch msg := msg.(type) {
	case KnowledgeReadyMsg:
		m.ready = fmt.Sprintf("Ready · %d pages · %d/%d documents · %d images",
			msg.Pages, msg.Active, msg.Documents, msg.Assets)
		// 加载期间已有提问时保持 spinner
		if m.text == loadingText {
			m.running = false
			m.text = m.ready
		}
		return m, nil

	case pubsub.Event[llm.ChatTurn]:
		switch msg.Type {
		case pubsub.CreatedEvent:
			// 用户提问，启动 spinner
			if msg.Payload.Role == llm.RoleUser {
				wasRunning := m.running
				m.running = true
				m.text = thinkingText
				if !wasRunning {
					return m, m.spinner.Tick
				}
				return m, nil
			}
		case pubsub.FinishedEvent:
			// AnswerDoneMsg 可能先到，不覆盖它写入的耗时
			m.running = false
			if m.text == thinkingText {
				m.text = m.ready
			}
			return m, nil
		}

	case UploadStartedMsg:
		wasRunning := m.running
		m.running = true
		m.text = "Uploading " + msg.Name + "..."
		if !wasRunning {
			return m, m.spinner.Tick
		}
		return m, nil

	case UploadDoneMsg:
		icons := renderer.DefaultIcons()
		m.running = false
		switch {
		case msg.Err != nil:
			m.text = icons.Error + " " + msg.Err.Error()
		case msg.Attached:
			m.text = fmt.Sprintf("%s %s attached to your questions · %s", icons.File, msg.Name, m.ready)
		default:
			m.text = fmt.Sprintf("%s %s not attached (%s) · %s", icons.Error, msg.Name, msg.State, m.ready)
		}
		return m, nil

	case AnswerDoneMsg:
		icons := renderer.DefaultIcons()
		switch {
		case errors.Is(msg.Err, agent.ErrBusy):
			m.text = "Still answering the previous question..."
		case msg.Err != nil:
			m.running = false
			m.text = icons.Error + " " + msg.Err.Error()
		case msg.Failed:
			m.running = false
			m.text = icons.Error + " model unavailable · " + m.ready
		default:
			m.running = false
			m.text = fmt.Sprintf("%s %s · %s", icons.Clock, renderer.FormatDuration(msg.Took), m.ready)
		}
		return m, nil
	}

	// Spinner 动画帧更新
	if m.running {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View 渲染组件视图
func (m StatusModel) View() string {
	style := lipgloss.NewStyle().Padding(1, 0)
	if m.width > 0 {
		style = style.MaxWidth(m.width)
	}
	content := m.text
	if m.running {
		content = fmt.Sprintf("%s %s", m.spinner.View(), m.text)
	}
	return style.Render(content)
}

// Text 返回当前状态文本
func (m StatusModel) Text() string {
	return m.text
}

// SetWidth 设置组件宽度
func (m *StatusModel) SetWidth(width int) {
	m.width = width
}

// IsRunning 返回 spinner 是否在运行
func (m StatusModel) IsRunning() bool {
	return m.running
}
