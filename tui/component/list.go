package component

import (
	"salesrep/llm"
	"salesrep/pubsub"
	"salesrep/tui/component/renderer"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ListModel 封装聊天记录组件
// 负责轮次存储和 viewport 管理，渲染逻辑委托给 MessageRenderer
type ListModel struct {
	viewport viewport.Model
	turns    []llm.ChatTurn
	width    int
	height   int
	ready    bool

	renderer *renderer.MessageRenderer
}

// NewListModel 创建新的聊天记录组件
func NewListModel() ListModel {
	vp := viewport.New(30, 30)
	vp.SetContent(renderer.Welcome)

	return ListModel{
		viewport: vp,
		turns:    make([]llm.ChatTurn, 0),
		renderer: renderer.NewMessageRenderer(nil),
		width:    30,
		height:   5,
		ready:    true,
	}
}

func (m ListModel) Init() tea.Cmd {
	return nil
}

// Update 更新组件状态
func (m ListModel) Update(msg tea.Msg) (ListModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.viewport.ScrollUp(3)
		case tea.MouseButtonWheelDown:
			m.viewport.ScrollDown(3)
		}
	case pubsub.Event[llm.ChatTurn]:
		// 只有新建的轮次进入列表，FinishedEvent 只是状态信号
		if msg.Type == pubsub.CreatedEvent {
			m.turns = append(m.turns, msg.Payload)
			m.updateViewportContent()
			m.viewport.GotoBottom()
		}
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View 渲染组件视图
func (m ListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.viewport.View()
}

// Turns 返回已显示的轮次
func (m ListModel) Turns() []llm.ChatTurn {
	return m.turns
}

// SetSize 设置组件尺寸
func (m *ListModel) SetSize(width, height int) {
	m.width = width
	m.height = height

	// 确保高度至少为 1，防止负数或零
	if height < 1 {
		height = 1
	}

	m.viewport.Width = width
	m.viewport.Height = height
	m.ready = true

	m.renderer.SetViewportWidth(width)
	if len(m.turns) > 0 {
		m.updateViewportContent()
	}
	m.viewport.GotoBottom()
}

func (m *ListModel) updateViewportContent() {
	m.viewport.SetContent(m.renderer.RenderTurns(m.turns))
}
