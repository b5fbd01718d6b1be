package chat

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"salesrep/llm"
	"salesrep/llm/agent"
	"salesrep/pubsub"
	"salesrep/tui/component"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model 聊天界面模型
type Model struct {
	list   component.ListModel
	edit   component.EditModel
	status component.StatusModel

	runtime *agent.Runtime
	session *agent.Session
	sub     <-chan pubsub.Event[llm.ChatTurn]
	ctx     context.Context

	width  int
	height int
}

// InitialModel 创建初始模型并订阅会话事件
func InitialModel(ctx context.Context, runtime *agent.Runtime, session *agent.Session) Model {
	return Model{
		list:    component.NewListModel(),
		edit:    component.NewEditModel(),
		status:  component.NewStatusModel(),
		runtime: runtime,
		session: session,
		sub:     session.Subscribe(ctx),
		ctx:     ctx,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.list.Init(),
		m.edit.Init(),
		m.status.Init(),
		m.warmKnowledge(),
		m.waitForTurn(), // 订阅会话轮次
	)
}

// warmKnowledge 启动时预先构建知识快照
func (m Model) warmKnowledge() tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		snap := m.runtime.Warm(m.ctx)
		msg := component.KnowledgeReadyMsg{Took: time.Since(start)}
		if snap != nil {
			msg.Pages = len(snap.Pages)
			msg.Documents = len(snap.Documents)
			msg.Active = len(snap.ActiveDocuments())
			msg.Assets = snap.Catalog.Len()
		}
		return msg
	}
}

// waitForTurn 等待会话事件的 Cmd，通道关闭后停止等待
func (m Model) waitForTurn() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.sub
		if !ok {
			return nil
		}
		return event
	}
}

// ask 提问在 Cmd 中执行，结果以 AnswerDoneMsg 返回
func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		ans, err := m.runtime.Ask(m.ctx, m.session, question)
		done := component.AnswerDoneMsg{Took: time.Since(start), Err: err}
		if ans != nil {
			done.Failed = ans.Failed
		}
		return done
	}
}

var errUploadUsage = errors.New("usage: /upload <catalog.pdf|sell-sheet.png>")

// upload 上传用户的目录或销售单，结果以 UploadDoneMsg 返回
func (m Model) upload(path string) tea.Cmd {
	if path == "" {
		return func() tea.Msg { return component.UploadDoneMsg{Err: errUploadUsage} }
	}
	name := filepath.Base(path)
	started := func() tea.Msg { return component.UploadStartedMsg{Name: name} }
	return tea.Sequence(started, func() tea.Msg {
		doc, err := m.runtime.Upload(m.ctx, m.session, path)
		return component.UploadDoneMsg{Name: name, State: doc.State, Attached: doc.Usable(), Err: err}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// 计算各组件高度
		statusHeight := lipgloss.Height(m.status.View())
		editHeight := m.edit.Height()
		listHeight := m.height - statusHeight - editHeight

		m.list.SetSize(m.width, listHeight)
		m.edit.SetWidth(m.width)
		m.status.SetWidth(m.width)

	case component.EditorSubmitMsg:
		if path, ok := component.ParseUpload(msg.Value); ok {
			cmds = append(cmds, m.upload(path))
		} else {
			cmds = append(cmds, m.ask(msg.Value))
		}

	case pubsub.Event[llm.ChatTurn]:
		// 继续等待下一条事件，list 和 status 在下面透传处理
		cmds = append(cmds, m.waitForTurn())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}
	}

	// 更新各子组件
	var cmd tea.Cmd

	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)

	m.edit, cmd = m.edit.Update(msg)
	cmds = append(cmds, cmd)

	m.status, cmd = m.status.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.list.View(),
		m.status.View(),
		m.edit.View(),
	)
}
