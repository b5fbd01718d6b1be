package renderer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"salesrep/llm"
)

// Welcome 没有消息时显示的欢迎语
const Welcome = "¡Hola! I'm the Nuestro Queso sales assistant.\nAsk about our cheeses, nutrition, foodservice or our plant, then press Enter."

// MessageRenderer 消息渲染器
type MessageRenderer struct {
	markdownRenderer *glamour.TermRenderer
	styles           *MessageStyles
	icons            *Icons
	renderedCache    []string // 已渲染消息的缓存
	viewportWidth    int
}

// NewMessageRenderer 创建消息渲染器
func NewMessageRenderer(styles *MessageStyles) *MessageRenderer {
	if styles == nil {
		styles = DefaultMessageStyles()
	}

	// 初始化 Markdown 渲染器 (Dracula 主题)
	markdownRenderer, _ := glamour.NewTermRenderer(
		glamour.WithStylePath("dracula"),
		glamour.WithWordWrap(0), // 禁用自动换行，由外部控制
	)
	return &MessageRenderer{
		markdownRenderer: markdownRenderer,
		styles:           styles,
		icons:            DefaultIcons(),
		renderedCache:    make([]string, 0),
	}
}

// SetViewportWidth 设置视口宽度
func (r *MessageRenderer) SetViewportWidth(width int) {
	r.viewportWidth = width
}

// RenderTurns 渲染所有轮次。聊天记录只追加，已渲染的轮次直接复用缓存。
func (r *MessageRenderer) RenderTurns(turns []llm.ChatTurn) string {
	if len(turns) == 0 {
		return Welcome
	}

	// 检测是否发生回退（例如清空列表），如果是则重置缓存
	if len(turns) < len(r.renderedCache) {
		r.renderedCache = r.renderedCache[:0]
	}
	for i := len(r.renderedCache); i < len(turns); i++ {
		r.renderedCache = append(r.renderedCache, r.RenderTurn(turns[i]))
	}

	var parts []string
	for _, cached := range r.renderedCache {
		if cached != "" {
			parts = append(parts, cached)
		}
	}
	content := strings.Join(parts, "\n\n")

	// 包装内容以适应宽度
	if r.viewportWidth > 0 {
		return lipgloss.NewStyle().Width(r.viewportWidth).Render(content)
	}
	return content
}

// RenderTurn 渲染单个轮次
func (r *MessageRenderer) RenderTurn(turn llm.ChatTurn) string {
	switch turn.Role {
	case llm.RoleUser:
		return r.renderUser(turn)
	case llm.RoleAssistant:
		return r.renderAssistant(turn)
	}
	return ""
}

// renderMarkdown 渲染 Markdown 内容
func (r *MessageRenderer) renderMarkdown(content string) string {
	if r.markdownRenderer == nil {
		return content
	}
	rendered, err := r.markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	// 去除首尾空白（glamour 会添加前后换行）
	return strings.TrimSpace(rendered)
}

func (r *MessageRenderer) renderUser(turn llm.ChatTurn) string {
	if turn.Text == "" {
		return ""
	}
	return r.styles.User.Render("You:") + " " + turn.Text
}

func (r *MessageRenderer) renderAssistant(turn llm.ChatTurn) string {
	parts := []string{r.styles.Assistant.Render("Nuestro Queso:")}
	if turn.Text != "" {
		parts = append(parts, r.renderMarkdown(turn.Text))
	}
	if turn.Rendered != nil {
		parts = append(parts, r.renderAsset(turn.Rendered))
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, "\n")
}

// renderAsset 终端无法内嵌图片：内嵌模式显示类型、大小和本地副本，链接模式显示地址
func (r *MessageRenderer) renderAsset(a *llm.RenderedAsset) string {
	var line string
	switch a.Mode {
	case llm.RenderEmbedded:
		line = r.styles.Image.Render(fmt.Sprintf("%s %s · %s", r.icons.Image, a.MIMEType, FormatBytes(a.Size)))
		if a.LocalPath != "" {
			line += "\n" + r.styles.Border.Render("└─ ") + r.styles.System.Render(a.LocalPath)
		} else {
			line += "\n" + r.styles.Border.Render("└─ ") + r.styles.Link.Render(ShortenURL(a.Ref))
		}
	default:
		line = r.styles.Image.Render(r.icons.Link+" View image: ") + r.styles.Link.Render(a.Ref)
	}
	return r.styles.Indent.Render(line)
}
