package renderer

import (
	"github.com/charmbracelet/lipgloss"
)

// MessageStyles 消息渲染样式配置
type MessageStyles struct {
	// 消息角色样式
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style

	// 图片附件样式
	Image  lipgloss.Style
	Link   lipgloss.Style
	Border lipgloss.Style
	Indent lipgloss.Style
}

// DefaultMessageStyles 返回默认消息样式配置
func DefaultMessageStyles() *MessageStyles {
	return &MessageStyles{
		User:      lipgloss.NewStyle().Foreground(lipgloss.Color("#7dcfff")).Bold(true),
		Assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true),
		System:    lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")).Italic(true),
		Image:     lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
		Link:      lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Underline(true),
		Border:    lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")).Faint(true),
		Indent:    lipgloss.NewStyle().PaddingLeft(2),
	}
}
