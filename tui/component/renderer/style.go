package renderer

// Icons 图标配置
type Icons struct {
	Image   string
	Link    string
	File    string
	Clock   string
	Success string
	Error   string
}

// DefaultIcons 返回默认图标
func DefaultIcons() *Icons {
	return &Icons{
		Image:   "🖼",
		Link:    "🔗",
		File:    "📄",
		Clock:   "⏱",
		Success: "✅",
		Error:   "❌",
	}
}
