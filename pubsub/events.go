package pubsub

import "context"

const (
	// CreatedEvent 新的聊天轮次已追加
	CreatedEvent EventType = "created"
	// UpdatedEvent 已有轮次被更新（例如图片渲染完成）
	UpdatedEvent EventType = "updated"
	// FinishedEvent 一次回答结束，会话回到空闲状态
	FinishedEvent EventType = "finished"
)

type (
	// EventType 标识事件类型
	EventType string

	// Event 是一次状态变化及其载荷
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Subscriber 可以被订阅的事件源
	Subscriber[T any] interface {
		Subscribe(context.Context) <-chan Event[T]
	}

	// Publisher 事件发布方
	Publisher[T any] interface {
		Publish(EventType, T)
	}
)
