package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 64

// Broker 是基于内存的发布/订阅实现，会话用它把聊天轮次推给界面。
// 泛型 T 保证载荷类型安全。
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[chan Event[T]]struct{}
	done    chan struct{}
	once    sync.Once
	bufSize int
	dropped atomic.Int64 // 因订阅者缓冲区已满而丢弃的事件数
}

// NewBroker 创建默认缓冲区大小的 Broker。
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer 创建每个订阅通道缓冲 size 个事件的 Broker。
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Broker[T]{
		subs:    make(map[chan Event[T]]struct{}),
		done:    make(chan struct{}),
		bufSize: size,
	}
}

// Shutdown 关闭 Broker 并关闭所有订阅通道，可重复调用。
func (b *Broker[T]) Shutdown() {
	b.once.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		close(b.done)
		for ch := range b.subs {
			delete(b.subs, ch)
			close(ch)
		}
	})
}

// Subscribe 注册订阅者。ctx 结束或 Broker 关闭时通道被关闭。
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event[T], b.bufSize)
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.unsubscribe(sub)
	}()

	return sub
}

func (b *Broker[T]) unsubscribe(sub chan Event[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub)
	}
}

// SubscriberCount 返回当前活跃订阅者数量。
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped 返回累计丢弃的事件数。
func (b *Broker[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Publish 非阻塞地把事件发给所有订阅者；缓冲区已满的订阅者跳过本次事件。
// 持有读锁发送，保证不会向已关闭的通道写入。
func (b *Broker[T]) Publish(t EventType, payload T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return
	default:
	}

	event := Event[T]{Type: t, Payload: payload}
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			b.dropped.Add(1)
		}
	}
}
