package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"salesrep/llm"
	"salesrep/pubsub"
)

var (
	// ErrBusy 会话正在回答上一个问题
	ErrBusy = errors.New("an answer is already in progress for this session")
	// ErrEmptyQuestion 问题为空
	ErrEmptyQuestion = errors.New("question is empty")
)

// State 会话状态
type State string

const (
	StateIdle      State = "idle"
	StateAnswering State = "answering"
)

// Session 单个用户会话：只追加的聊天记录加上 Idle/Answering 状态机。
// 每追加一轮都会通过 broker 发布 CreatedEvent。
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.RWMutex
	turns  []llm.ChatTurn
	docs   []llm.KnowledgeDocument
	state  State
	broker *pubsub.Broker[llm.ChatTurn]
	now    func() time.Time
}

// NewSession 创建空闲状态的新会话
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		state:     StateIdle,
		broker:    pubsub.NewBroker[llm.ChatTurn](),
		now:       time.Now,
	}
}

// Turns 返回聊天记录的副本，避免外部修改
func (s *Session) Turns() []llm.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.ChatTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Attach 记录用户上传的文档，同名文档替换旧的那份
func (s *Session) Attach(doc llm.KnowledgeDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if d.Name == doc.Name {
			s.docs[i] = doc
			return
		}
	}
	s.docs = append(s.docs, doc)
}

// Documents 返回用户上传文档的副本
func (s *Session) Documents() []llm.KnowledgeDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.KnowledgeDocument, len(s.docs))
	copy(out, s.docs)
	return out
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe 订阅本会话的轮次事件
func (s *Session) Subscribe(ctx context.Context) <-chan pubsub.Event[llm.ChatTurn] {
	return s.broker.Subscribe(ctx)
}

// Close 关闭事件通道
func (s *Session) Close() {
	s.broker.Shutdown()
}

// begin Idle -> Answering；已在回答中则返回 ErrBusy
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAnswering {
		return ErrBusy
	}
	s.state = StateAnswering
	return nil
}

// finish Answering -> Idle，并通知订阅者本次回答结束
func (s *Session) finish(last llm.ChatTurn) {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.broker.Publish(pubsub.FinishedEvent, last)
}

// add 追加一轮。用户轮次不携带图片。
func (s *Session) add(role llm.Role, text, assetRef string, rendered *llm.RenderedAsset) llm.ChatTurn {
	turn := llm.ChatTurn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
	}
	if role == llm.RoleAssistant {
		turn.AssetRef = assetRef
		turn.Rendered = rendered
	}

	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()

	s.broker.Publish(pubsub.CreatedEvent, turn)
	return turn
}
