package agent

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	"salesrep/llm"
	"salesrep/llm/assets"
	"salesrep/llm/corpus"
	"salesrep/logging"
	"salesrep/metrics"
)

// RetryMessage is shown when the model call fails.
const RetryMessage = "Sorry, I couldn't reach our product assistant just now. Please try asking again in a moment."

// Knowledge supplies the current snapshot. *corpus.Cache satisfies it.
type Knowledge interface {
	Get(ctx context.Context) *corpus.Snapshot
}

// Answer is the displayable result of one question.
type Answer struct {
	Text     string
	AssetRef string
	Rendered *llm.RenderedAsset
	Failed   bool
}

// Orchestrator turns a question into an answer: prompt, model call, marker
// parsing, asset resolution and rendering.
type Orchestrator struct {
	model     model.BaseChatModel
	knowledge Knowledge
	prompt    *PromptBuilder
	renderer  *assets.Renderer
	log       logging.Logger
	metrics   *metrics.Metrics
}

func NewOrchestrator(m model.BaseChatModel, k Knowledge, p *PromptBuilder, r *assets.Renderer, log logging.Logger, mt *metrics.Metrics) *Orchestrator {
	return &Orchestrator{model: m, knowledge: k, prompt: p, renderer: r, log: log, metrics: mt}
}

// Answer runs one question through session s. It returns ErrEmptyQuestion or
// ErrBusy without touching the session; every other failure becomes an answer.
func (o *Orchestrator) Answer(ctx context.Context, s *Session, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if err := s.begin(); err != nil {
		return nil, err
	}

	start := time.Now()
	var last llm.ChatTurn
	defer func() { s.finish(last) }()

	last = s.add(llm.RoleUser, question, "", nil)
	log := o.log.WithField("session", s.ID)

	ans, outcome := o.answer(ctx, question, s.Documents(), log)
	last = s.add(llm.RoleAssistant, ans.Text, ans.AssetRef, ans.Rendered)

	o.metrics.ObserveAnswer(outcome, time.Since(start))
	log.WithFields(logging.Fields{
		"outcome": outcome,
		"asset":   ans.AssetRef,
		"took":    time.Since(start).String(),
	}).Info("question answered")
	return ans, nil
}

func (o *Orchestrator) answer(ctx context.Context, question string, uploads []llm.KnowledgeDocument, log logging.Entry) (*Answer, string) {
	snap := o.knowledge.Get(ctx)

	msgs, err := o.prompt.Build(ctx, snap, uploads, question)
	if err != nil {
		log.WithError(err).Error("prompt rendering failed")
		return &Answer{Text: RetryMessage, Failed: true}, "prompt_error"
	}

	resp, err := o.model.Generate(ctx, msgs)
	if err != nil {
		log.WithError(err).Error("model call failed")
		return &Answer{Text: RetryMessage, Failed: true}, "model_error"
	}

	text, value, found := ParseMarker(resp.Content)
	ans := &Answer{Text: text}
	if !found {
		return ans, "ok"
	}

	var catalog *assets.Catalog
	if snap != nil {
		catalog = snap.Catalog
	}
	ref, rank := assets.NewResolver(catalog, o.metrics).Resolve(value)
	log.WithFields(logging.Fields{"request": value, "ref": ref, "rank": rank}).Debug("image requested")
	if ref == "" {
		return ans, "ok"
	}
	ans.AssetRef = ref
	ans.Rendered = o.renderer.Render(ctx, ref)
	return ans, "ok"
}
