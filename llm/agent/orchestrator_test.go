package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesrep/llm"
	"salesrep/llm/assets"
	"salesrep/llm/corpus"
	"salesrep/llm/facts"
	"salesrep/llm/scrape"
	"salesrep/logging"
	"salesrep/pubsub"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeModel struct {
	mu    sync.Mutex
	reply string
	err   error
	gate  chan struct{}
	calls int
	last  []*schema.Message
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (f *fakeModel) userParts() []schema.MessageInputPart {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.last) == 0 {
		return nil
	}
	return f.last[len(f.last)-1].UserInputMultiContent
}

type staticKnowledge struct{ snap *corpus.Snapshot }

func (s staticKnowledge) Get(context.Context) *corpus.Snapshot { return s.snap }

// imageSite serves plant, office and lab photos behind a Referer check.
func imageSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func snapshotFor(srv *httptest.Server, docs ...llm.KnowledgeDocument) *corpus.Snapshot {
	return &corpus.Snapshot{
		Pages: []llm.ScrapedPage{{URL: "https://www.hcmakers.com/", Text: "Award-winning Hispanic cheeses."}},
		Catalog: &assets.Catalog{Priority: []llm.AssetEntry{
			{Label: "PLANT", URL: srv.URL + "/plant.png", Source: llm.SourceHardcoded, Aliases: []string{"factory"}},
			{Label: "OFFICE", URL: srv.URL + "/office.png", Source: llm.SourceHardcoded},
			{Label: "LAB", URL: srv.URL + "/lab.png", Source: llm.SourceHardcoded},
		}},
		Documents:   docs,
		Facts:       facts.Default(),
		RefreshedAt: time.Now(),
	}
}

func newTestOrchestrator(m model.BaseChatModel, snap *corpus.Snapshot) *Orchestrator {
	log := logging.Discard()
	fetcher := scrape.NewFetcher(time.Second, "https://www.hcmakers.com", log)
	renderer := assets.NewRenderer(fetcher, "", log, nil)
	return NewOrchestrator(m, staticKnowledge{snap}, NewPromptBuilder("https://www.hcmakers.com"), renderer, log, nil)
}

func TestAnswerShowMeThePlant(t *testing.T) {
	srv := imageSite(t)
	fm := &fakeModel{reply: "This is our SQF Level 3 plant in Illinois.\n<<<IMG: show me the plant>>>"}
	o := newTestOrchestrator(fm, snapshotFor(srv))
	s := NewSession()

	ans, err := o.Answer(context.Background(), s, "show me the plant")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/plant.png", ans.AssetRef)
	require.NotNil(t, ans.Rendered)
	assert.Equal(t, llm.RenderEmbedded, ans.Rendered.Mode)
	assert.NotContains(t, ans.Text, "<<<IMG:")
	assert.Equal(t, "This is our SQF Level 3 plant in Illinois.", ans.Text)

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, llm.RoleUser, turns[0].Role)
	assert.Empty(t, turns[0].AssetRef)
	assert.Nil(t, turns[0].Rendered)
	assert.Equal(t, llm.RoleAssistant, turns[1].Role)
	assert.Equal(t, ans.AssetRef, turns[1].AssetRef)
	assert.Equal(t, StateIdle, s.State())
}

func TestAnswerFallsBackToLinkWhenImageBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	fm := &fakeModel{reply: "<<<IMG: LAB>>>Our lab tests every batch."}
	ans, err := newTestOrchestrator(fm, snapshotFor(srv)).Answer(context.Background(), NewSession(), "quality lab?")
	require.NoError(t, err)
	require.NotNil(t, ans.Rendered)
	assert.Equal(t, llm.RenderLink, ans.Rendered.Mode)
	assert.Equal(t, srv.URL+"/lab.png", ans.Rendered.Ref)
}

func TestAnswerOutOfScopeHasNoAsset(t *testing.T) {
	srv := imageSite(t)
	fm := &fakeModel{reply: FallbackLine}
	ans, err := newTestOrchestrator(fm, snapshotFor(srv)).Answer(context.Background(), NewSession(), "What's the weather in Chicago?")
	require.NoError(t, err)
	assert.Equal(t, FallbackLine, ans.Text)
	assert.Empty(t, ans.AssetRef)
	assert.Nil(t, ans.Rendered)
}

func TestAnswerUnresolvableMarkerHasNoAsset(t *testing.T) {
	srv := imageSite(t)
	fm := &fakeModel{reply: "Sure.\n<<<IMG: a unicorn eating nachos>>>"}
	ans, err := newTestOrchestrator(fm, snapshotFor(srv)).Answer(context.Background(), NewSession(), "unicorn?")
	require.NoError(t, err)
	assert.Equal(t, "Sure.", ans.Text)
	assert.Empty(t, ans.AssetRef)
	assert.Nil(t, ans.Rendered)
}

func TestAnswerModelErrorGivesRetryMessage(t *testing.T) {
	srv := imageSite(t)
	fm := &fakeModel{err: errors.New("503 overloaded")}
	s := NewSession()

	ans, err := newTestOrchestrator(fm, snapshotFor(srv)).Answer(context.Background(), s, "Do you sell cotija?")
	require.NoError(t, err)
	assert.True(t, ans.Failed)
	assert.Equal(t, RetryMessage, ans.Text)
	assert.Empty(t, ans.AssetRef)
	assert.Len(t, s.Turns(), 2)
	assert.Equal(t, StateIdle, s.State())
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	fm := &fakeModel{}
	s := NewSession()
	_, err := newTestOrchestrator(fm, nil).Answer(context.Background(), s, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, s.Turns())
	assert.Zero(t, fm.calls)
}

func TestAnswerBusyWhileAnswering(t *testing.T) {
	srv := imageSite(t)
	fm := &fakeModel{reply: "ok", gate: make(chan struct{})}
	o := newTestOrchestrator(fm, snapshotFor(srv))
	s := NewSession()

	done := make(chan error, 1)
	go func() {
		_, err := o.Answer(context.Background(), s, "first")
		done <- err
	}()
	require.Eventually(t, func() bool { return s.State() == StateAnswering }, time.Second, time.Millisecond)

	_, err := o.Answer(context.Background(), s, "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(fm.gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, s.State())
	assert.Len(t, s.Turns(), 2)
}

func TestAnswerAttachesOnlyActiveDocuments(t *testing.T) {
	srv := imageSite(t)
	docs := []llm.KnowledgeDocument{
		{Name: "fresco.pdf", State: llm.StateActive, Remote: &llm.RemoteHandle{Name: "files/a", URI: "https://files.example/a", MIMEType: "application/pdf"}},
		{Name: "stuck.pdf", State: llm.StateFailed, Attempts: 10, Remote: &llm.RemoteHandle{Name: "files/b", URI: "https://files.example/b", MIMEType: "application/pdf"}},
		{Name: "local-only.pdf", State: llm.StatePending},
	}
	fm := &fakeModel{reply: "Queso fresco is mild."}
	_, err := newTestOrchestrator(fm, snapshotFor(srv, docs...)).Answer(context.Background(), NewSession(), "Tell me about queso fresco")
	require.NoError(t, err)
	assert.Equal(t, 1, fm.calls)

	parts := fm.userParts()
	require.Len(t, parts, 2)
	assert.Equal(t, schema.ChatMessagePartTypeFileURL, parts[0].Type)
	require.NotNil(t, parts[0].File)
	assert.Equal(t, "https://files.example/a", *parts[0].File.URL)
	assert.Equal(t, schema.ChatMessagePartTypeText, parts[1].Type)
	assert.Equal(t, "Tell me about queso fresco", parts[1].Text)
}

func TestAnswerAttachesActiveSessionUploads(t *testing.T) {
	srv := imageSite(t)
	s := NewSession()
	s.Attach(llm.KnowledgeDocument{Name: "buyer-catalog.pdf", State: llm.StateActive, Remote: &llm.RemoteHandle{Name: "files/u", URI: "https://files.example/u", MIMEType: "application/pdf"}})
	s.Attach(llm.KnowledgeDocument{Name: "blurry.jpg", State: llm.StateFailed, Remote: &llm.RemoteHandle{Name: "files/v", URI: "https://files.example/v", MIMEType: "image/jpeg"}})

	fm := &fakeModel{reply: "Your catalog lists panela."}
	_, err := newTestOrchestrator(fm, snapshotFor(srv)).Answer(context.Background(), s, "Do you match this catalog?")
	require.NoError(t, err)

	parts := fm.userParts()
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].File)
	assert.Equal(t, "buyer-catalog.pdf", parts[0].File.Name)
	assert.Equal(t, "https://files.example/u", *parts[0].File.URL)
	assert.Equal(t, "Do you match this catalog?", parts[1].Text)
}

func TestSessionAttachReplacesSameName(t *testing.T) {
	s := NewSession()
	s.Attach(llm.KnowledgeDocument{Name: "sheet.pdf", State: llm.StateFailed})
	s.Attach(llm.KnowledgeDocument{Name: "sheet.pdf", State: llm.StateActive})
	s.Attach(llm.KnowledgeDocument{Name: "shelf.png", State: llm.StateActive})

	docs := s.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, llm.StateActive, docs[0].State)
	docs[0].Name = "changed"
	assert.Equal(t, "sheet.pdf", s.Documents()[0].Name)
}

func TestAnswerPublishesTurnEvents(t *testing.T) {
	srv := imageSite(t)
	fm := &fakeModel{reply: "Oaxaca melts best."}
	o := newTestOrchestrator(fm, snapshotFor(srv))
	s := NewSession()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := s.Subscribe(ctx)

	_, err := o.Answer(ctx, s, "best melting cheese?")
	require.NoError(t, err)

	var got []pubsub.EventType
	var roles []llm.Role
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			got = append(got, ev.Type)
			roles = append(roles, ev.Payload.Role)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []pubsub.EventType{pubsub.CreatedEvent, pubsub.CreatedEvent, pubsub.FinishedEvent}, got)
	assert.Equal(t, []llm.Role{llm.RoleUser, llm.RoleAssistant, llm.RoleAssistant}, roles)
}

func verifiedFacts(t *testing.T) *facts.Facts {
	t.Helper()
	f, err := facts.Parse([]byte("verified: true\nnutrition:\n  - product: Cotija\n    serving_size: 1 oz (28g)\n    calories: 100\n"))
	require.NoError(t, err)
	return f
}

func TestPromptCarriesContextAndMarkerInstructions(t *testing.T) {
	srv := imageSite(t)
	snap := snapshotFor(srv)
	snap.Facts = verifiedFacts(t)
	msgs, err := NewPromptBuilder("https://www.hcmakers.com").Build(context.Background(), snap, nil, "hola")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	sys := msgs[0]
	assert.Equal(t, schema.System, sys.Role)
	assert.Contains(t, sys.Content, MarkerFor("LABEL or URL"))
	assert.Contains(t, sys.Content, FallbackLine)
	assert.Contains(t, sys.Content, "SOURCE: https://www.hcmakers.com/\nAward-winning Hispanic cheeses.")
	assert.Contains(t, sys.Content, "- PLANT: "+srv.URL+"/plant.png")
	assert.Contains(t, sys.Content, "VERIFIED NUTRITION FACTS:\nProduct | Serving")
	assert.Contains(t, sys.Content, "Cotija | 1 oz (28g) | 100")
	assert.Contains(t, sys.Content, verifiedRule)
	assert.True(t, strings.Contains(sys.Content, "Oaxaca"))

	assert.Equal(t, schema.User, msgs[1].Role)
}

func TestPromptNeverCallsDefaultFactsVerified(t *testing.T) {
	srv := imageSite(t)
	msgs, err := NewPromptBuilder("https://www.hcmakers.com").Build(context.Background(), snapshotFor(srv), nil, "hola")
	require.NoError(t, err)

	sys := msgs[0].Content
	assert.NotContains(t, sys, "VERIFIED tables override")
	assert.NotContains(t, sys, "\nVERIFIED NUTRITION FACTS:")
	assert.Contains(t, sys, "UNVERIFIED REFERENCE NUTRITION FACTS:\n(none)")
	assert.Contains(t, sys, unverifiedRule)
}

func TestPromptWithoutSnapshot(t *testing.T) {
	msgs, err := NewPromptBuilder("https://www.hcmakers.com").Build(context.Background(), nil, nil, "hola")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[1].UserInputMultiContent, 1)
}
