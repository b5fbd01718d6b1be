package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"salesrep/config"
	"salesrep/llm"
	"salesrep/llm/knowledge"
	"salesrep/llm/providers"
	"salesrep/logging"
)

func countingSite(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<html><body><p>Oaxaca is our Gold Medal Winner.</p></body></html>`))
	})
	mux.HandleFunc("/resources/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<a href="/files/oaxaca-sell-sheet.pdf">Oaxaca</a>`))
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("%PDF-1.4 oaxaca"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSetupRuntimeMissingKeyStopsBeforeFetching(t *testing.T) {
	var hits atomic.Int32
	srv := countingSite(t, &hits)

	cfg := &config.Config{
		Provider:     config.ProviderGemini,
		SiteOrigin:   srv.URL,
		Pages:        []string{srv.URL + "/"},
		ResourcesURL: srv.URL + "/resources/",
	}
	rt, err := SetupRuntime(context.Background(), cfg, logging.Discard(), nil)
	require.Error(t, err)
	assert.Nil(t, rt)
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
	assert.Zero(t, hits.Load())
}

// processingFiles accepts uploads that never leave PROCESSING.
type processingFiles struct{ gets atomic.Int32 }

func (p *processingFiles) UploadFromPath(_ context.Context, path string, cfg *genai.UploadFileConfig) (*genai.File, error) {
	return &genai.File{Name: "files/" + cfg.DisplayName, URI: "https://files.example/" + cfg.DisplayName, State: genai.FileStateProcessing}, nil
}

func (p *processingFiles) Get(_ context.Context, name string, _ *genai.GetFileConfig) (*genai.File, error) {
	p.gets.Add(1)
	return &genai.File{Name: name, URI: "https://files.example/x", State: genai.FileStateProcessing}, nil
}

func TestRuntimeStuckDocumentExcludedModelStillCalled(t *testing.T) {
	var hits atomic.Int32
	srv := countingSite(t, &hits)

	cfg := &config.Config{
		Provider:      config.ProviderGemini,
		APIKey:        "test",
		SiteOrigin:    srv.URL,
		Pages:         []string{srv.URL + "/"},
		ResourcesURL:  srv.URL + "/resources/",
		FetchTimeout:  time.Second,
		PageTextLimit: 1000,
		MaxDocuments:  5,
		PollAttempts:  3,
		PollInterval:  time.Millisecond,
		CacheTTL:      time.Hour,
		WorkDir:       t.TempDir(),
	}
	files := &processingFiles{}
	fm := &fakeModel{reply: "Oaxaca is the one for melting."}
	rt, err := NewRuntime(cfg, &providers.Provider{Name: "gemini", Model: fm, Files: files}, logging.Discard(), nil)
	require.NoError(t, err)
	defer rt.Close()

	s := NewSession()
	ans, err := rt.Ask(context.Background(), s, "What melts best?")
	require.NoError(t, err)
	assert.Equal(t, "Oaxaca is the one for melting.", ans.Text)
	assert.Equal(t, 1, fm.calls)

	snap := rt.Snapshot()
	require.NotNil(t, snap)
	require.Len(t, snap.Documents, 1)
	assert.Equal(t, llm.StateFailed, snap.Documents[0].State)
	assert.Equal(t, int32(3), files.gets.Load())
	assert.Empty(t, snap.ActiveDocuments())

	parts := fm.userParts()
	require.Len(t, parts, 1, "only the question text is sent")
	assert.Equal(t, "What melts best?", parts[0].Text)

	// second question reuses the cached snapshot
	before := hits.Load()
	_, err = rt.Ask(context.Background(), s, "And for grilling?")
	require.NoError(t, err)
	assert.Equal(t, before, hits.Load())
	assert.Len(t, s.Turns(), 4)
}

// activeFiles accepts uploads that are ACTIVE immediately.
type activeFiles struct{ uploaded atomic.Int32 }

func (a *activeFiles) UploadFromPath(_ context.Context, path string, cfg *genai.UploadFileConfig) (*genai.File, error) {
	a.uploaded.Add(1)
	return &genai.File{
		Name:     "files/" + cfg.DisplayName,
		URI:      "https://files.example/" + cfg.DisplayName,
		MIMEType: cfg.MIMEType,
		State:    genai.FileStateActive,
	}, nil
}

func (a *activeFiles) Get(_ context.Context, name string, _ *genai.GetFileConfig) (*genai.File, error) {
	return &genai.File{Name: name, State: genai.FileStateActive}, nil
}

func uploadConfig(t *testing.T, srv *httptest.Server) *config.Config {
	t.Helper()
	return &config.Config{
		Provider:      config.ProviderGemini,
		APIKey:        "test",
		SiteOrigin:    srv.URL,
		Pages:         []string{srv.URL + "/"},
		ResourcesURL:  srv.URL + "/resources/",
		FetchTimeout:  time.Second,
		PageTextLimit: 1000,
		MaxDocuments:  5,
		PollAttempts:  1,
		PollInterval:  time.Millisecond,
		CacheTTL:      time.Hour,
		WorkDir:       t.TempDir(),
	}
}

func TestRuntimeUploadAttachesCustomerDocument(t *testing.T) {
	var hits atomic.Int32
	srv := countingSite(t, &hits)
	fm := &fakeModel{reply: "That shelf fits our 10 oz Oaxaca."}
	rt, err := NewRuntime(uploadConfig(t, srv), &providers.Provider{Name: "gemini", Model: fm, Files: &activeFiles{}}, logging.Discard(), nil)
	require.NoError(t, err)
	defer rt.Close()

	shelf := filepath.Join(t.TempDir(), "shelf.png")
	require.NoError(t, os.WriteFile(shelf, []byte("\x89PNG\r\n\x1a\n"), 0o644))

	s := NewSession()
	doc, err := rt.Upload(context.Background(), s, shelf)
	require.NoError(t, err)
	assert.True(t, doc.Usable())
	assert.Equal(t, "image/png", doc.Remote.MIMEType)
	require.Len(t, s.Documents(), 1)

	_, err = rt.Ask(context.Background(), s, "Which cheese fits this shelf?")
	require.NoError(t, err)

	parts := fm.userParts()
	require.Len(t, parts, 3, "site sell sheet, customer upload, question")
	assert.Equal(t, "oaxaca-sell-sheet.pdf", parts[0].File.Name)
	require.NotNil(t, parts[1].File)
	assert.Equal(t, "shelf.png", parts[1].File.Name)
	assert.Equal(t, "image/png", parts[1].File.MIMEType)
	assert.Equal(t, "Which cheese fits this shelf?", parts[2].Text)

	other := NewSession()
	_, err = rt.Ask(context.Background(), other, "Which cheese melts?")
	require.NoError(t, err)
	assert.Len(t, fm.userParts(), 2, "uploads stay in their own session")
}

func TestRuntimeUploadRejections(t *testing.T) {
	var hits atomic.Int32
	srv := countingSite(t, &hits)
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hi"), 0o644))
	sheet := filepath.Join(dir, "sheet.pdf")
	require.NoError(t, os.WriteFile(sheet, []byte("%PDF-1.4"), 0o644))

	rt, err := NewRuntime(uploadConfig(t, srv), &providers.Provider{Name: "gemini", Model: &fakeModel{}, Files: &activeFiles{}}, logging.Discard(), nil)
	require.NoError(t, err)
	defer rt.Close()

	s := NewSession()
	_, err = rt.Upload(context.Background(), s, notes)
	assert.ErrorIs(t, err, knowledge.ErrUnsupportedType)
	_, err = rt.Upload(context.Background(), s, filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
	assert.Empty(t, s.Documents())

	noFiles, err := NewRuntime(uploadConfig(t, srv), &providers.Provider{Name: "openai", Model: &fakeModel{}}, logging.Discard(), nil)
	require.NoError(t, err)
	defer noFiles.Close()
	_, err = noFiles.Upload(context.Background(), s, sheet)
	assert.ErrorIs(t, err, ErrUploadsUnsupported)
	assert.Empty(t, s.Documents())
}
