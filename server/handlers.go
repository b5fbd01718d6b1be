package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"salesrep/llm"
	"salesrep/llm/agent"
	"salesrep/llm/assets"
	"salesrep/llm/corpus"
	"salesrep/llm/knowledge"
	"salesrep/logging"
)

// LogoCandidates are tried in order for the branding logo.
var LogoCandidates = []string{"logo.png", "logo.jpg", "nuestro_queso_logo.png"}

// Assistant is what the HTTP layer needs from the runtime. *agent.Runtime satisfies it.
type Assistant interface {
	Ask(ctx context.Context, s *agent.Session, question string) (*agent.Answer, error)
	Upload(ctx context.Context, s *agent.Session, path string) (llm.KnowledgeDocument, error)
	Snapshot() *corpus.Snapshot
	Renderer() *assets.Renderer
	Provider() string
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question" binding:"required"`
}

// ChatResponse is one answered question.
type ChatResponse struct {
	SessionID string             `json:"session_id"`
	Text      string             `json:"text"`
	AssetRef  string             `json:"asset_ref,omitempty"`
	Rendered  *llm.RenderedAsset `json:"rendered,omitempty"`
	Failed    bool               `json:"failed"`
}

// Handler serves the chat API. Sessions live in memory until deleted, idle for
// longer than Config.SessionTTL, or pushed out by Config.MaxSessions.
type Handler struct {
	assistant Assistant
	logoDir   string
	uploadDir string
	log       logging.Logger
	sessions  *expirable.LRU[string, *agent.Session]
}

func NewHandler(a Assistant, cfg Config, log logging.Logger) *Handler {
	h := &Handler{
		assistant: a,
		logoDir:   cfg.LogoDir,
		uploadDir: cfg.UploadDir,
		log:       log,
	}
	h.sessions = expirable.NewLRU[string, *agent.Session](cfg.MaxSessions, h.evicted, cfg.SessionTTL)
	return h
}

// evicted runs under the LRU lock and must not touch h.sessions.
func (h *Handler) evicted(id string, s *agent.Session) {
	s.Close()
	if h.uploadDir != "" {
		if err := os.RemoveAll(filepath.Join(h.uploadDir, id)); err != nil {
			h.log.WithError(err).WithField("session", id).Warn("failed to remove session uploads")
		}
	}
	h.log.WithField("session", id).Debug("session closed")
}

// session returns the session for id, creating one when id is empty, unknown or expired.
func (h *Handler) session(id string) *agent.Session {
	if s, ok := h.lookup(id); ok {
		return s
	}
	s := agent.NewSession()
	h.sessions.Add(s.ID, s)
	return s
}

// lookup finds a live session and restarts its idle timer.
func (h *Handler) lookup(id string) (*agent.Session, bool) {
	if id == "" {
		return nil, false
	}
	s, ok := h.sessions.Get(id)
	if !ok {
		return nil, false
	}
	h.sessions.Add(id, s)
	return s, true
}

// Chat handles POST /api/chat
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": agent.ErrEmptyQuestion.Error()})
		return
	}

	s := h.session(req.SessionID)
	c.Set("session_id", s.ID)

	ans, err := h.assistant.Ask(c.Request.Context(), s, req.Question)
	switch {
	case errors.Is(err, agent.ErrEmptyQuestion):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "session_id": s.ID})
		return
	case errors.Is(err, agent.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "session_id": s.ID})
		return
	case err != nil:
		h.log.WithError(err).WithField("session", s.ID).Error("chat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		SessionID: s.ID,
		Text:      ans.Text,
		AssetRef:  ans.AssetRef,
		Rendered:  ans.Rendered,
		Failed:    ans.Failed,
	})
}

// Turns handles GET /api/sessions/:id/turns
func (h *Handler) Turns(c *gin.Context) {
	s, ok := h.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": s.ID,
		"state":      s.State(),
		"turns":      s.Turns(),
		"documents":  s.Documents(),
	})
}

// CreateSession handles POST /api/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	s := h.session("")
	c.JSON(http.StatusCreated, gin.H{"session_id": s.ID})
}

// CloseSession handles DELETE /api/sessions/:id
func (h *Handler) CloseSession(c *gin.Context) {
	id := c.Param("id")
	s, ok := h.sessions.Peek(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	h.sessions.Remove(id)
	s.Close()
	c.Status(http.StatusNoContent)
}

// UploadDocument handles POST /api/sessions/:id/documents with a multipart
// "file" field: a catalog or sell sheet (PDF, PNG or JPG) attached to every
// later question of the session once it is ACTIVE.
func (h *Handler) UploadDocument(c *gin.Context) {
	s, ok := h.lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fh.Size > knowledge.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": agent.ErrDocumentTooLarge.Error()})
		return
	}
	name, ok := knowledge.SafeName(filepath.Base(fh.Filename))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}
	if _, ok := knowledge.MIMETypeFor(name); !ok {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": knowledge.ErrUnsupportedType.Error()})
		return
	}

	dir := filepath.Join(h.uploadDir, s.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.log.WithError(err).WithField("session", s.ID).Error("cannot create upload dir")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	dst := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		h.log.WithError(err).WithField("session", s.ID).Error("cannot store upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	doc, err := h.assistant.Upload(c.Request.Context(), s, dst)
	switch {
	case errors.Is(err, agent.ErrUploadsUnsupported):
		_ = os.Remove(dst)
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	case err != nil:
		_ = os.Remove(dst)
		h.log.WithError(err).WithField("session", s.ID).Error("upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": s.ID,
		"document":   doc,
		"attached":   doc.Usable(),
	})
}

// Asset handles GET /api/assets?ref=. Only references the assistant knows about
// are proxied: catalog entries and assets already shown in a session.
func (h *Handler) Asset(c *gin.Context) {
	ref := c.Query("ref")
	if ref == "" || !h.knownAsset(ref) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown asset"})
		return
	}
	mimeType, data, ok := h.assistant.Renderer().Proxy(c.Request.Context(), ref)
	if !ok {
		c.JSON(http.StatusBadGateway, gin.H{"error": "asset unavailable", "ref": ref})
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, mimeType, data)
}

func (h *Handler) knownAsset(ref string) bool {
	if snap := h.assistant.Snapshot(); snap != nil {
		for _, e := range snap.Catalog.Entries() {
			if e.URL == ref {
				return true
			}
		}
	}
	for _, s := range h.sessions.Values() {
		for _, t := range s.Turns() {
			if t.AssetRef == ref {
				return true
			}
		}
	}
	return false
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{
		"status":   "healthy",
		"provider": h.assistant.Provider(),
		"logo":     FindLogo(h.logoDir) != "",
	}

	snap := h.assistant.Snapshot()
	if snap == nil {
		resp["status"] = "warming"
		c.JSON(http.StatusOK, resp)
		return
	}

	resp["sessions"] = h.sessions.Len()
	resp["knowledge"] = gin.H{
		"pages":        len(snap.Pages),
		"documents":    len(snap.Documents),
		"active":       len(snap.ActiveDocuments()),
		"assets":       snap.Catalog.Len(),
		"refreshed_at": snap.RefreshedAt.Format(time.RFC3339),
	}
	c.JSON(http.StatusOK, resp)
}

// Logo handles GET /logo
func (h *Handler) Logo(c *gin.Context) {
	path := FindLogo(h.logoDir)
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no logo configured"})
		return
	}
	c.File(path)
}

// FindLogo returns the first logo candidate present in dir, or "".
func FindLogo(dir string) string {
	for _, name := range LogoCandidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
