package knowledge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"salesrep/llm"
	"salesrep/logging"
	"salesrep/metrics"
)

const pdfMIMEType = "application/pdf"

// MaxUploadBytes caps a customer-supplied document.
const MaxUploadBytes = 20 << 20

// ErrUnsupportedType rejects files the model cannot read as a document.
var ErrUnsupportedType = errors.New("unsupported document type, attach a PDF, PNG or JPG")

// documentTypes maps accepted extensions to the MIME type sent to the Files API.
var documentTypes = map[string]string{
	".pdf":  pdfMIMEType,
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// MIMETypeFor returns the upload MIME type for a file name, by extension.
func MIMETypeFor(name string) (string, bool) {
	mime, ok := documentTypes[strings.ToLower(filepath.Ext(name))]
	return mime, ok
}

// FileService is the part of the genai Files API the uploader needs.
// *genai.Files satisfies it.
type FileService interface {
	UploadFromPath(ctx context.Context, path string, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
}

// Ingester turns a downloaded document into a remotely usable one.
type Ingester interface {
	Upload(ctx context.Context, doc llm.KnowledgeDocument) llm.KnowledgeDocument
}

// Uploader pushes PDFs and images to the model provider and waits for them to become ACTIVE.
type Uploader struct {
	files   FileService
	policy  PollPolicy
	log     logging.Logger
	metrics *metrics.Metrics
}

// NewUploader creates an uploader on top of a genai file service.
func NewUploader(files FileService, policy PollPolicy, log logging.Logger, m *metrics.Metrics) *Uploader {
	return &Uploader{files: files, policy: policy, log: log, metrics: m}
}

// Upload never returns an error: the outcome is carried by the returned document's State.
func (u *Uploader) Upload(ctx context.Context, doc llm.KnowledgeDocument) llm.KnowledgeDocument {
	log := u.log.WithFields(logging.Fields{"document": doc.Name, "path": doc.LocalPath})
	defer func() {
		u.metrics.ObserveDocument(string(doc.State))
	}()

	mimeType, ok := MIMETypeFor(doc.LocalPath)
	if !ok {
		mimeType = pdfMIMEType
	}
	file, err := u.files.UploadFromPath(ctx, doc.LocalPath, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: doc.Name,
	})
	if err != nil {
		log.WithError(err).Warn("upload failed")
		doc.State = llm.StateFailed
		return doc
	}
	doc.Remote = handleOf(file, mimeType)

	if stateOf(file) == llm.StateActive {
		doc.State = llm.StateActive
		return doc
	}

	var latest *genai.File
	state, attempts := Poll(ctx, func(ctx context.Context) (llm.ProcessingState, error) {
		f, err := u.files.Get(ctx, file.Name, nil)
		if err != nil {
			return llm.StatePending, fmt.Errorf("get %s: %w", file.Name, err)
		}
		latest = f
		return stateOf(f), nil
	}, u.policy)

	if latest != nil {
		doc.Remote = handleOf(latest, mimeType)
	}
	doc.State = state
	doc.Attempts = attempts

	entry := log.WithFields(logging.Fields{"state": state, "attempts": attempts})
	if state == llm.StateActive {
		entry.Info("document active")
	} else {
		entry.Warn("document not active, excluded from answers")
	}
	return doc
}

func stateOf(f *genai.File) llm.ProcessingState {
	switch f.State {
	case genai.FileStateActive:
		return llm.StateActive
	case genai.FileStateFailed:
		return llm.StateFailed
	default:
		return llm.StatePending
	}
}

func handleOf(f *genai.File, fallback string) *llm.RemoteHandle {
	mime := f.MIMEType
	if mime == "" {
		mime = fallback
	}
	return &llm.RemoteHandle{Name: f.Name, URI: f.URI, MIMEType: mime}
}
