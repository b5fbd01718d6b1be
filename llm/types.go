package llm

import "time"

// AssetSource identifies where a catalog entry came from.
type AssetSource string

const (
	SourceHardcoded       AssetSource = "HARDCODED"
	SourceScraped         AssetSource = "SCRAPED"
	SourceDocumentPreview AssetSource = "DOCUMENT_PREVIEW"
)

// AssetEntry is one displayable image or document preview known to the assistant.
// Labels are not unique; the first matching entry wins on lookup.
type AssetEntry struct {
	Label       string      `json:"label"`
	URL         string      `json:"url"` // absolute http(s) URL or local file path
	Source      AssetSource `json:"source"`
	Description string      `json:"description,omitempty"`
	Aliases     []string    `json:"aliases,omitempty"`
}

// ProcessingState is the remote ingestion state of an uploaded document.
type ProcessingState string

const (
	StatePending ProcessingState = "PENDING"
	StateActive  ProcessingState = "ACTIVE"
	StateFailed  ProcessingState = "FAILED"
)

// RemoteHandle is what the model provider returned for an uploaded file.
type RemoteHandle struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type"`
}

// KnowledgeDocument is a downloaded PDF and its upload state.
type KnowledgeDocument struct {
	Name        string          `json:"name"`
	LocalPath   string          `json:"local_path"`
	SourceURL   string          `json:"source_url"`
	PreviewPath string          `json:"preview_path,omitempty"`
	Remote      *RemoteHandle   `json:"remote,omitempty"`
	State       ProcessingState `json:"state"`
	Attempts    int             `json:"attempts"`
}

// Usable reports whether the document may be passed to the answer model.
func (d KnowledgeDocument) Usable() bool {
	return d.State == StateActive && d.Remote != nil && d.Remote.URI != ""
}

// ScrapedPage is the truncated visible text of one allow-listed page.
type ScrapedPage struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Role is the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RenderMode says how a resolved asset ended up being delivered.
type RenderMode string

const (
	RenderEmbedded RenderMode = "embedded"
	RenderLink     RenderMode = "link"
)

// RenderedAsset is the output of the secure image renderer.
type RenderedAsset struct {
	Ref       string     `json:"ref"`
	Mode      RenderMode `json:"mode"`
	MIMEType  string     `json:"mime_type,omitempty"`
	Size      int        `json:"size,omitempty"`
	DataURI   string     `json:"data_uri,omitempty"`
	Markup    string     `json:"markup"`
	LocalPath string     `json:"local_path,omitempty"`
}

// ChatTurn is one entry of a session's append-only log.
// Only assistant turns carry an asset reference.
type ChatTurn struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	AssetRef  string         `json:"asset_ref,omitempty"`
	Rendered  *RenderedAsset `json:"rendered,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
