// Package corpus builds and caches everything the assistant knows about the site:
// page excerpts, the asset catalog and the uploaded documents.
package corpus

import (
	"context"
	"time"

	"salesrep/llm"
	"salesrep/llm/assets"
	"salesrep/llm/facts"
	"salesrep/llm/knowledge"
	"salesrep/llm/scrape"
	"salesrep/logging"
)

// Snapshot is one complete refresh. It is never mutated after Build returns.
type Snapshot struct {
	Pages       []llm.ScrapedPage
	Catalog     *assets.Catalog
	Documents   []llm.KnowledgeDocument
	Facts       *facts.Facts
	RefreshedAt time.Time
}

// ActiveDocuments returns the documents that may be attached to a model request.
func (s *Snapshot) ActiveDocuments() []llm.KnowledgeDocument {
	if s == nil {
		return nil
	}
	return knowledge.Active(s.Documents)
}

// PageContext joins the page excerpts with their SOURCE lines.
func (s *Snapshot) PageContext() string {
	if s == nil {
		return ""
	}
	return scrape.JoinPages(s.Pages)
}

// Source produces fresh snapshots.
type Source interface {
	Build(ctx context.Context) *Snapshot
}

// BuilderConfig wires a Builder.
type BuilderConfig struct {
	Fetcher      *scrape.Fetcher
	Extractor    *scrape.Extractor
	Documents    *knowledge.Resolver // optional
	Facts        *facts.Facts
	Pages        []string
	ResourcesURL string
}

// Builder runs a full refresh: pages, then documents, then the catalog.
type Builder struct {
	cfg BuilderConfig
	log logging.Logger
	now func() time.Time
}

func NewBuilder(cfg BuilderConfig, log logging.Logger) *Builder {
	if cfg.Facts == nil {
		cfg.Facts = facts.Default()
	}
	return &Builder{cfg: cfg, log: log, now: time.Now}
}

// Build never fails; unreachable pages and documents are simply absent.
func (b *Builder) Build(ctx context.Context) *Snapshot {
	start := b.now()

	pages, raw := scrape.ScrapePages(ctx, b.cfg.Fetcher, b.cfg.Extractor, b.cfg.Pages)

	var docs []llm.KnowledgeDocument
	if b.cfg.Documents != nil && b.cfg.ResourcesURL != "" {
		docs = b.cfg.Documents.Resolve(ctx, b.cfg.ResourcesURL)
	}

	catalog := assets.BuildCatalog(b.cfg.Facts.PriorityEntries(), raw, docs)

	snap := &Snapshot{
		Pages:       pages,
		Catalog:     catalog,
		Documents:   docs,
		Facts:       b.cfg.Facts,
		RefreshedAt: b.now(),
	}

	b.log.WithFields(logging.Fields{
		"pages":     len(pages),
		"documents": len(docs),
		"active":    len(snap.ActiveDocuments()),
		"assets":    catalog.Len(),
		"took":      b.now().Sub(start).String(),
	}).Info("knowledge refreshed")
	return snap
}
