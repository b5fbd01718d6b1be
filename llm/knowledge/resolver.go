package knowledge

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bmatcuk/doublestar/v4"

	"salesrep/llm"
	"salesrep/llm/scrape"
	"salesrep/logging"
)

const DefaultMaxDocuments = 5

// Link is a downloadable file found on the resources page.
type Link struct {
	URL  string
	Kind string // "pdf" or "zip"
}

// ResolverConfig configures a Resolver. Uploader and Previewer are optional.
type ResolverConfig struct {
	Dir          string
	Patterns     []string
	MaxDocuments int
	Uploader     Ingester
	Previewer    *Previewer
}

// Resolver discovers catalog PDFs, unpacks ZIP archives and stages the files locally.
type Resolver struct {
	fetcher *scrape.Fetcher
	cfg     ResolverConfig
	log     logging.Logger
}

func NewResolver(fetcher *scrape.Fetcher, cfg ResolverConfig, log logging.Logger) *Resolver {
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = DefaultMaxDocuments
	}
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "salesrep", "documents")
	}
	return &Resolver{fetcher: fetcher, cfg: cfg, log: log}
}

// Resolve returns at most MaxDocuments documents found through resourcesURL.
// Failures are logged and skipped; a page without PDF or ZIP links yields nil.
func (r *Resolver) Resolve(ctx context.Context, resourcesURL string) []llm.KnowledgeDocument {
	res := r.fetcher.Fetch(ctx, resourcesURL)
	if !res.OK() {
		return nil
	}
	links := ParseLinks(resourcesURL, string(res.Body))
	if len(links) == 0 {
		r.log.WithField("url", resourcesURL).Info("no PDF or ZIP links found")
		return nil
	}
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		r.log.WithError(err).Warn("cannot create documents directory")
		return nil
	}

	names := make(map[string]int)
	var docs []llm.KnowledgeDocument
	for _, link := range links {
		if len(docs) >= r.cfg.MaxDocuments {
			break
		}
		switch link.Kind {
		case "pdf":
			if doc, ok := r.stagePDF(ctx, link.URL, names); ok {
				docs = append(docs, doc)
			}
		case "zip":
			docs = append(docs, r.stageZIP(ctx, link.URL, names, r.cfg.MaxDocuments-len(docs))...)
		}
	}

	for i := range docs {
		if r.cfg.Uploader != nil {
			docs[i] = r.cfg.Uploader.Upload(ctx, docs[i])
		}
		if r.cfg.Previewer != nil {
			if p, ok := r.cfg.Previewer.Preview(ctx, docs[i].LocalPath); ok {
				docs[i].PreviewPath = p
			}
		}
	}

	r.log.WithFields(logging.Fields{"links": len(links), "documents": len(docs)}).Info("documents resolved")
	return docs
}

func (r *Resolver) stagePDF(ctx context.Context, link string, names map[string]int) (llm.KnowledgeDocument, bool) {
	res := r.fetcher.FetchDocument(ctx, link)
	if !res.OK() {
		return llm.KnowledgeDocument{}, false
	}
	name, ok := fileName(link)
	if !ok {
		r.log.WithField("url", link).Warn("unsafe document name, skipping")
		return llm.KnowledgeDocument{}, false
	}
	local, err := r.write(name, names, res.Body)
	if err != nil {
		r.log.WithError(err).WithField("url", link).Warn("cannot stage PDF")
		return llm.KnowledgeDocument{}, false
	}
	return llm.KnowledgeDocument{
		Name:      name,
		LocalPath: local,
		SourceURL: link,
		State:     llm.StatePending,
	}, true
}

func (r *Resolver) stageZIP(ctx context.Context, link string, names map[string]int, room int) []llm.KnowledgeDocument {
	res := r.fetcher.FetchDocument(ctx, link)
	if !res.OK() {
		return nil
	}
	zr, err := zip.NewReader(bytes.NewReader(res.Body), int64(len(res.Body)))
	if err != nil {
		r.log.WithError(err).WithField("url", link).Warn("unreadable ZIP archive, skipping")
		return nil
	}

	var docs []llm.KnowledgeDocument
	for _, f := range zr.File {
		if len(docs) >= room {
			break
		}
		if !r.wantMember(f) {
			continue
		}
		data, err := readMember(f)
		if err != nil {
			r.log.WithError(err).WithField("member", f.Name).Warn("cannot read ZIP member")
			continue
		}
		name, ok := SafeName(path.Base(f.Name))
		if !ok {
			r.log.WithField("member", f.Name).Warn("unsafe ZIP member name, skipping")
			continue
		}
		local, err := r.write(name, names, data)
		if err != nil {
			r.log.WithError(err).WithField("member", f.Name).Warn("cannot stage ZIP member")
			continue
		}
		docs = append(docs, llm.KnowledgeDocument{
			Name:      name,
			LocalPath: local,
			SourceURL: link + "#" + f.Name,
			State:     llm.StatePending,
		})
	}
	return docs
}

// wantMember keeps PDF members that match any configured pattern. No patterns keeps every PDF.
func (r *Resolver) wantMember(f *zip.File) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	name := strings.ToLower(f.Name)
	if strings.HasPrefix(name, "__macosx/") || strings.HasPrefix(path.Base(name), "._") {
		return false
	}
	if path.Ext(name) != ".pdf" {
		return false
	}
	if len(r.cfg.Patterns) == 0 {
		return true
	}
	for _, p := range r.cfg.Patterns {
		if ok, _ := doublestar.Match(strings.ToLower(p), name); ok {
			return true
		}
	}
	return false
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, scrape.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > scrape.MaxBodyBytes {
		return nil, fmt.Errorf("member exceeds %d bytes", scrape.MaxBodyBytes)
	}
	return data, nil
}

// write stores data under Dir, suffixing repeated names within one refresh.
func (r *Resolver) write(name string, names map[string]int, data []byte) (string, error) {
	stored := name
	if n := names[name]; n > 0 {
		ext := filepath.Ext(name)
		stored = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
	}
	names[name]++

	local := filepath.Join(r.cfg.Dir, stored)
	if filepath.Dir(local) != filepath.Clean(r.cfg.Dir) {
		return "", fmt.Errorf("%q escapes %s", stored, r.cfg.Dir)
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", err
	}
	return local, nil
}

// ParseLinks returns the PDF and ZIP links of a page in document order, resolved
// against base and de-duplicated. Classification uses the URL path only.
func ParseLinks(base, html string) []Link {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := baseURL.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""

		var kind string
		switch strings.ToLower(path.Ext(abs.Path)) {
		case ".pdf":
			kind = "pdf"
		case ".zip":
			kind = "zip"
		default:
			return
		}
		key := abs.String()
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, Link{URL: key, Kind: kind})
	})
	return links
}

// fileName derives a local file name from a link. u.Path is already decoded once;
// decoding again would turn %252F into a separator.
func fileName(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return "document.pdf", true
	}
	return SafeName(name)
}

// SafeName accepts a bare file name only: no separators, no "..".
func SafeName(name string) (string, bool) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", false
	}
	if filepath.Base(name) != name {
		return "", false
	}
	return name, true
}
