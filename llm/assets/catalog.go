package assets

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"salesrep/llm"
	"salesrep/llm/scrape"
)

// junkTokens exclude branding, UI chrome and tracking images.
var junkTokens = []string{
	"logo", "icon", "svg", "spacer", "favicon", "pixel", "sprite",
	"placeholder", "gravatar", "spinner", "loader", "blank.gif",
}

// socialHosts are never product imagery.
var socialHosts = []string{
	"facebook.", "fbcdn.", "twitter.", "twimg.", "instagram.", "linkedin.",
	"youtube.", "ytimg.", "pinterest.", "tiktok.",
}

// lazyAttrs are checked before src; lazy-loading themes leave src as a placeholder.
var lazyAttrs = []string{"data-src", "data-lazy-src", "data-original"}

var sizeSuffix = regexp.MustCompile(`-\d+x\d+$`)

// Catalog is the asset library of one refresh. It is replaced wholesale, never edited.
type Catalog struct {
	Priority []llm.AssetEntry
	Previews []llm.AssetEntry
	Scraped  []llm.AssetEntry
}

// BuildCatalog combines the priority map, scraped page images and document previews.
func BuildCatalog(priority []llm.AssetEntry, pages []scrape.PageHTML, docs []llm.KnowledgeDocument) *Catalog {
	return &Catalog{
		Priority: priority,
		Previews: PreviewEntries(docs),
		Scraped:  ScrapeImages(pages),
	}
}

// Entries lists every entry in lookup order.
func (c *Catalog) Entries() []llm.AssetEntry {
	if c == nil {
		return nil
	}
	out := make([]llm.AssetEntry, 0, c.Len())
	out = append(out, c.Priority...)
	out = append(out, c.Previews...)
	return append(out, c.Scraped...)
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Priority) + len(c.Previews) + len(c.Scraped)
}

// PriorityText renders the priority label map for the prompt.
func (c *Catalog) PriorityText() string {
	if c == nil || len(c.Priority) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, e := range c.Priority {
		fmt.Fprintf(&sb, "- %s: %s", e.Label, e.URL)
		if e.Description != "" {
			fmt.Fprintf(&sb, " (%s)", e.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Text renders the scraped images and document previews for the prompt.
func (c *Catalog) Text() string {
	if c == nil || len(c.Previews)+len(c.Scraped) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	if len(c.Previews) > 0 {
		sb.WriteString("DOCUMENT PREVIEWS:\n")
		for _, e := range c.Previews {
			fmt.Fprintf(&sb, "- %s: %s\n", e.Label, e.Description)
		}
	}
	if len(c.Scraped) > 0 {
		sb.WriteString("WEBSITE IMAGES:\n")
		for _, e := range c.Scraped {
			fmt.Fprintf(&sb, "- %s | %s\n", e.URL, e.Description)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ScrapeImages collects product imagery from fetched pages, in page order.
func ScrapeImages(pages []scrape.PageHTML) []llm.AssetEntry {
	seen := make(map[string]bool)
	var entries []llm.AssetEntry
	for _, p := range pages {
		base, err := url.Parse(p.URL)
		if err != nil {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
		if err != nil {
			continue
		}
		doc.Find("img").Each(func(_ int, s *goquery.Selection) {
			src := imageSource(s)
			if src == "" || strings.HasPrefix(src, "data:") {
				return
			}
			ref, err := url.Parse(src)
			if err != nil {
				return
			}
			abs := base.ResolveReference(ref)
			if abs.Scheme != "http" && abs.Scheme != "https" {
				return
			}
			u := abs.String()
			if seen[u] || IsJunk(u) {
				return
			}
			seen[u] = true

			alt, _ := s.Attr("alt")
			entries = append(entries, llm.AssetEntry{
				URL:         u,
				Source:      llm.SourceScraped,
				Description: describe(strings.TrimSpace(alt), u),
			})
		})
	}
	return entries
}

func imageSource(s *goquery.Selection) string {
	for _, attr := range lazyAttrs {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, attr := range []string{"data-srcset", "srcset"} {
		if v, ok := s.Attr(attr); ok {
			if first := firstSrcsetCandidate(v); first != "" {
				return first
			}
		}
	}
	v, _ := s.Attr("src")
	return strings.TrimSpace(v)
}

func firstSrcsetCandidate(srcset string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(srcset), ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// IsJunk reports whether an image URL is branding, UI chrome or a social asset.
func IsJunk(imageURL string) bool {
	lower := strings.ToLower(imageURL)
	u, err := url.Parse(lower)
	if err != nil {
		return true
	}
	for _, h := range socialHosts {
		if strings.Contains(u.Host, h) {
			return true
		}
	}
	for _, tok := range junkTokens {
		if strings.Contains(u.Path, tok) {
			return true
		}
	}
	return false
}

// Humanize turns "/uploads/Queso-Fresco_10oz-300x200.jpg" into "Queso Fresco 10oz".
func Humanize(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(filepath.ToSlash(p))
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = sizeSuffix.ReplaceAllString(name, "")
	name = strings.NewReplacer("-", " ", "_", " ", "+", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

func describe(alt, ref string) string {
	human := Humanize(ref)
	switch {
	case alt == "":
		return human
	case human == "" || strings.EqualFold(alt, human):
		return alt
	default:
		return alt + " (" + human + ")"
	}
}

// PreviewEntries records the first-page previews of downloaded documents.
func PreviewEntries(docs []llm.KnowledgeDocument) []llm.AssetEntry {
	var entries []llm.AssetEntry
	for _, d := range docs {
		if d.PreviewPath == "" {
			continue
		}
		name := Humanize(d.Name)
		entries = append(entries, llm.AssetEntry{
			Label:       strings.ToUpper(name),
			URL:         d.PreviewPath,
			Source:      llm.SourceDocumentPreview,
			Description: "first page of " + name,
		})
	}
	return entries
}
