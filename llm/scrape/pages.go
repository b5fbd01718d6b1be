package scrape

import (
	"context"
	"strings"

	"salesrep/llm"
)

// PageHTML is a successfully fetched page kept for the image cataloger.
type PageHTML struct {
	URL  string
	HTML string
}

// ScrapePages fetches every URL and extracts its text. Failed pages are skipped;
// the raw HTML of the good ones is returned alongside so nothing is fetched twice.
func ScrapePages(ctx context.Context, fetcher *Fetcher, extractor *Extractor, urls []string) ([]llm.ScrapedPage, []PageHTML) {
	var (
		pages []llm.ScrapedPage
		raw   []PageHTML
	)
	for _, res := range fetcher.FetchAll(ctx, urls) {
		if !res.OK() {
			continue
		}
		html := string(res.Body)
		raw = append(raw, PageHTML{URL: res.URL, HTML: html})

		text := extractor.Extract(html)
		if text == "" {
			continue
		}
		pages = append(pages, llm.ScrapedPage{URL: res.URL, Text: text})
	}
	return pages, raw
}

// JoinPages concatenates excerpts into one context block, each preceded by its SOURCE line.
func JoinPages(pages []llm.ScrapedPage) string {
	var sb strings.Builder
	for i, p := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(SourceLine(p.URL))
		sb.WriteString("\n")
		sb.WriteString(p.Text)
	}
	return sb.String()
}
