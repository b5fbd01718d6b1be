package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesrep/llm"
	"salesrep/llm/facts"
	"salesrep/llm/scrape"
	"salesrep/logging"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

const productsHTML = `<html><body>
<img src="/wp-content/uploads/nuestro-queso-logo.png" alt="Logo">
<img src="placeholder.gif" data-src="/wp-content/uploads/Queso-Fresco_10oz-300x200.jpg" alt="Queso Fresco 10 oz">
<img srcset="/wp-content/uploads/panela-block-1024x768.jpg 1024w, /wp-content/uploads/panela-block.jpg 2048w">
<img src="data:image/gif;base64,R0lGOD">
<img src="https://scontent.fbcdn.net/v/cheese.jpg">
<img src="/wp-content/uploads/Queso-Fresco_10oz-300x200.jpg">
<img src="/wp-content/uploads/cotija_crumbled.webp" alt="">
</body></html>`

func TestScrapeImages(t *testing.T) {
	entries := ScrapeImages([]scrape.PageHTML{{URL: "https://www.hcmakers.com/products/", HTML: productsHTML}})

	require.Len(t, entries, 3)
	assert.Equal(t, "https://www.hcmakers.com/wp-content/uploads/Queso-Fresco_10oz-300x200.jpg", entries[0].URL)
	assert.Equal(t, "Queso Fresco 10 oz (Queso Fresco 10oz)", entries[0].Description)
	assert.Equal(t, llm.SourceScraped, entries[0].Source)

	assert.Equal(t, "https://www.hcmakers.com/wp-content/uploads/panela-block-1024x768.jpg", entries[1].URL)
	assert.Equal(t, "panela block", entries[1].Description)

	assert.Equal(t, "cotija crumbled", entries[2].Description)
}

func TestIsJunk(t *testing.T) {
	for _, u := range []string{
		"https://x.com/wp-content/themes/site/favicon.ico",
		"https://x.com/img/arrow-icon.png",
		"https://x.com/img/shape.svg",
		"https://x.com/img/spacer.gif",
		"https://www.instagram.com/p/abc.jpg",
	} {
		assert.True(t, IsJunk(u), u)
	}
	assert.False(t, IsJunk("https://www.hcmakers.com/wp-content/uploads/oaxaca.jpg"))
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Queso Fresco 10oz", Humanize("https://a/uploads/Queso-Fresco_10oz-300x200.jpg"))
	assert.Equal(t, "Crema Mexicana", Humanize("https://a/Crema%20Mexicana.png?ver=3"))
	assert.Equal(t, "fresco sell sheet", Humanize("/tmp/work/fresco_sell-sheet.pdf"))
}

func testCatalog() *Catalog {
	return &Catalog{
		Priority: facts.Default().PriorityEntries(),
		Previews: PreviewEntries([]llm.KnowledgeDocument{
			{Name: "Panela-Spec-Sheet.pdf", PreviewPath: "/tmp/previews/panela-preview.png"},
			{Name: "no-preview.pdf"},
		}),
		Scraped: []llm.AssetEntry{
			{URL: "https://www.hcmakers.com/uploads/tacos-with-cotija.jpg", Source: llm.SourceScraped, Description: "Street tacos topped with cotija"},
			{URL: "https://www.hcmakers.com/uploads/quesadilla.jpg", Source: llm.SourceScraped, Description: "Melted oaxaca quesadilla recipe"},
			{URL: "https://www.hcmakers.com/uploads/quesadilla-2.jpg", Source: llm.SourceScraped, Description: "Melted oaxaca quesadilla recipe"},
		},
	}
}

func urlOf(t *testing.T, c *Catalog, label string) string {
	t.Helper()
	for _, e := range c.Priority {
		if e.Label == label {
			return e.URL
		}
	}
	t.Fatalf("label %s not in priority map", label)
	return ""
}

func TestResolvePriorityExactLabelWins(t *testing.T) {
	c := testCatalog()
	// A scraped entry describing the plant must not shadow the priority map.
	c.Scraped = append([]llm.AssetEntry{{URL: "https://cdn/other-plant.jpg", Description: "PLANT"}}, c.Scraped...)
	r := NewResolver(c, nil)

	for _, e := range c.Priority {
		ref, rank := r.Resolve(strings.ToLower(e.Label))
		assert.Equal(t, e.URL, ref, e.Label)
		assert.Equal(t, RankExact, rank)
	}
}

func TestResolveShowMeThePlant(t *testing.T) {
	c := testCatalog()
	r := NewResolver(c, nil)

	ref, rank := r.Resolve("show me the plant")
	assert.Equal(t, urlOf(t, c, "PLANT"), ref)
	assert.Equal(t, RankSubstring, rank)
	assert.NotEqual(t, urlOf(t, c, "OFFICE"), ref)
	assert.NotEqual(t, urlOf(t, c, "LAB"), ref)
}

func TestResolveLongestSubstringWins(t *testing.T) {
	c := testCatalog()
	r := NewResolver(c, nil)

	ref, _ := r.Resolve("a photo of the plant interior please")
	assert.Equal(t, urlOf(t, c, "PLANT INTERIOR"), ref)

	ref, _ = r.Resolve("your factory")
	assert.Equal(t, urlOf(t, c, "PLANT"), ref)
}

func TestResolveSubstringNeedsWordBoundary(t *testing.T) {
	r := NewResolver(testCatalog(), nil)
	ref, _ := r.Resolve("collaboration")
	assert.NotEqual(t, urlOf(t, testCatalog(), "LAB"), ref)
}

func TestResolvePluralRequests(t *testing.T) {
	c := testCatalog()
	r := NewResolver(c, nil)

	ref, rank := r.Resolve("show me your plants")
	assert.Equal(t, urlOf(t, c, "PLANT"), ref)
	assert.Equal(t, RankSubstring, rank)

	ref, rank = r.Resolve("pictures of the offices")
	assert.Equal(t, urlOf(t, c, "OFFICE"), ref)
	assert.Equal(t, RankSubstring, rank)

	ref, _ = r.Resolve("any labs?")
	assert.Equal(t, urlOf(t, c, "LAB"), ref)

	ref, _ = r.Resolve("collaborations")
	assert.NotEqual(t, urlOf(t, c, "LAB"), ref)
}

func TestResolveLocalPathOnlyForPreviews(t *testing.T) {
	local := filepath.Join(t.TempDir(), "secrets.png")
	require.NoError(t, os.WriteFile(local, pngBytes, 0o644))
	r := NewResolver(testCatalog(), nil)

	ref, rank := r.Resolve(local)
	assert.Empty(t, ref)
	assert.Equal(t, RankNone, rank)

	ref, rank = r.Resolve("/etc/passwd")
	assert.Empty(t, ref)
	assert.Equal(t, RankNone, rank)
}

func TestResolveAllWordsOfMultiWordLabel(t *testing.T) {
	c := testCatalog()
	r := NewResolver(c, nil)

	ref, rank := r.Resolve("mexicana, the crema one")
	assert.Equal(t, urlOf(t, c, "CREMA MEXICANA"), ref)
	assert.Equal(t, RankSubstring, rank, "alias crema matches first")

	c.Priority = []llm.AssetEntry{{Label: "SPEC SHEET BUNDLE", URL: "https://a/bundle.png", Source: llm.SourceHardcoded}}
	ref, rank = NewResolver(c, nil).Resolve("the bundle of every spec sheet")
	assert.Equal(t, "https://a/bundle.png", ref)
	assert.Equal(t, RankWords, rank)
}

func TestResolveDescriptionOverlap(t *testing.T) {
	c := testCatalog()
	c.Priority = nil
	r := NewResolver(c, nil)

	ref, rank := r.Resolve("show me a melted quesadilla")
	assert.Equal(t, "https://www.hcmakers.com/uploads/quesadilla.jpg", ref, "ties go to catalog order")
	assert.Equal(t, RankOverlap, rank)

	ref, _ = r.Resolve("street tacos")
	assert.Equal(t, "https://www.hcmakers.com/uploads/tacos-with-cotija.jpg", ref)
}

func TestResolvePreviewLabel(t *testing.T) {
	r := NewResolver(testCatalog(), nil)
	ref, rank := r.Resolve("Panela Spec Sheet")
	assert.Equal(t, "/tmp/previews/panela-preview.png", ref)
	assert.Equal(t, RankExact, rank)
}

func TestResolveLiteralAndMiss(t *testing.T) {
	r := NewResolver(testCatalog(), nil)

	ref, rank := r.Resolve(" https://www.hcmakers.com/uploads/direct.jpg ")
	assert.Equal(t, "https://www.hcmakers.com/uploads/direct.jpg", ref)
	assert.Equal(t, RankLiteral, rank)

	ref, rank = r.Resolve("/tmp/previews/panela-preview.png")
	assert.Equal(t, "/tmp/previews/panela-preview.png", ref)
	assert.Equal(t, RankLiteral, rank)

	ref, rank = r.Resolve("what time is it in Tokyo")
	assert.Empty(t, ref)
	assert.Equal(t, RankNone, rank)

	ref, rank = r.Resolve("   ")
	assert.Empty(t, ref)
	assert.Equal(t, RankNone, rank)
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewResolver(testCatalog(), nil)
	requests := []string{"show me the plant", "melted oaxaca quesadilla", "cotija tacos", "lab", "nothing at all"}
	for _, req := range requests {
		first, firstRank := r.Resolve(req)
		for i := 0; i < 20; i++ {
			ref, rank := r.Resolve(req)
			assert.Equal(t, first, ref, req)
			assert.Equal(t, firstRank, rank, req)
		}
	}
}

func TestCatalogText(t *testing.T) {
	c := testCatalog()
	assert.Contains(t, c.PriorityText(), "- PLANT: https://")
	assert.Contains(t, c.Text(), "DOCUMENT PREVIEWS:\n- PANELA SPEC SHEET: first page of Panela Spec Sheet")
	assert.Contains(t, c.Text(), "WEBSITE IMAGES:")
	assert.Equal(t, "(none)", (&Catalog{}).Text())
	assert.Equal(t, 3+1+len(c.Priority), len(c.Entries()))
}

func newImageOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/protected.png", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Referer"), "https://www.hcmakers.com") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not an image</html>"))
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRenderEmbedsRemoteImage(t *testing.T) {
	srv := newImageOrigin(t)
	dir := t.TempDir()
	fetcher := scrape.NewFetcher(time.Second, "https://www.hcmakers.com", logging.Discard())
	r := NewRenderer(fetcher, dir, logging.Discard(), nil)

	asset := r.Render(context.Background(), srv.URL+"/protected.png")
	require.NotNil(t, asset)
	assert.Equal(t, llm.RenderEmbedded, asset.Mode)
	assert.Equal(t, "image/png", asset.MIMEType)
	assert.Equal(t, len(pngBytes), asset.Size)
	assert.True(t, strings.HasPrefix(asset.DataURI, "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(asset.Markup, `<img src="data:image/png;base64,`))
	assert.FileExists(t, asset.LocalPath)
}

func TestRenderNeverFails(t *testing.T) {
	srv := newImageOrigin(t)
	fetcher := scrape.NewFetcher(100*time.Millisecond, "", logging.Discard())
	r := NewRenderer(fetcher, "", logging.Discard(), nil)

	refs := []string{
		srv.URL + "/protected.png", // 403 without the site Referer
		srv.URL + "/missing.png",
		srv.URL + "/page.html",
		srv.URL + "/slow.png",
		"http://127.0.0.1:1/nothing.png",
		"/does/not/exist.png",
		"",
	}
	for _, ref := range refs {
		var asset *llm.RenderedAsset
		require.NotPanics(t, func() { asset = r.Render(context.Background(), ref) }, ref)
		require.NotNil(t, asset, ref)
		assert.Equal(t, llm.RenderLink, asset.Mode, ref)
		assert.Equal(t, ref, asset.Ref)
		assert.Contains(t, asset.Markup, "<a href=")
		assert.Empty(t, asset.DataURI)
	}
}

func TestRenderLocalFile(t *testing.T) {
	local := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, os.WriteFile(local, pngBytes, 0o644))
	r := NewRenderer(scrape.NewFetcher(time.Second, "", logging.Discard()), "", logging.Discard(), nil)

	asset := r.Render(context.Background(), local)
	assert.Equal(t, llm.RenderEmbedded, asset.Mode)
	assert.Equal(t, local, asset.LocalPath)

	mimeType, data, ok := r.Proxy(context.Background(), local)
	require.True(t, ok)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, pngBytes, data)

	_, _, ok = r.Proxy(context.Background(), "/does/not/exist.png")
	assert.False(t, ok)
}

func TestLinkMarkupIsEscaped(t *testing.T) {
	asset := linkAsset(`https://a/x.png?q="><script>`)
	assert.NotContains(t, asset.Markup, "<script>")
}
