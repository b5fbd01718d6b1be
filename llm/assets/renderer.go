package assets

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"salesrep/llm"
	"salesrep/llm/scrape"
	"salesrep/logging"
	"salesrep/metrics"
)

var errNotImage = errors.New("content is not an image")

// Renderer fetches image bytes server-side so the origin's hotlink protection
// never reaches the end user. Failures degrade to a plain link.
type Renderer struct {
	fetcher *scrape.Fetcher
	saveDir string
	log     logging.Logger
	metrics *metrics.Metrics
}

// NewRenderer creates a renderer. When saveDir is set, embedded images are also written there.
func NewRenderer(fetcher *scrape.Fetcher, saveDir string, log logging.Logger, m *metrics.Metrics) *Renderer {
	return &Renderer{fetcher: fetcher, saveDir: saveDir, log: log, metrics: m}
}

// Render never fails: the result is either embedded or a link to ref.
func (r *Renderer) Render(ctx context.Context, ref string) (out *llm.RenderedAsset) {
	defer func() {
		if p := recover(); p != nil {
			r.log.WithField("ref", ref).Errorf("render panic: %v", p)
			out = linkAsset(ref)
		}
		r.metrics.ObserveRender(string(out.Mode))
	}()

	mimeType, data, err := r.load(ctx, ref)
	if err != nil {
		r.log.WithError(err).WithField("ref", ref).Warn("image not embeddable, falling back to link")
		return linkAsset(ref)
	}

	uri := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	asset := &llm.RenderedAsset{
		Ref:      ref,
		Mode:     llm.RenderEmbedded,
		MIMEType: mimeType,
		Size:     len(data),
		DataURI:  uri,
		Markup:   fmt.Sprintf(`<img src="%s" alt="%s"/>`, uri, html.EscapeString(Humanize(ref))),
	}

	if !isRemote(ref) {
		asset.LocalPath = ref
	} else if r.saveDir != "" {
		if p, err := r.save(ref, mimeType, data); err == nil {
			asset.LocalPath = p
		} else {
			r.log.WithError(err).Debug("could not save rendered image")
		}
	}
	return asset
}

// Proxy returns the raw bytes of an image reference for HTTP re-serving.
func (r *Renderer) Proxy(ctx context.Context, ref string) (string, []byte, bool) {
	mimeType, data, err := r.load(ctx, ref)
	if err != nil {
		return "", nil, false
	}
	return mimeType, data, true
}

func (r *Renderer) load(ctx context.Context, ref string) (string, []byte, error) {
	if ref == "" {
		return "", nil, errors.New("empty reference")
	}

	if isRemote(ref) {
		res := r.fetcher.FetchImage(ctx, ref)
		if !res.OK() {
			return "", nil, res.Err
		}
		mimeType := imageType(res.ContentType, res.Body, ref)
		if mimeType == "" {
			return "", nil, errNotImage
		}
		return mimeType, res.Body, nil
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return "", nil, err
	}
	mimeType := imageType("", data, ref)
	if mimeType == "" {
		return "", nil, errNotImage
	}
	return mimeType, data, nil
}

// imageType trusts the declared type, then content sniffing, then the extension.
func imageType(declared string, data []byte, ref string) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if declared == "" || strings.HasPrefix(declared, "application/octet-stream") {
		ext := strings.ToLower(filepath.Ext(strings.SplitN(ref, "?", 2)[0]))
		if byExt := mime.TypeByExtension(ext); strings.HasPrefix(byExt, "image/") && len(data) > 0 {
			mt, _, _ := mime.ParseMediaType(byExt)
			return mt
		}
	}
	return ""
}

func (r *Renderer) save(ref, mimeType string, data []byte) (string, error) {
	if err := os.MkdirAll(r.saveDir, 0o755); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(ref))
	ext := ".img"
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		ext = exts[0]
	}
	p := filepath.Join(r.saveDir, "asset-"+hex.EncodeToString(sum[:6])+ext)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func linkAsset(ref string) *llm.RenderedAsset {
	return &llm.RenderedAsset{
		Ref:    ref,
		Mode:   llm.RenderLink,
		Markup: fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener">View image</a>`, html.EscapeString(ref)),
	}
}
