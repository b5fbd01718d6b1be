package knowledge

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"salesrep/logging"
)

const previewTimeout = 30 * time.Second

// Previewer rasterises the first page of a PDF to PNG with poppler's pdftoppm.
type Previewer struct {
	bin string
	dir string
	log logging.Logger
}

// NewPreviewer returns nil when the binary cannot be found, so callers can skip previews.
func NewPreviewer(bin, dir string, log logging.Logger) *Previewer {
	if bin == "" {
		bin = "pdftoppm"
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		log.WithField("bin", bin).Info("pdftoppm not found, document previews disabled")
		return nil
	}
	return &Previewer{bin: resolved, dir: dir, log: log}
}

// Preview renders page one of pdfPath and returns the PNG path.
func (p *Previewer) Preview(ctx context.Context, pdfPath string) (string, bool) {
	if p == nil || pdfPath == "" {
		return "", false
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		p.log.WithError(err).Warn("cannot create preview directory")
		return "", false
	}

	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	prefix := filepath.Join(p.dir, base+"-preview")

	ctx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.bin, "-png", "-f", "1", "-l", "1", "-singlefile", "-r", "72", pdfPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		p.log.WithError(err).WithFields(logging.Fields{
			"pdf":    pdfPath,
			"output": strings.TrimSpace(string(out)),
		}).Warn("preview rendering failed")
		return "", false
	}

	png := prefix + ".png"
	if _, err := os.Stat(png); err != nil {
		return "", false
	}
	return png, true
}
