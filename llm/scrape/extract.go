package scrape

import (
	"fmt"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultTextLimit bounds each page excerpt so the prompt stays a sane size
	DefaultTextLimit = 4000

	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// invisible holds elements whose text never reaches the reader.
const invisible = "script, style, noscript, svg, iframe, template, head"

// Extractor turns an HTML document into a bounded plain excerpt.
type Extractor struct {
	limit  int
	format string
}

// NewExtractor creates an extractor. format is "text" or "markdown".
func NewExtractor(limit int, format string) *Extractor {
	if limit <= 0 {
		limit = DefaultTextLimit
	}
	format = strings.ToLower(format)
	if format != FormatMarkdown {
		format = FormatText
	}
	return &Extractor{limit: limit, format: format}
}

// Extract returns the visible text of html, truncated to the configured limit.
// Unparseable input yields an empty string.
func (e *Extractor) Extract(html string) string {
	var (
		out string
		err error
	)
	if e.format == FormatMarkdown {
		out, err = convertHTMLToMarkdown(html)
	} else {
		out, err = extractTextFromHTML(html)
	}
	if err != nil {
		return ""
	}
	return Truncate(out, e.limit)
}

func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find(invisible).Remove()

	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	text := sel.Text()
	return strings.Join(strings.Fields(text), " "), nil
}

func convertHTMLToMarkdown(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find(invisible).Remove()
	body, err := doc.Find("body").Html()
	if err != nil || body == "" {
		body = html
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(body)
	if err != nil {
		return "", err
	}

	// Clean up excessive blank lines
	var result []string
	for _, line := range strings.Split(markdown, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return strings.Join(result, "\n"), nil
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// SourceLine is the delimiter placed before each page excerpt in the prompt.
func SourceLine(url string) string {
	return fmt.Sprintf("SOURCE: %s", url)
}
