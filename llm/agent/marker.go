package agent

import (
	"regexp"
	"strings"
)

// The model asks for an image by writing <<<IMG: value>>> somewhere in its reply.
// MarkerFor and ParseMarker are the only two places that know the syntax.
const (
	markerOpen  = "<<<IMG:"
	markerClose = ">>>"
)

var (
	markerRe   = regexp.MustCompile(`<<<IMG:\s*(.+?)\s*>>>+`)
	fenceRe    = regexp.MustCompile("(?m)^\\s*```[A-Za-z0-9_-]*\\s*$\\n?")
	residualRe = regexp.MustCompile(`<<<\s*IMG:?[^\n]*`)
	blankRe    = regexp.MustCompile(`\n{3,}`)
)

// MarkerFor renders the marker for value, as shown to the model in the instructions.
func MarkerFor(value string) string {
	return markerOpen + " " + value + markerClose
}

// ParseMarker extracts the first marker value and returns text with every marker,
// code fence and dangling marker fragment removed.
func ParseMarker(text string) (clean, value string, found bool) {
	if m := markerRe.FindStringSubmatch(text); m != nil {
		value = strings.Trim(strings.TrimSpace(m[1]), "\"'`<> ")
		found = value != ""
	}
	return Clean(text), value, found
}

// Clean strips marker syntax and code fences from text meant for display.
func Clean(text string) string {
	text = markerRe.ReplaceAllString(text, "")
	text = residualRe.ReplaceAllString(text, "")
	text = fenceRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "```", "")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
