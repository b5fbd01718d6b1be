package assets

import (
	"strings"
	"unicode"

	"salesrep/llm"
	"salesrep/metrics"
)

// Rank says which matching rule produced a resolution.
type Rank string

const (
	RankLiteral   Rank = "literal"
	RankExact     Rank = "exact"
	RankSubstring Rank = "substring"
	RankWords     Rank = "words"
	RankOverlap   Rank = "overlap"
	RankNone      Rank = "none"
)

// minOverlapToken is the shortest request word considered for description overlap.
const minOverlapToken = 4

// requestWords never count towards description overlap.
var requestWords = map[string]bool{
	"show": true, "picture": true, "pictures": true, "image": true, "images": true,
	"photo": true, "photos": true, "please": true, "want": true, "what": true,
	"does": true, "look": true, "looks": true, "like": true, "some": true,
	"with": true, "your": true, "have": true, "give": true, "display": true,
	"could": true, "would": true, "about": true, "this": true, "that": true,
}

// Resolver maps a free-text media request to one catalog reference.
// Resolution is deterministic for a given catalog.
type Resolver struct {
	catalog *Catalog
	metrics *metrics.Metrics
}

func NewResolver(catalog *Catalog, m *metrics.Metrics) *Resolver {
	if catalog == nil {
		catalog = &Catalog{}
	}
	return &Resolver{catalog: catalog, metrics: m}
}

// Resolve returns the reference and the rule that matched, or "" and RankNone.
func (r *Resolver) Resolve(request string) (string, Rank) {
	ref, rank := r.resolve(request)
	r.metrics.ObserveResolution(string(rank))
	return ref, rank
}

func (r *Resolver) resolve(request string) (string, Rank) {
	raw := strings.Trim(strings.TrimSpace(request), `"'`)
	if raw == "" {
		return "", RankNone
	}
	if isRemote(raw) && !strings.ContainsAny(raw, " \t\n") {
		return raw, RankLiteral
	}
	if r.isPreview(raw) {
		return raw, RankLiteral
	}

	labelled := append(append([]llm.AssetEntry{}, r.catalog.Priority...), r.catalog.Previews...)

	for _, e := range labelled {
		if strings.EqualFold(strings.TrimSpace(e.Label), raw) {
			return e.URL, RankExact
		}
	}

	req := normalize(raw)

	best, bestLen := -1, 0
	for i, e := range labelled {
		for _, cand := range append([]string{e.Label}, e.Aliases...) {
			c := normalize(cand)
			if c == "" || !containsPhrase(req, c) {
				continue
			}
			if n := len([]rune(c)); n > bestLen {
				best, bestLen = i, n
			}
		}
	}
	if best >= 0 {
		return labelled[best].URL, RankSubstring
	}

	words := wordSet(req)
	for _, e := range labelled {
		parts := strings.Fields(normalize(e.Label))
		if len(parts) < 2 {
			continue
		}
		all := true
		for _, p := range parts {
			if !words[p] {
				all = false
				break
			}
		}
		if all {
			return e.URL, RankWords
		}
	}

	var tokens []string
	for w := range words {
		if len([]rune(w)) >= minOverlapToken && !requestWords[w] {
			tokens = append(tokens, w)
		}
	}
	if len(tokens) > 0 {
		described := append(append([]llm.AssetEntry{}, r.catalog.Scraped...), r.catalog.Previews...)
		best, bestScore := -1, 0
		for i, e := range described {
			desc := wordSet(normalize(e.Description + " " + Humanize(e.URL)))
			score := 0
			for _, tok := range tokens {
				if desc[tok] {
					score++
				}
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best >= 0 {
			return described[best].URL, RankOverlap
		}
	}

	return "", RankNone
}

// isPreview reports whether p is the local path of a catalog document preview.
// Other local paths are never served.
func (r *Resolver) isPreview(p string) bool {
	for _, e := range r.catalog.Previews {
		if e.URL == p {
			return true
		}
	}
	return false
}

// pluralSuffixes let "plants" and "offices" match PLANT and OFFICE.
var pluralSuffixes = []string{"", "s", "es"}

// containsPhrase reports whether phrase occurs in req on word boundaries,
// optionally followed by a plural suffix.
func containsPhrase(req, phrase string) bool {
	padded := " " + req + " "
	for _, suffix := range pluralSuffixes {
		if strings.Contains(padded, " "+phrase+suffix+" ") {
			return true
		}
	}
	return false
}

// normalize lowercases and turns punctuation into single spaces.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

func isRemote(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
