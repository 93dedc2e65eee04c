package usecase

import (
	"strings"

	"github.com/kirillkom/hybrid-retrieval/internal/textproc"
)

// AnalyzedQuery holds the three views of one raw query: natural phrasing for
// dense search, a keyword string for sparse search, and the high-specificity
// terms used by the coverage check.
type AnalyzedQuery struct {
	Dense    string
	Sparse   string
	MustHave []string
}

// AnalyzeQuery derives all three views from one raw query string. Empty
// input yields empty outputs; there are no failure modes.
func AnalyzeQuery(raw string) AnalyzedQuery {
	return AnalyzedQuery{
		Dense:    denseQuery(raw),
		Sparse:   sparseQuery(raw),
		MustHave: mustHaveTerms(raw),
	}
}

// denseQuery keeps the natural language structure; semantic search benefits
// from full phrasing, so only whitespace is normalized.
func denseQuery(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// sparseQuery builds the keyword query: high-signal tokens first (acronyms,
// identifier patterns, probable proper nouns), then the regular stopword-free
// tokens. Deduplicated, order preserved.
func sparseQuery(raw string) string {
	parts := make([]string, 0, 16)
	parts = append(parts, textproc.ExtractAcronyms(raw)...)
	parts = append(parts, textproc.ExtractIDs(raw)...)
	parts = append(parts, textproc.ExtractProperNouns(raw)...)
	parts = append(parts, textproc.Tokenize(raw, true)...)

	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		lower := strings.ToLower(p)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, lower)
	}
	return strings.Join(out, " ")
}

// mustHaveTerms extracts the terms good results are expected to contain:
// acronyms, identifier patterns, and the tokens of quoted phrases (kept
// stopwords and all, since quoting signals intent). Used only for coverage
// scoring, never for filtering.
func mustHaveTerms(raw string) []string {
	terms := make([]string, 0, 8)
	for _, a := range textproc.ExtractAcronyms(raw) {
		terms = append(terms, strings.ToLower(a))
	}
	for _, id := range textproc.ExtractIDs(raw) {
		terms = append(terms, strings.ToLower(id))
	}
	for _, q := range textproc.ExtractQuoted(raw) {
		terms = append(terms, textproc.Tokenize(q, false)...)
	}

	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
