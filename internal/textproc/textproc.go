// Package textproc provides the analyzer shared by the query side and the
// lexical index: unicode normalization, tokenization, high-signal term
// extraction and whitespace-safe truncation.
package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips accents and collapses whitespace.
func Normalize(text string) string {
	text = strings.ToLower(text)
	if folded, _, err := transform.String(accentFolder, text); err == nil {
		text = folded
	}
	return strings.Join(strings.Fields(text), " ")
}

// Token pattern: alphanumeric runs, allowing dots and hyphens inside
// structured identifiers (3.14, 123-456, 123.456.789-00).
var tokenPattern = regexp.MustCompile(`[a-z0-9]+(?:[.\-][a-z0-9]+)*`)

// Tokenize normalizes text and splits it into index tokens. Single-character
// tokens are always dropped; stopwords are dropped when removeStopwords is
// set. Queries and documents go through the same rules.
func Tokenize(text string, removeStopwords bool) []string {
	text = Normalize(text)
	raw := tokenPattern.FindAllString(text, -1)

	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) <= 1 {
			continue
		}
		if removeStopwords && isStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

var acronymPattern = regexp.MustCompile(`\b[A-Z]{2,}\b`)

// ExtractAcronyms returns runs of 2+ uppercase letters from the original
// (unfolded) text.
func ExtractAcronyms(text string) []string {
	return acronymPattern.FindAllString(text, -1)
}

// Structured identifier patterns: Brazilian CPF/CNPJ document numbers,
// generic numbers, and letter-digit codes like ABC-123.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`),
	regexp.MustCompile(`\b\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}\b`),
	regexp.MustCompile(`\b\d+(?:[.,]\d+)*\b`),
	regexp.MustCompile(`\b[A-Z]{2,3}-?\d{3,}\b`),
}

// ExtractIDs returns numeric and structured identifier patterns, deduplicated.
func ExtractIDs(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	for _, p := range idPatterns {
		for _, m := range p.FindAllString(text, -1) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

var sentenceSplit = regexp.MustCompile(`[.!?]\s+`)
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]`)

// ExtractProperNouns returns probable proper nouns: capitalized words that
// are not at sentence start. Lowercased, deduplicated.
func ExtractProperNouns(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	for _, sentence := range sentenceSplit.Split(text, -1) {
		words := strings.Fields(sentence)
		if len(words) < 2 {
			continue
		}
		for _, word := range words[1:] {
			if len(word) <= 2 {
				continue
			}
			first := []rune(word)[0]
			if !unicode.IsUpper(first) {
				continue
			}
			clean := nonWord.ReplaceAllString(word, "")
			if clean == "" || !unicode.IsUpper([]rune(clean)[0]) {
				continue
			}
			lower := strings.ToLower(clean)
			if _, ok := seen[lower]; ok {
				continue
			}
			seen[lower] = struct{}{}
			out = append(out, lower)
		}
	}
	return out
}

var quotedPattern = regexp.MustCompile(`"([^"]+)"`)

// ExtractQuoted returns the contents of double-quoted phrases.
func ExtractQuoted(text string) []string {
	matches := quotedPattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 && strings.TrimSpace(m[1]) != "" {
			out = append(out, m[1])
		}
	}
	return out
}

// CountCoveredTerms reports how many terms appear in text as a
// case-insensitive substring.
func CountCoveredTerms(text string, terms []string) int {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			found++
		}
	}
	return found
}

// Ellipsis marks truncated chunk text.
const Ellipsis = "..."

// TruncateAtWhitespace caps text at maxChars without splitting a token: the
// cut moves back to the last space when that space lies within the final 20%
// of the limit, and the ellipsis marker is appended either way.
func TruncateAtWhitespace(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	truncated := text[:cut]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxChars*8/10 {
		return truncated[:lastSpace] + Ellipsis
	}
	return truncated + Ellipsis
}
