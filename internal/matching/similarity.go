// Package matching scores and selects cross-marketplace listing
// matches for discovered catalog items.
package matching

import (
	"sort"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	strmetrics "github.com/adrg/strutil/metrics"
)

const maxQueryWords = 10

// TitleSimilarity returns a 0..100 similarity score between two
// product titles. Titles are lowercased, stripped of punctuation and
// token-sorted before comparison, so word order and styling do not
// affect the score.
func TitleSimilarity(a, b string) float64 {
	na := normalizeTitle(a)
	nb := normalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	lev := strmetrics.NewLevenshtein()
	return strutil.Similarity(na, nb, lev) * 100
}

// BuildTitleQuery reduces a product title to a search query: brand
// tokens first, then cleaned title tokens in original order, repeats
// dropped, capped at a few words so marketplace search does not
// over-constrain.
func BuildTitleQuery(title, brand string) string {
	parts := append(tokenize(brand), tokenize(title)...)

	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, maxQueryWords)
	for _, tok := range parts {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
		if len(out) == maxQueryWords {
			break
		}
	}
	return strings.Join(out, " ")
}

// normalizeTitle returns the sorted, cleaned token form of a title.
func normalizeTitle(s string) string {
	tokens := tokenize(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenize(s string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Fields(cleaned)
}

// brandInTitle reports whether a known brand appears in a candidate
// title, token-wise and case-insensitively.
func brandInTitle(brand, title string) bool {
	brandTokens := tokenize(brand)
	if len(brandTokens) == 0 {
		return false
	}
	titleTokens := tokenize(title)
	seen := make(map[string]bool, len(titleTokens))
	for _, tok := range titleTokens {
		seen[tok] = true
	}
	for _, tok := range brandTokens {
		if !seen[tok] {
			return false
		}
	}
	return true
}
