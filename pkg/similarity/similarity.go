// Package similarity implements the text similarity scoring used for fact
// grouping and dedup
package similarity

import (
	"strings"
	"unicode"
)

// Score returns the token-set Jaccard similarity of two claim texts in
// [0, 1]. It is symmetric, reflexive (Score(a, a) == 1) and pure: no I/O,
// no randomness, identical results across environments.
//
// Tokens are lower-cased with punctuation stripped. Stop words are kept on
// purpose: short claims lose too much signal without them and start
// colliding with unrelated claims.
func Score(a, b string) float64 {
	if a == b {
		return 1.0
	}

	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// Tokenize splits text into normalized comparison tokens: lower-cased runs
// of letters and digits
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func tokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}
