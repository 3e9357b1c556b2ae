// File: internal/textmatch/textmatch.go

// Package textmatch scores noisy OCR text against known vocabulary.
//
// The game renders its UI in a stylized font, and OCR output regularly swaps
// glyph pairs such as 0/O, 1/L/I, 5/S and 8/B. Every comparison in this
// package is therefore done on Normalize'd input, where those pairs collapse
// onto a single canonical character before the Sørensen–Dice bigram
// coefficient is computed.
package textmatch

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTextThreshold is the minimum score for a target to count as present in a reading.
	DefaultTextThreshold = 0.6
	// DefaultPrefixThreshold is the minimum score for a leading verb phrase to match.
	DefaultPrefixThreshold = 0.8
	// DefaultVocabularyThreshold is the minimum score for a token to match a vocabulary word.
	DefaultVocabularyThreshold = 0.7
)

// confusables maps every glyph OCR commonly misreads onto one canonical letter.
var confusables = strings.NewReplacer(
	"0", "O",
	"1", "I",
	"L", "I",
	"5", "S",
	"8", "B",
)

// Normalize uppercases s and folds OCR-confusable glyphs to a canonical form.
func Normalize(s string) string {
	return confusables.Replace(strings.ToUpper(s))
}

// Compact is Normalize with all whitespace removed. OCR frequently inserts or
// drops spaces inside a single word.
func Compact(s string) string {
	return strings.Join(strings.Fields(Normalize(s)), "")
}

// Similarity returns the Sørensen–Dice coefficient of the bigram multisets of a
// and b. It is symmetric, Similarity(x, x) == 1, and an empty string scores 0
// against any non-empty string. Two empty strings score 1.
//
// Callers are expected to pass Normalize'd input.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ga := bigrams(a)
	gb := bigrams(b)

	counts := make(map[string]int, len(ga))
	for _, g := range ga {
		counts[g]++
	}
	shared := 0
	for _, g := range gb {
		if counts[g] > 0 {
			counts[g]--
			shared++
		}
	}
	return 2.0 * float64(shared) / float64(len(ga)+len(gb))
}

// bigrams splits s into overlapping two-rune grams. Strings shorter than two
// runes yield themselves as a single gram so they still compare meaningfully.
func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return []string{s}
	}
	grams := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		grams = append(grams, string(runes[i:i+2]))
	}
	return grams
}

// Match is the outcome of a fuzzy lookup.
type Match struct {
	// Text is the candidate exactly as supplied by the caller.
	Text  string
	Score float64
}

// BestMatch scores target against every candidate after compacting both and
// returns the highest scoring candidate when its score reaches threshold.
// Ties keep the earliest candidate.
func BestMatch(candidates []string, target string, threshold float64) (Match, bool) {
	if len(candidates) == 0 {
		return Match{}, false
	}
	want := Compact(target)

	var best Match
	found := false
	for _, c := range candidates {
		score := Similarity(Compact(c), want)
		if !found || score > best.Score {
			best = Match{Text: c, Score: score}
			found = true
		}
	}
	if !found || best.Score < threshold {
		return Match{}, false
	}
	return best, true
}

// PrefixMatch compares each pattern against the leading substring of body of
// the same rune length and returns the best pattern scoring at least threshold.
//
// Trailing dots and ellipses on a pattern mark "followed by anything" in the
// pattern lists and are not compared.
func PrefixMatch(body string, patterns []string, threshold float64) (Match, bool) {
	if body == "" || len(patterns) == 0 {
		return Match{}, false
	}

	var best Match
	found := false
	for _, p := range patterns {
		key := strings.TrimRight(p, ".… ")
		if key == "" {
			continue
		}
		lead := leadingRunes(body, utf8.RuneCountInString(key))
		score := Similarity(Normalize(lead), Normalize(key))
		if !found || score > best.Score {
			best = Match{Text: p, Score: score}
			found = true
		}
	}
	if !found || best.Score < threshold {
		return Match{}, false
	}
	return best, true
}

func leadingRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
