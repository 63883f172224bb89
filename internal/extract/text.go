package extract

import (
	"strconv"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "about": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "can": true, "could": true, "describe": true,
	"did": true, "do": true, "does": true, "explain": true, "for": true, "from": true,
	"give": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"list": true, "me": true, "of": true, "on": true, "or": true, "please": true,
	"say": true, "says": true, "should": true, "tell": true, "than": true,
	"that": true, "the": true, "their": true, "there": true, "this": true,
	"to": true, "was": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "whom": true, "why": true,
	"will": true, "with": true, "would": true, "you": true, "your": true,
}

// IsStopword reports whether the lower-cased word carries no query meaning
func IsStopword(word string) bool {
	return stopwords[strings.ToLower(word)]
}

// Normalize lower-cases text and collapses whitespace runs
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Words splits text into words with surrounding punctuation trimmed
func Words(text string) []string {
	var out []string
	for _, f := range strings.Fields(text) {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// QueryTokens returns lower-cased words longer than two characters
func QueryTokens(text string) []string {
	var out []string
	for _, w := range Words(text) {
		if len([]rune(w)) > 2 {
			out = append(out, strings.ToLower(w))
		}
	}
	return out
}

// AlphaTokenSet returns the set of purely alphabetic lower-cased tokens
// longer than two characters
func AlphaTokenSet(text string) map[string]bool {
	r := strings.NewReplacer(",", " ", ";", " ", ":", " ")
	set := make(map[string]bool)
	for _, t := range strings.Fields(r.Replace(Normalize(text))) {
		if len([]rune(t)) > 2 && isAlpha(t) {
			set[t] = true
		}
	}
	return set
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

// Numbers extracts runs of digits and dots that parse as floats
func Numbers(text string) []float64 {
	var nums []float64
	var token strings.Builder

	flush := func() {
		if token.Len() == 0 {
			return
		}
		if f, err := strconv.ParseFloat(token.String(), 64); err == nil {
			nums = append(nums, f)
		}
		token.Reset()
	}

	for _, r := range text {
		if unicode.IsDigit(r) || r == '.' {
			token.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	return nums
}

// Entities returns capitalized word runs that do not start a sentence with a
// stopword. Each distinct entity appears once in first-seen order.
func Entities(text string) []string {
	seen := make(map[string]bool)
	var out []string
	var run []string

	flush := func() {
		if len(run) > 0 {
			ent := strings.Join(run, " ")
			if !seen[ent] {
				seen[ent] = true
				out = append(out, ent)
			}
		}
		run = run[:0]
	}

	for _, field := range strings.Fields(text) {
		w := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		capitalized := w != "" && unicode.IsUpper([]rune(w)[0]) && !IsStopword(w) && len([]rune(w)) > 1
		if capitalized {
			run = append(run, w)
		} else {
			flush()
		}
		// Punctuation after the word ends the run
		if capitalized && w != field && strings.ContainsAny(field[len(field)-1:], ".,;:!?)") {
			flush()
		}
	}
	flush()

	return out
}
