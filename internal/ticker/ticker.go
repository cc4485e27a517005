// Package ticker pulls candidate stock symbols out of free text.
package ticker

import (
	"regexp"
	"strings"
	"unicode"
)

// tickerRegex matches a whole word of 2–5 uppercase ASCII letters.
// Text is upper-cased before matching, so "ater" in a post counts as ATER.
var tickerRegex = regexp.MustCompile(`^[A-Z]{2,5}$`)

// DefaultStoplist holds common words that look like tickers but are not.
var DefaultStoplist = []string{
	"I", "A", "AN", "IT", "IS", "ARE", "T", "THIS", "YOLO", "THE", "ON", "IN",
	"ALL", "OR", "AND", "DD", "CEO", "CFO", "USA", "OTC", "FOMO", "IMO",
}

// Extractor finds ticker-shaped tokens and drops stoplisted words.
type Extractor struct {
	stop map[string]struct{}
}

// NewExtractor creates an extractor with the given stoplist. Entries are
// compared upper-cased.
func NewExtractor(stoplist []string) *Extractor {
	stop := make(map[string]struct{}, len(stoplist))
	for _, w := range stoplist {
		stop[strings.ToUpper(w)] = struct{}{}
	}
	return &Extractor{stop: stop}
}

var defaultExtractor = NewExtractor(DefaultStoplist)

// Extract uses the default stoplist.
func Extract(text string) []string {
	return defaultExtractor.Extract(text)
}

// Extract returns every ticker occurrence in text, in order. Repeated
// symbols are kept: each occurrence is one mention downstream.
func (e *Extractor) Extract(text string) []string {
	var out []string
	for _, word := range strings.FieldsFunc(strings.ToUpper(text), isBreak) {
		if !tickerRegex.MatchString(word) {
			continue
		}
		if _, skip := e.stop[word]; skip {
			continue
		}
		out = append(out, word)
	}
	return out
}

// isBreak splits on anything that is not a Unicode word character, so an
// accented letter stays inside its word ("CAFÉ" is one word, not CAF).
func isBreak(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}
