package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// WordStats counts words and stopwords in a piece of text.
type WordStats struct {
	WordCount     int
	StopwordCount int
}

// StopwordRatio is StopwordCount / WordCount, or 0 for empty text.
func (s WordStats) StopwordRatio() float64 {
	if s.WordCount == 0 {
		return 0
	}
	return float64(s.StopwordCount) / float64(s.WordCount)
}

// Stats tokenizes s and counts its stopwords.
func (l Language) Stats(s string) WordStats {
	tokens := l.Tokenize(s)
	stats := WordStats{WordCount: len(tokens)}
	for _, tok := range tokens {
		if l.IsStopword(tok) {
			stats.StopwordCount++
		}
	}
	return stats
}

// InnerTrim collapses every whitespace run into a single space and trims the ends.
func InnerTrim(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RuneLen counts characters rather than bytes.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

var sentenceTerminators = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '؟': true, '।': true,
}

// SplitSentences breaks s after terminal punctuation that is followed by
// whitespace or the end of the text. Empty sentences are dropped.
func SplitSentences(s string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(s)
	for i, r := range runes {
		if !sentenceTerminators[r] {
			continue
		}
		// Full-width terminators end a sentence without trailing space.
		if r < 0x3000 && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sent := strings.TrimSpace(string(runes[start : i+1])); sent != "" {
			out = append(out, sent)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

// IsNumeric reports whether word consists only of digits and numeric punctuation.
func IsNumeric(word string) bool {
	if word == "" {
		return false
	}
	digits := 0
	for _, r := range word {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == ',' || r == '-' || r == '%':
		default:
			return false
		}
	}
	return digits > 0
}
