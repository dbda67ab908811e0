package text

import (
	"strings"
	"unicode"
)

// Tokenizer splits running text into words.
type Tokenizer interface {
	Tokenize(s string) []string
}

// whitespaceTokenizer drops punctuation and splits on whitespace.
type whitespaceTokenizer struct{}

func (whitespaceTokenizer) Tokenize(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Fields(b.String())
}

// arabicTokenizer keeps punctuation attached; the script has its own marks
// that must not be stripped before stopword lookup.
type arabicTokenizer struct{}

func (arabicTokenizer) Tokenize(s string) []string {
	return strings.Fields(s)
}

// cjkTokenizer emits one token per ideograph or syllable and groups runs of
// other letters and digits into words.
type cjkTokenizer struct{}

func (cjkTokenizer) Tokenize(s string) []string {
	var (
		tokens []string
		word   strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range s {
		switch {
		case isIdeographic(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isIdeographic(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Thai)
}
