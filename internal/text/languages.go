// Package text holds the per-language tokenizer and stopword tables used by
// content scoring and keyword extraction.
package text

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedLanguage is returned for codes outside the language table.
var ErrUnsupportedLanguage = errors.New("unsupported language")

type family int

const (
	familyWhitespace family = iota
	familyCJK
	familyArabic
)

type languageSpec struct {
	name        string
	family      family
	suffixMatch bool
}

var languageTable = map[string]languageSpec{
	"af":  {name: "Afrikaans"},
	"ar":  {name: "Arabic", family: familyArabic},
	"bg":  {name: "Bulgarian"},
	"bn":  {name: "Bengali"},
	"ca":  {name: "Catalan"},
	"cs":  {name: "Czech"},
	"da":  {name: "Danish"},
	"de":  {name: "German"},
	"el":  {name: "Greek"},
	"en":  {name: "English"},
	"es":  {name: "Spanish"},
	"et":  {name: "Estonian"},
	"eu":  {name: "Basque"},
	"fa":  {name: "Persian", family: familyArabic},
	"fi":  {name: "Finnish"},
	"fr":  {name: "French"},
	"ga":  {name: "Irish"},
	"gu":  {name: "Gujarati"},
	"he":  {name: "Hebrew"},
	"hi":  {name: "Hindi", suffixMatch: true},
	"hr":  {name: "Croatian"},
	"hu":  {name: "Hungarian"},
	"hy":  {name: "Armenian"},
	"id":  {name: "Indonesian"},
	"is":  {name: "Icelandic"},
	"it":  {name: "Italian"},
	"ja":  {name: "Japanese", family: familyCJK},
	"kn":  {name: "Kannada"},
	"ko":  {name: "Korean", suffixMatch: true},
	"lb":  {name: "Luxembourgish"},
	"lij": {name: "Ligurian"},
	"lt":  {name: "Lithuanian"},
	"lv":  {name: "Latvian"},
	"ml":  {name: "Malayalam"},
	"mr":  {name: "Marathi"},
	"nb":  {name: "Norwegian (Bokmål)"},
	"nl":  {name: "Dutch"},
	"pl":  {name: "Polish"},
	"pt":  {name: "Portuguese"},
	"ro":  {name: "Romanian"},
	"ru":  {name: "Russian"},
	"si":  {name: "Sinhala"},
	"sk":  {name: "Slovak"},
	"sl":  {name: "Slovenian"},
	"sq":  {name: "Albanian"},
	"sr":  {name: "Serbian"},
	"sv":  {name: "Swedish"},
	"ta":  {name: "Tamil"},
	"te":  {name: "Telugu"},
	"th":  {name: "Thai", family: familyCJK},
	"tl":  {name: "Tagalog"},
	"tr":  {name: "Turkish"},
	"tt":  {name: "Tatar"},
	"uk":  {name: "Ukrainian"},
	"ur":  {name: "Urdu", family: familyArabic},
	"vi":  {name: "Vietnamese"},
	"xx":  {name: "Undetermined"},
	"yo":  {name: "Yoruba"},
	"zh":  {name: "Chinese", family: familyCJK},
}

var tokenizers = map[family]Tokenizer{
	familyWhitespace: whitespaceTokenizer{},
	familyCJK:        cjkTokenizer{},
	familyArabic:     arabicTokenizer{},
}

// Language bundles the tokenizer and stopword list for one ISO 639 code.
type Language struct {
	Code        string
	Name        string
	tokenizer   Tokenizer
	stopwords   map[string]struct{}
	suffixMatch bool
}

// ForLanguage looks code up in the language table.
func ForLanguage(code string) (Language, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	spec, ok := languageTable[code]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	return Language{
		Code:        code,
		Name:        spec.name,
		tokenizer:   tokenizers[spec.family],
		stopwords:   stopwordsFor(code),
		suffixMatch: spec.suffixMatch,
	}, nil
}

// Supported reports whether code is in the language table.
func Supported(code string) bool {
	_, ok := languageTable[strings.ToLower(strings.TrimSpace(code))]
	return ok
}

// Languages returns the sorted list of supported codes.
func Languages() []string {
	codes := make([]string, 0, len(languageTable))
	for code := range languageTable {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Tokenize splits s into lower-cased words using the language family's tokenizer.
func (l Language) Tokenize(s string) []string {
	if l.tokenizer == nil {
		return whitespaceTokenizer{}.Tokenize(s)
	}
	return l.tokenizer.Tokenize(s)
}

// HasStopwords reports whether a stopword list exists for the language.
func (l Language) HasStopwords() bool {
	return len(l.stopwords) > 0
}

// IsStopword reports whether word (already tokenized) is a stopword.
func (l Language) IsStopword(word string) bool {
	if _, ok := l.stopwords[word]; ok {
		return true
	}
	if !l.suffixMatch {
		return false
	}
	for sw := range l.stopwords {
		if strings.HasSuffix(word, sw) {
			return true
		}
	}
	return false
}
