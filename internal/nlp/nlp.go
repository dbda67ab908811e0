// Package nlp is the boundary to keyword and summary extraction. The
// pipeline only depends on Annotator; FrequencyAnnotator is the built-in
// implementation.
package nlp

import (
	"context"
	"sort"
	"strings"

	"github.com/JakeFAU/article-pipeline/internal/text"
)

// Annotation is what an Annotator returns for one article text.
type Annotation struct {
	Keywords []string
	Summary  string
}

// Annotator turns article text into keywords and a summary.
type Annotator interface {
	Annotate(ctx context.Context, body string, lang text.Language) (Annotation, error)
}

// AnnotatorFunc adapts a function to Annotator.
type AnnotatorFunc func(ctx context.Context, body string, lang text.Language) (Annotation, error)

// Annotate calls f.
func (f AnnotatorFunc) Annotate(ctx context.Context, body string, lang text.Language) (Annotation, error) {
	return f(ctx, body, lang)
}

// FrequencyAnnotator ranks words by frequency and sentences by the
// frequency of the words they contain.
type FrequencyAnnotator struct {
	MaxKeywords  int
	MaxSentences int
}

// Annotate implements Annotator.
func (a FrequencyAnnotator) Annotate(ctx context.Context, body string, lang text.Language) (Annotation, error) {
	if err := ctx.Err(); err != nil {
		return Annotation{}, err
	}
	freq := frequencies(body, lang)
	return Annotation{
		Keywords: topKeywords(freq, a.MaxKeywords),
		Summary:  summarize(body, lang, freq, a.MaxSentences),
	}, nil
}

func frequencies(body string, lang text.Language) map[string]int {
	freq := make(map[string]int)
	for _, w := range lang.Tokenize(body) {
		if lang.IsStopword(w) || text.IsNumeric(w) {
			continue
		}
		freq[w]++
	}
	return freq
}

// topKeywords orders words by count, then by the word itself, both
// descending, and keeps the first n.
func topKeywords(freq map[string]int, n int) []string {
	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] > words[j]
	})
	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return words
}

// summarize keeps the n best-scoring sentences in their original order.
// A sentence scores the mean frequency of its content words.
func summarize(body string, lang text.Language, freq map[string]int, n int) string {
	sentences := text.SplitSentences(body)
	if n <= 0 || len(sentences) == 0 {
		return ""
	}
	type ranked struct {
		idx   int
		score float64
	}
	ranks := make([]ranked, len(sentences))
	for i, s := range sentences {
		var total, words int
		for _, w := range lang.Tokenize(s) {
			words++
			total += freq[w]
		}
		score := 0.0
		if words > 0 {
			score = float64(total) / float64(words)
		}
		ranks[i] = ranked{idx: i, score: score}
	}
	sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].score > ranks[j].score })
	if len(ranks) > n {
		ranks = ranks[:n]
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].idx < ranks[j].idx })

	out := make([]string, len(ranks))
	for i, r := range ranks {
		out[i] = sentences[r.idx]
	}
	return strings.Join(out, " ")
}
