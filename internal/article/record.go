package article

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/article-pipeline/internal/text"
)

// Record is the JSON form of an Article.
type Record struct {
	URL             string            `json:"url"`
	CanonicalLink   string            `json:"canonical_link"`
	Title           string            `json:"title"`
	Authors         []string          `json:"authors"`
	PublishDate     *time.Time        `json:"publish_date"`
	Text            string            `json:"text"`
	HTML            string            `json:"article_html,omitempty"`
	Summary         string            `json:"summary"`
	Keywords        []string          `json:"keywords"`
	MetaKeywords    []string          `json:"meta_keywords,omitempty"`
	TopImage        string            `json:"top_image"`
	Images          []string          `json:"images"`
	Movies          []string          `json:"movies"`
	Tags            []string          `json:"tags,omitempty"`
	MetaDescription string            `json:"meta_description,omitempty"`
	MetaSiteName    string            `json:"meta_site_name,omitempty"`
	MetaFavicon     string            `json:"meta_favicon,omitempty"`
	MetaLanguage    string            `json:"meta_language"`
	Meta            map[string]string `json:"meta_data,omitempty"`
	Tables          []Table           `json:"tables"`
	Stage           Stage             `json:"stage"`
	FailureReason   string            `json:"failure_reason,omitempty"`
}

// ToRecord snapshots a into its serializable form. Nil slices become empty
// arrays so consumers never see null lists.
func (a *Article) ToRecord() Record {
	return Record{
		URL:             a.URL,
		CanonicalLink:   a.CanonicalLink,
		Title:           a.Title,
		Authors:         nonNil(a.Authors),
		PublishDate:     a.PublishDate,
		Text:            a.Text,
		HTML:            a.HTML,
		Summary:         a.Summary,
		Keywords:        nonNil(a.Keywords),
		MetaKeywords:    a.MetaKeywords,
		TopImage:        a.TopImage,
		Images:          nonNil(a.Images),
		Movies:          nonNil(a.Movies),
		Tags:            a.Tags,
		MetaDescription: a.MetaDescription,
		MetaSiteName:    a.MetaSiteName,
		MetaFavicon:     a.MetaFavicon,
		MetaLanguage:    a.MetaLanguage,
		Meta:            a.Meta,
		Tables:          nonNilTables(a.Tables),
		Stage:           a.Stage,
		FailureReason:   a.FailureReason,
	}
}

// MarshalJSON encodes the article as its Record.
func (a *Article) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(a.ToRecord())
	if err != nil {
		return nil, fmt.Errorf("marshal article: %w", err)
	}
	return data, nil
}

var mediaURLMarkers = []string{
	"/video", "/slide", "/gallery", "/powerpoint", "/fashion", "/glamour", "/cloth",
}

// IsMediaNews reports whether the URL points at a gallery or video page,
// which is allowed to have little text.
func (a *Article) IsMediaNews() bool {
	lower := strings.ToLower(a.URL)
	for _, marker := range mediaURLMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// IsValidBody applies the word and sentence thresholds that separate a
// news article from a stub, index or gallery page. Pages that declare
// og:type=article only need to clear the word count.
func (a *Article) IsValidBody(minWords, minSentences int) bool {
	words := len(strings.Fields(a.Text))
	if a.MetaType == "article" && words > minWords {
		return true
	}
	if !a.IsMediaNews() && a.Text == "" {
		return false
	}
	if len(strings.Fields(a.Title)) < 2 {
		return false
	}
	if words < minWords {
		return false
	}
	if len(text.SplitSentences(a.Text)) < minSentences {
		return false
	}
	return a.HTML != ""
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilTables(in []Table) []Table {
	if in == nil {
		return []Table{}
	}
	return in
}
