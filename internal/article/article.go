// Package article defines the Article record filled in by the pipeline and
// the setters that keep its invariants.
package article

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/article-pipeline/internal/text"
)

// Limits caps the variable-size fields of an Article.
type Limits struct {
	MaxTitleLen   int
	MaxTextLen    int
	MaxAuthors    int
	MaxKeywords   int
	MaxSummaryLen int
}

// Table is one extracted data table; rows are already expanded for
// colspan and rowspan so every row has the same number of cells.
type Table struct {
	Caption string     `json:"caption,omitempty"`
	Rows    [][]string `json:"rows"`
}

// Article is the unit of work and the result of one pipeline run.
type Article struct {
	URL           string
	ResolvedURL   string
	CanonicalLink string

	// RawHTML is the fetched markup. It is set once by the fetch stage.
	RawHTML string

	Title           string
	Authors         []string
	PublishDate     *time.Time
	Summary         string
	Keywords        []string
	MetaKeywords    []string
	Text            string
	HTML            string
	TopImage        string
	MetaImage       string
	Images          []string
	Movies          []string
	Tags            []string
	MetaDescription string
	MetaSiteName    string
	MetaFavicon     string
	MetaLanguage    string
	MetaType        string
	Meta            map[string]string
	Tables          []Table

	// IsPDF marks content that came from a binary document decoder.
	IsPDF bool

	Stage         Stage
	FailureReason string

	limits Limits
}

// New creates an empty article for rawURL.
func New(rawURL string, limits Limits) *Article {
	return &Article{
		URL:         strings.TrimSpace(rawURL),
		ResolvedURL: strings.TrimSpace(rawURL),
		Meta:        map[string]string{},
		limits:      limits,
	}
}

// Limits returns the caps the article was created with.
func (a *Article) Limits() Limits {
	return a.limits
}

// LinkHash identifies the article URL for blob names and cache keys.
func (a *Article) LinkHash() string {
	sum := sha256.Sum256([]byte(a.URL))
	return hex.EncodeToString(sum[:16])
}

// Domain is the lower-case host of the resolved URL.
func (a *Article) Domain() string {
	return Domain(a.ResolvedURL)
}

// Domain returns the lower-case hostname of rawURL, or "".
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Fail moves the article to the terminal failed stage.
func (a *Article) Fail(reason string) {
	a.Stage = StageFailed
	a.FailureReason = reason
}

// TimeoutReason prefixes the failure reason of articles abandoned because
// their run's deadline expired.
const TimeoutReason = "timeout"

// TimedOut reports whether the article failed because its deadline expired.
func (a *Article) TimedOut() bool {
	return a.Stage == StageFailed && strings.HasPrefix(a.FailureReason, TimeoutReason)
}

// Failf is Fail with formatting.
func (a *Article) Failf(format string, args ...any) {
	a.Fail(fmt.Sprintf(format, args...))
}

// SetTitle stores title truncated to MaxTitleLen runes.
func (a *Article) SetTitle(title string) {
	a.Title = truncate(text.InnerTrim(title), a.limits.MaxTitleLen)
}

// SetText stores the plain text truncated to MaxTextLen runes.
func (a *Article) SetText(body string) {
	a.Text = truncate(strings.TrimSpace(body), a.limits.MaxTextLen)
}

// SetHTML stores the minimal article markup.
func (a *Article) SetHTML(markup string) {
	a.HTML = markup
}

// SetSummary stores summary truncated to MaxSummaryLen runes.
func (a *Article) SetSummary(summary string) {
	a.Summary = truncate(strings.TrimSpace(summary), a.limits.MaxSummaryLen)
}

// SetKeywords stores at most MaxKeywords keywords.
func (a *Article) SetKeywords(keywords []string) {
	a.Keywords = capList(keywords, a.limits.MaxKeywords)
}

// SetAuthors stores the de-duplicated authors, capped at MaxAuthors. When
// none remain, the resolved domain is used so the list is never empty.
func (a *Article) SetAuthors(authors []string) {
	seen := make(map[string]bool, len(authors))
	out := make([]string, 0, len(authors))
	for _, name := range authors {
		name = text.InnerTrim(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		if domain := a.Domain(); domain != "" {
			out = append(out, domain)
		} else if domain := Domain(a.URL); domain != "" {
			out = append(out, domain)
		}
	}
	a.Authors = capList(out, a.limits.MaxAuthors)
}

// SetMetaLanguage keeps code only when it is a known two or three letter
// language code. It reports whether the value was accepted.
func (a *Article) SetMetaLanguage(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if !text.Supported(code) {
		return false
	}
	a.MetaLanguage = code
	return true
}

// SetMovies stores the de-duplicated video URLs.
func (a *Article) SetMovies(urls []string) {
	a.Movies = uniq(urls)
}

// SetImages stores the de-duplicated image URLs.
func (a *Article) SetImages(urls []string) {
	a.Images = uniq(urls)
}

// SetTags stores the de-duplicated tags.
func (a *Article) SetTags(tags []string) {
	a.Tags = uniq(tags)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}

func capList(in []string, max int) []string {
	if max > 0 && len(in) > max {
		in = in[:max]
	}
	return append([]string(nil), in...)
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
