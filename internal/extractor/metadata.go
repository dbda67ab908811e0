package extractor

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/JakeFAU/article-pipeline/internal/text"
)

// metaContent returns the first non-empty content attribute among selectors.
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = strings.TrimSpace(s.AttrOr("content", ""))
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// linkHref returns the first non-empty href among selectors.
func linkHref(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = strings.TrimSpace(s.AttrOr("href", ""))
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// MetaLanguage reads the declared document language as a lower-case two
// letter code, or "".
func MetaLanguage(doc *goquery.Document) string {
	lang := strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))
	if lang == "" {
		lang = metaContent(doc, `meta[http-equiv="content-language"]`, `meta[http-equiv="Content-Language"]`, `meta[name="lang"]`, `meta[property="og:locale"]`)
	}
	if len(lang) < 2 {
		return ""
	}
	code := strings.ToLower(lang[:2])
	for _, r := range code {
		if !unicode.IsLetter(r) {
			return ""
		}
	}
	return code
}

// Favicon returns the icon link resolved against pageURL.
func Favicon(doc *goquery.Document, pageURL string) string {
	var href string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, rel := range strings.Fields(strings.ToLower(s.AttrOr("rel", ""))) {
			if rel == "icon" {
				href = strings.TrimSpace(s.AttrOr("href", ""))
				break
			}
		}
		return href == ""
	})
	return resolve(pageURL, href)
}

// MetaSiteName returns og:site_name.
func MetaSiteName(doc *goquery.Document) string {
	return metaContent(doc, `meta[property="og:site_name"]`, `meta[name="application-name"]`)
}

// MetaDescription returns the description meta tag, falling back to OpenGraph.
func MetaDescription(doc *goquery.Document) string {
	return metaContent(doc, `meta[name="description"]`, `meta[property="og:description"]`, `meta[name="twitter:description"]`)
}

// MetaType returns og:type.
func MetaType(doc *goquery.Document) string {
	return metaContent(doc, `meta[property="og:type"]`)
}

// MetaKeywords splits the keywords meta tag on commas.
func MetaKeywords(doc *goquery.Document) []string {
	raw := metaContent(doc, `meta[name="keywords"]`, `meta[name="news_keywords"]`)
	var out []string
	for _, kw := range strings.Split(raw, ",") {
		if kw = text.InnerTrim(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// MetaData collects every meta tag carrying a property or name and a
// content attribute. The first value seen for a key wins.
func MetaData(doc *goquery.Document) map[string]string {
	out := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("property", "")
		if key == "" {
			key = s.AttrOr("name", "")
		}
		if key == "" {
			key = s.AttrOr("itemprop", "")
		}
		key = strings.TrimSpace(key)
		content, ok := s.Attr("content")
		if key == "" || !ok {
			return
		}
		if _, seen := out[key]; !seen {
			out[key] = strings.TrimSpace(content)
		}
	})
	return out
}

// CanonicalLink returns rel=canonical, else og:url, as an absolute URL. A
// value without a host is joined to pageURL's scheme and host; a leading
// copy of the host inside the path is dropped.
func CanonicalLink(doc *goquery.Document, pageURL string) string {
	if href := linkHref(doc, `link[rel="canonical"]`); href != "" {
		return resolve(pageURL, href)
	}
	ogURL := metaContent(doc, `meta[property="og:url"]`, `meta[name="og:url"]`)
	if ogURL == "" {
		return ""
	}
	meta, err := url.Parse(ogURL)
	if err != nil {
		return ""
	}
	if meta.Host != "" {
		return meta.String()
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return ogURL
	}
	path := meta.Path
	if i := strings.Index(path, base.Host+"/"); i >= 0 {
		path = path[i+len(base.Host):]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: path}).String()
}

// MetaImageURL returns the image the page advertises for sharing.
func MetaImageURL(doc *goquery.Document, pageURL string) string {
	if img := metaContent(doc, `meta[property="og:image"]`, `meta[name="og:image"]`); img != "" {
		return resolve(pageURL, img)
	}
	if href := linkHref(doc, `link[rel="img_src"]`, `link[rel="image_src"]`, `link[rel="icon"]`); href != "" {
		return resolve(pageURL, href)
	}
	return ""
}

var (
	authorAttrs = []string{"name", "rel", "itemprop", "class", "id"}
	authorVals  = []string{"author", "byline", "dc.creator", "byl"}

	bylinePrefix = regexp.MustCompile(`(?i)^\s*(posted|written)?\s*(by|from)\s*:?\s+`)
	bylineSplit  = regexp.MustCompile(`(?i)\s*(?:,|;|&|\||/|\band\b)\s*`)
	hasDigit     = regexp.MustCompile(`\d`)
)

// Authors gathers byline names from author meta tags, JSON-LD and elements
// whose name, rel, itemprop, class or id marks them as an author.
func Authors(doc *goquery.Document) []string {
	var raw []string
	for _, sel := range []string{`meta[name="author"]`, `meta[property="article:author"]`, `meta[name="dc.creator"]`, `meta[name="byl"]`, `meta[name="parsely-author"]`, `meta[name="sailthru.author"]`} {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			v := strings.TrimSpace(s.AttrOr("content", ""))
			if v != "" && !strings.HasPrefix(v, "http") {
				raw = append(raw, v)
			}
		})
	}
	raw = append(raw, jsonLDAuthors(doc)...)

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "meta" || !isAuthorNode(s) {
			return
		}
		raw = append(raw, s.Text())
	})

	seen := make(map[string]bool)
	var out []string
	for _, line := range raw {
		for _, name := range parseByline(line) {
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, name)
		}
	}
	return out
}

func isAuthorNode(s *goquery.Selection) bool {
	for _, attr := range authorAttrs {
		v, ok := s.Attr(attr)
		if !ok {
			continue
		}
		for _, token := range strings.Fields(strings.ToLower(v)) {
			for _, want := range authorVals {
				if token == want {
					return true
				}
			}
		}
	}
	return false
}

// parseByline strips "By" prefixes and splits a byline into names,
// dropping pieces that cannot be a person's name.
func parseByline(line string) []string {
	line = text.InnerTrim(line)
	line = bylinePrefix.ReplaceAllString(line, "")
	var out []string
	for _, piece := range bylineSplit.Split(line, -1) {
		piece = strings.Trim(text.InnerTrim(piece), " .:-")
		words := strings.Fields(piece)
		if len(words) == 0 || len(words) > 5 {
			continue
		}
		if hasDigit.MatchString(piece) || strings.Contains(piece, "@") || strings.Contains(piece, "://") {
			continue
		}
		out = append(out, piece)
	}
	return out
}

// jsonLDAuthors reads author names out of application/ld+json blocks.
func jsonLDAuthors(doc *goquery.Document) []string {
	var out []string
	for _, obj := range jsonLDObjects(doc) {
		out = append(out, personNames(obj["author"])...)
	}
	return out
}

func personNames(v any) []string {
	switch a := v.(type) {
	case string:
		return []string{a}
	case map[string]any:
		if name, ok := a["name"].(string); ok {
			return []string{name}
		}
	case []any:
		var out []string
		for _, item := range a {
			out = append(out, personNames(item)...)
		}
		return out
	}
	return nil
}

// jsonLDObjects decodes every ld+json script, flattening top-level arrays
// and @graph lists.
func jsonLDObjects(doc *goquery.Document) []map[string]any {
	var out []map[string]any
	var collect func(v any)
	collect = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			out = append(out, t)
			if graph, ok := t["@graph"].([]any); ok {
				for _, g := range graph {
					collect(g)
				}
			}
		case []any:
			for _, item := range t {
				collect(item)
			}
		}
	}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err == nil {
			collect(v)
		}
	})
	return out
}

var publishDateSelectors = []string{
	`meta[property="rnews:datePublished"]`,
	`meta[property="article:published_time"]`,
	`meta[name="OriginalPublicationDate"]`,
	`meta[itemprop="datePublished"]`,
	`meta[property="og:published_time"]`,
	`meta[name="article_date_original"]`,
	`meta[name="publication_date"]`,
	`meta[name="sailthru.date"]`,
	`meta[name="PublishDate"]`,
	`meta[name="pubdate"]`,
	`meta[name="date"]`,
	`meta[name="dc.date"]`,
}

var urlDate = regexp.MustCompile(`(?:^|[./\-_])((?:19|20)\d{2})[./\-_]([01]?\d)(?:[./\-_]([0-3]?\d))?(?:[./\-_]|$)`)

// PublishingDate tries the publication meta tags, <time datetime>,
// JSON-LD datePublished and finally a date embedded in the URL path.
func PublishingDate(doc *goquery.Document, pageURL string) *time.Time {
	for _, sel := range publishDateSelectors {
		if t, ok := parseDate(metaContent(doc, sel)); ok {
			return &t
		}
	}
	var fromTime *time.Time
	doc.Find("time[datetime]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t, ok := parseDate(s.AttrOr("datetime", "")); ok {
			fromTime = &t
			return false
		}
		return true
	})
	if fromTime != nil {
		return fromTime
	}
	for _, obj := range jsonLDObjects(doc) {
		if raw, ok := obj["datePublished"].(string); ok {
			if t, ok := parseDate(raw); ok {
				return &t
			}
		}
	}
	return dateFromURL(pageURL)
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func dateFromURL(pageURL string) *time.Time {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	m := urlDate.FindStringSubmatch(u.Path)
	if m == nil {
		return nil
	}
	day := m[3]
	if day == "" {
		day = "1"
	}
	t, err := time.Parse("2006-1-2", m[1]+"-"+strings.TrimLeft(m[2], "0")+"-"+strings.TrimLeft(day, "0"))
	if err != nil {
		return nil
	}
	return &t
}

// resolve joins ref to base; it returns ref unchanged if either fails to parse.
func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return r.String()
	}
	return b.ResolveReference(r).String()
}
