package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/article-pipeline/internal/text"
)

// titleSeparators split "Site | Headline" style titles.
var titleSeparators = []string{" | ", " - ", " – ", " — ", " _ ", " / ", " » ", " :: "}

var titleFilter = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Title picks the headline from the <title> element, reconciled with the
// longest <h1> and the OpenGraph title, and strips a site-name segment.
// When the document has no <title> the structured titles are used instead.
func Title(doc *goquery.Document) string {
	title := text.InnerTrim(doc.Find("title").First().Text())
	h1 := longestH1(doc)
	og := metaContent(doc, `meta[property="og:title"]`, `meta[name="og:title"]`, `meta[name="headline"]`, `meta[name="twitter:title"]`)

	if title == "" {
		switch {
		case og != "":
			return og
		default:
			return h1
		}
	}

	usedHint := false
	switch {
	case h1 != "" && h1 == title:
		usedHint = true
	case og != "" && filterTitle(og) != filterTitle(h1) && strings.HasPrefix(filterTitle(title), filterTitle(og)):
		title = og
		usedHint = true
	case og != "" && h1 != "" && filterTitle(h1) == filterTitle(og) && len(h1) > len(og):
		title = h1
		usedHint = true
	}

	if !usedHint {
		for _, sep := range titleSeparators {
			if strings.Contains(title, sep) {
				title = splitTitle(title, sep, h1)
				break
			}
		}
	}
	title = strings.ReplaceAll(title, "\uFFFD", "")

	if h1 != "" && filterTitle(title) == filterTitle(h1) {
		return h1
	}
	return text.InnerTrim(title)
}

// splitTitle keeps the piece matching the hint, or else the longest piece.
func splitTitle(title, sep, hint string) string {
	pieces := strings.Split(title, sep)
	if hint != "" {
		want := filterTitle(hint)
		for _, p := range pieces {
			if filterTitle(p) == want {
				return strings.TrimSpace(p)
			}
		}
	}
	best := ""
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if text.RuneLen(p) > text.RuneLen(best) {
			best = p
		}
	}
	return best
}

// longestH1 returns the longest <h1> text, ignoring one- and two-word headers.
func longestH1(doc *goquery.Document) string {
	best := ""
	doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		t := text.InnerTrim(s.Text())
		if text.RuneLen(t) > text.RuneLen(best) {
			best = t
		}
	})
	if len(strings.Fields(best)) <= 2 {
		return ""
	}
	return best
}

func filterTitle(s string) string {
	return strings.ToLower(titleFilter.ReplaceAllString(s, ""))
}
