package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxCategories bounds the category pages fetched per source.
const maxCategories = 20

// maxCategorySegment is the longest path segment still taken for a section name.
const maxCategorySegment = 20

var nonCategoryWords = []string{
	"about", "account", "admin", "advert", "archive", "careers", "contact",
	"donate", "events", "faq", "feedback", "forum", "help", "jobs", "legal",
	"login", "mail", "newsletter", "password", "preferences", "privacy",
	"profile", "register", "search", "shop", "signup", "sitemap", "site-map",
	"store", "subscribe", "subscription", "terms", "tickets",
}

var socialHosts = []string{
	"facebook.", "twitter.", "x.com", "instagram.", "linkedin.", "youtube.",
	"vimeo.", "flickr.", "tiktok.", "pinterest.",
}

// CategoryLinks lists the section pages a home page links to: links on
// the same site, or one of its subdomains, that are either a subdomain
// root or a single short path segment such as /politics/.
func CategoryLinks(markup, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse home page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Hostname() == "" {
		return nil, fmt.Errorf("category base url %q: %w", pageURL, err)
	}
	site := siteDomain(base.Hostname())

	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		ref, err := url.Parse(strings.TrimSpace(sel.AttrOr("href", "")))
		if err != nil {
			return
		}
		u := base.ResolveReference(ref)
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		host := strings.ToLower(u.Hostname())
		if (host != site && !strings.HasSuffix(host, "."+site)) || isSocial(host) {
			return
		}
		segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
		switch len(segments) {
		case 0:
			sub := strings.TrimSuffix(host, site)
			if sub == "" || sub == "www." || sub == "m." {
				return
			}
		case 1:
			seg := strings.ToLower(segments[0])
			if len(seg) > maxCategorySegment || strings.Contains(seg, ".") || hasNonCategoryWord(seg) {
				return
			}
		default:
			return
		}
		u.RawQuery, u.Fragment = "", ""
		if u.Path == "" {
			u.Path = "/"
		}
		out = append(out, u.String())
	})
	return appendUnique(nil, out...), nil
}

// siteDomain drops the leading www. or m. so sections on either host match.
func siteDomain(host string) string {
	host = strings.ToLower(host)
	for _, prefix := range []string{"www.", "m."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}

func hasNonCategoryWord(seg string) bool {
	for _, w := range nonCategoryWords {
		if strings.Contains(seg, w) {
			return true
		}
	}
	return false
}

func isSocial(host string) bool {
	for _, s := range socialHosts {
		if strings.Contains(host, s) {
			return true
		}
	}
	return false
}
