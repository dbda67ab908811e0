// Package source turns a news site into a batch of scheduler work items,
// discovering article links from the RSS and Atom feeds advertised by the
// site's home page and its section pages.
package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/fetcher"
	"github.com/JakeFAU/article-pipeline/internal/logging"
	"github.com/JakeFAU/article-pipeline/internal/scheduler"
)

// Fetcher retrieves the home page and feed documents.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (fetcher.Result, error)
}

// Source is one site. Its Domain keys the dedup entry and the
// per-source concurrency budget.
type Source struct {
	URL         string
	Domain      string
	Feeds       []string
	Categories  []string
	ArticleURLs []string
}

// New builds a Source for the site at rawURL.
func New(rawURL string) (*Source, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Hostname() == "" {
		return nil, fmt.Errorf("source url %q must be an absolute http(s) url", rawURL)
	}
	return &Source{URL: u.String(), Domain: strings.ToLower(u.Hostname())}, nil
}

// AddFeeds records feed URLs, resolved against the source URL.
func (s *Source) AddFeeds(feeds ...string) {
	s.Feeds = appendUnique(s.Feeds, s.resolveAll(feeds)...)
}

// AddArticles records article URLs, resolved against the source URL.
func (s *Source) AddArticles(urls ...string) {
	s.ArticleURLs = appendUnique(s.ArticleURLs, s.resolveAll(urls)...)
}

// Discover fills in ArticleURLs. With no feeds configured, the home page
// and the section pages it links to are searched for alternate feed links
// first. Sections and feeds that fail to load are logged and skipped.
func (s *Source) Discover(ctx context.Context, f Fetcher, logger *zap.Logger) error {
	logger = logging.OrNop(logger).With(zap.String("source", s.Domain))

	if len(s.Feeds) == 0 {
		res, err := f.Fetch(ctx, s.URL)
		if err != nil {
			return fmt.Errorf("fetch source home page: %w", err)
		}
		feeds, err := FeedLinks(res.Content, res.URL)
		if err != nil {
			return err
		}
		s.AddFeeds(feeds...)
		if err := s.discoverCategories(ctx, f, res, logger); err != nil {
			return err
		}
		logger.Debug("discovered feeds", zap.Strings("feeds", s.Feeds))
	}

	parser := gofeed.NewParser()
	for _, feedURL := range s.Feeds {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := f.Fetch(ctx, feedURL)
		if err != nil {
			logger.Warn("feed fetch failed", zap.String("feed", feedURL), zap.Error(err))
			continue
		}
		feed, err := parser.Parse(bytes.NewReader(res.Body))
		if err != nil {
			logger.Warn("feed parse failed", zap.String("feed", feedURL), zap.Error(err))
			continue
		}
		before := len(s.ArticleURLs)
		s.AddArticles(ItemLinks(feed)...)
		logger.Debug("feed parsed",
			zap.String("feed", feedURL),
			zap.Int("items", len(feed.Items)),
			zap.Int("new", len(s.ArticleURLs)-before))
	}
	return nil
}

// discoverCategories follows the section links of the home page one hop
// and collects the feeds those pages advertise.
func (s *Source) discoverCategories(ctx context.Context, f Fetcher, home fetcher.Result, logger *zap.Logger) error {
	categories, err := CategoryLinks(home.Content, home.URL)
	if err != nil {
		return err
	}
	if len(categories) > maxCategories {
		categories = categories[:maxCategories]
	}
	s.Categories = appendUnique(s.Categories, categories...)
	for _, categoryURL := range categories {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := f.Fetch(ctx, categoryURL)
		if err != nil {
			logger.Warn("category fetch failed", zap.String("category", categoryURL), zap.Error(err))
			continue
		}
		feeds, err := FeedLinks(res.Content, res.URL)
		if err != nil {
			logger.Warn("category parse failed", zap.String("category", categoryURL), zap.Error(err))
			continue
		}
		s.AddFeeds(feeds...)
	}
	return nil
}

// WorkItems builds one scheduler item per article URL.
func (s *Source) WorkItems(limits article.Limits) []scheduler.WorkItem {
	out := make([]scheduler.WorkItem, 0, len(s.ArticleURLs))
	for _, u := range s.ArticleURLs {
		out = append(out, scheduler.NewWorkItem(s.Domain, u, limits))
	}
	return out
}

// FeedLinks lists the RSS and Atom feeds a page advertises.
func FeedLinks(markup, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse home page: %w", err)
	}
	base, _ := url.Parse(pageURL)
	var out []string
	doc.Find(`link[rel~="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		typ := strings.ToLower(sel.AttrOr("type", ""))
		if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") {
			return
		}
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return
		}
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		out = append(out, href)
	})
	return appendUnique(nil, out...), nil
}

// ItemLinks returns each item's link, falling back to its GUID when the
// GUID is a URL.
func ItemLinks(feed *gofeed.Feed) []string {
	if feed == nil {
		return nil
	}
	out := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" && strings.HasPrefix(item.GUID, "http") {
			link = strings.TrimSpace(item.GUID)
		}
		if link != "" {
			out = append(out, link)
		}
	}
	return out
}

func (s *Source) resolveAll(refs []string) []string {
	base, _ := url.Parse(s.URL)
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if base != nil {
			if ref, err := url.Parse(r); err == nil {
				r = base.ResolveReference(ref).String()
			}
		}
		out = append(out, r)
	}
	return out
}

func appendUnique(dst []string, vals ...string) []string {
	seen := make(map[string]bool, len(dst)+len(vals))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range vals {
		if seen[v] {
			continue
		}
		seen[v] = true
		dst = append(dst, v)
	}
	return dst
}
