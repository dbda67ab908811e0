package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sectionedHome = `<html><head>
<link rel="alternate" type="application/rss+xml" href="/feeds/news.xml">
</head><body>
<a href="/politics/">Politics</a>
<a href="https://www.news.example.com/business?ref=nav#top">Business</a>
<a href="https://sport.news.example.com/">Sport</a>
<a href="/politics">Politics again</a>
<a href="/2024/01/02/budget-vote.html">A story</a>
<a href="/about-us">About</a>
<a href="/newsletter">Newsletter</a>
<a href="/index.html">Home</a>
<a href="/">Home</a>
<a href="https://www.news.example.com/">Home</a>
<a href="https://other.example.org/world/">Elsewhere</a>
<a href="https://twitter.com/news">Twitter</a>
<a href="mailto:desk@news.example.com">Mail</a>
<a href="/a-section-name-far-too-long-to-be-one">Long</a>
</body></html>`

func TestCategoryLinks(t *testing.T) {
	t.Parallel()

	got, err := CategoryLinks(sectionedHome, "https://news.example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://news.example.com/politics/",
		"https://www.news.example.com/business",
		"https://sport.news.example.com/",
		"https://news.example.com/politics",
	}, got)
}

func TestDiscoverFollowsCategoryFeeds(t *testing.T) {
	t.Parallel()

	f := pages{
		"https://news.example.com/":               sectionedHome,
		"https://news.example.com/politics/":      `<html><head><link rel="alternate" type="application/atom+xml" href="/feeds/atom"></head></html>`,
		"https://sport.news.example.com/":         `<html><head><link rel="alternate" type="application/rss+xml" href="https://news.example.com/feeds/news.xml"></head></html>`,
		"https://news.example.com/feeds/news.xml": rssFeed,
		"https://news.example.com/feeds/atom":     atomFeed,
	}
	s, err := New("https://news.example.com/")
	require.NoError(t, err)
	require.NoError(t, s.Discover(context.Background(), f, nil))

	assert.Len(t, s.Categories, 4)
	assert.Equal(t, []string{
		"https://news.example.com/feeds/news.xml",
		"https://news.example.com/feeds/atom",
	}, s.Feeds)
	assert.Equal(t, []string{
		"https://news.example.com/2024/one",
		"https://news.example.com/2024/two",
		"https://news.example.com/2024/three",
		"https://news.example.com/2024/four",
	}, s.ArticleURLs)
}

func TestDiscoverSkipsCategoriesWhenFeedsAreGiven(t *testing.T) {
	t.Parallel()

	f := pages{"https://news.example.com/feed.xml": rssFeed}
	s, err := New("https://news.example.com/")
	require.NoError(t, err)
	s.AddFeeds("/feed.xml")

	require.NoError(t, s.Discover(context.Background(), f, nil))
	assert.Empty(t, s.Categories)
	assert.Len(t, s.ArticleURLs, 3)
}
