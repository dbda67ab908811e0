package extractor

import (
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/dom"
)

const pageURL = "http://www.example.com/article?foo=bar"

func doc(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	return dom.Document(parse(t, markup))
}

func TestTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		markup string
		want   string
	}{
		{"basic", `<title>Test title</title>`, "Test title"},
		{"split", `<title>Test page » Test title</title>`, "Test title"},
		{"split escaped", `<title>Test page &raquo; Test title</title>`, "Test title"},
		{"quotes", `<title>Test page and «something in quotes»</title>`, "Test page and «something in quotes»"},
		{"pipe", `<title>Council backs the new plan | Daily News</title>`, "Council backs the new plan"},
		{"h1 hint", `<title>Daily News - Council backs plan</title><body><h1>Council backs plan today</h1></body>`, "Council backs plan"},
		{"og prefix", `<head><title>Council backs plan for trams - Daily</title><meta property="og:title" content="Council backs plan for trams"></head>`, "Council backs plan for trams"},
		{"no title element", `<head><meta property="og:title" content="From OpenGraph"></head>`, "From OpenGraph"},
		{"empty", `<p>nothing</p>`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Title(doc(t, tc.markup)))
		})
	}
}

func TestCanonicalLink(t *testing.T) {
	t.Parallel()

	const want = "http://www.example.com/article.html"
	cases := []struct {
		name    string
		markup  string
		pageURL string
	}{
		{"rel canonical", `<link rel="canonical" href="http://www.example.com/article.html">`, ""},
		{"relative rel canonical", `<link rel="canonical" href="article.html">`, pageURL},
		{"relative og url", `<meta property="og:url" content="article.html">`, pageURL},
		{"hostname og url", `<meta property="og:url" content="www.example.com/article.html">`, pageURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, want, CanonicalLink(doc(t, tc.markup), tc.pageURL))
		})
	}

	assert.Empty(t, CanonicalLink(doc(t, `<p>x</p>`), pageURL))
}

func TestMetaImageURL(t *testing.T) {
	t.Parallel()

	const emptyAll = `<meta property="og:image" content="" /><meta name="og:image" />`
	cases := []struct {
		markup string
		want   string
	}{
		{`<meta property="og:image" content="https://example.com/meta_img_filename.jpg" />` +
			`<meta name="og:image" content="https://example.com/meta_another_img_filename.jpg"/>`,
			"https://example.com/meta_img_filename.jpg"},
		{`<meta property="og:image" content="" />` +
			`<meta name="og:image" content="https://example.com/meta_another_img_filename.jpg"/>`,
			"https://example.com/meta_another_img_filename.jpg"},
		{emptyAll, ""},
		{emptyAll + `<link rel="img_src" href="https://example.com/meta_link_image.jpg" />`, "https://example.com/meta_link_image.jpg"},
		{emptyAll + `<link rel="image_src" href="https://example.com/meta_link_image2.jpg" />`, "https://example.com/meta_link_image2.jpg"},
		{emptyAll + `<link rel="icon" href="https://example.com/meta_link_rel_icon.ico" />`, "https://example.com/meta_link_rel_icon.ico"},
		{`<meta property="og:image" content="/img/lead.jpg">`, "http://www.example.com/img/lead.jpg"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MetaImageURL(doc(t, tc.markup), pageURL), tc.markup)
	}
}

func TestAuthors(t *testing.T) {
	t.Parallel()

	const markup = `<html><head>
<meta name="author" content="Jane Doe">
<script type="application/ld+json">{"@type":"NewsArticle","author":[{"@type":"Person","name":"Ann Lee"}],"datePublished":"2021-01-02"}</script>
</head><body>
<div class="byline">By John Smith and Jane Doe | 12 March</div>
<a rel="author" href="/staff/ann">Ann Lee</a>
<span class="author-name">Not Matched</span>
</body></html>`

	assert.Equal(t, []string{"Jane Doe", "Ann Lee", "John Smith"}, Authors(doc(t, markup)))
	assert.Empty(t, Authors(doc(t, `<p>No byline here</p>`)))
}

func TestParseByline(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"Maria Garcia", "Tom Lee"}, parseByline("  Written by: Maria Garcia & Tom Lee "))
	assert.Equal(t, []string{"Sam Anderson"}, parseByline("From Sam Anderson, 2024"))
	assert.Empty(t, parseByline("contact me at someone@example.com"))
}

func TestPublishingDate(t *testing.T) {
	t.Parallel()

	got := PublishingDate(doc(t, `<meta property="article:published_time" content="2024-03-05T10:00:00Z">`), pageURL)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), got.UTC())

	got = PublishingDate(doc(t, `<p>Posted <time datetime="2022-07-09">July 9</time></p>`), pageURL)
	require.NotNil(t, got)
	assert.Equal(t, "2022-07-09", got.Format("2006-01-02"))

	got = PublishingDate(doc(t, `<script type="application/ld+json">{"@graph":[{"@type":"WebPage"},{"@type":"NewsArticle","datePublished":"2021-01-02"}]}</script>`), pageURL)
	require.NotNil(t, got)
	assert.Equal(t, "2021-01-02", got.Format("2006-01-02"))

	got = PublishingDate(doc(t, `<p>undated</p>`), "https://example.com/2023/11/07/story.html")
	require.NotNil(t, got)
	assert.Equal(t, "2023-11-07", got.Format("2006-01-02"))

	assert.Nil(t, PublishingDate(doc(t, `<p>undated</p>`), "https://example.com/story-12345.html"))
}

func TestMetaFields(t *testing.T) {
	t.Parallel()

	d := doc(t, `<html lang="en-US"><head>
<meta name="description" content="A short summary.">
<meta property="og:site_name" content="Daily News">
<meta property="og:type" content="article">
<meta name="keywords" content="transit, council , budget,">
<link rel="shortcut icon" href="/favicon.ico">
</head><body></body></html>`)

	assert.Equal(t, "en", MetaLanguage(d))
	assert.Equal(t, "A short summary.", MetaDescription(d))
	assert.Equal(t, "Daily News", MetaSiteName(d))
	assert.Equal(t, "article", MetaType(d))
	assert.Equal(t, []string{"transit", "council", "budget"}, MetaKeywords(d))
	assert.Equal(t, "http://www.example.com/favicon.ico", Favicon(d, pageURL))

	meta := MetaData(d)
	assert.Equal(t, "Daily News", meta["og:site_name"])
	assert.Equal(t, "A short summary.", meta["description"])

	assert.Equal(t, "fr", MetaLanguage(doc(t, `<meta http-equiv="content-language" content="fr">`)))
	assert.Empty(t, MetaLanguage(doc(t, `<p>x</p>`)))
}

func TestImageURLs(t *testing.T) {
	t.Parallel()

	root := parse(t, `<img src="a.jpg"><img src="/b.png"><img src="a.jpg"><img src="data:image/png;base64,AAAA"><img data-src="lazy.jpg">`)
	assert.Equal(t, []string{
		"https://example.com/news/a.jpg",
		"https://example.com/b.png",
		"https://example.com/news/lazy.jpg",
	}, ImageURLs(root, "https://example.com/news/story"))
	assert.Equal(t, "https://example.com/news/a.jpg", FirstImageURL(root, "https://example.com/news/story"))
	assert.Empty(t, FirstImageURL(parse(t, `<p>none</p>`), "https://example.com/"))
}

func TestTags(t *testing.T) {
	t.Parallel()

	d := doc(t, `<a rel="tag" href="/t/go">Go</a><a href="/tag/news">News</a><a href="/tag/news">News</a><a href="/about">About</a>`)
	assert.Equal(t, []string{"Go", "News"}, Tags(d))
}

func TestVideos(t *testing.T) {
	t.Parallel()

	root := parse(t, `<div>
<iframe src="https://www.youtube.com/embed/abc"></iframe>
<iframe src="https://ads.example.com/frame"></iframe>
<object data="https://vimeo.com/123"></object>
<video src="/clip.mp4"><source src="/clip.webm"></video>
</div>`)
	assert.Equal(t, []string{
		"https://www.youtube.com/embed/abc",
		"https://vimeo.com/123",
		"https://example.com/clip.mp4",
		"https://example.com/clip.webm",
	}, Videos(root, "https://example.com/a"))
}

func TestTablesExpandSpans(t *testing.T) {
	t.Parallel()

	d := doc(t, `<table class="wikitable"><caption>Results</caption>
<tr><th>Name</th><th colspan="2">Score</th></tr>
<tr><td rowspan="2">Ann</td><td>1</td><td>2</td></tr>
<tr><td>3</td><td>4</td></tr>
</table>
<table><tr><td>plain</td><td rowspan="2">tall</td></tr><tr><td>next</td></tr></table>`)

	wiki := Tables(d, true)
	require.Len(t, wiki, 1)
	assert.Equal(t, article.Table{
		Caption: "Results",
		Rows: [][]string{
			{"Name", "Score", "Score"},
			{"Ann", "1", "2"},
			{"Ann", "3", "4"},
		},
	}, wiki[0])

	all := Tables(d, false)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[1].Caption)
	assert.Equal(t, [][]string{{"plain", "tall"}, {"next", "tall"}}, all[1].Rows)
}
