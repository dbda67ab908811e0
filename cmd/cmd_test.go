package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-pipeline/internal/config"
)

const prose = "The committee met on Tuesday to review the plan, and most of the members said that they were in favour of it. " +
	"A final vote is expected at the end of the month, after the public has had a chance to comment on the details."

func storyPage(title string) string {
	return `<html lang="en"><head><title>` + title + `</title></head><body>
<div id="story"><p>` + prose + `</p><p>` + prose + `</p><p>` + prose + `</p></div>
</body></html>`
}

// newsSite serves a home page with an RSS feed listing two stories.
func newsSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head><body></body></html>`)
		case "/story/one":
			fmt.Fprint(w, storyPage("Story one"))
		case "/story/two":
			fmt.Fprint(w, storyPage("Story two"))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>News</title>
<item><title>One</title><link>%[1]s/story/one</link></item>
<item><title>Two</title><link>%[1]s/story/two</link></item>
</channel></rss>`, srv.URL)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// useConfig replaces the app constructor for the duration of a test.
func useConfig(t *testing.T, mutate func(*config.Config)) {
	t.Helper()
	cfg := config.Default()
	cfg.Article.FetchImages = false
	cfg.Article.MinWordCount = 10
	cfg.Article.MinSentenceCount = 1
	if mutate != nil {
		mutate(&cfg)
	}
	prev := newApp
	newApp = func(string) (*App, error) {
		return &App{Config: cfg, Logger: zap.NewNop()}, nil
	}
	t.Cleanup(func() { newApp = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseOptions(t *testing.T) {
	got, err := parseOptions([]string{"language=de", " max_authors = 3 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"language": "de", "max_authors": "3"}, got)

	_, err = parseOptions([]string{"novalue"})
	require.Error(t, err)
}

func TestArticleSettingsRejectsUnknownOption(t *testing.T) {
	_, err := articleSettings(config.DefaultSettings(), "", []string{"no_such_option=1"})
	require.ErrorIs(t, err, config.ErrUnknownOption)

	s, err := articleSettings(config.DefaultSettings(), "fr", []string{"max_authors=3"})
	require.NoError(t, err)
	assert.Equal(t, "fr", s.Language)
	assert.Equal(t, 3, s.MaxAuthors)
}

func TestExtractPrintsArticle(t *testing.T) {
	useConfig(t, nil)
	srv := newsSite(t)

	out, err := execute(t, "extract", "--url", srv.URL+"/story/one")
	require.NoError(t, err)
	assert.Contains(t, out, "Title: Story one")
	assert.Contains(t, out, "The committee met on Tuesday")
	assert.Contains(t, out, "Keywords:")
}

func TestExtractJSON(t *testing.T) {
	useConfig(t, nil)
	srv := newsSite(t)

	out, err := execute(t, "extract", "--url", srv.URL+"/story/two", "--json")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "Story two", rec["title"])
	assert.Equal(t, "nlp-annotated", rec["stage"])
}

func TestExtractFailedFetchIsAnError(t *testing.T) {
	useConfig(t, nil)
	srv := newsSite(t)

	_, err := execute(t, "extract", "--url", srv.URL+"/missing")
	require.ErrorIs(t, err, errFetchFailed)
}

func TestCrawlStoresArticlesAndRemembersThem(t *testing.T) {
	outDir := t.TempDir()
	dedupDir := t.TempDir()
	useConfig(t, func(c *config.Config) {
		c.Output.Dir = outDir
		c.Dedup.Dir = dedupDir
		c.Scheduler.Workers = 2
		c.Scheduler.PerSource = 1
	})
	srv := newsSite(t)

	out, err := execute(t, "crawl", "--source", srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, out, "2 processed, 0 skipped")
	assert.Contains(t, out, "2 annotated")

	var stored []string
	require.NoError(t, filepath.WalkDir(outDir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(path, ".json") {
			stored = append(stored, path)
		}
		return err
	}))
	assert.Len(t, stored, 2)

	out, err = execute(t, "crawl", "--source", srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, out, "0 processed, 2 skipped")

	out, err = execute(t, "crawl", "--source", srv.URL+"/", "--no-dedup", "--url", "/story/one")
	require.NoError(t, err)
	assert.Contains(t, out, "1 processed, 0 skipped")
}
