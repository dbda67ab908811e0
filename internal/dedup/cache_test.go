package dedup

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, maxEntries int) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), maxEntries, nil)
	require.NoError(t, err)
	return c
}

func TestFilterThenCommit(t *testing.T) {
	t.Parallel()

	c := newCache(t, 100)
	const domain = "news.example.com"
	require.NoError(t, c.Commit(domain, []string{"A", "B"}))

	fresh, err := c.Filter(domain, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, fresh)

	require.NoError(t, c.Commit(domain, fresh))
	fresh, err = c.Filter(domain, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Empty(t, fresh)

	entries, err := c.Entries(domain)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, entries)
}

func TestFirstCrawlAcceptsEverything(t *testing.T) {
	t.Parallel()

	c := newCache(t, 100)
	fresh, err := c.Memoize("example.org", []string{"x", "y", "x", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, fresh)

	again, err := c.Memoize("example.org", []string{"x", "y"})
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestEntryFileLayout(t *testing.T) {
	t.Parallel()

	c := newCache(t, 100)
	require.NoError(t, c.Commit("example.com/blog", []string{"u1", "u2"}))

	raw, err := os.ReadFile(filepath.Join(c.Dir(), "example.com-blog.txt"))
	require.NoError(t, err)
	assert.Equal(t, "u1\nu2\n", string(raw))
}

func TestOverflowBacksUpAndStartsFresh(t *testing.T) {
	t.Parallel()

	c := newCache(t, 3)
	const domain = "example.com"
	require.NoError(t, c.Commit(domain, []string{"a", "b", "c"}))

	fresh, err := c.Memoize(domain, []string{"d", "e"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "e"}, fresh)

	entries, err := c.Entries(domain)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "e"}, entries)

	backup, err := os.ReadFile(filepath.Join(c.Dir(), "example.com.txt.bak"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(backup))
}

func TestClear(t *testing.T) {
	t.Parallel()

	c := newCache(t, 10)
	require.NoError(t, c.Clear("never-seen.com"))
	require.NoError(t, c.Commit("seen.com", []string{"a"}))
	require.NoError(t, c.Clear("seen.com"))

	entries, err := c.Entries("seen.com")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvalidDomain(t *testing.T) {
	t.Parallel()

	c := newCache(t, 10)
	for _, d := range []string{"", "..", `a\b`} {
		_, err := c.Filter(d, []string{"x"})
		require.ErrorIs(t, err, ErrInvalidDomain, d)
	}
}

func TestNewRejectsFile(t *testing.T) {
	t.Parallel()

	f := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o600))
	_, err := New(f, 10, nil)
	require.Error(t, err)

	_, err = New("", 10, nil)
	require.Error(t, err)
}

func TestConcurrentMemoizeSameDomain(t *testing.T) {
	t.Parallel()

	c := newCache(t, 1000)
	const workers = 8
	var wg sync.WaitGroup
	results := make([][]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batch := make([]string, 0, 10)
			for j := 0; j < 10; j++ {
				batch = append(batch, fmt.Sprintf("https://example.com/%d", j))
			}
			fresh, err := c.Memoize("example.com", batch)
			assert.NoError(t, err)
			results[i] = fresh
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += len(r)
	}
	assert.Equal(t, 10, total)

	entries, err := c.Entries("example.com")
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}
