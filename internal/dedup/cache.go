// Package dedup remembers which article URLs each source domain has
// already produced, so repeated crawls only process new links.
//
// Every domain has one newline-delimited file under the cache directory.
// Writes go to a temporary file that is renamed over the entry, and all
// access to one domain's entry is serialized.
package dedup

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-pipeline/internal/logging"
	"github.com/JakeFAU/article-pipeline/internal/metrics"
)

// ErrInvalidDomain is returned for domains that cannot name an entry file.
var ErrInvalidDomain = errors.New("invalid dedup domain")

// Cache is a per-domain URL memo rooted at one directory.
type Cache struct {
	dir        string
	maxEntries int
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the cache directory if needed and checks that it is
// writable. maxEntries <= 0 disables the overflow reset.
func New(dir string, maxEntries int, logger *zap.Logger) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("dedup directory is required")
	}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dedup directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat dedup directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("dedup path %q is not a directory", dir)
	}

	check, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("dedup directory is not writable: %w", err)
	}
	_ = check.Close()
	if err := os.Remove(check.Name()); err != nil {
		return nil, fmt.Errorf("clean up write check file: %w", err)
	}

	return &Cache{
		dir:        dir,
		maxEntries: maxEntries,
		logger:     logging.OrNop(logger).Named("dedup"),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// Dir is the directory holding the entry files.
func (c *Cache) Dir() string {
	return c.dir
}

// lock returns the mutex for domain, creating it on first use.
func (c *Cache) lock(domain string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.locks[domain]
	if !ok {
		m = &sync.Mutex{}
		c.locks[domain] = m
	}
	return m
}

// FileName maps a domain to its entry file name.
func FileName(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" || d == "." || d == ".." || strings.ContainsAny(d, `\`+"\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return strings.ReplaceAll(d, "/", "-") + ".txt", nil
}

func (c *Cache) path(domain string) (string, error) {
	name, err := FileName(domain)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.dir, name), nil
}

// Entries returns the URLs recorded for domain, in file order.
func (c *Cache) Entries(domain string) ([]string, error) {
	p, err := c.path(domain)
	if err != nil {
		return nil, err
	}
	m := c.lock(domain)
	m.Lock()
	defer m.Unlock()
	return readEntry(p)
}

// Filter returns the candidates not yet recorded for domain, de-duplicated
// and in their original order. The entry is not modified.
func (c *Cache) Filter(domain string, candidates []string) ([]string, error) {
	p, err := c.path(domain)
	if err != nil {
		return nil, err
	}
	m := c.lock(domain)
	m.Lock()
	defer m.Unlock()

	seen, err := readEntry(p)
	if err != nil {
		return nil, err
	}
	return c.filter(domain, seen, candidates), nil
}

func (c *Cache) filter(domain string, seen, candidates []string) []string {
	known := make(map[string]bool, len(seen)+len(candidates))
	for _, u := range seen {
		known[u] = true
	}
	fresh := make([]string, 0, len(candidates))
	dropped := 0
	for _, u := range candidates {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if known[u] {
			dropped++
			continue
		}
		known[u] = true
		fresh = append(fresh, u)
	}
	metrics.ObserveDedup(domain, dropped)
	return fresh
}

// Commit adds urls to domain's entry. When the union would exceed the
// configured maximum the old entry is moved aside to a .bak file, a
// warning is logged and only urls are written.
func (c *Cache) Commit(domain string, urls []string) error {
	p, err := c.path(domain)
	if err != nil {
		return err
	}
	m := c.lock(domain)
	m.Lock()
	defer m.Unlock()

	seen, err := readEntry(p)
	if err != nil {
		return err
	}
	return c.commit(domain, p, seen, urls)
}

func (c *Cache) commit(domain, p string, seen, urls []string) error {
	merged := union(seen, urls)
	if c.maxEntries > 0 && len(merged) > c.maxEntries {
		c.logger.Warn("dedup entry overflow, starting fresh",
			zap.String("domain", domain),
			zap.Int("previous", len(seen)),
			zap.Int("limit", c.maxEntries))
		metrics.ObserveDedupOverflow(domain)
		if len(seen) > 0 {
			if err := os.Rename(p, p+".bak"); err != nil {
				return fmt.Errorf("back up dedup entry: %w", err)
			}
		}
		merged = union(nil, urls)
	}
	return writeEntry(p, merged)
}

// Memoize filters candidates and commits the fresh ones under a single
// lock, returning the fresh URLs.
func (c *Cache) Memoize(domain string, candidates []string) ([]string, error) {
	p, err := c.path(domain)
	if err != nil {
		return nil, err
	}
	m := c.lock(domain)
	m.Lock()
	defer m.Unlock()

	seen, err := readEntry(p)
	if err != nil {
		return nil, err
	}
	fresh := c.filter(domain, seen, candidates)
	if len(fresh) == 0 {
		return fresh, nil
	}
	if err := c.commit(domain, p, seen, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Clear removes domain's entry. A missing entry is not an error.
func (c *Cache) Clear(domain string) error {
	p, err := c.path(domain)
	if err != nil {
		return err
	}
	m := c.lock(domain)
	m.Lock()
	defer m.Unlock()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear dedup entry: %w", err)
	}
	return nil
}

func readEntry(p string) ([]string, error) {
	f, err := os.Open(p) // #nosec G304 -- path is built from the cache directory.
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open dedup entry: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dedup entry: %w", err)
	}
	return out, nil
}

func writeEntry(p string, urls []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, u := range urls {
		_, _ = w.WriteString(u)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace dedup entry: %w", err)
	}
	return nil
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, u := range list {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
