// Package images measures candidate images so the pipeline can pick a top
// image that is large enough and not a banner or sprite.
package images

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // decoder registration
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-pipeline/internal/logging"
)

// ErrNoImage is returned by Largest when no candidate could be measured.
var ErrNoImage = errors.New("no usable image")

// Dimensions is the pixel size of an image.
type Dimensions struct {
	Width  int
	Height int
}

// Area is Width*Height.
func (d Dimensions) Area() int { return d.Width * d.Height }

// Aspect is the long side over the short side, or 0 for an empty image.
func (d Dimensions) Aspect() float64 {
	long, short := d.Width, d.Height
	if short > long {
		long, short = short, long
	}
	if short == 0 {
		return 0
	}
	return float64(long) / float64(short)
}

// Config sets the acceptance thresholds and download limits.
type Config struct {
	MinWidth  int
	MinHeight int
	MaxAspect float64
	Timeout   time.Duration
	UserAgent string
	// Proxy routes image requests through an HTTP proxy when set.
	Proxy string
	// MaxBytes bounds how much of each image is read to find its header.
	MaxBytes int64
	// CacheTTL is how long measured dimensions are remembered.
	CacheTTL time.Duration
}

// Option customises a Checker.
type Option func(*Checker)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Checker) {
		c.logger = logging.OrNop(logger)
	}
}

// Checker downloads image headers and memoises the measured dimensions.
// It is safe for concurrent use.
type Checker struct {
	cfg    Config
	client *http.Client
	memo   *cache.Cache
	logger *zap.Logger
}

type measurement struct {
	dims Dimensions
	err  error
}

// New builds a Checker. One Checker is meant to be shared by every
// pipeline of a run so the dimension memo spans articles.
func New(cfg Config, opts ...Option) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	c := &Checker{
		cfg:    cfg,
		client: newClient(cfg),
		memo:   cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newClient(cfg Config) *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		if proxyURL, err := url.Parse(cfg.Proxy); err == nil {
			t.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &http.Client{Timeout: cfg.Timeout, Transport: t}
}

// Dimensions returns the size of the image at rawURL. Failures are
// remembered as well, so a broken URL is only requested once per TTL.
func (c *Checker) Dimensions(ctx context.Context, rawURL string) (Dimensions, error) {
	if m, ok := c.memo.Get(rawURL); ok {
		cached := m.(measurement)
		return cached.dims, cached.err
	}
	dims, err := c.measure(ctx, rawURL)
	if ctx.Err() == nil {
		c.memo.Set(rawURL, measurement{dims: dims, err: err}, cache.DefaultExpiration)
	}
	return dims, err
}

func (c *Checker) measure(ctx context.Context, rawURL string) (Dimensions, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return Dimensions{}, fmt.Errorf("unsupported image url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Dimensions{}, fmt.Errorf("build image request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Dimensions{}, fmt.Errorf("get image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Dimensions{}, fmt.Errorf("get image: status %d", resp.StatusCode)
	}
	cfg, _, err := image.DecodeConfig(io.LimitReader(resp.Body, c.cfg.MaxBytes))
	if err != nil {
		return Dimensions{}, fmt.Errorf("decode image header: %w", err)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// Acceptable reports whether d clears the minimum size and aspect limits.
func (c *Checker) Acceptable(d Dimensions) bool {
	if d.Width < c.cfg.MinWidth || d.Height < c.cfg.MinHeight || d.Area() == 0 {
		return false
	}
	return c.cfg.MaxAspect <= 0 || d.Aspect() <= c.cfg.MaxAspect
}

// Satisfies reports whether the image at rawURL can serve as a top image.
// Any failure counts as "no".
func (c *Checker) Satisfies(ctx context.Context, rawURL string) bool {
	if rawURL == "" {
		return false
	}
	dims, err := c.Dimensions(ctx, rawURL)
	if err != nil {
		c.logger.Debug("image check failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	return c.Acceptable(dims)
}

// Largest measures every candidate and returns the acceptable one with
// the biggest area. It never panics; a panic inside a decoder is
// returned as an error.
func (c *Checker) Largest(ctx context.Context, urls []string) (best string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			best, err = "", fmt.Errorf("measure images: %v", rec)
		}
	}()
	bestArea := 0
	for _, u := range urls {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		dims, derr := c.Dimensions(ctx, u)
		if derr != nil || !c.Acceptable(dims) {
			continue
		}
		if dims.Area() > bestArea {
			best, bestArea = u, dims.Area()
		}
	}
	if best == "" {
		return "", ErrNoImage
	}
	return best, nil
}
