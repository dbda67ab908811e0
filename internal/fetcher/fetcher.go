// Package fetcher resolves article URLs to decoded markup. HTTP requests go
// through a gocolly collector; file:// URLs are read from disk.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-pipeline/internal/config"
	"github.com/JakeFAU/article-pipeline/internal/logging"
)

// pdfSignature starts every PDF file.
var pdfSignature = []byte("%PDF-")

// Config controls request construction and response handling.
type Config struct {
	UserAgent           string
	Timeout             time.Duration
	Proxy               string
	Headers             map[string]string
	HTTPSuccessOnly     bool
	FollowMetaRefresh   bool
	RenderJavaScript    bool
	IgnoredContentTypes map[string]string
	MaxBodyBytes        int64
}

// ConfigFromSettings copies the fetch-related options out of s.
func ConfigFromSettings(s config.Settings) Config {
	return Config{
		UserAgent:           s.UserAgent,
		Timeout:             s.RequestTimeout,
		Proxy:               s.Proxy,
		Headers:             s.Headers,
		HTTPSuccessOnly:     s.HTTPSuccessOnly,
		FollowMetaRefresh:   s.FollowMetaRefresh,
		RenderJavaScript:    s.RenderJavaScript,
		IgnoredContentTypes: s.IgnoredContentTypes,
		MaxBodyBytes:        s.MaxBodyBytes,
	}
}

// DocumentReader exposes metadata of a decoded binary document.
type DocumentReader interface {
	Author() string
	Title() string
	CreationDate() (time.Time, bool)
}

// BinaryDecoder turns a binary document into plain text.
type BinaryDecoder interface {
	Decode(body []byte) (string, DocumentReader, error)
}

// Renderer returns the DOM of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Result is the outcome of one Fetch.
type Result struct {
	// URL is the final URL after redirects and a followed meta refresh.
	URL         string
	StatusCode  int
	Header      http.Header
	ContentType string
	Charset     string
	Body        []byte
	// Content is the decoded text: markup, PDF text or a placeholder.
	Content string
	// Document is set for binary documents.
	Document        DocumentReader
	Placeholder     bool
	Rendered        bool
	RefreshFollowed bool

	// transcoded is set when colly already converted Body to UTF-8 from
	// the charset declared in the response header.
	transcoded bool
}

// IsBinary reports whether the content came from a binary decoder.
func (r Result) IsBinary() bool {
	return r.Document != nil
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logging.OrNop(logger) }
}

// WithBinaryDecoder sets the decoder used for PDF bodies.
func WithBinaryDecoder(d BinaryDecoder) Option {
	return func(f *Fetcher) { f.decoder = d }
}

// WithRenderer enables JavaScript rendering for application-shell pages.
func WithRenderer(r Renderer) Option {
	return func(f *Fetcher) { f.renderer = r }
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.transport = rt }
}

// Fetcher implements URL retrieval. It is safe for concurrent use.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	decoder       BinaryDecoder
	renderer      Renderer
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 7 * time.Second
	}
	f := &Fetcher{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		t := newHTTPTransport()
		if cfg.Proxy != "" {
			proxyURL, err := url.Parse(cfg.Proxy)
			if err != nil {
				return nil, fmt.Errorf("parse proxy: %w", err)
			}
			t.Proxy = http.ProxyURL(proxyURL)
		}
		f.transport = t
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	collectorOpts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	}
	if cfg.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(cfg.UserAgent))
	}
	if cfg.MaxBodyBytes > 0 {
		collectorOpts = append(collectorOpts, colly.MaxBodySize(int(cfg.MaxBodyBytes)))
	}
	c := colly.NewCollector(collectorOpts...)
	c.WithTransport(f.transport)
	c.SetCookieJar(jar)
	c.SetRequestTimeout(cfg.Timeout)
	f.baseCollector = c
	return f, nil
}

// Fetch retrieves rawURL and decodes it. A meta refresh is followed at most
// once when FollowMetaRefresh is set.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	return f.fetch(ctx, rawURL, 0)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, depth int) (Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Result{}, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	var res Result
	switch strings.ToLower(u.Scheme) {
	case "file":
		res, err = f.readFile(u)
	case "http", "https":
		res, err = f.get(ctx, u.String())
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		return Result{}, err
	}

	// The refresh target is fetched whatever its status; strictness
	// applies to the page the caller asked for.
	if depth == 0 && f.cfg.HTTPSuccessOnly && res.StatusCode != 0 &&
		(res.StatusCode < 200 || res.StatusCode > 299) {
		return Result{}, &StatusError{Code: res.StatusCode, URL: res.URL}
	}

	if err := f.decode(&res); err != nil {
		return Result{}, err
	}
	if res.IsBinary() || res.Placeholder {
		return res, nil
	}

	if f.renderer != nil && f.cfg.RenderJavaScript && u.Scheme != "file" && needsRender(res.StatusCode, res.Body) {
		rendered, err := f.renderer.Render(ctx, res.URL)
		if err != nil {
			f.logger.Debug("render failed, keeping fetched markup", zap.String("url", res.URL), zap.Error(err))
		} else {
			res.Content = rendered
			res.Rendered = true
		}
	}

	if f.cfg.FollowMetaRefresh && depth == 0 {
		if target := ExtractMetaRefresh(res.Content); target != "" {
			next, err := resolve(res.URL, target)
			if err != nil {
				return Result{}, fmt.Errorf("resolve meta refresh %q: %w", target, err)
			}
			f.logger.Debug("following meta refresh", zap.String("from", res.URL), zap.String("to", next))
			refreshed, err := f.fetch(ctx, next, depth+1)
			if err != nil {
				return Result{}, fmt.Errorf("follow meta refresh: %w", err)
			}
			refreshed.RefreshFollowed = true
			return refreshed, nil
		}
	}
	return res, nil
}

// decode fills Content from Body according to the content type and signature.
func (f *Fetcher) decode(res *Result) error {
	if placeholder, ok := f.ignored(res.ContentType); ok {
		res.Content = placeholder
		res.Placeholder = true
		return nil
	}
	if bytes.HasPrefix(res.Body, pdfSignature) {
		if f.decoder == nil {
			return ErrNoBinaryDecoder
		}
		content, doc, err := f.decoder.Decode(res.Body)
		if err != nil {
			return fmt.Errorf("decode binary document: %w", err)
		}
		res.Content = content
		res.Document = doc
		return nil
	}
	if res.transcoded {
		if name, ok := resolveCharset(declaredCharset(res.ContentType)); ok {
			res.Content = string(res.Body)
			res.Charset = name
			return nil
		}
	}
	res.Content, res.Charset = decodeBody(res.Body, res.ContentType)
	return nil
}

func (f *Fetcher) ignored(contentType string) (string, bool) {
	if len(f.cfg.IgnoredContentTypes) == 0 || contentType == "" {
		return "", false
	}
	mt := mediaType(contentType)
	for ct, placeholder := range f.cfg.IgnoredContentTypes {
		if strings.EqualFold(mediaType(ct), mt) {
			return placeholder, true
		}
	}
	return "", false
}

func (f *Fetcher) readFile(u *url.URL) (Result, error) {
	path := u.Path
	if u.Host != "" && u.Host != "localhost" {
		path = "//" + u.Host + u.Path
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	return Result{URL: u.String(), Body: body}, nil
}

// get performs one HTTP GET with a collector cloned from the base.
func (f *Fetcher) get(ctx context.Context, target string) (Result, error) {
	var (
		result   Result
		fetchErr error
	)
	collector := f.buildCollector(ctx, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return Result{}, err
	}
	if result.URL == "" {
		result.URL = target
	}
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, result *Result, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *Result, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, value := range f.cfg.Headers {
			r.Headers.Set(key, value)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		header := http.Header{}
		if r.Headers != nil {
			header = r.Headers.Clone()
		}
		contentType := header.Get("Content-Type")
		*result = Result{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			Header:      header,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
			transcoded:  declaredCharset(contentType) != "",
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch %s canceled: %w", target, ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("fetch %s: %w", target, *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("fetch %s: %w", target, err)
		}
		return nil
	}
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse ref: %w", err)
	}
	return b.ResolveReference(r).String(), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
