// Package pipeline runs one article through fetch, extraction and
// annotation, enforcing the order of the stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/cleaner"
	"github.com/JakeFAU/article-pipeline/internal/clock"
	"github.com/JakeFAU/article-pipeline/internal/config"
	"github.com/JakeFAU/article-pipeline/internal/dom"
	"github.com/JakeFAU/article-pipeline/internal/extractor"
	"github.com/JakeFAU/article-pipeline/internal/fetcher"
	"github.com/JakeFAU/article-pipeline/internal/images"
	"github.com/JakeFAU/article-pipeline/internal/logging"
	"github.com/JakeFAU/article-pipeline/internal/metrics"
	"github.com/JakeFAU/article-pipeline/internal/nlp"
	"github.com/JakeFAU/article-pipeline/internal/text"
)

// Fetcher retrieves page content. *fetcher.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (fetcher.Result, error)
}

// ImageChecker decides which image becomes the top image.
// *images.Checker satisfies it.
type ImageChecker interface {
	Satisfies(ctx context.Context, rawURL string) bool
	Largest(ctx context.Context, urls []string) (string, error)
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.OrNop(logger) }
}

// WithAnnotator replaces the built-in frequency annotator.
func WithAnnotator(a nlp.Annotator) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.annotator = a
		}
	}
}

// WithImageChecker replaces the default image checker.
func WithImageChecker(c ImageChecker) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.images = c
		}
	}
}

// WithClock sets the clock used for parsing-candidate fingerprints.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// Pipeline is the state machine for a single article. It is not safe for
// concurrent use; each run owns its pipeline and its trees.
type Pipeline struct {
	article   *article.Article
	settings  config.Settings
	lang      text.Language
	fetcher   Fetcher
	cleaner   *cleaner.Cleaner
	annotator nlp.Annotator
	images    ImageChecker
	clock     clock.Clock
	logger    *zap.Logger

	candidate article.ParsingCandidate
	document  fetcher.DocumentReader
	// canonicalFollowed stops a second canonical-link refetch.
	canonicalFollowed bool
}

// LimitsFromSettings copies the article caps out of settings.
func LimitsFromSettings(s config.Settings) article.Limits {
	return article.Limits{
		MaxTitleLen:   s.MaxTitleLen,
		MaxTextLen:    s.MaxTextLen,
		MaxAuthors:    s.MaxAuthors,
		MaxKeywords:   s.MaxKeywords,
		MaxSummaryLen: s.MaxSummaryLen,
	}
}

// NewImageChecker builds the image checker for settings. Callers running
// many pipelines build it once and pass it with WithImageChecker so image
// measurements are shared.
func NewImageChecker(settings config.Settings, logger *zap.Logger) *images.Checker {
	return images.New(images.Config{
		MinWidth:  settings.MinImageWidth,
		MinHeight: settings.MinImageHeight,
		MaxAspect: settings.MaxImageAspect,
		Timeout:   settings.RequestTimeout,
		UserAgent: settings.UserAgent,
		Proxy:     settings.Proxy,
	}, images.WithLogger(logger))
}

// New prepares a pipeline for rawURL. Settings must already be validated;
// an unknown language is reported here.
func New(rawURL string, settings config.Settings, f Fetcher, opts ...Option) (*Pipeline, error) {
	return Attach(article.New(rawURL, LimitsFromSettings(settings)), settings, f, opts...)
}

// Attach prepares a pipeline that fills in an existing, not yet started
// article. The scheduler creates articles up front so it can mark the ones
// a deadline leaves behind.
func Attach(a *article.Article, settings config.Settings, f Fetcher, opts ...Option) (*Pipeline, error) {
	if a == nil {
		return nil, errors.New("pipeline: nil article")
	}
	if f == nil {
		return nil, errors.New("pipeline: nil fetcher")
	}
	lang, err := text.ForLanguage(settings.Language)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p := &Pipeline{
		article:  a,
		settings: settings,
		lang:     lang,
		fetcher:  f,
		cleaner:  cleaner.New(settings.CleanerDenylist),
		annotator: nlp.FrequencyAnnotator{
			MaxKeywords:  settings.MaxKeywords,
			MaxSentences: settings.MaxSummarySentences,
		},
		clock:  clock.System{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.images == nil {
		p.images = NewImageChecker(settings, p.logger)
	}
	p.logger = p.logger.With(zap.String("url", p.article.URL))
	return p, nil
}

// Article returns the record being filled in.
func (p *Pipeline) Article() *article.Article {
	return p.article
}

// Stage is the article's current stage.
func (p *Pipeline) Stage() article.Stage {
	return p.article.Stage
}

// Candidate is the parsing candidate computed by Fetch.
func (p *Pipeline) Candidate() article.ParsingCandidate {
	return p.candidate
}

// Language is the language used for scoring, which may have been switched
// to the page's declared language during Extract.
func (p *Pipeline) Language() text.Language {
	return p.lang
}

func (p *Pipeline) require(op string, want article.Stage) error {
	if p.article.Stage != want {
		return &StageError{Op: op, Have: p.article.Stage, Want: want}
	}
	return nil
}

// fail records err as the failure reason, marking deadline expiry as a timeout.
func (p *Pipeline) fail(ctx context.Context, op string, err error) {
	reason := fmt.Sprintf("%s: %v", op, err)
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		reason = article.TimeoutReason + ": " + reason
	}
	p.article.Fail(reason)
	p.logger.Info("article failed", zap.String("stage", op), zap.Error(err))
}

// Fetch downloads the article. A fetch failure moves the article to the
// failed stage and is not returned; only calling Fetch out of order is an
// error. With UseCanonicalLink set, a differing canonical link is fetched
// once in place of the original page.
func (p *Pipeline) Fetch(ctx context.Context) error {
	if err := p.require("fetch", article.StageNotStarted); err != nil {
		return err
	}
	start := time.Now()
	defer func() { metrics.ObserveStage("fetch", time.Since(start)) }()

	res, err := p.fetcher.Fetch(ctx, p.article.URL)
	if err != nil {
		p.fail(ctx, "fetch", err)
		return nil
	}
	if p.settings.UseCanonicalLink && !res.IsBinary() {
		res = p.followCanonical(ctx, res)
	}
	p.accept(res)
	return nil
}

func (p *Pipeline) followCanonical(ctx context.Context, res fetcher.Result) fetcher.Result {
	if p.canonicalFollowed {
		return res
	}
	root, err := dom.Parse(res.Content)
	if err != nil {
		return res
	}
	canonical := extractor.CanonicalLink(dom.Document(root), res.URL)
	if canonical == "" || canonical == res.URL || canonical == p.article.URL {
		return res
	}
	p.canonicalFollowed = true
	p.logger.Debug("following canonical link", zap.String("canonical", canonical))
	next, err := p.fetcher.Fetch(ctx, canonical)
	if err != nil {
		p.logger.Debug("canonical fetch failed, keeping original page", zap.Error(err))
		return res
	}
	return next
}

func (p *Pipeline) accept(res fetcher.Result) {
	a := p.article
	a.ResolvedURL = res.URL
	a.RawHTML = res.Content
	p.candidate = article.NewParsingCandidate(res.URL, res.Body, p.clock.Now())
	metrics.ObserveFetch(res.URL, len(res.Body))

	if res.IsBinary() {
		p.document = res.Document
		a.IsPDF = true
		if title := res.Document.Title(); title != "" {
			a.SetTitle(title)
		}
		if created, ok := res.Document.CreationDate(); ok {
			a.PublishDate = &created
		}
	}
	a.Stage = article.StageFetched
}

// Extract cleans the working tree, finds the content node and fills in
// text, markup and metadata. Metadata is read from a second, untouched
// parse of the same markup.
func (p *Pipeline) Extract(ctx context.Context) error {
	if err := p.require("extract", article.StageFetched); err != nil {
		return err
	}
	start := time.Now()
	defer func() { metrics.ObserveStage("extract", time.Since(start)) }()

	a := p.article
	if a.IsPDF {
		a.SetText(a.RawHTML)
		var authors []string
		if p.document != nil {
			authors = append(authors, p.document.Author())
		}
		a.SetAuthors(authors)
		a.Stage = article.StageExtracted
		return nil
	}

	pristine, err := dom.Parse(a.RawHTML)
	if err != nil {
		p.fail(ctx, "extract", err)
		return nil
	}
	working, err := dom.Parse(a.RawHTML)
	if err != nil {
		p.fail(ctx, "extract", err)
		return nil
	}

	p.extractMetadata(pristine)
	ex := extractor.New(p.settings, p.lang, p.logger)

	p.cleaner.Clean(working)
	top := ex.CalculateBestNode(working)
	if top != nil {
		a.SetMovies(extractor.Videos(top, a.ResolvedURL))
		top = ex.PostCleanup(top)
		plain, markup := extractor.Format(top)
		a.SetText(plain)
		a.SetHTML(markup)
	} else {
		p.logger.Debug("no content node found")
	}

	p.selectImages(ctx, pristine, top)

	if p.settings.ExtractTables || strings.Contains(strings.ToLower(a.ResolvedURL), ".wikipedia.org/wiki/") {
		a.Tables = extractor.Tables(dom.Document(pristine), !p.settings.ExtractTables)
	}

	if ctx.Err() != nil {
		p.fail(ctx, "extract", ctx.Err())
		return nil
	}
	a.Stage = article.StageExtracted
	return nil
}

func (p *Pipeline) extractMetadata(pristine *html.Node) {
	a := p.article
	doc := dom.Document(pristine)

	if title := extractor.Title(doc); title != "" {
		a.SetTitle(title)
	}
	a.SetAuthors(extractor.Authors(doc))

	if a.SetMetaLanguage(extractor.MetaLanguage(doc)) && p.settings.UseMetaLanguage && a.MetaLanguage != p.lang.Code {
		if lang, err := text.ForLanguage(a.MetaLanguage); err == nil {
			p.logger.Debug("switching language from page metadata",
				zap.String("from", p.lang.Code), zap.String("to", lang.Code))
			p.lang = lang
		}
	}

	a.MetaFavicon = extractor.Favicon(doc, a.ResolvedURL)
	a.MetaSiteName = extractor.MetaSiteName(doc)
	a.MetaDescription = extractor.MetaDescription(doc)
	a.MetaType = extractor.MetaType(doc)
	a.CanonicalLink = extractor.CanonicalLink(doc, a.ResolvedURL)
	a.SetTags(extractor.Tags(doc))
	a.MetaKeywords = extractor.MetaKeywords(doc)
	a.Meta = extractor.MetaData(doc)
	if a.PublishDate == nil {
		a.PublishDate = extractor.PublishingDate(doc, a.ResolvedURL)
	}
}

// selectImages lists the page images and picks a top image: the metadata
// image if it is big enough, else the first image in the content, else the
// largest image on the page. Nothing here can fail the article.
func (p *Pipeline) selectImages(ctx context.Context, pristine, top *html.Node) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Debug("top image selection panicked", zap.Any("panic", rec))
		}
	}()
	a := p.article
	a.MetaImage = extractor.MetaImageURL(dom.Document(pristine), a.ResolvedURL)
	imgs := extractor.ImageURLs(pristine, a.ResolvedURL)
	if a.MetaImage != "" {
		imgs = append(imgs, a.MetaImage)
	}
	a.SetImages(imgs)

	check := func(u string) bool {
		if u == "" {
			return false
		}
		return !p.settings.FetchImages || p.images.Satisfies(ctx, u)
	}

	if check(a.MetaImage) {
		a.TopImage = a.MetaImage
		return
	}
	if top != nil {
		if first := extractor.FirstImageURL(top, a.ResolvedURL); check(first) {
			a.TopImage = first
			return
		}
	}
	if !p.settings.FetchImages || len(a.Images) == 0 {
		return
	}
	best, err := p.images.Largest(ctx, a.Images)
	if err != nil {
		p.logger.Debug("no top image", zap.Error(err))
		return
	}
	a.TopImage = best
}

// Annotate hands the article text to the annotator and stores its output.
func (p *Pipeline) Annotate(ctx context.Context) error {
	if err := p.require("annotate", article.StageExtracted); err != nil {
		return err
	}
	start := time.Now()
	defer func() { metrics.ObserveStage("annotate", time.Since(start)) }()

	out, err := p.annotator.Annotate(ctx, p.article.Text, p.lang)
	if err != nil {
		p.fail(ctx, "annotate", err)
		return nil
	}
	p.article.SetKeywords(out.Keywords)
	p.article.SetSummary(out.Summary)
	p.article.Stage = article.StageAnnotated
	return nil
}

// Run executes Fetch, Extract and Annotate, stopping once the article
// fails. The returned error is only ever a StageError.
func (p *Pipeline) Run(ctx context.Context) error {
	steps := []func(context.Context) error{p.Fetch, p.Extract, p.Annotate}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
		if p.article.Stage == article.StageFailed {
			break
		}
	}
	metrics.ObserveArticle(p.article.ResolvedURL, p.article.Stage.String())
	return nil
}

// Runner runs complete pipelines over articles handed out by the
// scheduler. Every article gets its own Pipeline and trees.
type Runner struct {
	Settings config.Settings
	Fetcher  Fetcher
	Options  []Option
}

// Run attaches a pipeline to a and runs it to a terminal stage.
func (r Runner) Run(ctx context.Context, a *article.Article) error {
	p, err := Attach(a, r.Settings, r.Fetcher, r.Options...)
	if err != nil {
		return err
	}
	return p.Run(ctx)
}
