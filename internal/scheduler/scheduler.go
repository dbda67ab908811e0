// Package scheduler runs many article pipelines on a fixed worker pool,
// bounding how many items of one source execute at the same time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/dedup"
	"github.com/JakeFAU/article-pipeline/internal/id/uuid"
	"github.com/JakeFAU/article-pipeline/internal/logging"
	"github.com/JakeFAU/article-pipeline/internal/metrics"
	"github.com/JakeFAU/article-pipeline/internal/policy/ratelimit"
)

// Runner drives one article to a terminal stage. It must return promptly
// once ctx is done. A returned error is a caller bug and fails the article.
type Runner interface {
	Run(ctx context.Context, a *article.Article) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, a *article.Article) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, a *article.Article) error {
	return f(ctx, a)
}

// WorkItem pairs an article with the source it belongs to. The source
// keys both the concurrency budget and the dedup entry.
type WorkItem struct {
	Source  string
	Article *article.Article
}

// NewWorkItem creates a fresh article for rawURL.
func NewWorkItem(source, rawURL string, limits article.Limits) WorkItem {
	return WorkItem{Source: source, Article: article.New(rawURL, limits)}
}

// Config sizes the pool.
type Config struct {
	Workers   int
	PerSource int
	// Deadline bounds a whole Join. Zero means no deadline.
	Deadline time.Duration
}

// Report summarizes one run.
type Report struct {
	RunID    string
	Articles []*article.Article
	Filtered int
	Duration time.Duration
}

// Count returns how many articles ended in stage.
func (r Report) Count(stage article.Stage) int {
	n := 0
	for _, a := range r.Articles {
		if a.Stage == stage {
			n++
		}
	}
	return n
}

// TimedOut returns how many articles the deadline abandoned.
func (r Report) TimedOut() int {
	n := 0
	for _, a := range r.Articles {
		if a.TimedOut() {
			n++
		}
	}
	return n
}

// CompleteFunc is called once per article after it reaches a terminal stage.
type CompleteFunc func(ctx context.Context, runID string, item WorkItem)

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = logging.OrNop(logger) }
}

// WithDedup filters submitted URLs through cache and commits the ones
// that finished.
func WithDedup(cache *dedup.Cache) Option {
	return func(s *Scheduler) { s.dedup = cache }
}

// WithRateLimiter makes every worker wait for a per-host token before
// running an item.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Scheduler) { s.limiter = l }
}

// WithOnComplete registers fn as the completion hook.
func WithOnComplete(fn CompleteFunc) Option {
	return func(s *Scheduler) { s.onComplete = fn }
}

// Scheduler owns a worker pool. Items are submitted with Submit and run by
// Join; each Join is a separate run with its own ID.
type Scheduler struct {
	cfg        Config
	runner     Runner
	dedup      *dedup.Cache
	limiter    *ratelimit.Limiter
	onComplete CompleteFunc
	ids        uuid.Generator
	logger     *zap.Logger

	mu      sync.Mutex
	pending []WorkItem
}

// New validates cfg and builds a Scheduler.
func New(cfg Config, runner Runner, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("scheduler: workers must be > 0, got %d", cfg.Workers)
	}
	if cfg.PerSource <= 0 {
		return nil, fmt.Errorf("scheduler: per-source budget must be > 0, got %d", cfg.PerSource)
	}
	s := &Scheduler{
		cfg:    cfg,
		runner: runner,
		ids:    uuid.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler")
	return s, nil
}

// Submit queues items for the next Join. Items without an article are
// dropped.
func (s *Scheduler) Submit(items ...WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if it.Article == nil {
			continue
		}
		s.pending = append(s.pending, it)
	}
}

// Run submits items and joins them.
func (s *Scheduler) Run(ctx context.Context, items []WorkItem) Report {
	s.Submit(items...)
	return s.Join(ctx)
}

type task struct {
	item    WorkItem
	release func()
}

// Join runs every pending item and blocks until each has reached a
// terminal stage. It never fails because of an individual article. When
// the deadline expires, in-flight work is cancelled and every article
// still short of a terminal stage is failed with a timeout reason.
func (s *Scheduler) Join(ctx context.Context) Report {
	start := time.Now()
	s.mu.Lock()
	items := s.pending
	s.pending = nil
	s.mu.Unlock()

	runID, err := s.ids.NewID()
	if err != nil {
		runID = start.UTC().Format("20060102T150405.000000000")
		s.logger.Warn("run id generation failed, using timestamp", zap.Error(err))
	}
	logger := s.logger.With(zap.String("run_id", runID))

	items, filtered := s.filter(items, logger)
	report := Report{RunID: runID, Filtered: filtered, Articles: make([]*article.Article, len(items))}
	for i, it := range items {
		report.Articles[i] = it.Article
	}
	logger.Info("run started", zap.Int("items", len(items)), zap.Int("filtered", filtered))

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	tasks := make(chan task)
	var workers sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for t := range tasks {
				s.execute(runCtx, runID, t, logger)
			}
		}()
	}

	var feeders sync.WaitGroup
	for source, group := range groupBySource(items) {
		feeders.Add(1)
		go func(source string, group []WorkItem) {
			defer feeders.Done()
			s.feed(runCtx, source, group, tasks)
		}(source, group)
	}
	feeders.Wait()
	close(tasks)
	workers.Wait()

	hookCtx := context.WithoutCancel(ctx)
	for _, it := range items {
		if it.Article.Stage.Terminal() {
			continue
		}
		it.Article.Fail(article.TimeoutReason + ": run deadline expired")
		s.complete(hookCtx, runID, it)
	}

	s.commit(items, logger)
	report.Duration = time.Since(start)
	metrics.ObserveRun(report.Duration)
	logger.Info("run finished",
		zap.Int("annotated", report.Count(article.StageAnnotated)),
		zap.Int("failed", report.Count(article.StageFailed)),
		zap.Int("timed_out", report.TimedOut()),
		zap.Duration("duration", report.Duration))
	return report
}

func (s *Scheduler) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Deadline > 0 {
		return context.WithTimeout(ctx, s.cfg.Deadline)
	}
	return context.WithCancel(ctx)
}

// feed hands one source's items to the pool, never letting more than
// PerSource of them run at once. A feeder blocks on its own semaphore, so
// a saturated source does not hold up workers.
func (s *Scheduler) feed(ctx context.Context, source string, items []WorkItem, tasks chan<- task) {
	sem := semaphore.NewWeighted(int64(s.cfg.PerSource))
	for _, it := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		metrics.SourceStarted(source)
		release := func() {
			metrics.SourceFinished(source)
			sem.Release(1)
		}
		select {
		case tasks <- task{item: it, release: release}:
		case <-ctx.Done():
			release()
			return
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, runID string, t task, logger *zap.Logger) {
	defer t.release()
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	a := t.item.Article
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, a.URL); err != nil {
			return
		}
	}
	if err := s.run(ctx, a); err != nil {
		logger.Error("pipeline misuse", zap.String("url", a.URL), zap.Error(err))
		if !a.Stage.Terminal() {
			a.Failf("pipeline: %v", err)
		}
	}
	if !a.Stage.Terminal() {
		// Left for Join to mark as timed out.
		return
	}
	s.complete(context.WithoutCancel(ctx), runID, t.item)
}

// run calls the runner, turning a panic into an error so one bad page
// cannot take the pool down.
func (s *Scheduler) run(ctx context.Context, a *article.Article) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runner panic: %v", r)
		}
	}()
	return s.runner.Run(ctx, a)
}

func (s *Scheduler) complete(ctx context.Context, runID string, it WorkItem) {
	if s.onComplete != nil {
		s.onComplete(ctx, runID, it)
	}
}

// filter drops items already memoized for their source and duplicates
// within the batch.
func (s *Scheduler) filter(items []WorkItem, logger *zap.Logger) ([]WorkItem, int) {
	if s.dedup == nil {
		return items, 0
	}
	allowed := make(map[string]map[string]bool)
	for source, group := range groupBySource(items) {
		urls := make([]string, len(group))
		for i, it := range group {
			urls[i] = it.Article.URL
		}
		fresh, err := s.dedup.Filter(source, urls)
		if err != nil {
			logger.Warn("dedup filter failed, keeping every item", zap.String("source", source), zap.Error(err))
			fresh = urls
		}
		set := make(map[string]bool, len(fresh))
		for _, u := range fresh {
			set[u] = true
		}
		allowed[source] = set
	}

	kept := make([]WorkItem, 0, len(items))
	filtered := 0
	for _, it := range items {
		set := allowed[it.Source]
		if set[it.Article.URL] {
			delete(set, it.Article.URL)
			kept = append(kept, it)
			continue
		}
		filtered++
	}
	return kept, filtered
}

// commit records finished URLs per source. Timed-out articles are left out
// so the next run retries them.
func (s *Scheduler) commit(items []WorkItem, logger *zap.Logger) {
	if s.dedup == nil {
		return
	}
	for source, group := range groupBySource(items) {
		var done []string
		for _, it := range group {
			if it.Article.Stage.Terminal() && !it.Article.TimedOut() {
				done = append(done, it.Article.URL)
			}
		}
		if len(done) == 0 {
			continue
		}
		if err := s.dedup.Commit(source, done); err != nil {
			logger.Warn("dedup commit failed", zap.String("source", source), zap.Error(err))
		}
	}
}

// groupBySource splits items by source, keeping submission order within
// each group.
func groupBySource(items []WorkItem) map[string][]WorkItem {
	groups := make(map[string][]WorkItem)
	for _, it := range items {
		groups[it.Source] = append(groups[it.Source], it)
	}
	return groups
}
