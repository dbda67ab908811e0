package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/dedup"
	"github.com/JakeFAU/article-pipeline/internal/policy/ratelimit"
)

var limits = article.Limits{MaxTitleLen: 100, MaxTextLen: 1000, MaxAuthors: 3, MaxKeywords: 5, MaxSummaryLen: 100}

func items(source string, n int) []WorkItem {
	out := make([]WorkItem, n)
	for i := range out {
		out[i] = NewWorkItem(source, fmt.Sprintf("https://%s/story/%d", source, i), limits)
	}
	return out
}

// succeed marks the article annotated after an optional pause.
func succeed(pause time.Duration) RunnerFunc {
	return func(ctx context.Context, a *article.Article) error {
		if pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return nil
			}
		}
		a.Stage = article.StageAnnotated
		return nil
	}
}

// overlapCounter counts how many items of each source run at the same time.
type overlapCounter struct {
	mu      sync.Mutex
	current map[string]int
	peak    map[string]int
	total   atomic.Int32
	peakAll int
	running int
}

func newOverlapCounter() *overlapCounter {
	return &overlapCounter{current: map[string]int{}, peak: map[string]int{}}
}

func (p *overlapCounter) runner(sourceOf func(string) string) RunnerFunc {
	return func(ctx context.Context, a *article.Article) error {
		src := sourceOf(a.URL)
		p.mu.Lock()
		p.current[src]++
		p.running++
		if p.current[src] > p.peak[src] {
			p.peak[src] = p.current[src]
		}
		if p.running > p.peakAll {
			p.peakAll = p.running
		}
		p.mu.Unlock()

		time.Sleep(15 * time.Millisecond)

		p.mu.Lock()
		p.current[src]--
		p.running--
		p.mu.Unlock()
		p.total.Add(1)
		a.Stage = article.StageAnnotated
		return nil
	}
}

func newScheduler(t *testing.T, cfg Config, r Runner, opts ...Option) *Scheduler {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	s, err := New(cfg, r, opts...)
	require.NoError(t, err)
	return s
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Workers: 0, PerSource: 1}, succeed(0))
	require.Error(t, err)
	_, err = New(Config{Workers: 1, PerSource: 0}, succeed(0))
	require.Error(t, err)
	_, err = New(Config{Workers: 1, PerSource: 1}, nil)
	require.Error(t, err)
}

func TestPerSourceBudgetIsRespected(t *testing.T) {
	t.Parallel()

	p := newOverlapCounter()
	s := newScheduler(t, Config{Workers: 8, PerSource: 2}, p.runner(article.Domain))

	batch := append(items("a.example.com", 12), items("b.example.com", 12)...)
	report := s.Run(context.Background(), batch)

	assert.Equal(t, int32(24), p.total.Load())
	assert.Equal(t, 24, report.Count(article.StageAnnotated))
	assert.LessOrEqual(t, p.peak["a.example.com"], 2)
	assert.LessOrEqual(t, p.peak["b.example.com"], 2)
	assert.LessOrEqual(t, p.peakAll, 4)
}

func TestPoolSizeBoundsTotalConcurrency(t *testing.T) {
	t.Parallel()

	p := newOverlapCounter()
	s := newScheduler(t, Config{Workers: 3, PerSource: 10}, p.runner(article.Domain))

	var batch []WorkItem
	for i := 0; i < 6; i++ {
		batch = append(batch, items(fmt.Sprintf("s%d.example.com", i), 3)...)
	}
	s.Run(context.Background(), batch)
	assert.LessOrEqual(t, p.peakAll, 3)
	assert.Equal(t, int32(18), p.total.Load())
}

func TestFailuresDoNotStopTheRun(t *testing.T) {
	t.Parallel()

	r := RunnerFunc(func(_ context.Context, a *article.Article) error {
		switch {
		case a.URL == "https://x.example.com/story/1":
			a.Fail("fetch: 404")
		case a.URL == "https://x.example.com/story/2":
			return fmt.Errorf("extract called out of order")
		case a.URL == "https://x.example.com/story/3":
			panic("boom")
		default:
			a.Stage = article.StageAnnotated
		}
		return nil
	})
	s := newScheduler(t, Config{Workers: 2, PerSource: 2}, r)
	report := s.Run(context.Background(), items("x.example.com", 5))

	require.Len(t, report.Articles, 5)
	assert.Equal(t, 2, report.Count(article.StageAnnotated))
	assert.Equal(t, 3, report.Count(article.StageFailed))
	assert.Contains(t, report.Articles[2].FailureReason, "out of order")
	assert.Contains(t, report.Articles[3].FailureReason, "boom")
	assert.Zero(t, report.TimedOut())
}

func TestDeadlineMarksUnfinishedArticles(t *testing.T) {
	t.Parallel()

	var completed atomic.Int32
	blocking := RunnerFunc(func(ctx context.Context, _ *article.Article) error {
		<-ctx.Done()
		return nil
	})
	s := newScheduler(t, Config{Workers: 2, PerSource: 1, Deadline: 50 * time.Millisecond}, blocking,
		WithOnComplete(func(context.Context, string, WorkItem) { completed.Add(1) }))

	report := s.Run(context.Background(), items("slow.example.com", 4))
	require.Len(t, report.Articles, 4)
	assert.Equal(t, 4, report.TimedOut())
	for _, a := range report.Articles {
		assert.True(t, a.TimedOut(), a.URL)
	}
	assert.Equal(t, int32(4), completed.Load())
}

func TestDeadlineKeepsFinishedWork(t *testing.T) {
	t.Parallel()

	r := RunnerFunc(func(ctx context.Context, a *article.Article) error {
		if a.URL == "https://mixed.example.com/story/0" {
			a.Title = "done"
			a.Stage = article.StageAnnotated
			return nil
		}
		a.Title = "partial"
		a.Stage = article.StageFetched
		<-ctx.Done()
		return nil
	})
	s := newScheduler(t, Config{Workers: 2, PerSource: 2, Deadline: 50 * time.Millisecond}, r)
	report := s.Run(context.Background(), items("mixed.example.com", 2))

	assert.Equal(t, article.StageAnnotated, report.Articles[0].Stage)
	assert.True(t, report.Articles[1].TimedOut())
	assert.Equal(t, "partial", report.Articles[1].Title)
}

func TestTwoRunsWithPersistedDedup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var processed atomic.Int32
	r := RunnerFunc(func(_ context.Context, a *article.Article) error {
		processed.Add(1)
		a.Stage = article.StageAnnotated
		return nil
	})

	first, err := dedup.New(dir, 1000, nil)
	require.NoError(t, err)
	report := newScheduler(t, Config{Workers: 4, PerSource: 2}, r, WithDedup(first)).
		Run(context.Background(), items("news.example.com", 10))
	assert.Len(t, report.Articles, 10)
	assert.Equal(t, int32(10), processed.Load())

	// A new cache over the same directory stands in for the next process.
	second, err := dedup.New(dir, 1000, nil)
	require.NoError(t, err)
	report = newScheduler(t, Config{Workers: 4, PerSource: 2}, r, WithDedup(second)).
		Run(context.Background(), items("news.example.com", 10))
	assert.Empty(t, report.Articles)
	assert.Equal(t, 10, report.Filtered)
	assert.Equal(t, int32(10), processed.Load())
}

func TestTimedOutArticlesAreNotMemoized(t *testing.T) {
	t.Parallel()

	cache, err := dedup.New(t.TempDir(), 1000, nil)
	require.NoError(t, err)
	blocking := RunnerFunc(func(ctx context.Context, _ *article.Article) error {
		<-ctx.Done()
		return nil
	})
	s := newScheduler(t, Config{Workers: 1, PerSource: 1, Deadline: 30 * time.Millisecond}, blocking, WithDedup(cache))
	s.Run(context.Background(), items("late.example.com", 2))

	entries, err := cache.Entries("late.example.com")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOnCompleteSeesRunID(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[string]int{}
	s := newScheduler(t, Config{Workers: 2, PerSource: 2}, succeed(0),
		WithOnComplete(func(_ context.Context, runID string, _ WorkItem) {
			mu.Lock()
			seen[runID]++
			mu.Unlock()
		}),
		WithRateLimiter(ratelimit.New(ratelimit.Config{})))

	first := s.Run(context.Background(), items("a.example.com", 3))
	second := s.Run(context.Background(), items("b.example.com", 2))

	require.NotEqual(t, first.RunID, second.RunID)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, seen[first.RunID])
	assert.Equal(t, 2, seen[second.RunID])
}

func TestDuplicateURLsInOneBatchRunOnce(t *testing.T) {
	t.Parallel()

	cache, err := dedup.New(t.TempDir(), 1000, nil)
	require.NoError(t, err)
	var processed atomic.Int32
	r := RunnerFunc(func(_ context.Context, a *article.Article) error {
		processed.Add(1)
		a.Stage = article.StageAnnotated
		return nil
	})
	batch := append(items("d.example.com", 3), items("d.example.com", 3)...)
	report := newScheduler(t, Config{Workers: 2, PerSource: 2}, r, WithDedup(cache)).Run(context.Background(), batch)

	assert.Len(t, report.Articles, 3)
	assert.Equal(t, 3, report.Filtered)
	assert.Equal(t, int32(3), processed.Load())
}
