package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/clock"
	"github.com/JakeFAU/article-pipeline/internal/config"
	"github.com/JakeFAU/article-pipeline/internal/dedup"
	"github.com/JakeFAU/article-pipeline/internal/pipeline"
	"github.com/JakeFAU/article-pipeline/internal/policy/ratelimit"
	"github.com/JakeFAU/article-pipeline/internal/publisher/pubsub"
	"github.com/JakeFAU/article-pipeline/internal/scheduler"
	"github.com/JakeFAU/article-pipeline/internal/sink"
	"github.com/JakeFAU/article-pipeline/internal/source"
	"github.com/JakeFAU/article-pipeline/internal/storage/gcs"
	"github.com/JakeFAU/article-pipeline/internal/storage/local"
	"github.com/JakeFAU/article-pipeline/internal/storage/memory"
)

type crawlOptions struct {
	sources     []string
	feeds       []string
	urls        []string
	options     []string
	metricsAddr string
	outputDir   string
	dedupDir    string
	noDedup     bool
}

func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl news sources",
		Long: `Discovers article links for each source from its feeds, skips links
seen by earlier crawls and extracts the rest on a bounded worker pool.
Every finished article is written as JSON to the configured output and,
when a Pub/Sub topic is configured, announced there.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.sources, "source", nil, "source home page URL, repeatable")
	cmd.Flags().StringArrayVar(&opts.feeds, "feed", nil, "feed URL for the first source, repeatable")
	cmd.Flags().StringArrayVar(&opts.urls, "url", nil, "article URL for the first source, repeatable")
	cmd.Flags().StringArrayVarP(&opts.options, "option", "o", nil, "article option as key=value, repeatable")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while crawling")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "write article JSON below this directory")
	cmd.Flags().StringVar(&opts.dedupDir, "dedup-dir", "", "directory of the per-domain dedup files")
	cmd.Flags().BoolVar(&opts.noDedup, "no-dedup", false, "process every discovered URL")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := app.Config
	logger := app.Logger
	ctx := cmd.Context()

	settings, err := articleSettings(cfg.Article, "", opts.options)
	if err != nil {
		return err
	}
	f, closeFetcher, err := app.NewFetcher(settings)
	if err != nil {
		return err
	}
	defer closeFetcher()

	addr := opts.metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		stopMetrics := serveMetrics(addr, logger)
		defer stopMetrics()
	}

	items, err := discover(ctx, opts, f, settings, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Output.GCSBucket, firstNonEmpty(opts.outputDir, cfg.Output.Dir), logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var pub sink.Publisher
	if cfg.PubSub.Topic != "" {
		p, err := pubsub.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Close(); err != nil {
				logger.Warn("pubsub close failed", zap.Error(err))
			}
		}()
		pub = p
	}
	out := sink.New(store, pub, clock.System{}, sink.Config{Prefix: cfg.Output.Prefix, Topic: cfg.PubSub.Topic}, logger)

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithOnComplete(out.Complete),
		scheduler.WithRateLimiter(ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Scheduler.RatePerSecond,
			Burst:             cfg.Scheduler.Burst,
		})),
	}
	if cfg.Dedup.Enabled && !opts.noDedup {
		cache, err := dedup.New(firstNonEmpty(opts.dedupDir, cfg.Dedup.Dir), settings.MaxDedupEntries, logger)
		if err != nil {
			return err
		}
		schedOpts = append(schedOpts, scheduler.WithDedup(cache))
	}

	// One checker for the whole run so image sizes are measured once.
	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithImageChecker(pipeline.NewImageChecker(settings, logger.Named("images"))),
	}
	runner := pipeline.Runner{Settings: settings, Fetcher: f, Options: pipelineOpts}
	sched, err := scheduler.New(scheduler.Config{
		Workers:   cfg.Scheduler.Workers,
		PerSource: cfg.Scheduler.PerSource,
		Deadline:  cfg.Scheduler.Deadline,
	}, runner, schedOpts...)
	if err != nil {
		return err
	}

	report := sched.Run(ctx, items)
	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: %d processed, %d skipped as already seen, %d annotated, %d failed (%d timed out) in %s\n",
		report.RunID, len(report.Articles), report.Filtered,
		report.Count(article.StageAnnotated), report.Count(article.StageFailed), report.TimedOut(),
		report.Duration.Round(time.Millisecond))
	return nil
}

// discover builds the work items for every --source. Explicit --feed and
// --url values belong to the first source; a source without explicit
// URLs is searched through its feeds.
func discover(ctx context.Context, opts *crawlOptions, f source.Fetcher, settings config.Settings, logger *zap.Logger) ([]scheduler.WorkItem, error) {
	var items []scheduler.WorkItem
	for i, raw := range opts.sources {
		src, err := source.New(raw)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			src.AddFeeds(opts.feeds...)
			src.AddArticles(opts.urls...)
		}
		if len(src.ArticleURLs) == 0 || len(src.Feeds) > 0 {
			if err := src.Discover(ctx, f, logger); err != nil {
				logger.Warn("source discovery failed", zap.String("source", src.URL), zap.Error(err))
			}
		}
		logger.Info("source ready", zap.String("source", src.Domain), zap.Int("articles", len(src.ArticleURLs)))
		items = append(items, src.WorkItems(pipeline.LimitsFromSettings(settings))...)
	}
	return items, nil
}

// openStore picks GCS when a bucket is configured, then a local
// directory, and finally an in-memory store for dry runs.
func openStore(ctx context.Context, bucket, dir string, logger *zap.Logger) (sink.BlobStore, func(), error) {
	switch {
	case bucket != "":
		s, err := gcs.Dial(ctx, gcs.Config{Bucket: bucket})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("storage close failed", zap.Error(err))
			}
		}, nil
	case dir != "":
		s, err := local.New(local.Config{BaseDir: dir})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		logger.Warn("no output configured, articles are kept in memory only")
		return memory.NewBlobStore(), func() {}, nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
