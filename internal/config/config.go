// Package config holds the per-article Settings builder and the service
// configuration loaded via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/JakeFAU/article-pipeline/internal/logging"
)

// Config captures every knob of the crawl service.
type Config struct {
	Article   Settings        `mapstructure:"article"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Output    OutputConfig    `mapstructure:"output"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   logging.Config  `mapstructure:"logging"`
}

// SchedulerConfig sizes the worker pool and per-source budget.
type SchedulerConfig struct {
	Workers       int           `mapstructure:"workers"`
	PerSource     int           `mapstructure:"per_source"`
	Deadline      time.Duration `mapstructure:"deadline"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// DedupConfig locates the per-domain memo files.
type DedupConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// HeadlessConfig configures the optional JavaScript renderer.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
}

// OutputConfig decides where article records are written.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig names the completion topic. Empty disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns the configuration used before file and env overrides.
func Default() Config {
	return Config{
		Article: DefaultSettings(),
		Scheduler: SchedulerConfig{
			Workers:   8,
			PerSource: 2,
			Deadline:  10 * time.Minute,
			Burst:     1,
		},
		Dedup:    DedupConfig{Enabled: true, Dir: ".article-pipeline/memoized"},
		Headless: HeadlessConfig{MaxParallel: 1, NavTimeout: 45 * time.Second},
		Output:   OutputConfig{Prefix: "articles"},
		Logging:  logging.Config{Development: true},
	}
}

// Load builds a Config from defaults, an optional file and ARTICLED_* env vars.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARTICLED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.UnmarshalExact(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg Config) {
	a := cfg.Article
	v.SetDefault("article.language", a.Language)
	v.SetDefault("article.follow_meta_refresh", a.FollowMetaRefresh)
	v.SetDefault("article.use_meta_language", a.UseMetaLanguage)
	v.SetDefault("article.http_success_only", a.HTTPSuccessOnly)
	v.SetDefault("article.use_canonical_link", a.UseCanonicalLink)
	v.SetDefault("article.fetch_images", a.FetchImages)
	v.SetDefault("article.extract_tables", a.ExtractTables)
	v.SetDefault("article.render_javascript", a.RenderJavaScript)
	v.SetDefault("article.request_timeout", a.RequestTimeout)
	v.SetDefault("article.user_agent", a.UserAgent)
	v.SetDefault("article.proxy", a.Proxy)
	v.SetDefault("article.min_word_count", a.MinWordCount)
	v.SetDefault("article.min_sentence_count", a.MinSentenceCount)
	v.SetDefault("article.max_dedup_entries", a.MaxDedupEntries)

	v.SetDefault("scheduler.workers", cfg.Scheduler.Workers)
	v.SetDefault("scheduler.per_source", cfg.Scheduler.PerSource)
	v.SetDefault("scheduler.deadline", cfg.Scheduler.Deadline)
	v.SetDefault("scheduler.rate_per_second", cfg.Scheduler.RatePerSecond)
	v.SetDefault("scheduler.burst", cfg.Scheduler.Burst)
	v.SetDefault("dedup.enabled", cfg.Dedup.Enabled)
	v.SetDefault("dedup.dir", cfg.Dedup.Dir)
	v.SetDefault("headless.enabled", cfg.Headless.Enabled)
	v.SetDefault("headless.max_parallel", cfg.Headless.MaxParallel)
	v.SetDefault("headless.nav_timeout", cfg.Headless.NavTimeout)
	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("output.gcs_bucket", cfg.Output.GCSBucket)
	v.SetDefault("output.prefix", cfg.Output.Prefix)
	v.SetDefault("pubsub.project_id", cfg.PubSub.ProjectID)
	v.SetDefault("pubsub.topic", cfg.PubSub.Topic)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("logging.development", cfg.Logging.Development)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Article.Validate(); err != nil {
		return err
	}
	if c.Scheduler.Workers <= 0 {
		return errors.New("scheduler.workers must be > 0")
	}
	if c.Scheduler.PerSource <= 0 {
		return errors.New("scheduler.per_source must be > 0")
	}
	if c.Scheduler.Deadline < 0 {
		return errors.New("scheduler.deadline must be >= 0")
	}
	if c.Dedup.Enabled && strings.TrimSpace(c.Dedup.Dir) == "" {
		return errors.New("dedup.dir must be set when dedup is enabled")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return errors.New("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}
