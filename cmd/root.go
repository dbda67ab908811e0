// Package cmd defines the articled command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-pipeline/internal/config"
	"github.com/JakeFAU/article-pipeline/internal/fetcher"
	"github.com/JakeFAU/article-pipeline/internal/fetcher/headless"
	"github.com/JakeFAU/article-pipeline/internal/fetcher/pdfdoc"
	"github.com/JakeFAU/article-pipeline/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// App holds what every subcommand needs: the loaded configuration and
// the logger built from it.
type App struct {
	Config config.Config
	Logger *zap.Logger
}

// newApp loads .env, the config file and the environment. It is a
// variable so tests can swap it.
var newApp = func(cfgPath string) (*App, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &App{Config: cfg, Logger: logger}, nil
}

// Close flushes the logger.
func (a *App) Close() {
	_ = a.Logger.Sync()
}

// NewFetcher builds a fetcher for settings with PDF decoding and, when
// headless rendering is enabled, a browser renderer. The returned func
// releases the browser.
func (a *App) NewFetcher(settings config.Settings) (*fetcher.Fetcher, func(), error) {
	opts := []fetcher.Option{
		fetcher.WithLogger(a.Logger.Named("fetcher")),
		fetcher.WithBinaryDecoder(pdfdoc.New()),
	}
	closeFn := func() {}
	if a.Config.Headless.Enabled {
		r, err := headless.New(headless.Config{
			MaxParallel:       a.Config.Headless.MaxParallel,
			UserAgent:         settings.UserAgent,
			NavigationTimeout: a.Config.Headless.NavTimeout,
			Headers:           settings.Headers,
		}, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init headless renderer: %w", err)
		}
		opts = append(opts, fetcher.WithRenderer(r))
		closeFn = r.Close
	}
	f, err := fetcher.New(fetcher.ConfigFromSettings(settings), opts...)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("init fetcher: %w", err)
	}
	return f, closeFn, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "articled",
		Short: "Fetch news articles and extract their content",
		Long: `articled downloads article pages, strips the boilerplate around
the story and records the text, metadata, keywords and summary. It can
process a single URL or crawl whole sources through their feeds.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if app, ok := cmd.Context().Value(appKey).(*App); ok && app != nil {
				app.Close()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); ARTICLED_* variables override it")
	cmd.AddCommand(newExtractCmd(), newCrawlCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey).(*App)
	if !ok || app == nil {
		return nil, errors.New("application not initialized")
	}
	return app, nil
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
