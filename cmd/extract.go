package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/config"
	"github.com/JakeFAU/article-pipeline/internal/pipeline"
)

// errFetchFailed is returned when the page could not be fetched or parsed.
var errFetchFailed = errors.New("article could not be fetched")

type extractOptions struct {
	url      string
	language string
	options  []string
	asJSON   bool
}

func newExtractCmd() *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract one article",
		Long: `Fetches a single URL (http, https or file), extracts the article and
prints its keywords, summary and text. Short articles are still printed;
only a failed fetch exits non-zero.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "", "article URL")
	cmd.Flags().StringVar(&opts.language, "language", "", "ISO 639-1 language code (defaults to the configured language)")
	cmd.Flags().StringArrayVarP(&opts.options, "option", "o", nil, "article option as key=value, repeatable")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the full JSON record")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

// parseOptions turns key=value flags into a Settings option map.
func parseOptions(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("option %q must look like key=value", p)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func articleSettings(base config.Settings, language string, pairs []string) (config.Settings, error) {
	settings := base.Clone()
	opts, err := parseOptions(pairs)
	if err != nil {
		return config.Settings{}, err
	}
	if language != "" {
		opts["language"] = language
	}
	if err := settings.Apply(opts); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func runExtract(cmd *cobra.Command, opts *extractOptions) error {
	app, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	settings, err := articleSettings(app.Config.Article, opts.language, opts.options)
	if err != nil {
		return err
	}
	f, closeFetcher, err := app.NewFetcher(settings)
	if err != nil {
		return err
	}
	defer closeFetcher()

	p, err := pipeline.New(opts.url, settings, f,
		pipeline.WithLogger(app.Logger.Named("pipeline")),
		pipeline.WithImageChecker(pipeline.NewImageChecker(settings, app.Logger.Named("images"))))
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := p.Fetch(ctx); err != nil {
		return err
	}
	if err := p.Extract(ctx); err != nil {
		return err
	}
	a := p.Article()
	if a.Stage == article.StageFailed {
		return fmt.Errorf("%w: %s", errFetchFailed, a.FailureReason)
	}
	if err := p.Annotate(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	return printArticle(out, a, settings)
}

func printArticle(w io.Writer, a *article.Article, s config.Settings) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "Authors: %s\n", strings.Join(a.Authors, ", "))
	if a.PublishDate != nil {
		fmt.Fprintf(&b, "Published: %s\n", a.PublishDate.Format("2006-01-02"))
	}
	if a.TopImage != "" {
		fmt.Fprintf(&b, "Top image: %s\n", a.TopImage)
	}
	if !a.IsValidBody(s.MinWordCount, s.MinSentenceCount) {
		b.WriteString("Note: the body is shorter than the configured minimum\n")
	}
	if a.FailureReason != "" {
		fmt.Fprintf(&b, "Annotation failed: %s\n", a.FailureReason)
	}
	fmt.Fprintf(&b, "\nKeywords: %s\n", strings.Join(a.Keywords, ", "))
	fmt.Fprintf(&b, "\nSummary:\n%s\n", a.Summary)
	fmt.Fprintf(&b, "\nText:\n%s\n", a.Text)
	_, err := io.WriteString(w, b.String())
	return err
}
