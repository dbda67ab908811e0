// Package sink persists finished articles and announces them.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/clock"
	"github.com/JakeFAU/article-pipeline/internal/logging"
	"github.com/JakeFAU/article-pipeline/internal/scheduler"
)

// BlobStore stores article records.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Publisher announces stored records.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Config controls object naming and the notification topic.
type Config struct {
	Prefix string
	// Topic is where notifications go. Empty disables publishing.
	Topic string
}

// Notification is the message published for every stored article.
type Notification struct {
	RunID     string `json:"run_id"`
	URL       string `json:"url"`
	BlobURI   string `json:"blob_uri"`
	Stage     string `json:"stage"`
	Title     string `json:"title,omitempty"`
	Reason    string `json:"failure_reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Sink writes article JSON to a blob store and optionally publishes a
// notification. Its Complete method is a scheduler completion hook.
type Sink struct {
	store     BlobStore
	publisher Publisher
	clock     clock.Clock
	cfg       Config
	logger    *zap.Logger
}

// New builds a Sink. publisher may be nil.
func New(store BlobStore, publisher Publisher, c clock.Clock, cfg Config, logger *zap.Logger) *Sink {
	if c == nil {
		c = clock.System{}
	}
	return &Sink{
		store:     store,
		publisher: publisher,
		clock:     c,
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("sink"),
	}
}

// Path names the object for an article within a run.
func (s *Sink) Path(runID string, a *article.Article) string {
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", runID, a.LinkHash())
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, runID, a.LinkHash())
}

// Store writes the article record and publishes its notification. It
// returns the blob URI.
func (s *Sink) Store(ctx context.Context, runID string, a *article.Article) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode article: %w", err)
	}
	uri, err := s.store.PutObject(ctx, s.Path(runID, a), "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put article: %w", err)
	}
	if err := s.publish(ctx, runID, uri, a); err != nil {
		return uri, err
	}
	return uri, nil
}

func (s *Sink) publish(ctx context.Context, runID, uri string, a *article.Article) error {
	if s.cfg.Topic == "" || s.publisher == nil {
		return nil
	}
	msg := Notification{
		RunID:     runID,
		URL:       a.URL,
		BlobURI:   uri,
		Stage:     a.Stage.String(),
		Title:     a.Title,
		Reason:    a.FailureReason,
		Timestamp: s.clock.Now().Format(time.RFC3339),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Complete stores item's article, logging instead of returning errors.
func (s *Sink) Complete(ctx context.Context, runID string, item scheduler.WorkItem) {
	a := item.Article
	uri, err := s.Store(ctx, runID, a)
	if err != nil {
		s.logger.Error("store article failed",
			zap.String("run_id", runID), zap.String("url", a.URL), zap.Error(err))
		return
	}
	s.logger.Debug("article stored",
		zap.String("run_id", runID),
		zap.String("url", a.URL),
		zap.String("stage", a.Stage.String()),
		zap.String("blob_uri", uri))
}
