package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/clock"
	"github.com/JakeFAU/article-pipeline/internal/publisher/memory"
	"github.com/JakeFAU/article-pipeline/internal/scheduler"
	memstore "github.com/JakeFAU/article-pipeline/internal/storage/memory"
)

func finished() *article.Article {
	a := article.New("https://example.com/story", article.Limits{MaxTitleLen: 50})
	a.SetTitle("Council backs plan")
	a.Stage = article.StageAnnotated
	return a
}

func TestStoreWritesRecordAndPublishes(t *testing.T) {
	t.Parallel()

	store := memstore.NewBlobStore()
	pub := memory.New()
	fixed := clock.NewFixed(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	s := New(store, pub, fixed, Config{Prefix: "/articles/", Topic: "articles-done"}, nil)

	a := finished()
	uri, err := s.Store(context.Background(), "run-1", a)
	require.NoError(t, err)

	path := "articles/run-1/" + a.LinkHash() + ".json"
	assert.Equal(t, "memory://"+path, uri)
	raw, ok := store.Get(path)
	require.True(t, ok)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "Council backs plan", rec["title"])
	assert.Equal(t, "nlp-annotated", rec["stage"])

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "articles-done", msgs[0].Topic)
	var note Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &note))
	assert.Equal(t, Notification{
		RunID:     "run-1",
		URL:       "https://example.com/story",
		BlobURI:   uri,
		Stage:     "nlp-annotated",
		Title:     "Council backs plan",
		Timestamp: "2024-05-01T09:00:00Z",
	}, note)
}

func TestNoTopicSkipsPublishing(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	s := New(memstore.NewBlobStore(), pub, nil, Config{}, nil)
	a := finished()
	assert.Equal(t, "run/"+a.LinkHash()+".json", s.Path("run", a))

	_, err := s.Store(context.Background(), "run", a)
	require.NoError(t, err)
	assert.Empty(t, pub.Messages())
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

func TestCompleteSwallowsErrors(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	s := New(failingStore{}, pub, nil, Config{Topic: "t"}, nil)
	_, err := s.Store(context.Background(), "run", finished())
	require.ErrorContains(t, err, "disk full")

	s.Complete(context.Background(), "run", scheduler.WorkItem{Source: "example.com", Article: finished()})
	assert.Empty(t, pub.Messages())
}
