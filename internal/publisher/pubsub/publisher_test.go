package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	p := New(nil)
	_, err := p.Publish(context.Background(), "articles", map[string]string{"a": "b"})
	require.Error(t, err)
	require.NoError(t, p.Close())
}
