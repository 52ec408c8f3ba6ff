package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetStore(t *testing.T) {
	ctx := context.Background()
	s := NewOffsetStore(openTestDB(t))

	off, err := s.Get(ctx, "/logs/a.jsonl")
	require.NoError(t, err)
	assert.Zero(t, off)

	require.NoError(t, s.Set(ctx, "/logs/a.jsonl", "a", 128))
	require.NoError(t, s.Set(ctx, "/logs/a.jsonl", "a", 512))

	off, err = s.Get(ctx, "/logs/a.jsonl")
	require.NoError(t, err)
	assert.Equal(t, int64(512), off)
}
