package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
)

type cachedPayload struct {
	Titles []string `json:"titles"`
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewCacheRepository(client, "vn:", nil)
	ctx := context.Background()

	var out cachedPayload
	assert.ErrorIs(t, repo.Get(ctx, "news:latest:10", &out), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "news:latest:10", cachedPayload{Titles: []string{"a", "b"}}, time.Minute))
	assert.True(t, mr.Exists("vn:cache:news:latest:10"))

	require.NoError(t, repo.Get(ctx, "news:latest:10", &out))
	assert.Equal(t, []string{"a", "b"}, out.Titles)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, repo.Get(ctx, "news:latest:10", &out), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDropsCorruptEntries(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewCacheRepository(client, "", nil)

	require.NoError(t, mr.Set("cache:broken", "{not json"))
	var out cachedPayload
	assert.ErrorIs(t, repo.Get(context.Background(), "broken", &out), appErrors.ErrCacheMiss)
	assert.False(t, mr.Exists("cache:broken"))
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	mr, client := newTestRedis(t)
	repo := NewCacheRepository(client, "vn:", nil)
	ctx := context.Background()

	for _, key := range []string{"news:latest:5", "news:latest:10", "users:1"} {
		require.NoError(t, repo.Set(ctx, key, cachedPayload{}, time.Minute))
	}
	require.NoError(t, mr.Set("vn:refresh:abc", "user-1"))

	require.NoError(t, repo.DeleteByPattern(ctx, "news:*"))
	assert.False(t, mr.Exists("vn:cache:news:latest:5"))
	assert.False(t, mr.Exists("vn:cache:news:latest:10"))
	assert.True(t, mr.Exists("vn:cache:users:1"))
	assert.True(t, mr.Exists("vn:refresh:abc"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "", nil)
	var out cachedPayload
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", out, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "*"))
}
