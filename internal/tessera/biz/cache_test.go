package biz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/model"
)

func setupTestCache(t *testing.T) (*AnswerCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewAnswerCache(client, &AnswerCacheConfig{
		TTL:       time.Hour,
		KeyPrefix: "test:answers:",
	})
	return cache, mr
}

func TestAnswerCache_SetAndGet(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	result := &model.QueryResult{
		Answer: "TCP uses a three way handshake.",
		Sources: []model.Source{
			{DocumentID: "d1", DocumentName: "networking.md", Content: "handshake", Score: 0.9},
		},
	}
	cache.Set(ctx, "col1", "how does tcp connect?", result)

	got := cache.Get(ctx, "col1", "how does tcp connect?")
	require.NotNil(t, got)
	assert.Equal(t, result.Answer, got.Answer)
	assert.Equal(t, result.Sources, got.Sources)
}

func TestAnswerCache_Get_Miss(t *testing.T) {
	cache, _ := setupTestCache(t)

	assert.Nil(t, cache.Get(context.Background(), "col1", "never asked"))
}

func TestAnswerCache_KeyNormalizesWhitespace(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "col1", "what is bm25?", &model.QueryResult{Answer: "a ranking function"})

	got := cache.Get(ctx, "col1", "  what is bm25?  ")
	require.NotNil(t, got)
	assert.Equal(t, "a ranking function", got.Answer)
}

func TestAnswerCache_CollectionsAreIsolated(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "col1", "shared question", &model.QueryResult{Answer: "from col1"})

	assert.Nil(t, cache.Get(ctx, "col2", "shared question"))
}

func TestAnswerCache_Invalidate(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "col1", "q1", &model.QueryResult{Answer: "a1"})
	cache.Set(ctx, "col1", "q2", &model.QueryResult{Answer: "a2"})
	cache.Set(ctx, "col2", "q1", &model.QueryResult{Answer: "other"})

	require.NoError(t, cache.Invalidate(ctx, "col1"))

	assert.Nil(t, cache.Get(ctx, "col1", "q1"))
	assert.Nil(t, cache.Get(ctx, "col1", "q2"))
	// Other collections keep their entries.
	require.NotNil(t, cache.Get(ctx, "col2", "q1"))
}

func TestAnswerCache_Expiry(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "col1", "q1", &model.QueryResult{Answer: "a1"})
	require.NotNil(t, cache.Get(ctx, "col1", "q1"))

	mr.FastForward(2 * time.Hour)
	assert.Nil(t, cache.Get(ctx, "col1", "q1"))
}

func TestAnswerCache_CorruptEntryIsDropped(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	key := cache.key("col1", "q1")
	require.NoError(t, mr.Set(key, "{broken"))

	assert.Nil(t, cache.Get(ctx, "col1", "q1"))
	// The bad entry was removed.
	assert.False(t, mr.Exists(key))
}

func TestAnswerCache_DisabledNoOps(t *testing.T) {
	cache := NewAnswerCache(nil, nil)
	ctx := context.Background()

	cache.Set(ctx, "col1", "q1", &model.QueryResult{Answer: "a1"})
	assert.Nil(t, cache.Get(ctx, "col1", "q1"))
	assert.NoError(t, cache.Invalidate(ctx, "col1"))
}
