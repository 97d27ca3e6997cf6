package memory_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/memory"
)

func user(s string) agent.Message      { return agent.Message{Role: agent.RoleUser, Content: s} }
func assistant(s string) agent.Message { return agent.Message{Role: agent.RoleAssistant, Content: s} }

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s memory.Store, maxMessages int) {
	ctx := context.Background()
	thread := uuid.NewString()

	got, err := s.Load(ctx, thread)
	require.NoError(t, err)
	assert.Empty(t, got, "unknown thread has no history")

	require.NoError(t, s.Append(ctx, thread, user("hi"), assistant("hello")))
	require.NoError(t, s.Append(ctx, thread, user("pasta?")))

	got, err = s.Load(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, []agent.Message{user("hi"), assistant("hello"), user("pasta?")}, got)

	for i := 0; i < maxMessages+5; i++ {
		require.NoError(t, s.Append(ctx, thread, user(fmt.Sprintf("m%d", i))))
	}
	got, err = s.Load(ctx, thread)
	require.NoError(t, err)
	require.Len(t, got, maxMessages)
	assert.Equal(t, fmt.Sprintf("m%d", maxMessages+4), got[len(got)-1].Content, "newest message kept")

	other, err := s.Load(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, other, "threads are isolated")
}

func TestLRUStore(t *testing.T) {
	exerciseStore(t, memory.NewLRUStore(8, 10), 10)
}

func TestLRUStore_EvictsLeastRecentThread(t *testing.T) {
	ctx := context.Background()
	s := memory.NewLRUStore(2, 0)

	require.NoError(t, s.Append(ctx, "a", user("1")))
	require.NoError(t, s.Append(ctx, "b", user("2")))
	_, _ = s.Load(ctx, "a")
	require.NoError(t, s.Append(ctx, "c", user("3")))

	got, _ := s.Load(ctx, "b")
	assert.Empty(t, got, "b was least recently used")
	got, _ = s.Load(ctx, "a")
	assert.Len(t, got, 1)
}

func TestLRUStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.NewLRUStore(0, 0)
	require.NoError(t, s.Append(ctx, "t", user("original")))

	got, _ := s.Load(ctx, "t")
	got[0].Content = "changed"

	again, _ := s.Load(ctx, "t")
	assert.Equal(t, "original", again[0].Content)
}

// TestRedisStore runs against a real server when RECIPE_TEST_REDIS_URL is set.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("RECIPE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("RECIPE_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := memory.DialRedis(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	s := memory.NewRedisStore(rdb, memory.RedisOptions{
		KeyPrefix:   "recipe-assistant-test:" + uuid.NewString() + ":",
		MaxMessages: 6,
		TTL:         time.Minute,
	})
	exerciseStore(t, s, 6)
}
