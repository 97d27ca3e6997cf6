package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/agent"
)

const (
	defaultKeyPrefix = "recipe-assistant:thread:"
	defaultThreadTTL = 7 * 24 * time.Hour
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// KeyPrefix is prepended to the thread id to form the list key.
	KeyPrefix string
	// MaxMessages caps the list length.
	MaxMessages int
	// TTL expires a thread after this long without new messages.
	TTL time.Duration
}

// RedisStore keeps each thread as a Redis list of JSON-encoded messages.
type RedisStore struct {
	rdb  redis.UniversalClient
	opts RedisOptions
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient, opts RedisOptions) *RedisStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultThreadTTL
	}
	return &RedisStore{rdb: rdb, opts: opts}
}

// DialRedis parses a redis:// URL, connects and verifies the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(o)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", o.Addr).Int("db", o.DB).Msg("Redis thread memory connected")
	return rdb, nil
}

func (s *RedisStore) key(threadID string) string {
	return s.opts.KeyPrefix + threadID
}

func (s *RedisStore) Load(ctx context.Context, threadID string) ([]agent.Message, error) {
	raw, err := s.rdb.LRange(ctx, s.key(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	msgs := make([]agent.Message, 0, len(raw))
	for _, item := range raw {
		var m agent.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			log.Warn().Err(err).Str("thread", threadID).Msg("Skipping unreadable thread message")
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) Append(ctx context.Context, threadID string, msgs ...agent.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values = append(values, string(data))
	}

	key := s.key(threadID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.opts.MaxMessages), -1)
	pipe.Expire(ctx, key, s.opts.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append thread %s: %w", threadID, err)
	}
	return nil
}
