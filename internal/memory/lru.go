package memory

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/recipeassist/recipe-assistant/internal/agent"
)

const defaultLRUThreads = 1024

// LRUStore keeps thread history in process memory. The least recently used
// threads are evicted once more than the configured number are held.
type LRUStore struct {
	mu          sync.Mutex
	cache       *lru.Cache[string, []agent.Message]
	maxMessages int
}

// NewLRUStore creates an in-memory store holding up to threads threads of
// up to maxMessages messages each. Non-positive values use the defaults.
func NewLRUStore(threads, maxMessages int) *LRUStore {
	if threads <= 0 {
		threads = defaultLRUThreads
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	// lru.New only errors on a non-positive size, guarded above.
	cache, _ := lru.New[string, []agent.Message](threads)
	return &LRUStore{cache: cache, maxMessages: maxMessages}
}

func (s *LRUStore) Load(_ context.Context, threadID string) ([]agent.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.cache.Get(threadID)
	if !ok {
		return nil, nil
	}
	return append([]agent.Message(nil), msgs...), nil
}

func (s *LRUStore) Append(_ context.Context, threadID string, msgs ...agent.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, _ := s.cache.Get(threadID)
	next := make([]agent.Message, 0, len(existing)+len(msgs))
	next = append(next, existing...)
	next = append(next, msgs...)
	s.cache.Add(threadID, trim(next, s.maxMessages))
	return nil
}
