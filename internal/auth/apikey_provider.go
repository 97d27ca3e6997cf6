package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/recipeassist/recipe-assistant/pkg/contracts"
)

// ErrInvalidAPIKey is returned for a key that is present but unknown.
var ErrInvalidAPIKey = errors.New("invalid API key")

// APIKeyProvider validates static API keys. Each key authenticates as the
// user it is mapped to. Keys come from Authorization: Bearer <key> or the
// X-API-Key header. Bearer values that look like session tokens are left to
// the SessionProvider.
type APIKeyProvider struct {
	mu   sync.RWMutex
	keys map[string]string // key → user id
}

// NewAPIKeyProvider creates a provider from a key → user id map.
func NewAPIKeyProvider(keys map[string]string) *APIKeyProvider {
	p := &APIKeyProvider{keys: make(map[string]string, len(keys))}
	for k, user := range keys {
		p.keys[k] = user
	}
	return p
}

func (p *APIKeyProvider) Name() string { return "apikey" }

func (p *APIKeyProvider) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys) > 0
}

// Authenticate returns (nil, nil) when the request carries no key.
func (p *APIKeyProvider) Authenticate(_ context.Context, r *http.Request) (*contracts.Identity, error) {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = bearerToken(r)
		if strings.HasPrefix(key, SessionTokenPrefix) {
			return nil, nil
		}
	}
	if key == "" {
		return nil, nil
	}

	user, ok := p.lookup(key)
	if !ok {
		return nil, ErrInvalidAPIKey
	}
	return &contracts.Identity{
		UserID:      user,
		DisplayName: user,
		Provider:    "apikey",
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}, nil
}

func (p *APIKeyProvider) lookup(candidate string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for key, user := range p.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return user, true
		}
	}
	return "", false
}

// AddKey maps a new key to user at runtime.
func (p *APIKeyProvider) AddKey(key, user string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[key] = user
}

// RemoveKey revokes a key at runtime.
func (p *APIKeyProvider) RemoveKey(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keys, key)
}
