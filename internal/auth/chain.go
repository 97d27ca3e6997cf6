// Package auth provides the authentication provider chain for the recipe
// assistant.
//
// Providers:
//   - APIKeyProvider: static keys, each mapped to the user it acts as
//   - SessionProvider: HMAC-signed session tokens carrying a user id
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/pkg/contracts"
)

// RejectedError is returned when a provider recognised the credential it was
// given and refused it. Later providers are not consulted.
type RejectedError struct {
	Provider string
	Err      error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// ProviderChain implements contracts.AuthProviderChain. Providers are
// consulted in registration order; disabled ones are skipped.
type ProviderChain struct {
	mu        sync.RWMutex
	providers []contracts.AuthProvider
}

// NewProviderChain creates a chain of providers.
func NewProviderChain(providers ...contracts.AuthProvider) *ProviderChain {
	c := &ProviderChain{}
	for _, p := range providers {
		c.RegisterProvider(p)
	}
	return c
}

// RegisterProvider appends provider to the chain.
func (c *ProviderChain) RegisterProvider(provider contracts.AuthProvider) {
	c.mu.Lock()
	c.providers = append(c.providers, provider)
	c.mu.Unlock()

	state := "disabled"
	if provider.Enabled() {
		state = "enabled"
	}
	log.Info().
		Str("provider", provider.Name()).
		Str("state", state).
		Msg("🔑 Auth provider registered")
}

// active returns the enabled providers at the time of the call.
func (c *ProviderChain) active() []contracts.AuthProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]contracts.AuthProvider, 0, len(c.providers))
	for _, p := range c.providers {
		if p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}

// Authenticate returns the identity from the first provider that accepts the
// request. A provider that rejects its credential ends the walk with a
// *RejectedError. (nil, nil) means no provider found a credential.
func (c *ProviderChain) Authenticate(ctx context.Context, r *http.Request) (*contracts.Identity, error) {
	for _, p := range c.active() {
		identity, err := p.Authenticate(ctx, r)
		switch {
		case err != nil:
			log.Warn().
				Err(err).
				Str("rejected_by", p.Name()).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("Credential rejected")
			return nil, &RejectedError{Provider: p.Name(), Err: err}
		case identity != nil:
			if identity.Provider == "" {
				identity.Provider = p.Name()
			}
			log.Debug().
				Str("provider", identity.Provider).
				Str("user", identity.UserID).
				Msg("Request authenticated")
			return identity, nil
		}
	}
	return nil, nil
}

// String lists the providers in chain order with their state, for startup
// logs.
func (c *ProviderChain) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	parts := make([]string, len(c.providers))
	for i, p := range c.providers {
		parts[i] = p.Name()
		if !p.Enabled() {
			parts[i] += "(off)"
		}
	}
	return strings.Join(parts, " → ")
}

// bearerToken returns the Authorization bearer credential, if any.
func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
