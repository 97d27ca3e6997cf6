package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/recipeassist/recipe-assistant/internal/auth"
	"github.com/recipeassist/recipe-assistant/pkg/contracts"
	pkgmw "github.com/recipeassist/recipe-assistant/pkg/middleware"
)

// AuthMiddleware authenticates requests using the pluggable
// AuthProviderChain and stores the resulting Identity in context.
type AuthMiddleware struct {
	chain       contracts.AuthProviderChain
	requireAuth bool
}

// NewAuthMiddleware creates the auth middleware.
//
// If requireAuth is true, unauthenticated requests to non-public paths are
// rejected. Otherwise they pass through anonymously and the handlers decide.
func NewAuthMiddleware(chain contracts.AuthProviderChain, requireAuth bool) *AuthMiddleware {
	return &AuthMiddleware{chain: chain, requireAuth: requireAuth}
}

// Handler returns the HTTP handler middleware that authenticates requests.
func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Public paths skip auth
		if isAuthPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := am.chain.Authenticate(r.Context(), r)
		if err != nil {
			var rejected *auth.RejectedError
			if errors.As(err, &rejected) {
				trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("recipe.auth_rejected_by", rejected.Provider))
			}
			unauthorized(w, "authentication_failed", err.Error())
			return
		}

		if identity == nil && am.requireAuth {
			unauthorized(w, "authentication_required",
				"This endpoint requires authentication. Set Authorization: Bearer <key or session token>, X-API-Key, or the session cookie.")
			return
		}

		// Store identity in context (nil means anonymous)
		ctx := r.Context()
		if identity != nil {
			ctx = pkgmw.SetIdentity(ctx, identity)
			trace.SpanFromContext(ctx).SetAttributes(
				attribute.String("enduser.id", identity.UserID),
				attribute.String("recipe.auth_provider", identity.Provider),
			)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="recipe-assistant"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// isAuthPublicPath returns true for paths that should skip authentication.
func isAuthPublicPath(path string) bool {
	switch path {
	case "/health", "/version", "/metrics":
		return true
	}
	return false
}
