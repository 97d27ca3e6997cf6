package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/recipeassist/recipe-assistant/pkg/contracts"
)

// SessionTokenPrefix marks a bearer credential as a session token.
const SessionTokenPrefix = "rs1."

// SessionCookie is the cookie the browser UI keeps its session token in.
const SessionCookie = "recipe_session"

// SessionProvider validates HMAC-signed session tokens issued at login.
//
// Token format: "rs1." + base64url(JSON payload) + "." + base64url(HMAC-SHA256)
// Payload: {"sub": "<user id>", "name": "Ada", "exp": 1234567890}
//
// The token travels as Authorization: Bearer <token> or in SessionCookie.
type SessionProvider struct {
	secret []byte
	now    func() time.Time
}

type sessionPayload struct {
	Subject string `json:"sub"`
	Name    string `json:"name,omitempty"`
	Exp     int64  `json:"exp"` // Unix timestamp
}

// NewSessionProvider creates a provider. An empty secret disables it.
func NewSessionProvider(secret string) *SessionProvider {
	return &SessionProvider{secret: []byte(secret), now: time.Now}
}

func (p *SessionProvider) Name() string  { return "session" }
func (p *SessionProvider) Enabled() bool { return len(p.secret) > 0 }

// Authenticate returns (nil, nil) when the request carries no session token.
func (p *SessionProvider) Authenticate(_ context.Context, r *http.Request) (*contracts.Identity, error) {
	token := bearerToken(r)
	if !strings.HasPrefix(token, SessionTokenPrefix) {
		token = ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil, nil
	}

	payload, err := p.validate(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	name := payload.Name
	if name == "" {
		name = payload.Subject
	}
	return &contracts.Identity{
		UserID:      payload.Subject,
		DisplayName: name,
		Provider:    "session",
		ExpiresAt:   time.Unix(payload.Exp, 0),
	}, nil
}

func (p *SessionProvider) validate(token string) (*sessionPayload, error) {
	body, ok := strings.CutPrefix(token, SessionTokenPrefix)
	if !ok {
		return nil, errors.New("missing token prefix")
	}
	payloadB64, sigB64, ok := cutLast(body, '.')
	if !ok {
		return nil, errors.New("malformed token: expected payload.signature")
	}

	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !hmac.Equal(sig, sign(p.secret, payloadB64)) {
		return nil, errors.New("signature mismatch")
	}

	raw, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("invalid payload encoding: %w", err)
	}
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	if payload.Exp > 0 && p.now().Unix() > payload.Exp {
		return nil, errors.New("token expired")
	}
	if payload.Subject == "" {
		return nil, errors.New("missing subject")
	}
	return &payload, nil
}

// GenerateSessionToken creates a signed session token for userID.
func GenerateSessionToken(secret []byte, userID, name string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("session secret is empty")
	}
	if userID == "" {
		return "", errors.New("user id is empty")
	}
	data, err := json.Marshal(sessionPayload{
		Subject: userID,
		Name:    name,
		Exp:     time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(data)
	return SessionTokenPrefix + payloadB64 + "." + base64.RawURLEncoding.EncodeToString(sign(secret, payloadB64)), nil
}

func sign(secret []byte, payloadB64 string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadB64))
	return mac.Sum(nil)
}

func cutLast(s string, sep byte) (before, after string, ok bool) {
	if i := strings.LastIndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}
