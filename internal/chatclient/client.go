// Package chatclient is the Go client for the recipe assistant. It reads the
// chat stream, reassembles it into one assistant Message per send, and wraps
// the recipe endpoints.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/wire"
	"github.com/recipeassist/recipe-assistant/pkg/models"
)

const readSize = 4096

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

// Client talks to one recipe assistant server.
type Client struct {
	baseURL string
	token   string
	framing wire.Framing
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential (API key or session token).
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithFraming picks the stream framing to request.
func WithFraming(f wire.Framing) Option {
	return func(c *Client) { c.framing = f }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		framing: wire.FramingNDJSON,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ── Chat ────────────────────────────────────────────────────

// Send posts text to the streaming endpoint and assembles the reply. Every
// call starts a new message with a new id. onUpdate, when set, receives a
// snapshot after every applied chunk and once more when the message is
// finalized.
//
// Cancelling ctx stops the read promptly. Send then returns the partial
// message finalized with FinishError together with ctx.Err(), and does not
// call onUpdate again.
//
// A failed request finalizes the message with FinishError and returns it
// together with the error. Text read before the failure is kept; if nothing
// was read, or the stream broke while a tool was running, the content is the
// fallback reply.
func (c *Client) Send(ctx context.Context, text, threadID string, onUpdate func(Message)) (*Message, error) {
	msg := &Message{ID: uuid.NewString(), Role: "assistant"}
	notify := func() {
		if onUpdate != nil && ctx.Err() == nil {
			onUpdate(msg.clone())
		}
	}
	abort := func() (*Message, error) {
		msg.FinishReason = FinishError
		return msg, ctx.Err()
	}
	fail := func(err error) (*Message, error) {
		if ctx.Err() != nil {
			return abort()
		}
		if msg.Content == "" || msg.ToolCallStatus != nil {
			msg.Content = models.FallbackReply
			msg.ToolCallStatus = nil
			msg.RecipeIDs = nil
		}
		msg.FinishReason = FinishError
		notify()
		return msg, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/chat/stream", models.NewChatRequest(text, threadID), c.framing.ContentType())
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return fail(err)
	}

	dec := NewDecoder(responseFraming(resp, c.framing))
	buf := make([]byte, readSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			for _, ch := range dec.Feed(buf[:n]) {
				if ctx.Err() != nil {
					return abort()
				}
				msg.Apply(ch)
				notify()
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return fail(fmt.Errorf("read stream: %w", rerr))
		}
	}
	for _, ch := range dec.Flush() {
		msg.Apply(ch)
	}
	if ctx.Err() != nil {
		return abort()
	}
	msg.FinishReason = FinishStop
	notify()
	return msg, nil
}

// Ask posts text to the non-streaming endpoint.
func (c *Client) Ask(ctx context.Context, text, threadID string) (*models.ChatResponse, error) {
	var out models.ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/chat", models.NewChatRequest(text, threadID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Recipes ─────────────────────────────────────────────────

// ListRecipes lists the caller's recipes.
func (c *Client) ListRecipes(ctx context.Context, favoritesOnly bool, query string) ([]models.Recipe, error) {
	q := url.Values{}
	if favoritesOnly {
		q.Set("favorites", "true")
	}
	if query != "" {
		q.Set("q", query)
	}
	path := "/api/v1/recipes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []models.Recipe
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	var out models.Recipe
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/recipes/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRecipe(ctx context.Context, id string, patch models.RecipePatch) (*models.Recipe, error) {
	var out models.Recipe
	if err := c.doJSON(ctx, http.MethodPatch, "/api/v1/recipes/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRecipe(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/recipes/"+url.PathEscape(id), nil, nil)
}

// GenerateThumbnail asks the server to illustrate a saved recipe and returns
// the recipe with its new thumbnail URL.
func (c *Client) GenerateThumbnail(ctx context.Context, id string) (*models.Recipe, error) {
	var out models.Recipe
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/recipes/"+url.PathEscape(id)+"/thumbnail", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Transport ───────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Request sent")
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// responseFraming trusts the server's Content-Type over what was asked for.
func responseFraming(resp *http.Response, requested wire.Framing) wire.Framing {
	ct := resp.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "application/x-ndjson"):
		return wire.FramingNDJSON
	case strings.HasPrefix(ct, "text/plain"):
		return wire.FramingConcat
	}
	return requested
}
