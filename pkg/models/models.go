// Package models holds the request, response and entity types shared by the
// recipe assistant server, its stores and its client.
package models

import (
	"strings"
	"time"
)

// ── Recipe ───────────────────────────────────────────────────

// Recipe is a saved recipe. It always belongs to exactly one user.
type Recipe struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	Title        string    `json:"title" db:"title"`
	Ingredients  []string  `json:"ingredients" db:"ingredients"`
	Instructions []string  `json:"instructions" db:"instructions"`
	DateCreated  time.Time `json:"dateCreated" db:"date_created"`
	ThumbnailURL *string   `json:"thumbnailUrl,omitempty" db:"thumbnail_url"`
	IsFavorite   bool      `json:"isFavorite" db:"is_favorite"`
}

// RecipeFilter narrows a recipe listing.
type RecipeFilter struct {
	FavoritesOnly bool
	Query         string // case-insensitive title/ingredient substring
	IDs           []string
	Limit         int
}

// Matches reports whether r passes the filter (ownership is checked by the
// store, not here).
func (f RecipeFilter) Matches(r *Recipe) bool {
	if f.FavoritesOnly && !r.IsFavorite {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == r.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if strings.Contains(strings.ToLower(r.Title), q) {
			return true
		}
		for _, ing := range r.Ingredients {
			if strings.Contains(strings.ToLower(ing), q) {
				return true
			}
		}
		return false
	}
	return true
}

// RecipePatch is a partial update. Nil fields are left unchanged.
type RecipePatch struct {
	Title        *string `json:"title,omitempty"`
	IsFavorite   *bool   `json:"isFavorite,omitempty"`
	ThumbnailURL *string `json:"thumbnailUrl,omitempty"`
}

// Apply copies the set fields of p onto r.
func (p RecipePatch) Apply(r *Recipe) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.IsFavorite != nil {
		r.IsFavorite = *p.IsFavorite
	}
	if p.ThumbnailURL != nil {
		r.ThumbnailURL = p.ThumbnailURL
	}
}

// ── Chat ─────────────────────────────────────────────────────

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one user message of a chat request.
type ChatMessage struct {
	Parts    []MessagePart   `json:"parts"`
	Metadata MessageMetadata `json:"metadata"`
}

// MessagePart is a text fragment of a ChatMessage.
type MessagePart struct {
	Text string `json:"text"`
}

// MessageMetadata carries the conversation thread a message belongs to.
type MessageMetadata struct {
	ThreadID string `json:"threadId"`
}

// Text joins the message parts.
func (m ChatMessage) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// NewChatRequest builds a single-message request.
func NewChatRequest(text, threadID string) ChatRequest {
	return ChatRequest{Messages: []ChatMessage{{
		Parts:    []MessagePart{{Text: text}},
		Metadata: MessageMetadata{ThreadID: threadID},
	}}}
}

// ChatResponse is the body returned by the non-streaming chat endpoint.
type ChatResponse struct {
	Text              string   `json:"text"`
	ToolIDsCalled     []string `json:"toolIdsCalled"`
	DisplayRecipeIDs  []string `json:"displayRecipeIds"`
	NumRecipesCreated int      `json:"numRecipesCreated"`
}

// FallbackReply is shown to the user whenever a chat turn fails.
const FallbackReply = "I apologize, but I encountered an error while processing your request. Please try again."
