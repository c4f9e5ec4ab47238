// Package journal holds the application data the tools act on: journal
// entries, writing templates and chat history. Every operation is keyed by
// the caller's user id; one user can never read or modify another user's
// records.
//
// Store and History are the persistence contracts. MemoryStore and
// MemoryHistory are process-local implementations; MongoStore, MongoHistory
// and RedisHistory back them with MongoDB and Redis.
package journal

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a record does not exist for the user.
var ErrNotFound = errors.New("not found")

// Entry is a single journal entry.
type Entry struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content" bson:"content"`
	Tags      []string  `json:"tags,omitempty" bson:"tags,omitempty"`
	Mood      string    `json:"mood,omitempty" bson:"mood,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// EntryPatch lists the fields an update changes; nil fields are kept.
type EntryPatch struct {
	Title   *string
	Content *string
	Tags    *[]string
	Mood    *string
}

// Apply writes the patch onto e.
func (p EntryPatch) Apply(e *Entry) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Content != nil {
		e.Content = *p.Content
	}
	if p.Tags != nil {
		e.Tags = normalizeTags(*p.Tags)
	}
	if p.Mood != nil {
		e.Mood = *p.Mood
	}
}

// Empty reports whether the patch changes nothing.
func (p EntryPatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Tags == nil && p.Mood == nil
}

// Template is a reusable journal writing template.
type Template struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Name      string    `json:"name" bson:"name"`
	Body      string    `json:"body" bson:"body"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ChatMessage is one persisted conversation turn.
type ChatMessage struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Role      string    `json:"role" bson:"role"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Store persists journal entries and templates.
type Store interface {
	// CreateEntry assigns id and timestamps and stores the entry.
	CreateEntry(ctx context.Context, e Entry) (Entry, error)
	GetEntry(ctx context.Context, userID, id string) (Entry, error)
	UpdateEntry(ctx context.Context, userID, id string, patch EntryPatch) (Entry, error)
	DeleteEntry(ctx context.Context, userID, id string) error
	// ListEntries returns the newest entries first.
	ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error)
	// SearchEntries matches title, content and tags case-insensitively.
	SearchEntries(ctx context.Context, userID, query string, limit int) ([]Entry, error)

	CreateTemplate(ctx context.Context, t Template) (Template, error)
	ListTemplates(ctx context.Context, userID string) ([]Template, error)
	GetTemplate(ctx context.Context, userID, id string) (Template, error)
}

// History persists chat messages.
type History interface {
	Append(ctx context.Context, msgs ...ChatMessage) error
	// Recent returns up to limit of the latest messages, oldest first.
	Recent(ctx context.Context, userID string, limit int) ([]ChatMessage, error)
	// Search matches message text case-insensitively, newest first.
	Search(ctx context.Context, userID, query string, limit int) ([]ChatMessage, error)
}

// DefaultLimit applies when a list or search asks for no explicit limit.
const DefaultLimit = 20

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (e Entry) matches(query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(e.Title), q) || strings.Contains(strings.ToLower(e.Content), q) {
		return true
	}
	for _, t := range e.Tags {
		if strings.Contains(t, q) {
			return true
		}
	}
	return false
}
