package journal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a process-local Store. Suitable for tests, demos and single
// instance deployments; data is lost on restart.
//
// Concurrency: protected by RWMutex. Concurrent updates to one entry are
// applied in lock order, the last writer wins.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]map[string]Entry    // userID -> id -> entry
	templates map[string]map[string]Template // userID -> id -> template
	now       func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]map[string]Entry),
		templates: make(map[string]map[string]Template),
		now:       time.Now,
	}
}

// CreateEntry implements Store.
func (s *MemoryStore) CreateEntry(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	e.ID = uuid.NewString()
	e.Tags = normalizeTags(e.Tags)
	e.CreatedAt, e.UpdatedAt = now, now

	if s.entries[e.UserID] == nil {
		s.entries[e.UserID] = make(map[string]Entry)
	}
	s.entries[e.UserID][e.ID] = e

	return e, nil
}

// GetEntry implements Store.
func (s *MemoryStore) GetEntry(_ context.Context, userID, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[userID][id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// UpdateEntry implements Store.
func (s *MemoryStore) UpdateEntry(_ context.Context, userID, id string, patch EntryPatch) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID][id]
	if !ok {
		return Entry{}, ErrNotFound
	}

	patch.Apply(&e)
	e.UpdatedAt = s.now().UTC()
	s.entries[userID][id] = e

	return e, nil
}

// DeleteEntry implements Store.
func (s *MemoryStore) DeleteEntry(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[userID][id]; !ok {
		return ErrNotFound
	}
	delete(s.entries[userID], id)

	return nil
}

// ListEntries implements Store.
func (s *MemoryStore) ListEntries(_ context.Context, userID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestEntries(s.entries[userID], clampLimit(limit), func(Entry) bool { return true }), nil
}

// SearchEntries implements Store.
func (s *MemoryStore) SearchEntries(_ context.Context, userID, query string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestEntries(s.entries[userID], clampLimit(limit), func(e Entry) bool { return e.matches(query) }), nil
}

func newestEntries(m map[string]Entry, limit int, keep func(Entry) bool) []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		if keep(e) {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CreateTemplate implements Store.
func (s *MemoryStore) CreateTemplate(_ context.Context, t Template) (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uuid.NewString()
	t.CreatedAt = s.now().UTC()

	if s.templates[t.UserID] == nil {
		s.templates[t.UserID] = make(map[string]Template)
	}
	s.templates[t.UserID][t.ID] = t

	return t, nil
}

// ListTemplates implements Store. Templates are ordered by name.
func (s *MemoryStore) ListTemplates(_ context.Context, userID string) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Template, 0, len(s.templates[userID]))
	for _, t := range s.templates[userID] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

// GetTemplate implements Store.
func (s *MemoryStore) GetTemplate(_ context.Context, userID, id string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[userID][id]
	if !ok {
		return Template{}, ErrNotFound
	}
	return t, nil
}

// MemoryHistory is a process-local History capped per user.
type MemoryHistory struct {
	mu       sync.RWMutex
	messages map[string][]ChatMessage // userID -> oldest first
	max      int
	now      func() time.Time
}

// NewMemoryHistory keeps at most maxMessages per user; zero or less means 200.
func NewMemoryHistory(maxMessages int) *MemoryHistory {
	if maxMessages <= 0 {
		maxMessages = 200
	}
	return &MemoryHistory{
		messages: make(map[string][]ChatMessage),
		max:      maxMessages,
		now:      time.Now,
	}
}

// Append implements History.
func (h *MemoryHistory) Append(_ context.Context, msgs ...ChatMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range msgs {
		prepareMessage(&m, h.now)
		list := append(h.messages[m.UserID], m)
		if len(list) > h.max {
			list = list[len(list)-h.max:]
		}
		h.messages[m.UserID] = list
	}

	return nil
}

// Recent implements History.
func (h *MemoryHistory) Recent(_ context.Context, userID string, limit int) ([]ChatMessage, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.messages[userID]
	limit = clampLimit(limit)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}

	return append([]ChatMessage(nil), list...), nil
}

// Search implements History.
func (h *MemoryHistory) Search(_ context.Context, userID, query string, limit int) ([]ChatMessage, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return searchMessages(h.messages[userID], query, clampLimit(limit)), nil
}

func prepareMessage(m *ChatMessage, now func() time.Time) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now().UTC()
	}
}

// searchMessages scans an oldest-first list and returns matches newest first.
func searchMessages(list []ChatMessage, query string, limit int) []ChatMessage {
	q := strings.ToLower(query)

	var out []ChatMessage
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(list[i].Text), q) {
			out = append(out, list[i])
		}
	}

	return out
}
