package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/tool"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newStore() *MemoryStore {
	s := NewMemoryStore()
	s.now = fixedClock()
	return s
}

func TestMemoryStore_EntryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	e, err := s.CreateEntry(ctx, Entry{UserID: "u1", Title: "Morning", Content: "Slept well", Tags: []string{" Sleep ", "sleep", ""}})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, []string{"sleep"}, e.Tags)

	got, err := s.GetEntry(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = s.GetEntry(ctx, "u2", e.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	tags := []string{"rest", "Gratitude"}
	updated, err := s.UpdateEntry(ctx, "u1", e.ID, EntryPatch{Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"rest", "gratitude"}, updated.Tags)
	assert.Equal(t, "Morning", updated.Title)
	assert.True(t, updated.UpdatedAt.After(e.UpdatedAt))

	_, err = s.UpdateEntry(ctx, "u2", e.ID, EntryPatch{Tags: &tags})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteEntry(ctx, "u1", e.ID))
	assert.ErrorIs(t, s.DeleteEntry(ctx, "u1", e.ID), ErrNotFound)
}

func TestMemoryStore_ListAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	for i, title := range []string{"Work stress", "Beach day", "Stressful commute"} {
		_, err := s.CreateEntry(ctx, Entry{UserID: "u1", Title: title, Content: fmt.Sprintf("entry %d", i)})
		require.NoError(t, err)
	}
	_, err := s.CreateEntry(ctx, Entry{UserID: "u2", Title: "Stress elsewhere"})
	require.NoError(t, err)

	list, err := s.ListEntries(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Stressful commute", list[0].Title)
	assert.Equal(t, "Beach day", list[1].Title)

	found, err := s.SearchEntries(ctx, "u1", "STRESS", 0)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Stressful commute", found[0].Title)
	assert.Equal(t, "Work stress", found[1].Title)
}

func TestMemoryStore_Templates(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	b, err := s.CreateTemplate(ctx, Template{UserID: "u1", Name: "Gratitude", Body: "Three things..."})
	require.NoError(t, err)
	_, err = s.CreateTemplate(ctx, Template{UserID: "u1", Name: "Evening", Body: "Today I..."})
	require.NoError(t, err)

	list, err := s.ListTemplates(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Evening", list[0].Name)

	got, err := s.GetTemplate(ctx, "u1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gratitude", got.Name)

	_, err = s.GetTemplate(ctx, "u2", b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryHistory(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory(3)
	h.now = fixedClock()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Append(ctx, ChatMessage{UserID: "u1", Role: core.RoleUser, Text: fmt.Sprintf("message %d", i)}))
	}

	recent, err := h.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "message 2", recent[0].Text)
	assert.Equal(t, "message 4", recent[2].Text)

	recent, err = h.Recent(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, "message 4", recent[0].Text)

	found, err := h.Search(ctx, "u1", "MESSAGE", 2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "message 4", found[0].Text)

	none, err := h.Recent(ctx, "u2", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func newToolRegistry(t *testing.T) (*tool.Registry, *MemoryStore) {
	t.Helper()

	s := newStore()
	r, err := tool.NewRegistry(Tools(s, NewMemoryHistory(0)))
	require.NoError(t, err)

	return r, s
}

func call(r *tool.Registry, name string, args any) tool.Result {
	b, _ := json.Marshal(args)
	return r.Dispatch(context.Background(), tool.Call{ID: "c", Name: name, Arguments: b, Agent: core.Tags}, core.Caller{UserID: "u1"})
}

func TestTools_Definitions(t *testing.T) {
	var defs []tool.Definition
	require.NotPanics(t, func() { defs = Tools(NewMemoryStore(), NewMemoryHistory(0)) })
	require.Len(t, defs, 10)

	for _, d := range defs {
		assert.NotNil(t, d.Parameters, d.Name)
		assert.Equal(t, "object", d.Parameters["type"], d.Name)
		assert.NotNil(t, d.Executor, d.Name)
	}
}

func TestTools_Catalog(t *testing.T) {
	r, _ := newToolRegistry(t)

	assert.Equal(t, map[tool.Category][]string{
		tool.CategoryJournal: {
			ToolCreateJournal, ToolDeleteJournal, ToolGetJournal,
			ToolListJournals, ToolSearchJournals, ToolUpdateJournal,
		},
		tool.CategoryTemplate:    {ToolCreateTemplate, ToolGetTemplate, ToolListTemplates},
		tool.CategoryChatHistory: {ToolSearchChatHistory},
	}, r.Catalog())

	for _, name := range []string{ToolCreateJournal, ToolUpdateJournal, ToolDeleteJournal, ToolCreateTemplate} {
		assert.True(t, r.IsMutating(name), name)
	}
	assert.False(t, r.IsMutating(ToolGetJournal))
}

func TestTools_UpdateJournal(t *testing.T) {
	r, s := newToolRegistry(t)

	e, err := s.CreateEntry(context.Background(), Entry{UserID: "u1", Title: "Run", Content: "5k"})
	require.NoError(t, err)

	res := call(r, ToolUpdateJournal, map[string]any{"journal_id": e.ID, "tags": []string{"fitness"}})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"fitness"}, res.Payload.(Entry).Tags)

	res = call(r, ToolUpdateJournal, map[string]any{"journal_id": e.ID})
	require.NotNil(t, res.Error)
	assert.Equal(t, tool.CodeValidationError, res.Error.Code)

	res = call(r, ToolUpdateJournal, map[string]any{"tags": []string{"fitness"}})
	require.NotNil(t, res.Error)
	assert.Equal(t, tool.CodeValidationError, res.Error.Code)

	res = call(r, ToolGetJournal, map[string]any{"journal_id": "nope"})
	require.NotNil(t, res.Error)
	assert.Equal(t, "NOT_FOUND", res.Error.Code)
}

func TestTools_CreateListDelete(t *testing.T) {
	r, _ := newToolRegistry(t)

	res := call(r, ToolCreateJournal, map[string]any{"title": "Walk", "content": "Park loop", "mood": "calm"})
	require.True(t, res.Success, res.Error)
	id := res.Payload.(Entry).ID

	res = call(r, ToolListJournals, map[string]any{})
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Payload.([]Entry), 1)

	res = call(r, ToolSearchJournals, map[string]any{"query": "park"})
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Payload.([]Entry), 1)

	res = call(r, ToolDeleteJournal, map[string]any{"journal_id": id})
	require.True(t, res.Success, res.Error)

	res = call(r, ToolListTemplates, map[string]any{})
	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.Payload.([]Template))

	res = call(r, ToolCreateTemplate, map[string]any{"name": "Evening"})
	require.NotNil(t, res.Error)
	assert.Equal(t, tool.CodeValidationError, res.Error.Code)
}

func TestEntrySearchFilter(t *testing.T) {
	f := entrySearchFilter("u1", "a.b")
	assert.Equal(t, "u1", f["user_id"])

	or := f["$or"].(bson.A)
	require.Len(t, or, 3)
	assert.Equal(t, bson.M{"title": bson.M{"$regex": `a\.b`, "$options": "i"}}, or[0])
}

func TestDecodeMessages(t *testing.T) {
	raw, err := json.Marshal(ChatMessage{ID: "m1", UserID: "u1", Role: core.RoleUser, Text: "hi"})
	require.NoError(t, err)

	msgs, err := decodeMessages([]string{string(raw)})
	require.NoError(t, err)
	assert.Equal(t, "hi", msgs[0].Text)

	_, err = decodeMessages([]string{"{"})
	assert.Error(t, err)

	h := NewRedisHistory(nil, func(o *RedisHistoryOptions) { o.KeyPrefix = "t:" })
	assert.Equal(t, "t:u1", h.key("u1"))
	assert.Equal(t, int64(200), h.max)
}
