package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/model"
	"github.com/hupe1980/journalmesh/prompt"
	"github.com/hupe1980/journalmesh/tool"
)

type updateArgs struct {
	JournalID string   `json:"journal_id" jsonschema:"required"`
	Tags      []string `json:"tags"`
}

func testPrompts() prompt.Map {
	return prompt.Map{
		core.Tags:    "TAGS: You are {{.Agent}} on {{.Date}} with {{join \",\" .Tools}}.",
		core.Emotion: "EMOTION prompt",
	}
}

func fixedNow() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }

func TestInvoke_ReturnsToolCallsWithoutExecuting(t *testing.T) {
	executed := false
	def := tool.MustFunction("update_journal", tool.CategoryJournal, "Update an entry",
		func(tc *core.ToolContext, args updateArgs) (any, error) {
			executed = true
			return nil, nil
		})

	llm := model.NewScriptedModel("test").On("TAGS", model.Turn{
		Text:  "Tagging now.",
		Calls: []core.FunctionCall{{ID: "c1", Name: "update_journal", Arguments: `{"journal_id":"j1","tags":["calm"]}`}},
	})

	a := New(core.Tags, llm, testPrompts(), func(o *Options) {
		o.Tools = []tool.Definition{def}
		o.Now = fixedNow
	})

	out, err := a.Invoke(context.Background(), core.AgentTask{
		Target: core.Tags,
		Input:  "Tag my last entry",
		Context: core.TaskContext{
			History: []core.Content{core.NewTextContent(core.RoleUser, "earlier")},
			Memory:  []string{"entry j1 is about a calm walk"},
		},
	})
	require.NoError(t, err)

	assert.False(t, executed)
	assert.Equal(t, core.Tags, out.Agent)
	assert.Equal(t, "Tagging now.", out.Text)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "update_journal", out.ToolCalls[0].Name)
	assert.Equal(t, core.RoleAssistant, out.Content.Role)
	assert.Equal(t, []string{"update_journal"}, a.ToolNames())

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "TAGS: You are Topic Labeler on 2026-03-04 with update_journal.", req.Instructions)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "update_journal", req.Tools[0].Function.Name)

	require.Len(t, req.Contents, 3)
	assert.Equal(t, "earlier", req.Contents[0].Text())
	assert.Equal(t, core.RoleSystem, req.Contents[1].Role)
	assert.Contains(t, req.Contents[1].Text(), "calm walk")
	assert.Equal(t, core.Content{Role: core.RoleUser, Parts: []core.Part{core.TextPart{Text: "Tag my last entry"}}}, req.Contents[2])
}

func TestInvoke_TrimsHistory(t *testing.T) {
	llm := model.NewScriptedModel("test")
	a := New(core.Emotion, llm, testPrompts(), func(o *Options) { o.MaxHistoryMessages = 2 })

	history := []core.Content{
		core.NewTextContent(core.RoleUser, "one"),
		core.NewTextContent(core.RoleAssistant, "two"),
		core.NewTextContent(core.RoleUser, "three"),
	}

	_, err := a.Invoke(context.Background(), core.AgentTask{Target: core.Emotion, Input: "now", Context: core.TaskContext{History: history}})
	require.NoError(t, err)

	req := llm.Requests()[0]
	require.Len(t, req.Contents, 3)
	assert.Equal(t, "two", req.Contents[0].Text())
	assert.Equal(t, "now", req.Contents[2].Text())
}

func TestTrimHistory(t *testing.T) {
	call := core.Content{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "get_journal"}}}}
	result := core.Content{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "get_journal"}}}}
	request := core.NewTextContent(core.RoleUser, "Tag my entry")

	t.Run("short history is kept", func(t *testing.T) {
		h := []core.Content{request, call}
		assert.Equal(t, h, trimHistory(h, 5))
		assert.Equal(t, h, trimHistory(h, 0))
	})

	t.Run("never starts on a tool content", func(t *testing.T) {
		h := []core.Content{request, call, result, call, result}
		got := trimHistory(h, 3)
		require.Len(t, got, 3)
		assert.Equal(t, request, got[0])
		assert.Equal(t, core.RoleAssistant, got[1].Role)
		assert.Equal(t, core.RoleTool, got[2].Role)
	})

	t.Run("keeps the newest user content", func(t *testing.T) {
		h := []core.Content{core.NewTextContent(core.RoleUser, "old"), request, call, result, call, result, call, result}
		got := trimHistory(h, 2)
		require.Len(t, got, 3)
		assert.Equal(t, request, got[0])
		assert.Equal(t, call, got[1])
		assert.Equal(t, result, got[2])
	})

	t.Run("window holds only tool contents", func(t *testing.T) {
		h := []core.Content{request, call, result}
		got := trimHistory(h, 1)
		assert.Equal(t, []core.Content{request}, got)
	})
}

func TestInvoke_GatewayError(t *testing.T) {
	boom := errors.New("provider unavailable")
	llm := model.NewScriptedModel("test").On("EMOTION", model.Turn{Err: boom})

	a := New(core.Emotion, llm, testPrompts())

	_, err := a.Invoke(context.Background(), core.AgentTask{Target: core.Emotion, Input: "How do I feel?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGateway)
	assert.ErrorIs(t, err, boom)

	var gerr *core.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, core.Emotion, gerr.Agent)
}

func TestInvoke_Timeout(t *testing.T) {
	llm := model.NewScriptedModel("test").On("EMOTION", model.Turn{Text: "late", Delay: time.Second})

	a := New(core.Emotion, llm, testPrompts(), func(o *Options) { o.Timeout = 20 * time.Millisecond })

	_, err := a.Invoke(context.Background(), core.AgentTask{Target: core.Emotion, Input: "hello"})
	assert.ErrorIs(t, err, core.ErrGateway)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvoke_Streaming(t *testing.T) {
	llm := model.NewScriptedModel("test").On("EMOTION", model.Turn{Text: "You sound calm today"})

	var (
		mu     sync.Mutex
		chunks []string
	)
	a := New(core.Emotion, llm, testPrompts(), func(o *Options) {
		o.EnableStreaming = true
		o.OnChunk = func(id core.AgentIdentity, text string) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, core.Emotion, id)
			chunks = append(chunks, text)
		}
	})

	out, err := a.Invoke(context.Background(), core.AgentTask{Target: core.Emotion, Input: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "You sound calm today", out.Text)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"You ", "sound ", "calm ", "today"}, chunks)
}

func TestInvoke_Rejects(t *testing.T) {
	llm := model.NewScriptedModel("test")

	a := New(core.Emotion, llm, testPrompts())
	_, err := a.Invoke(context.Background(), core.AgentTask{Target: core.Tags, Input: "x"})
	assert.Error(t, err)

	_, err = a.Invoke(context.Background(), core.AgentTask{Target: core.Emotion})
	assert.Error(t, err)

	missing := New(core.Report, llm, testPrompts())
	_, err = missing.Invoke(context.Background(), core.AgentTask{Target: core.Report, Input: "x"})
	assert.ErrorIs(t, err, prompt.ErrUnavailable)
	assert.NotErrorIs(t, err, core.ErrGateway)

	assert.Empty(t, llm.Requests())
}
