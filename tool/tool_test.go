package tool

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/journalmesh/core"
)

type updateArgs struct {
	JournalID string   `json:"journal_id" jsonschema:"description=Entry to update" validate:"required"`
	Tags      []string `json:"tags,omitempty" validate:"omitempty,max=3,dive,min=1"`
}

var caller = core.Caller{UserID: "u1", AuthToken: "token"}

func newTestRegistry(t *testing.T, optFns ...func(o *RegistryOptions)) (*Registry, *int) {
	t.Helper()

	calls := 0
	var mu sync.Mutex

	update := MustFunction("update_journal", CategoryJournal, "Update an entry",
		func(tc *core.ToolContext, args updateArgs) (any, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			if args.JournalID == "missing" {
				return nil, errors.New("journal not found")
			}
			return map[string]any{"journal_id": args.JournalID, "tags": args.Tags, "user": tc.UserID()}, nil
		}, Mutating())

	panicky := Definition{
		Name:     "explode",
		Category: CategoryTemplate,
		Executor: func(*core.ToolContext, json.RawMessage) (any, error) { panic("boom") },
	}

	slow := Definition{
		Name:     "slow_search",
		Category: CategoryChatHistory,
		Executor: func(tc *core.ToolContext, _ json.RawMessage) (any, error) {
			select {
			case <-time.After(time.Second):
				return "late", nil
			case <-tc.Context().Done():
				return nil, tc.Context().Err()
			}
		},
	}

	coded := Definition{
		Name:     "coded",
		Category: CategoryTemplate,
		Executor: func(*core.ToolContext, json.RawMessage) (any, error) {
			return nil, NewError("CONFLICT", "template exists")
		},
	}

	r, err := NewRegistry([]Definition{update, panicky, slow, coded}, optFns...)
	require.NoError(t, err)

	return r, &calls
}

func dispatch(r *Registry, name, args string) Result {
	return r.Dispatch(context.Background(), Call{ID: "c1", Name: name, Arguments: json.RawMessage(args), Agent: core.Tags}, caller)
}

func TestNewRegistry_Rejects(t *testing.T) {
	exec := func(*core.ToolContext, json.RawMessage) (any, error) { return nil, nil }

	_, err := NewRegistry([]Definition{{Name: "a", Executor: exec}, {Name: "a", Executor: exec}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry([]Definition{{Name: "a"}})
	assert.ErrorContains(t, err, "executor")

	_, err = NewRegistry([]Definition{{Executor: exec}})
	assert.Error(t, err)
}

func TestRegistry_Enumeration(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.Equal(t, []string{"update_journal", "explode", "slow_search", "coded"}, r.Names())
	assert.Equal(t, map[Category][]string{
		CategoryJournal:     {"update_journal"},
		CategoryTemplate:    {"coded", "explode"},
		CategoryChatHistory: {"slow_search"},
	}, r.Catalog())

	defs := r.Definitions("update_journal", "nope")
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0].Type)
	assert.Contains(t, defs[0].Function.Parameters["properties"], "journal_id")
	assert.Len(t, r.Definitions(), 4)

	assert.True(t, r.IsMutating("update_journal"))
	assert.False(t, r.IsMutating("explode"))
}

func TestDispatch_Success(t *testing.T) {
	r, calls := newTestRegistry(t)

	res := dispatch(r, "update_journal", `{"journal_id":"j1","tags":["calm"]}`)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "c1", res.CallID)
	assert.Equal(t, "u1", res.Payload.(map[string]any)["user"])
	assert.Equal(t, 1, *calls)
}

func TestDispatch_Failures(t *testing.T) {
	cases := []struct {
		name string
		tool string
		args string
		code string
		runs int
	}{
		{"unknown tool", "drop_database", `{}`, CodeUnknownTool, 0},
		{"not an object", "update_journal", `["j1"]`, CodeValidationError, 0},
		{"missing required", "update_journal", `{"tags":["a"]}`, CodeValidationError, 0},
		{"wrong type", "update_journal", `{"journal_id":42}`, CodeValidationError, 0},
		{"unknown field", "update_journal", `{"journal_id":"j1","color":"red"}`, CodeValidationError, 0},
		{"validator tag", "update_journal", `{"journal_id":"j1","tags":["a","b","c","d"]}`, CodeValidationError, 0},
		{"executor error", "update_journal", `{"journal_id":"missing"}`, CodeExecutionError, 1},
		{"panic", "explode", ``, CodeExecutionError, 0},
		{"custom code", "coded", `{}`, "CONFLICT", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, calls := newTestRegistry(t)

			res := dispatch(r, tc.tool, tc.args)
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, tc.code, res.Error.Code)
			assert.Nil(t, res.Payload)
			assert.Equal(t, tc.runs, *calls)
		})
	}
}

func TestDispatch_Timeout(t *testing.T) {
	r, _ := newTestRegistry(t, func(o *RegistryOptions) { o.Timeout = 20 * time.Millisecond })

	res := dispatch(r, "slow_search", `{}`)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeExecutionError, res.Error.Code)
	assert.Contains(t, res.Error.Message, "timed out")
}

func TestDispatchFor_Subset(t *testing.T) {
	r, calls := newTestRegistry(t)

	res := r.DispatchFor(context.Background(), []string{"explode"},
		Call{ID: "c1", Name: "update_journal", Arguments: json.RawMessage(`{"journal_id":"j1"}`), Agent: core.Emotion}, caller)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeUnknownTool, res.Error.Code)
	assert.Equal(t, 0, *calls)

	res = r.DispatchFor(context.Background(), []string{"update_journal"},
		Call{ID: "c2", Name: "update_journal", Arguments: json.RawMessage(`{"journal_id":"j1"}`), Agent: core.Tags}, caller)
	assert.True(t, res.Success)
}

func TestResult_Response(t *testing.T) {
	ok := Result{CallID: "c1", Name: "get_journal", Success: true, Payload: map[string]any{"id": "j1"}}
	fr := ok.Response()
	assert.Equal(t, "c1", fr.ID)
	assert.Empty(t, fr.Error)
	assert.JSONEq(t, `{"success":true,"payload":{"id":"j1"}}`, fr.Response.(string))

	bad := Result{CallID: "c2", Name: "update_journal", Error: NewError(CodeValidationError, "journal_id missing")}
	fr = bad.Response()
	assert.Equal(t, "VALIDATION_ERROR: journal_id missing", fr.Error)
	assert.Contains(t, fr.Response.(string), "VALIDATION_ERROR")
}

func TestCallFromFunction(t *testing.T) {
	c := CallFromFunction(core.FunctionCall{ID: "x", Name: "get_journal", Arguments: `{"a":1}`}, core.Retrieval)
	assert.Equal(t, core.Retrieval, c.Agent)
	assert.JSONEq(t, `{"a":1}`, string(c.Arguments))
}
