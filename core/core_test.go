package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{ infos []string }

func (l *testLogger) Debug(string, ...any)      {}
func (l *testLogger) Info(msg string, _ ...any) { l.infos = append(l.infos, msg) }
func (l *testLogger) Warn(string, ...any)       {}
func (l *testLogger) Error(string, ...any)      {}

func TestIdentity_RoundTrip(t *testing.T) {
	for _, id := range Identities() {
		parsed, err := ParseIdentity(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}

	_, err := ParseIdentity("planner")
	assert.Error(t, err)
}

func TestIdentity_Sets(t *testing.T) {
	assert.Len(t, Identities(), 9)
	assert.Len(t, Specialists(), 8)
	assert.NotContains(t, Specialists(), Supervisor)
	assert.False(t, AgentIdentity(0).Valid())
	assert.False(t, AgentIdentity(42).Valid())
	assert.Equal(t, "AgentIdentity(42)", AgentIdentity(42).String())
}

func TestContent_Accessors(t *testing.T) {
	c := Content{
		Role: RoleAssistant,
		Parts: []Part{
			TextPart{Text: "hello "},
			FunctionCallPart{FunctionCall: FunctionCall{ID: "1", Name: "get_journal"}},
			TextPart{Text: "world"},
			FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "1", Name: "get_journal"}},
		},
	}

	assert.Equal(t, "hello world", c.Text())
	require.Len(t, c.FunctionCalls(), 1)
	assert.Equal(t, "get_journal", c.FunctionCalls()[0].Name)
	require.Len(t, c.FunctionResponses(), 1)
	assert.Equal(t, "1", c.FunctionResponses()[0].ID)

	assert.Equal(t, "hi", NewTextContent(RoleUser, "hi").Text())
}

func TestGatewayError(t *testing.T) {
	cause := fmt.Errorf("status 503")
	err := fmt.Errorf("invoke: %w", &GatewayError{Agent: Emotion, Err: cause})

	assert.True(t, errors.Is(err, ErrGateway))
	assert.True(t, errors.Is(err, cause))

	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, Emotion, ge.Agent)
	assert.Contains(t, err.Error(), "emotion")
}

func TestRoundLimiter(t *testing.T) {
	rl := NewRoundLimiter(2)

	n, err := rl.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = rl.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, rl.Remaining())

	_, err = rl.Next()
	assert.ErrorIs(t, err, ErrDelegationLoopExceeded)
	assert.Equal(t, 2, rl.Count())

	assert.Equal(t, 1, NewRoundLimiter(0).Max())
}

func TestToolContext(t *testing.T) {
	logger := &testLogger{}
	tc := NewToolContext(context.Background(), Caller{UserID: "u1", AuthToken: "secret"}, Tags, "call-1", logger)

	require.NoError(t, tc.Validate())
	assert.Equal(t, "u1", tc.UserID())
	assert.Equal(t, Tags, tc.Agent())
	assert.Equal(t, "call-1", tc.FunctionCallID())
	assert.NotNil(t, tc.Context())

	tc.Logger().Info("tool.test")
	assert.Equal(t, []string{"tool.test"}, logger.infos)

	//nolint:staticcheck // nil context is normalised
	empty := NewToolContext(nil, Caller{}, 0, "", nil)
	assert.NotNil(t, empty.Context())
	assert.Error(t, empty.Validate())
	empty.Logger().Info("ignored")
}
