package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/journalmesh/codec"
	"github.com/hupe1980/journalmesh/internal/config"
	"github.com/hupe1980/journalmesh/workflow"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &buf, io.Discard
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &buf
}

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kongVars())
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, ctx
}

func TestParse_Query(t *testing.T) {
	cli, ctx := parse(t, "--demo", "query", "I walked by the river", "-u", "u7", "--full")

	assert.Equal(t, "query <message>", ctx.Command())
	assert.True(t, cli.Demo)
	assert.Equal(t, "I walked by the river", cli.Query.Message)
	assert.Equal(t, "u7", cli.Query.User)
	assert.Equal(t, "local", cli.Query.Token)
	assert.True(t, cli.Query.Full)
}

func TestParse_Serve(t *testing.T) {
	cli, ctx := parse(t, "serve", "--addr", ":9090")

	assert.Equal(t, "serve", ctx.Command())
	assert.Equal(t, ":9090", cli.Serve.Addr)
}

func TestQueryCmd_Demo(t *testing.T) {
	out := capture(t)

	cmd := &QueryCmd{Message: "Long day, but the walk helped.", User: "u1", Token: "t"}
	require.NoError(t, cmd.Run(&Globals{Demo: true}))

	assert.Contains(t, out.String(), "Thanks for sharing.")
	assert.Contains(t, out.String(), codec.StartMarker)
}

func TestQueryCmd_DemoFull(t *testing.T) {
	out := capture(t)

	cmd := &QueryCmd{Message: "Long day, but the walk helped.", User: "u1", Token: "secret-token", Full: true}
	require.NoError(t, cmd.Run(&Globals{Demo: true}))

	var res workflow.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))

	trace := res.AgentWorkflowResult
	assert.Equal(t, workflow.StatusCompleted, trace.Status)
	require.NotNil(t, trace.Action)
	assert.Equal(t, "reflection", trace.Action.Action)
	require.Len(t, trace.Outputs, 3)
	assert.Equal(t, "Mood Insight", trace.Outputs[1].Agent)
	require.Len(t, trace.ToolCalls, 1)
	assert.Equal(t, "create_journal", trace.ToolCalls[0].Tool)
	assert.True(t, trace.ToolCalls[0].Success)
	assert.NotContains(t, out.String(), "secret-token")
	assert.NotContains(t, out.String(), `"emotion"`)
}

func TestToolsCmd(t *testing.T) {
	out := capture(t)

	require.NoError(t, (&ToolsCmd{}).Run(&Globals{Demo: true}))

	assert.Contains(t, out.String(), "chat_history:\n  search_chat_history\n")
	assert.Contains(t, out.String(), "journal:\n")
	assert.Contains(t, out.String(), "  create_journal\n")
}

func TestNewRuntime_Config(t *testing.T) {
	capture(t)

	path := filepath.Join(t.TempDir(), "journalmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  backend: logrus\nprompts:\n  emotion: Be kind.\n"), 0o600))

	rt, err := newRuntime(t.Context(), &Globals{Config: path, Demo: true, LogLevel: "debug"})
	require.NoError(t, err)
	defer func() { _ = rt.Close(t.Context()) }()

	assert.Equal(t, "scripted", rt.cfg.LLM.Provider)
	assert.Equal(t, "debug", rt.cfg.Log.Level)

	_, err = newRuntime(t.Context(), &Globals{Config: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestNewModel_UnknownProvider(t *testing.T) {
	_, err := newModel(t.Context(), config.LLMConfig{Provider: "mistral"}, "")
	assert.Error(t, err)

	m, err := newModel(t.Context(), config.LLMConfig{Provider: "openai"}, "sk-test")
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Info().Provider)
}
