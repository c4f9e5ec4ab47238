package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/model"
)

func TestToSchema(t *testing.T) {
	s := toSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"journal_id": map[string]any{"type": "string", "description": "id"},
			"tags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"mood":       map[string]any{"type": "string", "enum": []any{"low", "high"}},
		},
		"required": []any{"journal_id"},
	})

	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"journal_id"}, s.Required)
	assert.Equal(t, genai.TypeString, s.Properties["journal_id"].Type)
	assert.Equal(t, "id", s.Properties["journal_id"].Description)
	assert.Equal(t, genai.TypeArray, s.Properties["tags"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Equal(t, []string{"low", "high"}, s.Properties["mood"].Enum)

	assert.Nil(t, toSchema(nil))
}

func TestBuildContents(t *testing.T) {
	contents := buildContents([]core.Content{
		core.NewTextContent(core.RoleSystem, "ignored"),
		core.NewTextContent(core.RoleUser, "hi"),
		{Role: core.RoleAssistant, Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "get_journal", Arguments: `{"journal_id":"j1"}`}},
		}},
		{Role: core.RoleTool, Parts: []core.Part{
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "get_journal", Response: `{"title":"t"}`}},
		}},
	})

	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "j1", contents[1].Parts[0].FunctionCall.Args["journal_id"])
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, "t", contents[2].Parts[0].FunctionResponse.Response["title"])
}

func TestBuildConfig(t *testing.T) {
	m := NewModelFromClient(nil)
	cfg := m.buildConfig(model.Request{
		Instructions: "be kind",
		Tools: []model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
			Name:       "list_journals",
			Parameters: map[string]any{"type": "object"},
		}}},
	})

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be kind", cfg.SystemInstruction.Parts[0].Text)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "list_journals", cfg.Tools[0].FunctionDeclarations[0].Name)
	assert.Equal(t, "gemini", m.Info().Provider)
}

func TestResponseMap(t *testing.T) {
	assert.Equal(t, map[string]any{"error": "bad"}, responseMap(core.FunctionResponse{Error: "bad"}))
	assert.Equal(t, map[string]any{"output": 3}, responseMap(core.FunctionResponse{Response: 3}))
}
