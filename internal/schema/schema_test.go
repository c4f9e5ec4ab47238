package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	JournalID string   `json:"journal_id" jsonschema:"description=Journal entry id"`
	Tags      []string `json:"tags,omitempty"`
	Mood      string   `json:"mood,omitempty" jsonschema:"enum=low,enum=neutral,enum=high"`
	Limit     int      `json:"limit,omitempty"`
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	return m
}

func TestReflect(t *testing.T) {
	s, err := Reflect(&sampleArgs{})
	require.NoError(t, err)

	assert.Equal(t, "object", s["type"])
	assert.NotContains(t, s, "$schema")
	assert.Equal(t, []any{"journal_id"}, s["required"])

	props := s["properties"].(map[string]any)
	assert.Equal(t, "Journal entry id", props["journal_id"].(map[string]any)["description"])
	assert.Equal(t, "array", props["tags"].(map[string]any)["type"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
}

type emptyArgs struct{}

func TestReflect_EmptyAndUnnamed(t *testing.T) {
	s, err := Reflect(&emptyArgs{})
	require.NoError(t, err)
	assert.Equal(t, "object", s["type"])
	assert.Equal(t, map[string]any{}, s["properties"])

	_, err = Reflect(&struct{}{})
	assert.Error(t, err)

	_, err = Reflect(new(int))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	s, err := Reflect(&sampleArgs{})
	require.NoError(t, err)

	cases := []struct {
		name  string
		args  string
		field string
	}{
		{"valid", `{"journal_id":"j1","tags":["a"],"mood":"low","limit":3}`, ""},
		{"missing required", `{"tags":["a"]}`, "journal_id"},
		{"wrong type", `{"journal_id":7}`, "journal_id"},
		{"wrong item type", `{"journal_id":"j1","tags":[1]}`, "tags[0]"},
		{"enum violation", `{"journal_id":"j1","mood":"ecstatic"}`, "mood"},
		{"fractional integer", `{"journal_id":"j1","limit":1.5}`, "limit"},
		{"unknown field", `{"journal_id":"j1","colour":"red"}`, "colour"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(decode(t, tc.args), s)
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestValidate_OpenSchema(t *testing.T) {
	s := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}},
		"required":   []string{"a"},
	}

	assert.NoError(t, Validate(map[string]any{"a": 1.0, "extra": true}, s))
	assert.Error(t, Validate(map[string]any{}, s))
}
