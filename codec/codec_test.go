package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/journalmesh/core"
)

func TestRoundTrip(t *testing.T) {
	blocks := []*Block{
		nil,
		{Action: "open_journal"},
		{Action: "apply_tags", Data: map[string]any{
			"journal_id": "j1",
			"tags":       []any{"calm", "sleep"},
			"count":      2.0,
			"score":      0.75,
			"final":      true,
			"meta":       map[string]any{"source": "tags"},
		}},
	}
	proses := []string{"", "Done.", "Line one\n\n  Line two  ", "Ünïcödé ✓ <<ACTION>>"}

	for _, b := range blocks {
		for _, p := range proses {
			text, err := Encode(p, b)
			require.NoError(t, err)

			got, err := Decode(text)
			require.NoError(t, err)
			assert.Equal(t, p, got.Prose)
			assert.Equal(t, b, got.Block)
		}
	}
}

func TestDecode_DataTypes(t *testing.T) {
	text, err := Encode("ok", &Block{Action: "rate", Data: map[string]any{
		"score": 1.0,
		"count": 3,
		"ids":   []string{"j1"},
	}})
	require.NoError(t, err)

	got, err := Decode(text)
	require.NoError(t, err)
	require.NotNil(t, got.Block)
	assert.Equal(t, map[string]any{
		"score": 1.0,
		"count": 3.0,
		"ids":   []any{"j1"},
	}, got.Block.Data)

	text, err = Encode("ok", &Block{Action: "rate", Data: map[string]any{}})
	require.NoError(t, err)
	got, err = Decode(text)
	require.NoError(t, err)
	assert.Nil(t, got.Block.Data)
}

func TestDecode_PreservesSurroundingProse(t *testing.T) {
	text := "Before  \n" + StartMarker + ` {"action":"apply_tags"} ` + EndMarker + "\n after."

	got, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, "Before  \n\n after.", got.Prose)
	require.NotNil(t, got.Block)
	assert.Equal(t, "apply_tags", got.Block.Action)
	assert.Nil(t, got.Block.Data)
}

func TestDecode_Malformed(t *testing.T) {
	pair := StartMarker + `{"action":"a"}` + EndMarker

	cases := []struct {
		name  string
		text  string
		prose string
	}{
		{"start only", "hi " + StartMarker + `{"action":"a"}`, "hi " + StartMarker + `{"action":"a"}`},
		{"end only", "hi " + EndMarker, "hi " + EndMarker},
		{"reversed", EndMarker + "x" + StartMarker, EndMarker + "x" + StartMarker},
		{"two pairs", "a" + pair + "b" + pair, "a" + pair + "b" + pair},
		{"invalid json", "a" + StartMarker + "{not json" + EndMarker + "b", "ab"},
		{"missing action", "a" + StartMarker + `{"tags":[]}` + EndMarker + "b", "ab"},
		{"empty action", "a" + StartMarker + `{"action":" "}` + EndMarker + "b", "ab"},
		{"not an object", "a" + StartMarker + `[1,2]` + EndMarker + "b", "ab"},
		{"null payload", "a" + StartMarker + `null` + EndMarker + "b", "ab"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.text)
			assert.ErrorIs(t, err, core.ErrMalformedBlock)
			assert.Equal(t, tc.prose, got.Prose)
			assert.Nil(t, got.Block)
		})
	}
}

func TestDecode_PlainProse(t *testing.T) {
	got, err := Decode("Just words.")
	require.NoError(t, err)
	assert.Equal(t, Decoded{Prose: "Just words."}, got)
}

func TestEncode_Rejects(t *testing.T) {
	_, err := Encode("x", &Block{})
	assert.Error(t, err)

	_, err = Encode("x", &Block{Action: "apply", Data: map[string]any{"action": "inner"}})
	assert.ErrorIs(t, err, ErrReservedKey)

	_, err = Encode("see "+EndMarker, &Block{Action: "a"})
	assert.Error(t, err)
}
