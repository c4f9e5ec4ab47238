package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/journalmesh/core"
)

func TestDefaults_CoverEveryIdentity(t *testing.T) {
	d := Defaults()
	for _, id := range core.Identities() {
		p, err := d.Prompt(context.Background(), id)
		require.NoError(t, err, id.String())
		assert.NotEmpty(t, p)
	}
}

func TestMap_Missing(t *testing.T) {
	_, err := Map{core.Tags: ""}.Prompt(context.Background(), core.Tags)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMap_Merge(t *testing.T) {
	merged := Defaults().Merge(Map{core.Tags: "custom", core.Emotion: ""})

	p, err := merged.Prompt(context.Background(), core.Tags)
	require.NoError(t, err)
	assert.Equal(t, "custom", p)

	p, err = merged.Prompt(context.Background(), core.Emotion)
	require.NoError(t, err)
	assert.Equal(t, Defaults()[core.Emotion], p)
}

func TestWithFallback(t *testing.T) {
	down := SourceFunc(func(context.Context, core.AgentIdentity) (string, error) {
		return "", errors.New("prompt store down")
	})

	src := WithFallback(down, Map{core.Report: "fallback"})

	p, err := src.Prompt(context.Background(), core.Report)
	require.NoError(t, err)
	assert.Equal(t, "fallback", p)

	_, err = src.Prompt(context.Background(), core.Monitor)
	assert.ErrorIs(t, err, ErrUnavailable)

	p, err = WithFallback(Map{core.Report: "primary"}, down).Prompt(context.Background(), core.Report)
	require.NoError(t, err)
	assert.Equal(t, "primary", p)
}
