// Package prompt resolves the system prompt bound to each agent identity.
package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/journalmesh/core"
)

// ErrUnavailable is returned when a source has no prompt for an identity.
var ErrUnavailable = errors.New("prompt unavailable")

// Source looks up the system prompt for an agent identity.
type Source interface {
	Prompt(ctx context.Context, id core.AgentIdentity) (string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, id core.AgentIdentity) (string, error)

// Prompt implements Source.
func (f SourceFunc) Prompt(ctx context.Context, id core.AgentIdentity) (string, error) {
	return f(ctx, id)
}

// Map is a static prompt source.
type Map map[core.AgentIdentity]string

// Prompt implements Source. Empty entries count as missing.
func (m Map) Prompt(_ context.Context, id core.AgentIdentity) (string, error) {
	if p, ok := m[id]; ok && p != "" {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnavailable, id)
}

// Merge returns a copy of m with the non-empty entries of overrides applied.
func (m Map) Merge(overrides Map) Map {
	out := make(Map, len(m)+len(overrides))
	for id, p := range m {
		out[id] = p
	}
	for id, p := range overrides {
		if p != "" {
			out[id] = p
		}
	}
	return out
}

type fallbackSource struct {
	primary  Source
	fallback Source
}

// WithFallback returns a Source that consults primary first and fallback
// whenever primary fails. The primary error is kept when both fail.
func WithFallback(primary, fallback Source) Source {
	return &fallbackSource{primary: primary, fallback: fallback}
}

func (s *fallbackSource) Prompt(ctx context.Context, id core.AgentIdentity) (string, error) {
	p, err := s.primary.Prompt(ctx, id)
	if err == nil {
		return p, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	fp, ferr := s.fallback.Prompt(ctx, id)
	if ferr != nil {
		return "", errors.Join(err, ferr)
	}
	return fp, nil
}

// Defaults returns the built-in prompts. They only outline each role;
// deployments are expected to provide their own.
func Defaults() Map {
	return Map{
		core.Supervisor: "You coordinate a team of journaling assistants. Answer simple requests directly. " +
			"Otherwise call delegate_to_agent for specialists and journal tools for data changes, " +
			"then write one final answer for the user.",
		core.Emotion:       "You analyse the emotions expressed in journal entries. Be gentle and specific.",
		core.Retrieval:     "You find the journal entries most relevant to the request using the search tools.",
		core.Tags:          "You propose concise topic tags for journal entries and apply them with update_journal.",
		core.Enhancement:   "You improve the clarity and flow of journal writing while keeping the author's voice.",
		core.Memory:        "You recall relevant earlier conversations using search_chat_history.",
		core.Summarization: "You summarise journal entries into a short digest.",
		core.Report:        "You produce progress overviews across a period of journal entries.",
		core.Monitor:       "You watch for signs of distress in journal entries and suggest supportive next steps.",
	}
}
