package model

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/journalmesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by agents.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt for the model
	Contents     []core.Content   `json:"contents"`     // Conversation converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "gemini", "scripted"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents to drive generation.
//
// Implementations emit zero or more partial responses followed by exactly one
// final response on the first channel, or a single error on the second. Both
// channels are closed when generation ends.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Turn is one scripted model reply.
type Turn struct {
	Text  string
	Calls []core.FunctionCall
	// Err fails the generation instead of replying.
	Err error
	// Delay postpones the reply; a cancelled context aborts it.
	Delay time.Duration
}

type route struct {
	marker string
	turns  []Turn
	next   int
}

// ScriptedModel is a deterministic in-memory Model for tests and demos.
// Replies are selected by the first route whose marker is contained in the
// request instructions; each route replays its turns in order and repeats
// the last one once exhausted.
type ScriptedModel struct {
	info     Info
	mu       sync.Mutex
	routes   []*route
	fallback Turn
	requests []Request
}

// NewScriptedModel constructs an empty ScriptedModel.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{
		info: Info{
			Name:          name,
			Provider:      "scripted",
			SupportsTools: true,
		},
		fallback: Turn{Text: "I'm not sure how to help with that yet."},
	}
}

// On registers turns for requests whose instructions contain marker.
func (m *ScriptedModel) On(marker string, turns ...Turn) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.routes = append(m.routes, &route{marker: marker, turns: turns})

	return m
}

// Otherwise sets the reply used when no route matches.
func (m *ScriptedModel) Otherwise(turn Turn) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fallback = turn

	return m
}

// Requests returns a copy of every request received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

func (m *ScriptedModel) pick(req Request) Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	for _, r := range m.routes {
		if !strings.Contains(req.Instructions, r.marker) || len(r.turns) == 0 {
			continue
		}
		t := r.turns[r.next]
		if r.next < len(r.turns)-1 {
			r.next++
		}
		return t
	}

	return m.fallback
}

// Generate implements Model; emits optional streaming chunks then the final response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		turn := m.pick(req)

		if turn.Delay > 0 {
			timer := time.NewTimer(turn.Delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-timer.C:
			}
		}

		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if req.Stream && turn.Text != "" {
			for _, word := range strings.SplitAfter(turn.Text, " ") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, word),
				}:
				}
			}
		}

		parts := make([]core.Part, 0, len(turn.Calls)+1)
		if turn.Text != "" {
			parts = append(parts, core.TextPart{Text: turn.Text})
		}
		for _, c := range turn.Calls {
			parts = append(parts, core.FunctionCallPart{FunctionCall: c})
		}

		finish := "stop"
		if len(turn.Calls) > 0 {
			finish = "tool_calls"
		}

		respCh <- Response{
			Partial:      false,
			Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
			FinishReason: finish,
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *ScriptedModel) Info() Info { return m.info }
