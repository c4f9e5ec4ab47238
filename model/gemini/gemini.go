// Package gemini provides an implementation of model.Model on top of the
// Google Gen AI SDK (Gemini API backend).
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/model"
	"google.golang.org/genai"
)

// Options configure the Gemini model adapter.
type Options struct {
	Model       string
	Temperature float32
	APIKey      string
}

// Model wraps the Gemini generate content API behind model.Model.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       "gemini-2.0-flash",
		Temperature: 0.7,
	}
}

// NewModel creates a Gemini model. Without an explicit APIKey the SDK reads
// GOOGLE_API_KEY / GEMINI_API_KEY.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		contents := buildContents(req.Contents)
		config := m.buildConfig(req)

		if !req.Stream {
			resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, config)
			if err != nil {
				errCh <- fmt.Errorf("gemini api error: %w", err)
				return
			}
			out <- finalResponse(resp, responseParts(resp))
			return
		}

		var (
			text  strings.Builder
			calls []core.Part
			last  *genai.GenerateContentResponse
		)
		for resp, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, contents, config) {
			if err != nil {
				errCh <- fmt.Errorf("gemini streaming error: %w", err)
				return
			}
			last = resp
			if chunk := resp.Text(); chunk != "" {
				text.WriteString(chunk)
				out <- model.Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, chunk),
				}
			}
			for _, fc := range resp.FunctionCalls() {
				calls = append(calls, functionCallPart(fc))
			}
		}

		var parts []core.Part
		if text.Len() > 0 {
			parts = append(parts, core.TextPart{Text: text.String()})
		}
		out <- finalResponse(last, append(parts, calls...))
	}()

	return out, errCh
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.opts.Temperature),
	}

	var system strings.Builder
	system.WriteString(req.Instructions)
	for _, c := range req.Contents {
		if c.Role == core.RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(c.Text())
		}
	}
	if system.Len() > 0 {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system.String()}}}
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  toSchema(t.Function.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return config
}

// buildContents maps roles onto Gemini's user/model turns. Tool responses are
// user turns carrying FunctionResponse parts.
func buildContents(contents []core.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))

	for _, c := range contents {
		var (
			role  string
			parts []*genai.Part
		)

		switch c.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			role = "model"
		default:
			role = "user"
		}

		for _, p := range c.Parts {
			switch part := p.(type) {
			case core.TextPart:
				if part.Text != "" {
					parts = append(parts, &genai.Part{Text: part.Text})
				}
			case core.FunctionCallPart:
				args := map[string]any{}
				_ = json.Unmarshal([]byte(part.FunctionCall.Arguments), &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: args,
				}})
			case core.FunctionResponsePart:
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       part.FunctionResponse.ID,
					Name:     part.FunctionResponse.Name,
					Response: responseMap(part.FunctionResponse),
				}})
			}
		}

		if len(parts) > 0 {
			out = append(out, &genai.Content{Role: role, Parts: parts})
		}
	}

	return out
}

func responseMap(fr core.FunctionResponse) map[string]any {
	if fr.Error != "" {
		return map[string]any{"error": fr.Error}
	}
	if m, ok := fr.Response.(map[string]any); ok {
		return m
	}
	if s, ok := fr.Response.(string); ok {
		var decoded map[string]any
		if json.Unmarshal([]byte(s), &decoded) == nil {
			return decoded
		}
	}
	return map[string]any{"output": fr.Response}
}

func functionCallPart(fc *genai.FunctionCall) core.Part {
	args, err := json.Marshal(fc.Args)
	if err != nil || fc.Args == nil {
		args = []byte("{}")
	}
	return core.FunctionCallPart{FunctionCall: core.FunctionCall{
		ID:        fc.ID,
		Name:      fc.Name,
		Arguments: string(args),
	}}
}

// responseParts converts the first candidate into text and call parts.
func responseParts(resp *genai.GenerateContentResponse) []core.Part {
	var parts []core.Part
	if text := resp.Text(); text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, fc := range resp.FunctionCalls() {
		parts = append(parts, functionCallPart(fc))
	}
	return parts
}

// finalResponse builds the final response from parts plus the finish reason
// and usage of resp, which may be nil for an empty stream.
func finalResponse(resp *genai.GenerateContentResponse, parts []core.Part) model.Response {
	final := model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: "stop",
	}
	if resp == nil {
		return final
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		final.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}

	if u := resp.UsageMetadata; u != nil {
		final.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	return final
}

// toSchema converts a JSON schema map into a genai.Schema.
func toSchema(raw map[string]any) *genai.Schema {
	if raw == nil {
		return nil
	}

	s := &genai.Schema{}
	if t, ok := raw["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := raw["description"].(string); ok {
		s.Description = d
	}
	if enum, ok := raw["enum"].([]any); ok {
		for _, e := range enum {
			if v, ok := e.(string); ok {
				s.Enum = append(s.Enum, v)
			}
		}
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	if items, ok := raw["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	switch req := raw["required"].(type) {
	case []string:
		s.Required = req
	case []any:
		for _, r := range req {
			if v, ok := r.(string); ok {
				s.Required = append(s.Required, v)
			}
		}
	}

	return s
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}
