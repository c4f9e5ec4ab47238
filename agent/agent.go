package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/journalmesh/core"
	internalutil "github.com/hupe1980/journalmesh/internal/util"
	"github.com/hupe1980/journalmesh/logging"
	"github.com/hupe1980/journalmesh/mask"
	"github.com/hupe1980/journalmesh/model"
	"github.com/hupe1980/journalmesh/prompt"
	"github.com/hupe1980/journalmesh/tool"
)

// ErrNoResponse is wrapped in a GatewayError when a model closes its
// channels without a final response.
var ErrNoResponse = errors.New("model returned no final response")

// Options configures an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	// Tools is the subset of registry tools the agent may request.
	Tools []tool.Definition
	// EnableStreaming requests incremental output from the model.
	EnableStreaming bool
	// Timeout bounds one gateway call.
	Timeout time.Duration
	// MaxHistoryMessages caps the prior turns sent with each call.
	MaxHistoryMessages int
	// OnChunk receives partial text while streaming.
	OnChunk func(id core.AgentIdentity, text string)
	Logger  logging.Logger
	// Now supplies the date exposed to prompt templates.
	Now func() time.Time
}

// Agent binds an identity to its system prompt, model and tool subset.
//
// An Agent is stateless between calls and safe for concurrent use. It never
// executes tools; requested calls are returned to the caller.
type Agent struct {
	identity           core.AgentIdentity
	llm                model.Model
	prompts            prompt.Source
	tools              []tool.Definition
	enableStreaming    bool
	timeout            time.Duration
	maxHistoryMessages int
	onChunk            func(core.AgentIdentity, string)
	logger             logging.Logger
	now                func() time.Time
}

// New creates an agent with sensible defaults.
//
// The agent is initialized with:
//   - no tools
//   - streaming disabled
//   - a 60-second gateway timeout
//   - a 20-message history limit
//
// Parameters:
//   - identity: the internal identity the agent answers for
//   - llm: language model used for every call
//   - prompts: source of the identity's system prompt
//
// Returns a configured Agent ready for Invoke.
func New(identity core.AgentIdentity, llm model.Model, prompts prompt.Source, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Timeout:            60 * time.Second,
		MaxHistoryMessages: 20,
		Logger:             logging.NoOpLogger{},
		Now:                time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Agent{
		identity:           identity,
		llm:                llm,
		prompts:            prompts,
		tools:              opts.Tools,
		enableStreaming:    opts.EnableStreaming,
		timeout:            opts.Timeout,
		maxHistoryMessages: opts.MaxHistoryMessages,
		onChunk:            opts.OnChunk,
		logger:             logging.With(opts.Logger, "agent", mask.DisplayNameOf(identity)),
		now:                opts.Now,
	}
}

// Identity returns the identity the agent answers for.
func (a *Agent) Identity() core.AgentIdentity { return a.identity }

// ToolNames returns the names of the agent's tool subset.
func (a *Agent) ToolNames() []string {
	names := make([]string, len(a.tools))
	for i, d := range a.tools {
		names[i] = d.Name
	}
	return names
}

// Outcome is the result of one Invoke.
type Outcome struct {
	Agent core.AgentIdentity
	// Text is the assistant prose, possibly carrying a structured block.
	Text string
	// ToolCalls are requested but not executed.
	ToolCalls []core.FunctionCall
	// Content is the final assistant content as returned by the model. Callers
	// append it to the history of a follow-up call.
	Content core.Content
	Usage   *model.TokenUsage
	Elapsed time.Duration
}

// ElapsedMS returns the elapsed time in milliseconds.
func (o Outcome) ElapsedMS() int64 { return o.Elapsed.Milliseconds() }

// Invoke issues exactly one gateway call for task.
func (a *Agent) Invoke(ctx context.Context, task core.AgentTask) (Outcome, error) {
	start := time.Now()
	out := Outcome{Agent: a.identity}

	if task.Target != a.identity {
		return out, fmt.Errorf("task for %s sent to %s", task.Target, a.identity)
	}

	req, err := a.buildRequest(ctx, task)
	if err != nil {
		return out, err
	}

	a.logger.Debug("agent.invoke.start",
		"contents", len(req.Contents),
		"tools", len(req.Tools),
		"stream", req.Stream,
	)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	final, err := a.generate(callCtx, req)
	out.Elapsed = time.Since(start)
	if err != nil {
		a.logger.Warn("agent.invoke.error", "duration_ms", out.ElapsedMS(), "error", err)
		return out, &core.GatewayError{Agent: a.identity, Err: err}
	}

	final.Content.Role = core.RoleAssistant
	out.Content = final.Content
	out.Text = final.Content.Text()
	out.ToolCalls = final.Content.FunctionCalls()
	out.Usage = final.Usage

	a.logger.Debug("agent.invoke.done",
		"duration_ms", out.ElapsedMS(),
		"tool_calls", len(out.ToolCalls),
		"finish_reason", final.FinishReason,
	)

	return out, nil
}

func (a *Agent) buildRequest(ctx context.Context, task core.AgentTask) (model.Request, error) {
	instructions, err := a.prompts.Prompt(ctx, a.identity)
	if err != nil {
		return model.Request{}, fmt.Errorf("resolve prompt for %s: %w", a.identity, err)
	}

	instructions, err = internalutil.RenderPrompt(instructions, map[string]any{
		"Agent": mask.DisplayNameOf(a.identity),
		"Date":  a.now().Format("2006-01-02"),
		"Tools": a.ToolNames(),
	})
	if err != nil {
		return model.Request{}, fmt.Errorf("render prompt for %s: %w", a.identity, err)
	}

	history := trimHistory(task.Context.History, a.maxHistoryMessages)

	contents := make([]core.Content, 0, len(history)+2)
	contents = append(contents, history...)

	if len(task.Context.Memory) > 0 {
		var b strings.Builder
		b.WriteString("Relevant context:")
		for _, m := range task.Context.Memory {
			b.WriteString("\n- ")
			b.WriteString(m)
		}
		contents = append(contents, core.NewTextContent(core.RoleSystem, b.String()))
	}

	if task.Input != "" {
		contents = append(contents, core.NewTextContent(core.RoleUser, task.Input))
	}

	if len(contents) == 0 {
		return model.Request{}, fmt.Errorf("task for %s has no input", a.identity)
	}

	req := model.Request{
		Instructions: instructions,
		Contents:     contents,
		Stream:       a.enableStreaming,
	}
	for _, d := range a.tools {
		req.Tools = append(req.Tools, d.Declaration())
	}

	return req, nil
}

// trimHistory keeps roughly the newest limit contents. The kept window never
// starts on a tool content, whose calls would be cut off, and always keeps
// the newest user content even when it is older than the window.
func trimHistory(history []core.Content, limit int) []core.Content {
	if limit <= 0 || len(history) <= limit {
		return history
	}

	start := len(history) - limit
	for start < len(history) && history[start].Role == core.RoleTool {
		start++
	}

	lastUser := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == core.RoleUser {
			lastUser = i
			break
		}
	}

	if lastUser < 0 || lastUser >= start {
		return history[start:]
	}

	out := make([]core.Content, 0, len(history)-start+1)
	out = append(out, history[lastUser])
	return append(out, history[start:]...)
}

// generate drains the model channels and returns the final response.
func (a *Agent) generate(ctx context.Context, req model.Request) (model.Response, error) {
	respCh, errCh := a.llm.Generate(ctx, req)

	var (
		final    model.Response
		hasFinal bool
	)

loop:
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			if resp.Partial {
				if a.onChunk != nil {
					if text := resp.Content.Text(); text != "" {
						a.onChunk(a.identity, text)
					}
				}
				continue
			}

			final = resp
			hasFinal = true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return model.Response{}, err
			}
		case <-ctx.Done():
			break loop
		}
	}

	if !hasFinal {
		if err := ctx.Err(); err != nil {
			return model.Response{}, err
		}
		return model.Response{}, ErrNoResponse
	}

	return final, nil
}
