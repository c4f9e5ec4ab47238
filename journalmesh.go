// Package journalmesh answers journaling requests with a team of language
// model agents. A coordinator decides per request whether to answer
// directly, call journal tools, or delegate to specialists (emotion
// analysis, retrieval, tagging, writing help, memory, summaries, reports,
// wellbeing monitoring), and returns one answer plus a masked trace.
//
// Most applications interact with this package by:
//  1. Creating a Mesh via New() with a model (optionally overriding the
//     in-memory store, history and prompts)
//  2. Calling Query for each user message
//
// All defaults are safe for local development and testing; production
// deployments supply durable stores and a structured logger.
package journalmesh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/journalmesh/agent"
	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/journal"
	"github.com/hupe1980/journalmesh/logging"
	"github.com/hupe1980/journalmesh/mask"
	"github.com/hupe1980/journalmesh/model"
	"github.com/hupe1980/journalmesh/prompt"
	"github.com/hupe1980/journalmesh/supervisor"
	"github.com/hupe1980/journalmesh/tool"
	"github.com/hupe1980/journalmesh/workflow"
)

var (
	// ErrEmptyMessage is returned for a query without text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoCaller is returned for a query without a user id.
	ErrNoCaller = errors.New("caller has no user id")
)

// Options configures the Mesh instance.
type Options struct {
	// Stores (default to in-memory implementations if not provided)
	Store   journal.Store
	History journal.History

	// Prompts overrides the built-in prompts. Identities it cannot serve
	// fall back to prompt.Defaults().
	Prompts prompt.Source

	// Specialists lists the agents the coordinator may delegate to.
	// Defaults to every specialist identity.
	Specialists []core.AgentIdentity

	// ToolSubsets maps a specialist to the registry tools it may call.
	// Defaults to DefaultToolSubsets().
	ToolSubsets map[core.AgentIdentity][]string

	// EnableStreaming requests incremental model output; OnChunk receives it
	// with the masked agent label.
	EnableStreaming bool
	OnChunk         func(label, text string)

	// GatewayTimeout bounds each model call; ToolTimeout each tool call.
	GatewayTimeout    time.Duration
	ToolTimeout       time.Duration
	DelegationTimeout time.Duration

	MaxRounds          int
	MaxAgentToolRounds int

	// HistoryMessages is the number of stored chat messages loaded as prior
	// turns of every query. Zero disables history.
	HistoryMessages int

	// MaxConcurrentQueries limits queries executing simultaneously. Zero
	// means unlimited.
	MaxConcurrentQueries int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// DefaultToolSubsets returns the tools each specialist may call.
func DefaultToolSubsets() map[core.AgentIdentity][]string {
	return map[core.AgentIdentity][]string{
		core.Emotion:       {journal.ToolGetJournal, journal.ToolSearchJournals, journal.ToolListJournals},
		core.Retrieval:     {journal.ToolSearchJournals, journal.ToolListJournals, journal.ToolGetJournal},
		core.Tags:          {journal.ToolGetJournal, journal.ToolSearchJournals, journal.ToolUpdateJournal},
		core.Enhancement:   {journal.ToolGetJournal, journal.ToolUpdateJournal, journal.ToolListTemplates, journal.ToolGetTemplate},
		core.Memory:        {journal.ToolSearchChatHistory},
		core.Summarization: {journal.ToolListJournals, journal.ToolSearchJournals, journal.ToolGetJournal},
		core.Report:        {journal.ToolListJournals, journal.ToolSearchJournals},
		core.Monitor:       {journal.ToolListJournals, journal.ToolGetJournal},
	}
}

// Mesh is the caller-facing entry point.
type Mesh struct {
	opts       Options
	registry   *tool.Registry
	supervisor *supervisor.Supervisor
	slots      chan struct{}
}

// New wires prompts, the tool registry, the agents and the supervisor
// around llm.
func New(llm model.Model, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		Store:              journal.NewMemoryStore(),
		History:            journal.NewMemoryHistory(0),
		Specialists:        core.Specialists(),
		ToolSubsets:        DefaultToolSubsets(),
		GatewayTimeout:     60 * time.Second,
		ToolTimeout:        30 * time.Second,
		DelegationTimeout:  2 * time.Minute,
		MaxRounds:          5,
		MaxAgentToolRounds: 3,
		HistoryMessages:    20,
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if llm == nil {
		return nil, errors.New("model is required")
	}
	if opts.Store == nil {
		return nil, errors.New("journal store is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	var prompts prompt.Source = prompt.Defaults()
	if opts.Prompts != nil {
		prompts = prompt.WithFallback(opts.Prompts, prompt.Defaults())
	}

	registry, err := tool.NewRegistry(journal.Tools(opts.Store, opts.History), func(o *tool.RegistryOptions) {
		o.Timeout = opts.ToolTimeout
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	agentOpts := func(tools []tool.Definition) func(o *agent.Options) {
		return func(o *agent.Options) {
			o.Tools = tools
			o.EnableStreaming = opts.EnableStreaming
			o.Timeout = opts.GatewayTimeout
			o.Logger = opts.Logger
			if opts.OnChunk != nil {
				o.OnChunk = func(id core.AgentIdentity, text string) { opts.OnChunk(mask.DisplayNameOf(id), text) }
			}
		}
	}

	specialists := make([]supervisor.Agent, 0, len(opts.Specialists))
	for _, id := range opts.Specialists {
		tools, err := definitions(registry, opts.ToolSubsets[id])
		if err != nil {
			return nil, fmt.Errorf("tools for %s: %w", id, err)
		}
		specialists = append(specialists, agent.New(id, llm, prompts, agentOpts(tools)))
	}

	coordinatorTools, err := definitions(registry, registry.Names())
	if err != nil {
		return nil, err
	}
	coordinatorTools = append(coordinatorTools, supervisor.DelegateTool(opts.Specialists))

	sup, err := supervisor.New(
		agent.New(core.Supervisor, llm, prompts, agentOpts(coordinatorTools)),
		specialists,
		registry,
		func(o *supervisor.Options) {
			o.MaxRounds = opts.MaxRounds
			o.MaxAgentToolRounds = opts.MaxAgentToolRounds
			o.DelegationTimeout = opts.DelegationTimeout
			o.Logger = opts.Logger
		},
	)
	if err != nil {
		return nil, err
	}

	m := &Mesh{opts: opts, registry: registry, supervisor: sup}
	if opts.MaxConcurrentQueries > 0 {
		m.slots = make(chan struct{}, opts.MaxConcurrentQueries)
	}

	return m, nil
}

func definitions(registry *tool.Registry, names []string) ([]tool.Definition, error) {
	defs := make([]tool.Definition, 0, len(names))
	for _, n := range names {
		d, ok := registry.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown tool %q", n)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Tools returns the tool catalog grouped by category.
func (m *Mesh) Tools() map[tool.Category][]string { return m.registry.Catalog() }

// Query answers message for caller. Stored chat history is loaded as prior
// turns and the exchange is appended afterwards; history failures are
// logged, never returned.
func (m *Mesh) Query(ctx context.Context, message string, caller core.Caller) (*workflow.Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	if caller.UserID == "" {
		return nil, ErrNoCaller
	}

	if m.slots != nil {
		select {
		case m.slots <- struct{}{}:
			defer func() { <-m.slots }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	logger := logging.With(m.opts.Logger, "user_id", caller.UserID)

	history := m.loadHistory(ctx, caller.UserID, logger)

	res, err := m.supervisor.Handle(ctx, message, caller, history)
	if err != nil {
		logger.Error("journalmesh.query.failed", "error", err)
		return nil, err
	}

	if m.opts.History != nil && m.opts.HistoryMessages > 0 {
		if err := m.opts.History.Append(ctx,
			journal.ChatMessage{UserID: caller.UserID, Role: core.RoleUser, Text: message},
			journal.ChatMessage{UserID: caller.UserID, Role: core.RoleAssistant, Text: res.OutputText},
		); err != nil {
			logger.Warn("journalmesh.history.append_failed", "error", err)
		}
	}

	return res, nil
}

func (m *Mesh) loadHistory(ctx context.Context, userID string, logger logging.Logger) []core.Content {
	if m.opts.History == nil || m.opts.HistoryMessages <= 0 {
		return nil
	}

	msgs, err := m.opts.History.Recent(ctx, userID, m.opts.HistoryMessages)
	if err != nil {
		logger.Warn("journalmesh.history.load_failed", "error", err)
		return nil
	}

	contents := make([]core.Content, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role != core.RoleUser && msg.Role != core.RoleAssistant {
			continue
		}
		contents = append(contents, core.NewTextContent(msg.Role, msg.Text))
	}

	return contents
}
