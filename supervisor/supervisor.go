package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/journalmesh/agent"
	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/logging"
	"github.com/hupe1980/journalmesh/tool"
	"github.com/hupe1980/journalmesh/workflow"
)

// Apology is the answer of a workflow that hit its round bound before any
// agent produced prose.
const Apology = "I'm sorry, I couldn't finish working on your request. Please try again or rephrase it."

// Agent is the view of an agent the supervisor needs. *agent.Agent
// implements it.
type Agent interface {
	Identity() core.AgentIdentity
	ToolNames() []string
	Invoke(ctx context.Context, task core.AgentTask) (agent.Outcome, error)
}

// Options configures a Supervisor.
type Options struct {
	// MaxRounds bounds the coordinator's model calls per request.
	MaxRounds int
	// MaxAgentToolRounds bounds tool rounds inside one delegation.
	MaxAgentToolRounds int
	// DelegationTimeout bounds the wait for one round's delegations.
	DelegationTimeout time.Duration
	Logger            logging.Logger
	Tracer            trace.Tracer
}

// Supervisor runs the coordinator's bounded dispatch loop.
type Supervisor struct {
	coordinator Agent
	specialists map[core.AgentIdentity]Agent
	registry    *tool.Registry
	opts        Options
}

// New creates a supervisor.
//
// The coordinator must have the supervisor identity and should carry every
// registry tool plus DelegateTool(...) in its tool subset. Specialists must
// have distinct non-supervisor identities.
func New(coordinator Agent, specialists []Agent, registry *tool.Registry, optFns ...func(o *Options)) (*Supervisor, error) {
	opts := Options{
		MaxRounds:          5,
		MaxAgentToolRounds: 3,
		DelegationTimeout:  2 * time.Minute,
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/hupe1980/journalmesh/supervisor")
	}
	if opts.MaxRounds < 1 {
		return nil, fmt.Errorf("max rounds must be at least 1, got %d", opts.MaxRounds)
	}
	if opts.MaxAgentToolRounds < 0 {
		return nil, fmt.Errorf("max agent tool rounds must not be negative, got %d", opts.MaxAgentToolRounds)
	}
	if opts.DelegationTimeout <= 0 {
		return nil, fmt.Errorf("delegation timeout must be positive, got %s", opts.DelegationTimeout)
	}

	if coordinator == nil || coordinator.Identity() != core.Supervisor {
		return nil, errors.New("coordinator must have the supervisor identity")
	}
	if registry == nil {
		return nil, errors.New("tool registry is required")
	}

	byID := make(map[core.AgentIdentity]Agent, len(specialists))
	for _, a := range specialists {
		id := a.Identity()
		switch {
		case !id.Valid() || id == core.Supervisor:
			return nil, fmt.Errorf("invalid specialist identity %s", id)
		case byID[id] != nil:
			return nil, fmt.Errorf("duplicate specialist %s", id)
		}
		byID[id] = a
	}

	return &Supervisor{
		coordinator: coordinator,
		specialists: byID,
		registry:    registry,
		opts:        opts,
	}, nil
}

// Specialists returns the identities the coordinator may delegate to, in
// declaration order.
func (s *Supervisor) Specialists() []core.AgentIdentity {
	out := make([]core.AgentIdentity, 0, len(s.specialists))
	for _, id := range core.Specialists() {
		if s.specialists[id] != nil {
			out = append(out, id)
		}
	}
	return out
}

// Handle answers request on behalf of caller. history holds prior turns of
// the conversation, oldest first.
//
// Each round issues one coordinator call. Requested registry tools run in
// declared order, then the round's delegations run concurrently where
// depends_on allows. All results are appended to the coordinator's context
// for the next round. The loop ends at the first round without requests.
//
// Hitting MaxRounds is not an error: the result carries the best partial
// answer and status partial. An error is returned only when the coordinator
// never produced an answer.
func (s *Supervisor) Handle(ctx context.Context, request string, caller core.Caller, history []core.Content) (*workflow.Result, error) {
	r := &run{
		s:      s,
		rec:    workflow.NewRecorder(),
		caller: caller,
	}
	r.logger = logging.With(s.opts.Logger, "workflow_id", r.rec.ID())

	ctx, span := s.startWorkflowSpan(ctx, r.rec.ID())

	convo := make([]core.Content, 0, len(history)+1+2*s.opts.MaxRounds)
	convo = append(convo, history...)
	convo = append(convo, core.NewTextContent(core.RoleUser, request))

	limiter := core.NewRoundLimiter(s.opts.MaxRounds)
	registryTools := s.registry.Names()

	var (
		lastProse string
		subProse  string
		final     string
		partial   bool
	)

	r.logger.Info("supervisor.workflow.start", "history", len(history), "user_id", caller.UserID)

	for {
		round, err := limiter.Next()
		if err != nil {
			partial = true
			r.rec.Warn("delegation loop exceeded after %d rounds", limiter.Max())
			r.logger.Warn("supervisor.loop_exceeded", "rounds", limiter.Max())
			span.RecordError(err)

			switch {
			case lastProse != "":
				final = lastProse
			case subProse != "":
				final = subProse
			default:
				final = Apology
			}
			break
		}
		r.rec.SetRounds(round)

		roundCtx, roundSpan := s.startRoundSpan(ctx, round)
		r.logger.Debug("supervisor.round.start", "round", round)

		task := core.AgentTask{
			Target:  core.Supervisor,
			Context: core.TaskContext{History: convo, Caller: caller},
		}
		if round == 1 {
			task.Context.History = convo[:len(convo)-1]
			task.Input = request
		}

		out, err := r.invoke(roundCtx, round, workflow.SupervisorIndex, 0, task, s.coordinator)
		r.rec.AddRun(workflow.AgentRun{
			Agent:   core.Supervisor,
			Round:   round,
			Index:   workflow.SupervisorIndex,
			Input:   task.Input,
			Text:    out.Text,
			Elapsed: out.Elapsed,
			Err:     err,
		})

		if err != nil {
			s.endRoundSpan(roundSpan, 0, err)
			r.logger.Error("supervisor.round.error", "round", round, "error", err)

			if lastProse == "" {
				s.endWorkflowSpan(span, "failed", err)
				return nil, fmt.Errorf("supervisor round %d: %w", round, err)
			}

			partial = true
			final = lastProse
			r.rec.Warn("round %d: coordinator failed, returning its last answer", round)
			break
		}

		if strings.TrimSpace(out.Text) != "" {
			lastProse = out.Text
		}

		calls := ensureCallIDs(&out.Content)
		convo = append(convo, out.Content)

		if len(calls) == 0 {
			s.endRoundSpan(roundSpan, 0, nil)
			r.logger.Debug("supervisor.round.done", "round", round, "terminal", true)

			final = out.Text
			if strings.TrimSpace(final) == "" {
				partial = true
				r.rec.Warn("round %d: coordinator returned an empty answer", round)
				final = lastProse
				if final == "" {
					final = subProse
				}
				if final == "" {
					final = Apology
				}
			}
			break
		}

		responses, branches := r.runRound(roundCtx, round, calls, registryTools)
		if p := latestProse(branches); p != "" {
			subProse = p
		}

		parts := make([]core.Part, len(responses))
		for i, fr := range responses {
			parts[i] = core.FunctionResponsePart{FunctionResponse: fr}
		}
		convo = append(convo, core.Content{Role: core.RoleTool, Parts: parts})

		s.endRoundSpan(roundSpan, len(calls), nil)
		r.logger.Debug("supervisor.round.done", "round", round, "requests", len(calls))
	}

	status := string(workflow.StatusCompleted)
	if partial {
		status = string(workflow.StatusPartial)
	}
	s.endWorkflowSpan(span, status, nil)
	r.logger.Info("supervisor.workflow.done", "status", status, "tool_calls", r.rec.AuditCount())

	return r.rec.Result(workflow.AgentRun{Agent: core.Supervisor, Text: final}, partial), nil
}

// runRound executes the coordinator's requests of one round and returns a
// function response per call, in the order the calls were made.
func (r *run) runRound(ctx context.Context, round int, calls []core.FunctionCall, registryTools []string) ([]core.FunctionResponse, []*branch) {
	responses := make([]core.FunctionResponse, len(calls))

	var (
		delegations []*delegation
		slots       []int
	)

	available := make(map[core.AgentIdentity]bool, len(r.s.specialists))
	for id := range r.s.specialists {
		available[id] = true
	}

	seq := 0
	for i, fc := range calls {
		if fc.Name == DelegateToolName {
			delegations = append(delegations, parseDelegation(len(delegations), fc, available))
			slots = append(slots, i)
			continue
		}

		r.logger.Debug("supervisor.tool.request", "round", round, "tool", fc.Name, "arguments", marshalArgs(fc))
		res := r.dispatch(ctx, round, workflow.SupervisorIndex, seq, core.Supervisor, registryTools, fc, nil)
		seq++
		responses[i] = res.Response()
	}

	if len(delegations) == 0 {
		return responses, nil
	}

	delegated, branches := r.runDelegations(ctx, round, delegations)
	for j, fr := range delegated {
		responses[slots[j]] = fr
	}

	return responses, branches
}
