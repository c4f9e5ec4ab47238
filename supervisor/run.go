package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/journalmesh/agent"
	"github.com/hupe1980/journalmesh/codec"
	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/logging"
	"github.com/hupe1980/journalmesh/mask"
	"github.com/hupe1980/journalmesh/tool"
	"github.com/hupe1980/journalmesh/workflow"
)

// run is the state of one workflow. Nothing in it is shared between
// requests.
type run struct {
	s      *Supervisor
	rec    *workflow.Recorder
	caller core.Caller
	logger logging.Logger

	// mutations serializes mutating tool calls of this workflow, including
	// those of branches that outlived their round.
	mutations sync.Mutex
}

// dispatch executes one tool call for agent and records its audit. gate,
// when set, must return before a mutating call may run.
func (r *run) dispatch(
	ctx context.Context,
	round, index, seq int,
	id core.AgentIdentity,
	allowed []string,
	fc core.FunctionCall,
	gate func(context.Context) error,
) tool.Result {
	call := tool.CallFromFunction(fc, id)

	ctx, span := r.s.startToolSpan(ctx, id, call.Name)

	var res tool.Result
	if r.s.registry.IsMutating(call.Name) && containsName(allowed, call.Name) {
		res = r.dispatchMutating(ctx, allowed, call, gate)
	} else {
		res = r.s.registry.DispatchFor(ctx, allowed, call, r.caller)
	}

	r.s.endToolSpan(span, res)

	r.rec.AddAudit(workflow.ToolAudit{
		Agent:  id,
		Round:  round,
		Index:  index,
		Seq:    seq,
		Call:   call,
		Result: res,
	})

	return res
}

func (r *run) dispatchMutating(ctx context.Context, allowed []string, call tool.Call, gate func(context.Context) error) tool.Result {
	start := time.Now()

	if gate != nil {
		if err := gate(ctx); err != nil {
			return tool.Result{
				CallID:    call.ID,
				Name:      call.Name,
				Error:     tool.NewError(tool.CodeExecutionError, fmt.Sprintf("not executed: %v", err)),
				ElapsedMS: time.Since(start).Milliseconds(),
			}
		}
	}

	r.mutations.Lock()
	defer r.mutations.Unlock()

	return r.s.registry.DispatchFor(ctx, allowed, call, r.caller)
}

// branch is one delegation in flight.
type branch struct {
	d     *delegation
	agent Agent
	done  chan struct{}

	// Written by the branch goroutine before done is closed.
	text   string
	err    error
	runs   []workflow.AgentRun
	audits int

	// collected is owned by the collecting goroutine. Fields above may only
	// be read there once it is set.
	collected bool
}

// runDelegations executes the delegations of one round and returns one
// function response per delegation in declared order.
func (r *run) runDelegations(ctx context.Context, round int, ds []*delegation) ([]core.FunctionResponse, []*branch) {
	plan(ds)

	branches := make([]*branch, len(ds))
	for i, d := range ds {
		branches[i] = &branch{d: d, agent: r.s.specialists[d.target], done: make(chan struct{})}
		if d.err != nil {
			close(branches[i].done)
			r.rec.Warn("round %d: delegation %d rejected (%s)", round, d.index, d.err.Code)
		}
	}

	results := make(chan *branch, len(ds))
	pending := 0

	for _, b := range branches {
		if b.d.err != nil {
			continue
		}
		pending++

		go func(b *branch) {
			defer func() {
				close(b.done)
				results <- b
			}()
			r.runBranch(ctx, round, b, branches)
		}(b)
	}

	received := map[int]bool{}
	var cancelErr error
	if pending > 0 {
		timer := time.NewTimer(r.s.opts.DelegationTimeout)
		defer timer.Stop()

	wait:
		for len(received) < pending {
			select {
			case b := <-results:
				received[b.d.index] = true
				b.collected = true
			case <-timer.C:
				break wait
			case <-ctx.Done():
				cancelErr = ctx.Err()
				break wait
			}
		}
	}

	responses := make([]core.FunctionResponse, len(ds))
	for i, b := range branches {
		d := b.d
		res := tool.Result{CallID: d.call.ID, Name: DelegateToolName}

		switch {
		case d.err != nil:
			res.Error = d.err
		case !received[d.index] && cancelErr != nil:
			r.rec.AddRun(workflow.AgentRun{
				Agent: d.target,
				Round: round,
				Index: d.index,
				Input: d.input,
				Err:   fmt.Errorf("delegation cancelled: %w", cancelErr),
			})
			r.rec.Warn("round %d: %s was cancelled", round, mask.DisplayNameOf(d.target))
			r.logger.Warn("supervisor.delegation.cancelled", "round", round, "index", d.index, "agent", d.target.String())
			res.Error = tool.NewError(CodeCancelled, "the request was cancelled")
		case !received[d.index]:
			r.rec.AddRun(workflow.AgentRun{
				Agent: d.target,
				Round: round,
				Index: d.index,
				Input: d.input,
				Err:   fmt.Errorf("%w after %s", core.ErrDelegationTimeout, r.s.opts.DelegationTimeout),
			})
			r.rec.Warn("round %d: %s did not finish in time", round, mask.DisplayNameOf(d.target))
			r.logger.Warn("supervisor.delegation.timeout", "round", round, "index", d.index, "agent", d.target.String())
			res.Error = tool.NewError(CodeDelegationTimeout, "the agent did not answer in time")
		default:
			for _, ar := range b.runs {
				r.rec.AddRun(ar)
			}
			switch {
			case b.err != nil && errors.Is(b.err, context.Canceled):
				res.Error = tool.NewError(CodeCancelled, "the request was cancelled")
			case b.err != nil:
				res.Error = tool.NewError(CodeAgentError, "the agent failed to answer")
				if b.text != "" {
					res.Payload = map[string]any{"agent": d.target.String(), "partial_output": b.text}
				}
			default:
				res.Success = true
				res.Payload = map[string]any{"agent": d.target.String(), "output": b.text}
			}
		}

		responses[i] = res.Response()
	}

	return responses, branches
}

// runBranch drives one specialist: the first call, its tool calls and the
// follow-up calls, bounded by MaxAgentToolRounds.
func (r *run) runBranch(ctx context.Context, round int, b *branch, all []*branch) {
	d := b.d
	logger := logging.With(r.logger, "round", round, "index", d.index, "agent", d.target.String())

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("supervisor.delegation.panic", "recover", rec)
			b.err = fmt.Errorf("delegation panicked: %v", rec)
		}
	}()

	memory := make([]string, 0, len(d.deps))
	for _, dep := range d.deps {
		other := all[dep]
		select {
		case <-other.done:
		case <-ctx.Done():
			b.err = ctx.Err()
			return
		}
		label := mask.DisplayNameOf(other.d.target)
		if other.err != nil || other.text == "" {
			memory = append(memory, fmt.Sprintf("Output of %s is unavailable.", label))
			continue
		}
		memory = append(memory, fmt.Sprintf("Output of %s: %s", label, other.text))
	}

	gate := func(ctx context.Context) error {
		for _, other := range all {
			if other.d.pos < 0 || other.d.pos >= d.pos {
				continue
			}
			select {
			case <-other.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	allowed := b.agent.ToolNames()
	task := core.AgentTask{
		Target:  d.target,
		Input:   d.input,
		Context: core.TaskContext{Memory: memory, Caller: r.caller},
	}
	history := []core.Content{core.NewTextContent(core.RoleUser, d.input)}
	seq := 0

	logger.Debug("supervisor.delegation.start", "depends_on", len(d.deps))

	for step := 0; ; step++ {
		out, err := r.invoke(ctx, round, d.index, step, task, b.agent)
		b.runs = append(b.runs, workflow.AgentRun{
			Agent:   d.target,
			Round:   round,
			Index:   d.index,
			Step:    step,
			Input:   task.Input,
			Text:    out.Text,
			Elapsed: out.Elapsed,
			Err:     err,
		})
		if err != nil {
			b.err = err
			logger.Warn("supervisor.delegation.error", "step", step, "error", err)
			return
		}
		if out.Text != "" {
			b.text = out.Text
		}

		if len(out.ToolCalls) == 0 {
			break
		}
		if step >= r.s.opts.MaxAgentToolRounds {
			logger.Warn("supervisor.delegation.tool_rounds_exceeded", "max", r.s.opts.MaxAgentToolRounds)
			break
		}

		calls := ensureCallIDs(&out.Content)
		responses := make([]core.Part, 0, len(calls))
		for _, fc := range calls {
			res := r.dispatch(ctx, round, d.index, seq, d.target, allowed, fc, gate)
			seq++
			b.audits++
			responses = append(responses, core.FunctionResponsePart{FunctionResponse: res.Response()})
		}

		history = append(history, out.Content, core.Content{Role: core.RoleTool, Parts: responses})
		task = core.AgentTask{
			Target:  d.target,
			Context: core.TaskContext{History: history, Memory: memory, Caller: r.caller},
		}
	}

	logger.Debug("supervisor.delegation.done", "steps", len(b.runs), "tool_calls", b.audits)
}

// invoke wraps one agent call in a span.
func (r *run) invoke(ctx context.Context, round, index, step int, task core.AgentTask, a Agent) (agent.Outcome, error) {
	ctx, span := r.s.startAgentSpan(ctx, a.Identity(), round, index, step)
	out, err := a.Invoke(ctx, task)
	r.s.endAgentSpan(span, out, err)
	return out, err
}

// ensureCallIDs assigns ids to calls that lack one so results can be
// correlated, and returns the calls in declared order.
func ensureCallIDs(c *core.Content) []core.FunctionCall {
	var calls []core.FunctionCall
	for i, p := range c.Parts {
		fc, ok := p.(core.FunctionCallPart)
		if !ok {
			continue
		}
		if fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = "call_" + uuid.NewString()
			c.Parts[i] = fc
		}
		calls = append(calls, fc.FunctionCall)
	}
	return calls
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// latestProse returns the prose of the last successful branch in declared
// order.
func latestProse(branches []*branch) string {
	sorted := append([]*branch(nil), branches...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].d.index < sorted[j].d.index })

	prose := ""
	for _, b := range sorted {
		if !b.collected || b.err != nil || b.text == "" {
			continue
		}
		dec, _ := codec.Decode(b.text)
		if p := strings.TrimSpace(dec.Prose); p != "" {
			prose = p
		}
	}
	return prose
}

// marshalArgs renders a call's arguments for logs.
func marshalArgs(fc core.FunctionCall) string {
	if json.Valid([]byte(fc.Arguments)) {
		return fc.Arguments
	}
	return fmt.Sprintf("%q", fc.Arguments)
}
