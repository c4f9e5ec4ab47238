package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/journalmesh/codec"
	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/mask"
	"github.com/hupe1980/journalmesh/tool"
)

// Status of a finished workflow.
type Status string

const (
	// StatusCompleted means the supervisor reached a terminal answer.
	StatusCompleted Status = "completed"
	// StatusPartial means the answer is best effort after the round bound.
	StatusPartial Status = "partial"
)

// Output statuses.
const (
	OutputOK      = "ok"
	OutputFailed  = "failed"
	OutputTimeout = "timeout"
)

// SupervisorIndex is the declared index used for the supervisor's own turns
// and tool calls; they sort before the delegations of the same round.
const SupervisorIndex = -1

// AgentRun is one internal agent call. It carries the raw identity and is
// never serialized.
type AgentRun struct {
	Agent core.AgentIdentity
	Round int
	// Index is the delegation's declared position in its round.
	Index int
	// Step counts follow-up calls within one branch, starting at zero.
	Step    int
	Input   string
	Text    string
	Elapsed time.Duration
	Err     error
}

// ToolAudit is one dispatched tool call. It carries the raw identity and is
// never serialized.
type ToolAudit struct {
	Agent core.AgentIdentity
	Round int
	Index int
	// Seq is the call's position within its branch.
	Seq    int
	Call   tool.Call
	Result tool.Result
}

// Meta describes the workflow as a whole.
type Meta struct {
	ID       string
	Rounds   int
	Elapsed  time.Duration
	Partial  bool
	Warnings []string
}

// Result is returned to the caller of a query. Both text fields carry the
// supervisor's final answer.
type Result struct {
	OutputText          string `json:"output_text"`
	CombinedResponse    string `json:"combined_response"`
	AgentWorkflowResult Trace  `json:"agent_workflow_result"`
}

// Trace is the externally visible record of a workflow. Every agent
// reference in it is masked.
type Trace struct {
	WorkflowID string             `json:"workflow_id"`
	Status     Status             `json:"status"`
	Agents     []mask.Attribution `json:"agents"`
	Outputs    []AgentOutput      `json:"outputs"`
	ToolCalls  []ToolCallAudit    `json:"tool_calls"`
	Action     *codec.Block       `json:"action,omitempty"`
	Rounds     int                `json:"rounds"`
	ElapsedMS  int64              `json:"elapsed_ms"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// AgentOutput is the masked record of one agent call.
type AgentOutput struct {
	mask.Attribution
	Round     int          `json:"round"`
	Index     int          `json:"index"`
	Step      int          `json:"step"`
	Input     string       `json:"input,omitempty"`
	Text      string       `json:"text"`
	Prose     string       `json:"prose"`
	Action    *codec.Block `json:"action,omitempty"`
	Status    string       `json:"status"`
	Error     string       `json:"error,omitempty"`
	ElapsedMS int64        `json:"elapsed_ms"`
}

// ToolCallAudit is the masked record of one tool call.
type ToolCallAudit struct {
	mask.Attribution
	Round     int             `json:"round"`
	Index     int             `json:"index"`
	Seq       int             `json:"seq"`
	CallID    string          `json:"call_id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Success   bool            `json:"success"`
	Payload   any             `json:"payload,omitempty"`
	Error     *tool.Error     `json:"error,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

// Aggregate merges a workflow into one Result.
//
// final is the supervisor's terminal answer and is authoritative for both
// text fields. runs and audits may arrive in any order; the trace is sorted
// by round, then declared index, so the result does not depend on
// completion order. Sub-agent prose is kept in the trace only.
func Aggregate(final AgentRun, runs []AgentRun, audits []ToolAudit, meta Meta) *Result {
	runs = append([]AgentRun(nil), runs...)
	sort.SliceStable(runs, func(i, j int) bool { return runLess(runs[i], runs[j]) })

	audits = append([]ToolAudit(nil), audits...)
	sort.SliceStable(audits, func(i, j int) bool { return auditLess(audits[i], audits[j]) })

	trace := Trace{
		WorkflowID: meta.ID,
		Status:     StatusCompleted,
		Agents:     []mask.Attribution{},
		Outputs:    make([]AgentOutput, 0, len(runs)),
		ToolCalls:  make([]ToolCallAudit, 0, len(audits)),
		Rounds:     meta.Rounds,
		ElapsedMS:  meta.Elapsed.Milliseconds(),
		Warnings:   append([]string(nil), meta.Warnings...),
	}
	if meta.Partial {
		trace.Status = StatusPartial
	}

	seen := map[core.AgentIdentity]bool{}
	attribute := func(id core.AgentIdentity) mask.Attribution {
		a := mask.Attribute(id)
		if !seen[id] {
			seen[id] = true
			trace.Agents = append(trace.Agents, a)
		}
		return a
	}

	for _, r := range runs {
		out := AgentOutput{
			Attribution: attribute(r.Agent),
			Round:       r.Round,
			Index:       r.Index,
			Step:        r.Step,
			Input:       r.Input,
			Text:        r.Text,
			Prose:       r.Text,
			Status:      OutputOK,
			ElapsedMS:   r.Elapsed.Milliseconds(),
		}

		if r.Err != nil {
			out.Status, out.Error = classify(r.Err)
		}

		if r.Text != "" {
			dec, err := codec.Decode(r.Text)
			out.Prose = dec.Prose
			out.Action = dec.Block
			if err != nil {
				trace.Warnings = append(trace.Warnings, fmt.Sprintf("round %d: %s returned a malformed action block", r.Round, out.Agent))
			}
		}

		trace.Outputs = append(trace.Outputs, out)
	}

	for _, a := range audits {
		trace.ToolCalls = append(trace.ToolCalls, ToolCallAudit{
			Attribution: attribute(a.Agent),
			Round:       a.Round,
			Index:       a.Index,
			Seq:         a.Seq,
			CallID:      a.Call.ID,
			Tool:        a.Call.Name,
			Arguments:   a.Call.Arguments,
			Success:     a.Result.Success,
			Payload:     a.Result.Payload,
			Error:       a.Result.Error,
			ElapsedMS:   a.Result.ElapsedMS,
		})
	}

	attribute(core.Supervisor)

	if dec, err := codec.Decode(final.Text); err == nil {
		trace.Action = dec.Block
	}

	return &Result{
		OutputText:          final.Text,
		CombinedResponse:    final.Text,
		AgentWorkflowResult: trace,
	}
}

// classify maps an internal error to an output status and an external error
// code. Error text is never exposed since it may name internal identities.
func classify(err error) (string, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return OutputFailed, "canceled"
	case errors.Is(err, core.ErrDelegationTimeout):
		return OutputTimeout, "delegation_timeout"
	case errors.Is(err, core.ErrGateway):
		return OutputFailed, "gateway_error"
	case errors.Is(err, core.ErrDelegationLoopExceeded):
		return OutputFailed, "delegation_loop_exceeded"
	case errors.Is(err, context.DeadlineExceeded):
		return OutputFailed, "canceled"
	default:
		return OutputFailed, "agent_error"
	}
}

func runLess(a, b AgentRun) bool {
	if a.Round != b.Round {
		return a.Round < b.Round
	}
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	return a.Step < b.Step
}

func auditLess(a, b ToolAudit) bool {
	if a.Round != b.Round {
		return a.Round < b.Round
	}
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	return a.Seq < b.Seq
}
