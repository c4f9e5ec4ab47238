package supervisor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/internal/schema"
	"github.com/hupe1980/journalmesh/tool"
)

// DelegateToolName is the pseudo tool the coordinator uses to hand work to a
// specialist. It is intercepted by the supervisor and never reaches the
// registry.
const DelegateToolName = "delegate_to_agent"

// Delegation error codes.
const (
	CodeUnknownAgent      = "UNKNOWN_AGENT"
	CodeInvalidTarget     = "INVALID_TARGET"
	CodeUnknownDependency = "UNKNOWN_DEPENDENCY"
	CodeDependencyCycle   = "DEPENDENCY_CYCLE"
	CodeDelegationTimeout = "DELEGATION_TIMEOUT"
	CodeAgentError        = "AGENT_ERROR"
	CodeCancelled         = "CANCELLED"
)

type delegateArgs struct {
	Agent     string   `json:"agent" jsonschema:"description=Specialist that should handle the task" validate:"required"`
	Input     string   `json:"input" jsonschema:"description=Self-contained task for the specialist" validate:"required"`
	DependsOn []string `json:"depends_on,omitempty" jsonschema:"description=Call ids or agent names of delegations in the same response whose output this task needs"`
}

// DelegateTool returns the declaration of delegate_to_agent listing
// specialists as valid targets. Add it to the coordinator's tools.
func DelegateTool(specialists []core.AgentIdentity) tool.Definition {
	names := make([]string, len(specialists))
	for i, id := range specialists {
		names[i] = id.String()
	}

	return tool.MustFunction(DelegateToolName, "",
		"Hand a task to a specialist agent and receive its answer. Independent delegations in one response run in parallel. "+
			"Available agents: "+strings.Join(names, ", ")+".",
		func(*core.ToolContext, delegateArgs) (any, error) {
			return nil, errors.New("delegate_to_agent is handled by the supervisor")
		})
}

var delegateParams = DelegateTool(nil).Parameters

// delegation is one parsed delegate_to_agent call of a round.
type delegation struct {
	index  int
	call   core.FunctionCall
	target core.AgentIdentity
	input  string
	refs   []string
	deps   []int
	// pos is the position in execution order; -1 for rejected delegations.
	pos int
	err *tool.Error
}

// parseDelegation decodes and checks one call. Rejections are recorded on
// the delegation, never returned.
func parseDelegation(index int, fc core.FunctionCall, available map[core.AgentIdentity]bool) *delegation {
	d := &delegation{index: index, call: fc, pos: -1}

	raw := strings.TrimSpace(fc.Arguments)
	if raw == "" {
		raw = "{}"
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil || params == nil {
		d.err = tool.NewError(tool.CodeValidationError, "arguments are not a JSON object")
		return d
	}
	if err := schema.Validate(params, delegateParams); err != nil {
		d.err = tool.NewError(tool.CodeValidationError, fmt.Sprintf("parameter validation failed: %v", err))
		return d
	}

	var args delegateArgs
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		d.err = tool.NewError(tool.CodeValidationError, fmt.Sprintf("decode arguments: %v", err))
		return d
	}
	if strings.TrimSpace(args.Input) == "" {
		d.err = tool.NewError(tool.CodeValidationError, "input must not be empty")
		return d
	}

	id, err := core.ParseIdentity(strings.ToLower(strings.TrimSpace(args.Agent)))
	switch {
	case err != nil:
		d.err = tool.NewError(CodeUnknownAgent, fmt.Sprintf("no agent named %q", args.Agent))
		return d
	case id == core.Supervisor:
		d.err = tool.NewError(CodeInvalidTarget, "the coordinator cannot delegate to itself")
		return d
	case !available[id]:
		d.err = tool.NewError(CodeUnknownAgent, fmt.Sprintf("agent %q is not available", args.Agent))
		return d
	}

	d.target = id
	d.input = args.Input
	d.refs = args.DependsOn

	return d
}

// plan resolves depends_on references and assigns execution positions.
//
// A reference names either the call id of another delegation or an agent;
// an agent name matches every other delegation to that agent in the round.
// Delegations with unresolvable references or on a cycle are rejected. The
// execution order is topological with ties broken by declared index.
func plan(ds []*delegation) {
	byCall := map[string]*delegation{}
	for _, d := range ds {
		if d.call.ID != "" {
			byCall[d.call.ID] = d
		}
	}

	for _, d := range ds {
		if d.err != nil {
			continue
		}

		seen := map[int]bool{}
		for _, ref := range d.refs {
			ref = strings.TrimSpace(ref)

			if dep, ok := byCall[ref]; ok {
				if !seen[dep.index] {
					seen[dep.index] = true
					d.deps = append(d.deps, dep.index)
				}
				continue
			}

			matched := false
			if id, err := core.ParseIdentity(strings.ToLower(ref)); err == nil {
				for _, other := range ds {
					if other.index == d.index || other.target != id {
						continue
					}
					matched = true
					if !seen[other.index] {
						seen[other.index] = true
						d.deps = append(d.deps, other.index)
					}
				}
			}

			if !matched {
				d.err = tool.NewError(CodeUnknownDependency, fmt.Sprintf("depends_on %q matches no delegation in this response", ref))
				d.deps = nil
				break
			}
		}
	}

	placed := make([]bool, len(ds))
	pos := 0
	for progress := true; progress; {
		progress = false
		for _, d := range ds {
			if d.err != nil || placed[d.index] {
				continue
			}
			ready := true
			for _, dep := range d.deps {
				if ds[dep].err == nil && !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[d.index] = true
				d.pos = pos
				pos++
				progress = true
				break
			}
		}
	}

	for _, d := range ds {
		if d.err == nil && !placed[d.index] {
			d.err = tool.NewError(CodeDependencyCycle, "depends_on forms a cycle")
		}
	}
}
