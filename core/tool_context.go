package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/journalmesh/logging"
)

// ToolContext provides a constrained, auditable surface for tool executors.
// It is created by the registry for a single call and never shared between
// calls.
type ToolContext struct {
	ctx            context.Context
	caller         Caller
	agent          AgentIdentity
	functionCallID string
	logger         logging.Logger
}

// NewToolContext constructs a tool context for one call made by agent on
// behalf of caller.
func NewToolContext(ctx context.Context, caller Caller, agent AgentIdentity, functionCallID string, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:            ctx,
		caller:         caller,
		agent:          agent,
		functionCallID: functionCallID,
		logger:         logger,
	}
}

// Context returns the context associated with the tool invocation. It carries
// the per-call timeout.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Caller returns the caller the tool acts for.
func (tc *ToolContext) Caller() Caller { return tc.caller }

// UserID is shorthand for Caller().UserID; executors key every read and
// write by it.
func (tc *ToolContext) UserID() string { return tc.caller.UserID }

// Agent returns the identity of the requesting agent.
func (tc *ToolContext) Agent() AgentIdentity { return tc.agent }

// FunctionCallID returns the call id correlating model request and execution.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// Logger returns the logger scoped to this call.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.caller.UserID == "" {
		return fmt.Errorf("tool context has no caller")
	}
	if !tc.agent.Valid() {
		return fmt.Errorf("tool context has invalid agent %d", tc.agent)
	}
	return nil
}
