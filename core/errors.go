package core

import (
	"errors"
	"fmt"
)

var (
	// ErrGateway marks language model provider failures.
	ErrGateway = errors.New("gateway error")
	// ErrToolValidation marks tool arguments that do not satisfy the schema.
	ErrToolValidation = errors.New("tool validation error")
	// ErrToolExecution marks executor failures.
	ErrToolExecution = errors.New("tool execution error")
	// ErrUnknownTool marks calls to tools the requester cannot see.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrDelegationLoopExceeded is recorded when the supervisor hits its round bound.
	ErrDelegationLoopExceeded = errors.New("delegation loop exceeded")
	// ErrMalformedBlock marks an invalid structured block in agent text.
	ErrMalformedBlock = errors.New("malformed structured block")
	// ErrDelegationTimeout marks a sub-agent that did not finish within its batch.
	ErrDelegationTimeout = errors.New("delegation timed out")
)

// GatewayError wraps a failed model call made on behalf of an agent.
type GatewayError struct {
	Agent AgentIdentity
	Err   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway call for %s failed: %v", e.Agent, e.Err)
}

// Unwrap exposes the provider error.
func (e *GatewayError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrGateway) hold for every GatewayError.
func (e *GatewayError) Is(target error) bool { return target == ErrGateway }
