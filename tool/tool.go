// Package tool implements the tool registry: a fixed, process-wide catalog of
// named backend actions with declared argument schemas, and the dispatch
// protocol that turns every call into a Result record. Tool failures are data,
// never Go errors escaping to the caller.
package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/model"
)

// Category groups tools for enumeration and reporting. It carries no
// behavioural semantics.
type Category string

// Tool categories.
const (
	CategoryJournal     Category = "journal"
	CategoryTemplate    Category = "template"
	CategoryChatHistory Category = "chat_history"
)

// Error codes carried by failed results.
const (
	CodeUnknownTool     = "UNKNOWN_TOOL"
	CodeValidationError = "VALIDATION_ERROR"
	CodeExecutionError  = "EXECUTION_ERROR"
)

// Executor performs the side-effecting operation of a tool. Arguments have
// already passed schema validation. Returning an error wrapping
// core.ErrToolValidation reports a validation failure instead of an execution
// failure; a returned *Error keeps its own code.
type Executor func(tc *core.ToolContext, args json.RawMessage) (any, error)

// Definition describes one registered tool.
type Definition struct {
	Name        string
	Category    Category
	Description string
	// Parameters is the JSON schema of the argument object.
	Parameters map[string]any
	// Mutating marks tools that write to the store. Mutating calls are
	// serialized within one workflow.
	Mutating bool
	Executor Executor
}

// Declaration returns the model facing function declaration.
func (d Definition) Declaration() model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		},
	}
}

// Call is a single tool invocation request produced from a model response.
type Call struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Arguments json.RawMessage    `json:"arguments,omitempty"`
	Agent     core.AgentIdentity `json:"-"`
}

// CallFromFunction converts a model function call requested by agent.
func CallFromFunction(fc core.FunctionCall, agent core.AgentIdentity) Call {
	return Call{
		ID:        fc.ID,
		Name:      fc.Name,
		Arguments: json.RawMessage(fc.Arguments),
		Agent:     agent,
	}
}

// Error is the error detail of a failed result.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool error [%s]: %s", e.Code, e.Message)
}

// NewError creates an Error with the given code.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Result is the outcome of one dispatched call.
type Result struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Payload   any    `json:"payload,omitempty"`
	Error     *Error `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Response converts the result into a function response part for the
// requesting agent's next model call. Failed results stay visible: the error
// code and message travel as the response body.
func (r Result) Response() core.FunctionResponse {
	fr := core.FunctionResponse{ID: r.CallID, Name: r.Name}

	body := map[string]any{"success": r.Success}
	if r.Success {
		body["payload"] = r.Payload
	} else if r.Error != nil {
		body["error"] = map[string]any{"code": r.Error.Code, "message": r.Error.Message}
		fr.Error = fmt.Sprintf("%s: %s", r.Error.Code, r.Error.Message)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		fr.Response = fmt.Sprintf("%v", body)
		return fr
	}
	fr.Response = strings.TrimSuffix(buf.String(), "\n")

	return fr
}
