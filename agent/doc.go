// Package agent wraps a single language model call for one agent identity.
//
// An Agent resolves its system prompt, renders it with the agent's display
// name, the current date and its tool names, and sends the task input with
// prior turns and retrieved memory to the model. Tool calls in the reply are
// returned in the Outcome for the supervisor to dispatch; the follow-up call
// carries the results in the task history.
//
// Prompt templates may reference:
//
//	{{.Agent}}  the masked display name
//	{{.Date}}   the current date (YYYY-MM-DD)
//	{{.Tools}}  the agent's tool names; use {{join ", " .Tools}}
package agent
