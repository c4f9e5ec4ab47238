package core

// Caller is the opaque identity of the end user behind a request. The auth
// token is passed through to collaborators untouched and is never logged.
type Caller struct {
	UserID    string
	AuthToken string
}

// TaskContext carries what an agent needs besides its input text.
type TaskContext struct {
	// History holds prior conversation turns, oldest first. For follow-up
	// calls it also carries the agent's own earlier turns and tool results.
	History []Content
	// Memory holds retrieved snippets (earlier answers, dependency outputs).
	Memory []string
	Caller Caller
}

// AgentTask is a single delegation to one agent. It is created by the
// supervisor and consumed exactly once.
type AgentTask struct {
	Target  AgentIdentity
	Input   string
	Context TaskContext
}
