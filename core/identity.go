package core

import "fmt"

// AgentIdentity names one of the engine's agents. The set is closed; values
// outside it are invalid. String returns the internal name, which must never
// reach an external caller without passing through the identity mask.
type AgentIdentity uint8

const (
	// Supervisor routes requests and merges results.
	Supervisor AgentIdentity = iota + 1
	// Emotion analyses the emotional content of entries.
	Emotion
	// Retrieval finds relevant journal entries.
	Retrieval
	// Tags proposes and applies topic tags.
	Tags
	// Enhancement improves the writing of entries.
	Enhancement
	// Memory recalls earlier conversations.
	Memory
	// Summarization condenses entries.
	Summarization
	// Report produces period reports.
	Report
	// Monitor watches for wellbeing signals.
	Monitor
)

var identityNames = [...]string{
	Supervisor:    "supervisor",
	Emotion:       "emotion",
	Retrieval:     "retrieval",
	Tags:          "tags",
	Enhancement:   "enhancement",
	Memory:        "memory",
	Summarization: "summarization",
	Report:        "report",
	Monitor:       "monitor",
}

// String returns the internal identity name.
func (id AgentIdentity) String() string {
	if !id.Valid() {
		return fmt.Sprintf("AgentIdentity(%d)", uint8(id))
	}
	return identityNames[id]
}

// Valid reports whether id belongs to the closed identity set.
func (id AgentIdentity) Valid() bool {
	return id >= Supervisor && id <= Monitor
}

// ParseIdentity resolves an internal identity name.
func ParseIdentity(name string) (AgentIdentity, error) {
	for id := Supervisor; id <= Monitor; id++ {
		if identityNames[id] == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown agent identity %q", name)
}

// Identities returns every identity in declaration order.
func Identities() []AgentIdentity {
	out := make([]AgentIdentity, 0, int(Monitor))
	for id := Supervisor; id <= Monitor; id++ {
		out = append(out, id)
	}
	return out
}

// Specialists returns every identity the supervisor may delegate to.
func Specialists() []AgentIdentity {
	return Identities()[1:]
}
