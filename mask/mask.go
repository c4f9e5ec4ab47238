// Package mask is the only path from an internal agent identity to an
// external string. Every agent attribution that leaves the engine passes
// through DisplayNameOf.
package mask

import "github.com/hupe1980/journalmesh/core"

// Unknown is the label for values outside the identity set.
const Unknown = "Assistant"

var labels = map[core.AgentIdentity]string{
	core.Supervisor:    "Coordinator",
	core.Emotion:       "Mood Insight",
	core.Retrieval:     "Journal Finder",
	core.Tags:          "Topic Labeler",
	core.Enhancement:   "Writing Coach",
	core.Memory:        "Recall Assistant",
	core.Summarization: "Digest Writer",
	core.Report:        "Progress Overview",
	core.Monitor:       "Wellbeing Watch",
}

// DisplayNameOf returns the external label of id. It is total and
// injective over the identity set; no label contains its internal name.
func DisplayNameOf(id core.AgentIdentity) string {
	if l, ok := labels[id]; ok {
		return l
	}
	return Unknown
}

// Attribution is an agent reference safe to serialize externally.
type Attribution struct {
	Agent string `json:"agent"`
	Role  string `json:"role"`
}

// Attribute masks id. The role distinguishes the coordinator from
// specialists without naming either.
func Attribute(id core.AgentIdentity) Attribution {
	role := "specialist"
	if id == core.Supervisor {
		role = "coordinator"
	}
	return Attribution{Agent: DisplayNameOf(id), Role: role}
}
