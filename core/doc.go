// Package core provides the foundational domain types shared by the
// orchestration engine:
//
//   - AgentIdentity, the closed set of internal agent identities
//   - Content / Part, role based conversation turns with tool call parts
//   - AgentTask and Caller, the unit of delegation and the opaque end user
//   - ToolContext, the per call surface handed to tool executors
//   - RoundLimiter, the bound on multi-round loops
//   - the error taxonomy shared by gateway, registry and supervisor
//
// The package intentionally keeps implementation concerns (providers,
// persistence, orchestration) out of scope.
package core
