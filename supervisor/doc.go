// Package supervisor implements the coordinator's dispatch loop.
//
// A Supervisor owns one coordinator agent, a set of specialists and the
// shared tool registry. Handle runs a bounded sequence of rounds; in each
// round the coordinator either answers, calls registry tools, or delegates
// to specialists through the delegate_to_agent pseudo tool:
//
//	{"agent": "tags", "input": "Tag entry j1", "depends_on": ["retrieval"]}
//
// Delegations of one round run in parallel unless depends_on orders them.
// Specialists may call tools from their own subset for a bounded number of
// rounds but cannot delegate. Mutating tool calls of a workflow never run
// concurrently. Within a round they are applied in delegation order: the
// declared order, adjusted so dependencies come first.
//
// Failures stay local: a failed or late delegation is reported to the
// coordinator as an error result and recorded in the trace as degraded.
package supervisor
