package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder collects the agent runs, tool audits and warnings of one
// workflow. It is safe for concurrent use by parallel branches.
type Recorder struct {
	id    string
	start time.Time

	mu       sync.Mutex
	runs     []AgentRun
	audits   []ToolAudit
	warnings []string
	rounds   int
}

// NewRecorder starts recording a new workflow.
func NewRecorder() *Recorder {
	return &Recorder{id: uuid.NewString(), start: time.Now()}
}

// ID returns the workflow id.
func (r *Recorder) ID() string { return r.id }

// AddRun records an agent call.
func (r *Recorder) AddRun(run AgentRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = append(r.runs, run)
}

// AddAudit records a dispatched tool call.
func (r *Recorder) AddAudit(a ToolAudit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.audits = append(r.audits, a)
}

// Warn records a warning. Warnings must not name internal identities.
func (r *Recorder) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

// SetRounds records the number of supervisor rounds started.
func (r *Recorder) SetRounds(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rounds = n
}

// AuditCount returns the number of recorded tool calls.
func (r *Recorder) AuditCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.audits)
}

// Result aggregates everything recorded so far around final.
func (r *Recorder) Result(final AgentRun, partial bool) *Result {
	r.mu.Lock()
	runs := append([]AgentRun(nil), r.runs...)
	audits := append([]ToolAudit(nil), r.audits...)
	meta := Meta{
		ID:       r.id,
		Rounds:   r.rounds,
		Elapsed:  time.Since(r.start),
		Partial:  partial,
		Warnings: append([]string(nil), r.warnings...),
	}
	r.mu.Unlock()

	return Aggregate(final, runs, audits, meta)
}
