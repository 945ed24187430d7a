package settlement

import "fmt"

// Status is the closed state set shared by settlement runs and their steps
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Run-level transitions. COMPLETED is terminal for a run; FAILED runs may be
// re-driven by a later invocation.
var runTransitions = map[Status]map[Status]bool{
	StatusPending:   {StatusRunning: true},
	StatusRunning:   {StatusCompleted: true, StatusFailed: true},
	StatusFailed:    {StatusRunning: true},
	StatusCompleted: {},
}

// Step-level transitions. Steps additionally allow COMPLETED -> RUNNING:
// snapshot writes are idempotent full upserts, so a retried run re-executes
// every step from the top without double-counting.
var stepTransitions = map[Status]map[Status]bool{
	StatusPending:   {StatusRunning: true},
	StatusRunning:   {StatusCompleted: true, StatusFailed: true},
	StatusFailed:    {StatusRunning: true},
	StatusCompleted: {StatusRunning: true},
}

// CanTransitionRun reports whether a run may move from one status to another
func CanTransitionRun(from, to Status) bool {
	return runTransitions[from][to]
}

// CanTransitionStep reports whether a step may move from one status to another
func CanTransitionStep(from, to Status) bool {
	return stepTransitions[from][to]
}

// RunSources lists the statuses a run may legally move to `to` from. The
// write layer embeds these in its conditional-update filters so an illegal
// transition simply matches no document.
func RunSources(to Status) []Status {
	return sources(runTransitions, to)
}

// StepSources lists the statuses a step may legally move to `to` from
func StepSources(to Status) []Status {
	return sources(stepTransitions, to)
}

func sources(table map[Status]map[Status]bool, to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed} {
		if table[from][to] {
			out = append(out, from)
		}
	}
	return out
}

// ErrIllegalTransition is returned by the write layer when a status change
// is not in the allowed-transition table.
type ErrIllegalTransition struct {
	Entity string // "run" or "step"
	From   Status
	To     Status
}

func (e ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal %s transition %s -> %s", e.Entity, e.From, e.To)
}

// Is implements the errors.Is interface for ErrIllegalTransition
func (e ErrIllegalTransition) Is(target error) bool {
	t, ok := target.(ErrIllegalTransition)
	if !ok {
		return false
	}
	if t.Entity == "" && t.From == "" && t.To == "" {
		return true
	}
	return e == t
}
