package monitor

import "fmt"

// State is a live monitor run state.
type State string

const (
	// StateIdle means the monitor has not yet started a run
	StateIdle State = "idle"

	// StateRunning means a pipeline run is in flight
	StateRunning State = "running"

	// StateWaitingRetry means the last run failed with a transient error
	// and the monitor is waiting out the backoff delay
	StateWaitingRetry State = "waiting_retry"

	// StateRecovering means the backoff elapsed and the next attempt is
	// about to start
	StateRecovering State = "recovering"

	// StateDone means the last run published a report and the monitor is
	// waiting for the next interval tick
	StateDone State = "done"

	// StateFailed means attempts were exhausted or a non-retryable error
	// occurred; terminal
	StateFailed State = "failed"
)

// transitions is the legal move table. Anything not listed here is a
// programming error, not a runtime condition.
var transitions = map[State][]State{
	StateIdle:         {StateRunning},
	StateRunning:      {StateDone, StateWaitingRetry, StateFailed},
	StateWaitingRetry: {StateRecovering},
	StateRecovering:   {StateRunning, StateFailed},
	StateDone:         {StateRunning},
	StateFailed:       {},
}

// canTransition reports whether the table allows moving from one state
// to another.
func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RunState is a read-only snapshot of the monitor's state machine.
type RunState struct {
	// State is the current machine state
	State State

	// Attempts is the attempt number within the current unit of work;
	// zero between successful runs
	Attempts int

	// LastErr is the error from the most recent failed attempt, nil
	// after a success
	LastErr error
}

// transition moves the machine to next, panicking on moves the table
// does not allow. Callers hold m.mu.
func (m *Monitor) transitionLocked(next State) {
	if !canTransition(m.state, next) {
		panic(fmt.Sprintf("monitor: illegal transition %s -> %s", m.state, next))
	}
	if m.onTransition != nil {
		m.onTransition(m.state, next)
	}
	m.state = next
}

// transition moves the machine to next under the state lock.
func (m *Monitor) transition(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionLocked(next)
}
