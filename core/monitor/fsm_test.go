package monitor

import "testing"

func TestTransitionTable(t *testing.T) {
	legal := []struct{ from, to State }{
		{StateIdle, StateRunning},
		{StateRunning, StateDone},
		{StateRunning, StateWaitingRetry},
		{StateRunning, StateFailed},
		{StateWaitingRetry, StateRecovering},
		{StateRecovering, StateRunning},
		{StateRecovering, StateFailed},
		{StateDone, StateRunning},
	}
	for _, tc := range legal {
		if !canTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to State }{
		{StateIdle, StateDone},
		{StateIdle, StateWaitingRetry},
		{StateIdle, StateFailed},
		{StateRunning, StateRecovering},
		{StateWaitingRetry, StateRunning},
		{StateWaitingRetry, StateFailed},
		{StateDone, StateDone},
		{StateDone, StateFailed},
		{StateFailed, StateRunning},
		{StateFailed, StateIdle},
	}
	for _, tc := range illegal {
		if canTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestIllegalTransitionPanics(t *testing.T) {
	m := New(Options{}, Deps{Runner: neverRun{}})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on illegal transition")
		}
	}()
	m.transition(StateDone) // idle -> done skips running
}
