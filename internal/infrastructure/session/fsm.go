// Package session owns the worker child processes: one long-lived
// process per session, a stdio JSON-RPC bridge to it, and the registry
// that creates, evicts and tears sessions down.
package session

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// Session lifecycle states. Busy is not a distinct state: readiness with
// in-flight requests is tracked by the pending-call count.
const (
	StateStarting = "starting"
	StateReady    = "ready"
	StateClosing  = "closing"
	StateClosed   = "closed"
	StateDead     = "dead"
)

// Lifecycle events.
const (
	eventReady  = "ready"
	eventClose  = "close"
	eventClosed = "closed"
	eventDie    = "die"
)

type fsmContext struct {
	SessionID string
}

// lifecycle wraps the statekit interpreter with a mutex so transitions
// can be fired from the reader goroutine and callers alike.
type lifecycle struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[fsmContext]
}

func newLifecycle(sessionID string) (*lifecycle, error) {
	builder := statekit.NewMachine[fsmContext]("session-lifecycle").
		WithInitial(statekit.StateID(StateStarting)).
		WithContext(fsmContext{SessionID: sessionID})

	builder.State(StateStarting).
		On(eventReady).Target(StateReady).
		On(eventClose).Target(StateClosing).
		On(eventDie).Target(StateDead).
		Done()

	builder.State(StateReady).
		On(eventClose).Target(StateClosing).
		On(eventDie).Target(StateDead).
		Done()

	builder.State(StateClosing).
		On(eventClosed).Target(StateClosed).
		On(eventDie).Target(StateDead).
		Done()

	// Terminal states.
	builder.State(StateClosed).Done()
	builder.State(StateDead).Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build session lifecycle: %w", err)
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return &lifecycle{interp: interp}, nil
}

// fire attempts a transition and reports whether the state changed.
func (l *lifecycle) fire(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	before := l.interp.State().Value
	l.interp.Send(statekit.Event{Type: statekit.EventType(event)})
	return l.interp.State().Value != before
}

func (l *lifecycle) current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return string(l.interp.State().Value)
}
