package loopthread

import (
	"fmt"
)

// State models the lifecycle of a Controller.
type State int32

const (
	// StateIdle indicates the goroutine is not running, e.g. prior to Start.
	StateIdle State = iota
	// StateActive indicates the goroutine is waiting for an iteration.
	StateActive
	// StatePending indicates an iteration has been requested, but not begun.
	StatePending
	// StateRunning indicates the loop body is executing.
	StateRunning
	// StateStopping indicates the goroutine has been asked to exit, or has
	// exited abnormally, and has yet to be joined.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return `idle`
	case StateActive:
		return `active`
	case StatePending:
		return `pending`
	case StateRunning:
		return `running`
	case StateStopping:
		return `stopping`
	default:
		return fmt.Sprintf(`unknown(%d)`, s)
	}
}

// Stats models iteration counters, see Controller.Stats.
type Stats struct {
	// Requested is the number of iterations requested.
	Requested uint64
	// Completed is the number of iterations that have returned, including
	// those that failed.
	Completed uint64
	// Failed is the number of iterations that returned an error, panicked,
	// or called runtime.Goexit.
	Failed uint64
}
