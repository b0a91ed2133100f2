// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopthread

import (
	"fmt"

	"github.com/joeycumines/go-loopthread/worker"
)

// PanicError wraps a value recovered from a panicking loop body.
type PanicError = worker.PanicError

var (
	// ErrInvalidTransition is the parent of all errors indicating misuse,
	// i.e. an operation that is invalid in the current State.
	ErrInvalidTransition = worker.ErrInvalidTransition

	// ErrAlreadyRunning is returned by Start, if not StateIdle.
	ErrAlreadyRunning = fmt.Errorf(`loopthread: %w: already running`, ErrInvalidTransition)

	// ErrNotRunning is returned when requesting an iteration, while the
	// goroutine is not running (StateIdle or StateStopping).
	ErrNotRunning = fmt.Errorf(`loopthread: %w: not running`, ErrInvalidTransition)

	// ErrIterationInProgress is returned by RunIteration, if the previous
	// iteration is still pending or running.
	ErrIterationInProgress = fmt.Errorf(`loopthread: %w: iteration in progress`, ErrInvalidTransition)

	// ErrReentrant is returned by operations that would deadlock, if called
	// from within the loop body.
	ErrReentrant = fmt.Errorf(`loopthread: %w: called from within the loop body`, ErrInvalidTransition)

	// ErrGoexit is the result of an iteration that called runtime.Goexit.
	// The goroutine exits, and the Controller must be stopped, before it
	// may be started again.
	ErrGoexit = worker.ErrGoexit
)
