// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worker

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrInvalidTransition is the parent of all errors indicating misuse,
	// i.e. an operation that is invalid in the current state.
	ErrInvalidTransition = errors.New(`invalid state transition`)

	// ErrAlreadyRunning is returned by Start (or SetFunc) if the Worker still
	// owns a goroutine.
	ErrAlreadyRunning = fmt.Errorf(`worker: %w: already running`, ErrInvalidTransition)

	// ErrNotJoinable is returned by Join or Detach if there is no goroutine
	// to join, or another Join is already in progress.
	ErrNotJoinable = fmt.Errorf(`worker: %w: not joinable`, ErrInvalidTransition)

	// ErrDetached is returned by Join after Detach, until the next Start.
	ErrDetached = fmt.Errorf(`worker: %w: detached`, ErrInvalidTransition)

	// ErrReentrant is returned by operations that would deadlock, if called
	// from the goroutine they would wait on.
	ErrReentrant = fmt.Errorf(`worker: %w: called from the worker goroutine`, ErrInvalidTransition)

	// ErrGoexit indicates that a function called runtime.Goexit, rather than
	// returning.
	ErrGoexit = errors.New(`worker: runtime.Goexit called`)
)

// PanicError wraps a value recovered from a panicking function.
type PanicError struct {
	// Value is the value passed to panic.
	Value any

	// Stack is the stack trace of the panicking goroutine.
	Stack []byte
}

// NewPanicError should be called from the deferred function that recovered r.
func NewPanicError(r any) *PanicError {
	return &PanicError{Value: r, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf(`recovered panic: %v`, e.Value)
}

// Unwrap returns Value if it is an error, enabling errors.Is and errors.As
// through the panic.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
