package worker

import (
	"github.com/joeycumines/go-loopthread/internal/option"
	"github.com/joeycumines/logiface"
)

// Option configures a Worker, see New.
type Option = option.Option

// WithLogger enables structured logging of lifecycle events, at debug level.
// A nil logger (the default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return option.WithLogger(logger)
}

// WithName sets the value of the "worker" field, on log records.
func WithName(name string) Option {
	return option.WithName(name)
}

// WithAutoJoin sets whether Close joins a running goroutine (the default), or
// detaches it, leaving it to run to completion unobserved.
func WithAutoJoin(enabled bool) Option {
	return option.WithAutoJoin(enabled)
}

// WithStrict causes misuse (errors matching ErrInvalidTransition) to panic,
// with the error, in the style of a debug assertion. Disabled by default.
func WithStrict(enabled bool) Option {
	return option.WithStrict(enabled)
}

// WithLockOSThread wires each run of the goroutine to a dedicated OS thread,
// using runtime.LockOSThread. Disabled by default.
func WithLockOSThread(enabled bool) Option {
	return option.WithLockOSThread(enabled)
}
