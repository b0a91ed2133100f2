package loopthread

import (
	"github.com/joeycumines/go-loopthread/internal/option"
	"github.com/joeycumines/logiface"
)

// Option configures a Controller, see New. Options are also applied to the
// underlying worker.Worker.
type Option = option.Option

// WithLogger enables structured logging. Lifecycle events are logged at info
// level, iterations at debug level, and failed iterations at error level. A
// nil logger (the default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return option.WithLogger(logger)
}

// WithName sets the value of the "loop" field, on log records.
func WithName(name string) Option {
	return option.WithName(name)
}

// WithAutoJoin sets whether Close performs Stop (the default), or only
// requests the stop, without waiting for the goroutine to exit.
func WithAutoJoin(enabled bool) Option {
	return option.WithAutoJoin(enabled)
}

// WithStrict causes misuse (errors matching ErrInvalidTransition) to panic,
// with the error, in the style of a debug assertion. Disabled by default.
func WithStrict(enabled bool) Option {
	return option.WithStrict(enabled)
}

// WithLockOSThread wires the loop goroutine to a dedicated OS thread, for as
// long as it runs. Disabled by default.
func WithLockOSThread(enabled bool) Option {
	return option.WithLockOSThread(enabled)
}
