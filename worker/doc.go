// Package worker implements Worker, a restartable wrapper around a single
// dedicated goroutine, that runs a stored function.
//
// Unlike a bare go statement, starting and stopping the goroutine is
// decoupled from constructing the Worker: the function may be replaced while
// idle, and the goroutine may be started, joined, and started again, any
// number of times. At most one goroutine is owned by a Worker, at any time.
//
// Misuse, e.g. starting a Worker that is already running, or joining one that
// isn't, is reported via errors matching ErrInvalidTransition, or by panicking
// with the same error, if configured WithStrict.
//
// See also [github.com/joeycumines/go-loopthread], which builds on Worker to
// run a function repeatedly, on demand, on the same goroutine.
package worker
