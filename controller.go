// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopthread

import (
	"context"
	"errors"
	"sync"
	"time"
	"unsafe"

	"github.com/joeycumines/go-loopthread/internal/goid"
	"github.com/joeycumines/go-loopthread/internal/option"
	"github.com/joeycumines/go-loopthread/worker"
	"github.com/joeycumines/logiface"
)

type (
	// Controller runs a loop body on a dedicated goroutine, one iteration at
	// a time, on demand. Instances must be initialized using New.
	Controller struct {
		// betteralign:ignore

		worker *worker.Worker
		logger *logiface.Logger[logiface.Event]
		name   string

		// lifecycle serializes Start, Stop, and Close
		lifecycle sync.Mutex

		// mu guards all state shared with the driver goroutine, cond is
		// broadcast on every change to it
		mu   sync.Mutex
		cond *sync.Cond

		body      func() error
		latch     *iteration // most recently requested iteration
		stats     Stats
		state     State
		requested bool // set by request, cleared as the driver begins the body
		stop      bool
		ready     bool   // the driver has reached its wait point
		exited    bool   // the driver exited via runtime.Goexit
		detached  bool   // the driver must reset the state on exit
		driver    uint64 // goroutine id of the driver, 0 once it exits

		autoJoin bool
		strict   bool
	}

	// iteration is a one-shot latch, created once per request, closed once
	// by the driver
	iteration struct {
		done chan struct{}
		err  error // only valid after done
		seq  uint64
	}
)

// New initializes a Controller, that will call body once per iteration. A
// panic will occur if body is nil. The goroutine is not started until Start
// is called.
//
// The Close method should be called when the Controller is no longer needed.
func New(body func() error, opts ...Option) *Controller {
	if body == nil {
		panic(`loopthread: nil body`)
	}
	cfg := option.Resolve(opts)
	x := &Controller{
		body:     body,
		logger:   cfg.Logger,
		name:     cfg.Name,
		autoJoin: cfg.AutoJoin,
		strict:   cfg.Strict,
	}
	x.cond = sync.NewCond(&x.mu)
	x.worker = worker.New(x.drive, opts...)
	return x
}

// Start spawns the goroutine, returning once it is ready to run iterations.
// No iteration is run until requested. It returns ErrAlreadyRunning unless
// StateIdle.
func (x *Controller) Start() error {
	if x.onDriver() {
		return x.misuse(ErrReentrant)
	}

	x.lifecycle.Lock()
	defer x.lifecycle.Unlock()

	x.mu.Lock()
	if x.state != StateIdle {
		x.mu.Unlock()
		return x.misuse(ErrAlreadyRunning)
	}
	x.stop = false
	x.ready = false
	x.exited = false
	x.requested = false
	x.mu.Unlock()

	if err := x.worker.Start(); err != nil {
		return err
	}

	// rendezvous with the driver, so it is guaranteed to observe any request
	// made after this point
	x.mu.Lock()
	for !x.ready {
		x.cond.Wait()
	}
	x.state = StateActive
	x.mu.Unlock()

	x.logger.Info().
		Str(`loop`, x.name).
		Uint64(`goid`, x.ID()).
		Log(`loop started`)

	return nil
}

// Restart stops the goroutine, if it is running, then starts a new one.
func (x *Controller) Restart() error {
	if err := x.Stop(); err != nil {
		return err
	}
	return x.Start()
}

// Stop requests the goroutine exit, and waits for it to do so. Any pending
// iteration will be run, and a running iteration will not be interrupted.
// Stop is valid in any state, and is a no-op if StateIdle.
func (x *Controller) Stop() error {
	if x.onDriver() {
		return x.misuse(ErrReentrant)
	}
	x.lifecycle.Lock()
	defer x.lifecycle.Unlock()
	return x.shutdown(true)
}

// Close is intended to be deferred, after New. By default, it is equivalent
// to Stop. If configured WithAutoJoin(false), the stop will be requested,
// but Close will not wait for the goroutine to exit. The Controller will
// remain in StateStopping, until it does. If the goroutine has already
// exited, e.g. via runtime.Goexit, Close joins it, and returns to StateIdle.
func (x *Controller) Close() error {
	if x.autoJoin {
		return x.Stop()
	}
	if x.onDriver() {
		return x.misuse(ErrReentrant)
	}
	x.lifecycle.Lock()
	defer x.lifecycle.Unlock()
	return x.shutdown(false)
}

// RunIteration requests a single iteration of the loop body. It returns
// ErrNotRunning unless started, or ErrIterationInProgress if the previous
// iteration is still pending or running. See also RestartIteration.
func (x *Controller) RunIteration() error {
	x.mu.Lock()
	err := x.request()
	x.mu.Unlock()
	if err != nil {
		return x.misuse(err)
	}
	return nil
}

// RestartIteration waits for any pending or running iteration, then requests
// exactly one more. Concurrent requests are never coalesced, i.e. N calls
// result in N iterations.
//
// If the iteration it waited on failed, that error is returned, after the
// next iteration has been requested. This is the case even if the same error
// was already returned by WaitIteration, i.e. a failure is reported to every
// caller that waits on it. Errors matching ErrInvalidTransition indicate that
// no iteration was requested.
func (x *Controller) RestartIteration() error {
	if x.onDriver() {
		return x.misuse(ErrReentrant)
	}

	x.mu.Lock()
	for x.state == StatePending || x.state == StateRunning {
		x.cond.Wait()
	}
	prev := x.latch
	err := x.request()
	x.mu.Unlock()

	if err != nil {
		return x.misuse(err)
	}
	if prev != nil {
		return prev.err
	}
	return nil
}

// WaitIteration blocks until the most recently requested iteration has
// returned, returning its error, which may be a PanicError. It returns
// immediately if no iteration was requested, or the iteration has already
// returned.
func (x *Controller) WaitIteration() error {
	return x.WaitIterationContext(context.Background())
}

// WaitIterationContext is WaitIteration, but returns ctx.Err() if ctx is
// canceled before the iteration returns. The iteration is unaffected.
func (x *Controller) WaitIterationContext(ctx context.Context) error {
	x.mu.Lock()
	latch := x.latch
	x.mu.Unlock()

	if latch == nil {
		return nil
	}

	select {
	case <-latch.done:
		return latch.err
	default:
	}

	if x.onDriver() {
		return x.misuse(ErrReentrant)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-latch.done:
		return latch.err
	}
}

// IterationRunning returns true if an iteration is pending or running.
func (x *Controller) IterationRunning() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state == StatePending || x.state == StateRunning
}

// State returns the current State.
func (x *Controller) State() State {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

// Stats returns a snapshot of the iteration counters.
func (x *Controller) Stats() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.stats
}

// ID returns the identifier of the loop goroutine, or 0 if not running. It
// remains valid after a detaching Close, until the goroutine exits. It is
// intended for diagnostics.
func (x *Controller) ID() uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.driver
}

// SetBody replaces the loop body, from the next iteration. A panic will
// occur if body is nil.
func (x *Controller) SetBody(body func() error) {
	if body == nil {
		panic(`loopthread: nil body`)
	}
	x.mu.Lock()
	x.body = body
	x.mu.Unlock()
}

// Swap exchanges the loop bodies of the receiver and other, each of which
// will be used from their next iteration. Running iterations are unaffected.
func (x *Controller) Swap(other *Controller) {
	if other == nil || other == x {
		return
	}
	// fixed lock order, to avoid deadlocks
	a, b := x, other
	if uintptr(unsafe.Pointer(a)) > uintptr(unsafe.Pointer(b)) {
		a, b = b, a
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	x.body, other.body = other.body, x.body
}

// request must be called with mu held
func (x *Controller) request() error {
	switch x.state {
	case StateActive:
	case StatePending, StateRunning:
		return ErrIterationInProgress
	default:
		return ErrNotRunning
	}
	x.stats.Requested++
	x.latch = &iteration{
		done: make(chan struct{}),
		seq:  x.stats.Requested,
	}
	x.requested = true
	x.state = StatePending
	x.cond.Broadcast()
	return nil
}

// shutdown must be called with lifecycle held
func (x *Controller) shutdown(join bool) error {
	x.mu.Lock()
	if x.state == StateIdle || (x.stop && x.detached) {
		x.mu.Unlock()
		return nil
	}
	if !join && x.exited {
		// the goroutine is already gone, nothing would reset the state
		join = true
	}
	x.stop = true
	if x.state == StateActive {
		x.state = StateStopping
	}
	if !join {
		x.detached = true
	}
	x.cond.Broadcast()
	x.mu.Unlock()

	if !join {
		err := x.worker.Detach()
		x.logger.Info().
			Str(`loop`, x.name).
			Log(`loop stop requested`)
		return err
	}

	err := x.worker.Join()

	x.mu.Lock()
	if x.exited && errors.Is(err, ErrGoexit) {
		// already reported, as the result of the iteration
		err = nil
	}
	x.state = StateIdle
	x.ready = false
	x.mu.Unlock()

	x.logger.Info().
		Str(`loop`, x.name).
		Log(`loop stopped`)

	return err
}

// drive is the worker function, it runs iterations until stopped
func (x *Controller) drive() {
	var current *iteration // set while the body is running

	defer func() {
		if current == nil {
			return
		}
		// the body called runtime.Goexit
		x.mu.Lock()
		x.exited = true
		x.finish(current, ErrGoexit)
		x.state = StateStopping
		x.exit()
		x.mu.Unlock()
	}()

	x.mu.Lock()
	x.driver = goid.Get()
	x.ready = true
	x.cond.Broadcast()

	for {
		for !x.requested && !x.stop {
			x.cond.Wait()
		}
		// pending iterations are run, even if stopping
		if !x.requested {
			break
		}
		x.requested = false
		x.state = StateRunning
		current = x.latch
		body := x.body
		x.mu.Unlock()

		x.logger.Debug().
			Str(`loop`, x.name).
			Uint64(`iteration`, current.seq).
			Log(`iteration started`)

		start := time.Now()
		err := invoke(body)
		elapsed := time.Since(start)

		if err != nil {
			x.logger.Err().
				Str(`loop`, x.name).
				Uint64(`iteration`, current.seq).
				Dur(`duration`, elapsed).
				Err(err).
				Log(`iteration failed`)
		} else {
			x.logger.Debug().
				Str(`loop`, x.name).
				Uint64(`iteration`, current.seq).
				Dur(`duration`, elapsed).
				Log(`iteration finished`)
		}

		x.mu.Lock()
		x.finish(current, err)
		current = nil
	}

	x.exit()
	x.mu.Unlock()
}

// finish publishes the result of an iteration, it must be called with mu held
func (x *Controller) finish(latch *iteration, err error) {
	latch.err = err
	x.stats.Completed++
	if err != nil {
		x.stats.Failed++
	}
	close(latch.done)
	if x.stop {
		x.state = StateStopping
	} else {
		x.state = StateActive
	}
	x.cond.Broadcast()
}

// exit must be called with mu held, as the driver exits
func (x *Controller) exit() {
	x.ready = false
	x.driver = 0
	if x.detached {
		// nothing will join, reset for the next Start
		x.detached = false
		x.state = StateIdle
	}
	x.cond.Broadcast()
}

// onDriver returns true if called from the loop goroutine
func (x *Controller) onDriver() bool {
	id := x.ID()
	return id != 0 && id == goid.Get()
}

func (x *Controller) misuse(err error) error {
	if x.strict {
		panic(err)
	}
	return err
}

func invoke(body func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = worker.NewPanicError(r)
		}
	}()
	return body()
}
