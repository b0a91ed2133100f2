// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worker

import (
	"errors"
	"runtime"
	"sync"
	"unsafe"

	"github.com/joeycumines/go-loopthread/internal/goid"
	"github.com/joeycumines/go-loopthread/internal/option"
	"github.com/joeycumines/logiface"
)

type (
	// Worker runs a function on a dedicated goroutine, which may be started
	// and joined repeatedly. Instances must be initialized using New.
	Worker struct {
		// betteralign:ignore

		fn       func()
		run      *run // the owned goroutine, nil if not running
		logger   *logiface.Logger[logiface.Event]
		name     string
		mu       sync.Mutex
		detached bool
		autoJoin bool
		strict   bool
		lockOS   bool
	}

	// run models a single goroutine, from Start until it is joined
	run struct {
		started chan struct{} // closed once id is set
		done    chan struct{} // closed once fn exits
		err     error         // only valid after done
		id      uint64
		joining bool // guarded by Worker.mu
	}
)

// New initializes a Worker, that will run fn each time it is started. A panic
// will occur if fn is nil. The goroutine is not started until Start is
// called.
//
// The Close method should be called when the Worker is no longer needed.
func New(fn func(), opts ...Option) *Worker {
	if fn == nil {
		panic(`worker: nil func`)
	}
	cfg := option.Resolve(opts)
	return &Worker{
		fn:       fn,
		logger:   cfg.Logger,
		name:     cfg.Name,
		autoJoin: cfg.AutoJoin,
		strict:   cfg.Strict,
		lockOS:   cfg.LockOSThread,
	}
}

// Start spawns a new goroutine, running the current function. It returns
// ErrAlreadyRunning if the Worker already owns a goroutine, including one
// that has exited but has not been joined.
//
// Start returns once the goroutine is running, at which point ID is valid.
func (x *Worker) Start() error {
	x.mu.Lock()
	if x.run != nil {
		x.mu.Unlock()
		return x.misuse(ErrAlreadyRunning)
	}

	r := &run{
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.exec(x.fn, x.lockOS)
	<-r.started

	x.run = r
	x.detached = false
	x.mu.Unlock()

	x.logger.Debug().
		Str(`worker`, x.name).
		Uint64(`goid`, r.id).
		Log(`worker started`)

	return nil
}

// Restart joins the goroutine, if there is one, then starts a new one. It is
// intended for re-launching after the function has returned.
//
// Misuse errors from joining cause Restart to fail, without starting. Any
// other error from joining (e.g. a PanicError) is returned after the new
// goroutine has started.
func (x *Worker) Restart() error {
	var joinErr error
	if x.Running() {
		if err := x.Join(); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				return err
			}
			joinErr = err
		}
	}
	if err := x.Start(); err != nil {
		return err
	}
	return joinErr
}

// Join blocks until the function returns, releasing the goroutine, such that
// the Worker may be started again. A PanicError will be returned if the
// function panicked, or ErrGoexit if it called runtime.Goexit.
//
// Only one caller may Join a given goroutine, and Join must not be called
// from the goroutine itself.
func (x *Worker) Join() error {
	x.mu.Lock()
	r := x.run
	var err error
	switch {
	case r != nil && r.id == goid.Get():
		// checked first, a self-join never succeeds, whatever the state
		err = ErrReentrant
	case r == nil && x.detached:
		err = ErrDetached
	case r == nil || r.joining:
		err = ErrNotJoinable
	default:
		r.joining = true
	}
	x.mu.Unlock()
	if err != nil {
		return x.misuse(err)
	}

	<-r.done

	x.mu.Lock()
	x.run = nil
	x.mu.Unlock()

	x.logger.Debug().
		Str(`worker`, x.name).
		Uint64(`goid`, r.id).
		Log(`worker joined`)

	return r.err
}

// Detach disowns the goroutine, which continues to run independently. After
// this, Join returns ErrDetached, until the Worker is started again.
func (x *Worker) Detach() error {
	x.mu.Lock()
	r := x.run
	if r == nil || r.joining {
		x.mu.Unlock()
		return x.misuse(ErrNotJoinable)
	}
	x.run = nil
	x.detached = true
	x.mu.Unlock()

	x.logger.Debug().
		Str(`worker`, x.name).
		Uint64(`goid`, r.id).
		Log(`worker detached`)

	return nil
}

// Close is intended to be deferred, after New. If the Worker is running, it
// will be joined, or detached, if configured WithAutoJoin(false). It is a
// no-op otherwise.
func (x *Worker) Close() error {
	if !x.Running() {
		return nil
	}
	var err error
	if x.autoJoin {
		err = x.Join()
	} else {
		err = x.Detach()
	}
	if errors.Is(err, ErrNotJoinable) {
		// raced with another Join or Detach
		return nil
	}
	return err
}

// ID returns the identifier of the owned goroutine, or 0 if not running. It
// is intended for diagnostics, and identity comparisons.
func (x *Worker) ID() uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.run == nil {
		return 0
	}
	return x.run.id
}

// Running returns true if the Worker owns a goroutine, i.e. between a
// successful Start, and a successful Join or Detach. Note that the function
// may have already returned, see also Done.
func (x *Worker) Running() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.run != nil
}

// Done returns a channel that will be closed once the function of the owned
// goroutine returns, or nil if not running.
func (x *Worker) Done() <-chan struct{} {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.run == nil {
		return nil
	}
	return x.run.done
}

// SetFunc replaces the function, used by subsequent calls to Start. It
// returns ErrAlreadyRunning if the Worker is running. A panic will occur if
// fn is nil.
func (x *Worker) SetFunc(fn func()) error {
	if fn == nil {
		panic(`worker: nil func`)
	}
	x.mu.Lock()
	if x.run != nil {
		x.mu.Unlock()
		return x.misuse(ErrAlreadyRunning)
	}
	x.fn = fn
	x.mu.Unlock()
	return nil
}

// Swap exchanges the functions of the receiver and other. It doesn't affect
// any running goroutine, which will continue to run the function it was
// started with.
func (x *Worker) Swap(other *Worker) {
	if other == nil || other == x {
		return
	}
	a, b := x, other
	if uintptr(unsafe.Pointer(a)) > uintptr(unsafe.Pointer(b)) {
		a, b = b, a
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	x.fn, other.fn = other.fn, x.fn
}

func (x *Worker) misuse(err error) error {
	if x.strict {
		panic(err)
	}
	return err
}

func (x *run) exec(fn func(), lockOS bool) {
	defer close(x.done)

	if lockOS {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	x.id = goid.Get()
	close(x.started)

	// overwritten unless fn calls runtime.Goexit
	x.err = ErrGoexit
	defer func() {
		if r := recover(); r != nil {
			x.err = NewPanicError(r)
		}
	}()

	fn()

	x.err = nil
}
