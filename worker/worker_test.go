package worker

import (
	"bytes"
	"errors"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-loopthread/internal/goid"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterHelper struct {
	count *int
}

func (x *counterHelper) inc() { *x.count++ }

func TestWorker_startJoin(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)

	// two workers bound to methods, sharing a counter
	var count int
	a := &counterHelper{&count}
	b := &counterHelper{&count}
	workerA := New(a.inc)
	workerB := New(b.inc)

	require.Equal(t, 0, count, `should not run before start`)

	require.NoError(t, workerA.Start())
	require.NoError(t, workerA.Join())
	require.Equal(t, 1, count)

	require.NoError(t, workerB.Start())
	require.NoError(t, workerB.Join())
	require.Equal(t, 2, count)

	require.NoError(t, workerA.Start())
	require.NoError(t, workerA.Join())
	require.NoError(t, workerB.Start())
	require.NoError(t, workerB.Join())
	require.Equal(t, 4, count)

	var called bool
	w := New(func() { called = true })
	require.False(t, called)
	require.NoError(t, w.Start())
	require.NoError(t, w.Join())
	require.True(t, called)
}

func TestNew_nilFunc(t *testing.T) {
	require.PanicsWithValue(t, `worker: nil func`, func() { New(nil) })
}

func TestWorker_misuse(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)

	release := make(chan struct{})
	w := New(func() { <-release })

	require.ErrorIs(t, w.Join(), ErrNotJoinable)
	require.ErrorIs(t, w.Detach(), ErrNotJoinable)

	require.NoError(t, w.Start())
	err := w.Start()
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, w.SetFunc(func() {}), ErrAlreadyRunning)

	close(release)
	require.NoError(t, w.Join())
	require.ErrorIs(t, w.Join(), ErrNotJoinable)
}

func TestWorker_strict(t *testing.T) {
	w := New(func() {}, WithStrict(true))
	require.PanicsWithError(t, ErrNotJoinable.Error(), func() { _ = w.Join() })
	require.NoError(t, w.Start())
	require.PanicsWithError(t, ErrAlreadyRunning.Error(), func() { _ = w.Start() })
	require.NoError(t, w.Join())
}

func TestWorker_startAfterExitRequiresJoin(t *testing.T) {
	w := New(func() {})
	require.NoError(t, w.Start())
	<-w.Done()
	require.True(t, w.Running(), `should remain running until joined`)
	require.ErrorIs(t, w.Start(), ErrAlreadyRunning)
	require.NoError(t, w.Join())
	require.False(t, w.Running())
	require.Nil(t, w.Done())
}

func TestWorker_Restart(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)

	var count atomic.Int32
	w := New(func() { count.Add(1) })

	// not running, equivalent to start
	require.NoError(t, w.Restart())
	for range 9 {
		require.NoError(t, w.Restart())
	}
	require.NoError(t, w.Join())
	require.Equal(t, int32(10), count.Load())
}

func TestWorker_Restart_panicReportedAfterStart(t *testing.T) {
	var calls atomic.Int32
	w := New(func() {
		if calls.Add(1) == 1 {
			panic(`first`)
		}
	})
	require.NoError(t, w.Start())

	err := w.Restart()
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	require.Equal(t, `first`, panicErr.Value)
	require.True(t, w.Running())

	require.NoError(t, w.Join())
	require.Equal(t, int32(2), calls.Load())
}

func TestWorker_panic(t *testing.T) {
	for _, tc := range [...]struct {
		name   string
		value  any
		target error
	}{
		{`string`, `some panic`, nil},
		{`error`, io.ErrUnexpectedEOF, io.ErrUnexpectedEOF},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := New(func() { panic(tc.value) })
			require.NoError(t, w.Start())
			err := w.Join()
			var panicErr *PanicError
			require.ErrorAs(t, err, &panicErr)
			assert.Equal(t, tc.value, panicErr.Value)
			assert.NotEmpty(t, panicErr.Stack)
			assert.Contains(t, err.Error(), `recovered panic`)
			assert.NotContains(t, err.Error(), `worker:`)
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			} else {
				assert.Nil(t, panicErr.Unwrap())
			}
		})
	}
}

func TestWorker_goexit(t *testing.T) {
	w := New(runtime.Goexit)
	require.NoError(t, w.Start())
	require.ErrorIs(t, w.Join(), ErrGoexit)
	// may be restarted
	require.NoError(t, w.Start())
	require.ErrorIs(t, w.Join(), ErrGoexit)
}

func TestWorker_ID(t *testing.T) {
	var (
		w     *Worker
		inner uint64
		seen  uint64
	)
	w = New(func() {
		inner = goid.Get()
		seen = w.ID()
	})

	require.Zero(t, w.ID())
	require.NoError(t, w.Start())
	id := w.ID()
	require.NotZero(t, id)
	require.NotEqual(t, goid.Get(), id)
	require.NoError(t, w.Join())
	require.Zero(t, w.ID())

	require.Equal(t, id, inner)
	require.Equal(t, id, seen)

	require.NoError(t, w.Start())
	require.NotEqual(t, id, w.ID(), `expected a new goroutine`)
	require.NoError(t, w.Join())
}

func TestWorker_Join_reentrant(t *testing.T) {
	var (
		w   *Worker
		err error
	)
	w = New(func() { err = w.Join() })
	require.NoError(t, w.Start())
	require.NoError(t, w.Join())
	require.ErrorIs(t, err, ErrReentrant)
}

func TestWorker_Join_reentrantWhileJoining(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)

	var (
		w       *Worker
		err     error
		joining = make(chan struct{})
	)
	w = New(func() {
		<-joining
		// another goroutine is blocked in Join, a self-join is still reentrant
		err = w.Join()
	})
	require.NoError(t, w.Start())

	done := make(chan error, 1)
	go func() { done <- w.Join() }()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.run != nil && w.run.joining
	}, time.Second*3, time.Millisecond)
	close(joining)

	require.NoError(t, <-done)
	require.ErrorIs(t, err, ErrReentrant)
	require.NotErrorIs(t, err, ErrNotJoinable)
}

func TestWorker_Join_concurrent(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)

	release := make(chan struct{})
	w := New(func() { <-release })
	require.NoError(t, w.Start())

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			errs <- w.Join()
		}()
	}

	// all but one should fail fast
	for range n - 1 {
		select {
		case err := <-errs:
			require.ErrorIs(t, err, ErrNotJoinable)
		case <-time.After(time.Second * 3):
			t.Fatal(`expected concurrent joins to fail`)
		}
	}

	close(release)
	wg.Wait()
	require.NoError(t, <-errs)
}

func TestWorker_Detach(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)

	release := make(chan struct{})
	var count atomic.Int32
	w := New(func() {
		<-release
		count.Add(1)
	})

	require.NoError(t, w.Start())
	done := w.Done()
	require.NoError(t, w.Detach())
	require.False(t, w.Running())
	require.Zero(t, w.ID())
	require.ErrorIs(t, w.Join(), ErrDetached)

	// the disowned goroutine is unaffected by starting a new one
	require.NoError(t, w.Start())
	require.ErrorIs(t, w.Start(), ErrAlreadyRunning)

	close(release)
	<-done
	require.NoError(t, w.Join())
	require.Equal(t, int32(2), count.Load())
}

func TestWorker_Close(t *testing.T) {
	t.Run(`auto join`, func(t *testing.T) {
		defer checkNumGoroutines(time.Second * 3)(t)
		release := make(chan struct{})
		w := New(func() { <-release })
		require.NoError(t, w.Close(), `should be a no-op before start`)
		require.NoError(t, w.Start())
		closed := make(chan error, 1)
		go func() { closed <- w.Close() }()
		select {
		case <-closed:
			t.Fatal(`expected close to block`)
		case <-time.After(time.Millisecond * 30):
		}
		close(release)
		require.NoError(t, <-closed)
		require.False(t, w.Running())
	})

	t.Run(`detach`, func(t *testing.T) {
		defer checkNumGoroutines(time.Second * 3)(t)
		release := make(chan struct{})
		w := New(func() { <-release }, WithAutoJoin(false))
		require.NoError(t, w.Start())
		done := w.Done()
		require.NoError(t, w.Close())
		require.False(t, w.Running())
		require.ErrorIs(t, w.Join(), ErrDetached)
		close(release)
		<-done
	})

	t.Run(`panic`, func(t *testing.T) {
		w := New(func() { panic(`x`) })
		require.NoError(t, w.Start())
		var panicErr *PanicError
		require.ErrorAs(t, w.Close(), &panicErr)
	})
}

func TestWorker_SetFunc(t *testing.T) {
	var got []string
	w := New(func() { got = append(got, `a`) })
	require.NoError(t, w.Start())
	require.NoError(t, w.Join())
	require.NoError(t, w.SetFunc(func() { got = append(got, `b`) }))
	require.NoError(t, w.Start())
	require.NoError(t, w.Join())
	require.Equal(t, []string{`a`, `b`}, got)
	require.PanicsWithValue(t, `worker: nil func`, func() { _ = w.SetFunc(nil) })
}

func TestWorker_Swap(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)

	var a, b atomic.Int32
	release := make(chan struct{})
	workerA := New(func() {
		<-release
		a.Add(1)
	})
	workerB := New(func() { b.Add(1) })

	// swapping while A is mid-execution must not affect it
	require.NoError(t, workerA.Start())
	workerA.Swap(workerB)
	workerB.Swap(workerB)
	workerB.Swap(nil)
	close(release)
	require.NoError(t, workerA.Join())
	require.Equal(t, int32(1), a.Load())
	require.Equal(t, int32(0), b.Load())

	require.NoError(t, workerA.Start())
	require.NoError(t, workerA.Join())
	require.NoError(t, workerB.Start())
	require.NoError(t, workerB.Join())
	require.Equal(t, int32(2), a.Load())
	require.Equal(t, int32(1), b.Load())
}

func TestWorker_Swap_concurrent(t *testing.T) {
	// opposing lock order must not deadlock
	a := New(func() {})
	b := New(func() {})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 1000 {
			a.Swap(b)
		}
	}()
	go func() {
		defer wg.Done()
		for range 1000 {
			b.Swap(a)
		}
	}()
	wg.Wait()
}

func TestWorker_LockOSThread(t *testing.T) {
	defer checkNumGoroutines(time.Second * 3)(t)
	var called atomic.Bool
	w := New(func() { called.Store(true) }, WithLockOSThread(true))
	for range 3 {
		require.NoError(t, w.Start())
		require.NoError(t, w.Join())
	}
	require.True(t, called.Load())
}

func TestWorker_logging(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(&buf),
			stumpy.WithTimeField(``),
		),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()

	w := New(func() {}, WithLogger(logger), WithName(`w1`))
	require.NoError(t, w.Start())
	require.NoError(t, w.Join())
	require.NoError(t, w.Start())
	require.NoError(t, w.Detach())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4, buf.String())
	for i, msg := range [...]string{`worker started`, `worker joined`, `worker started`, `worker detached`} {
		assert.Contains(t, lines[i], `"msg":"`+msg+`"`)
		assert.Contains(t, lines[i], `"worker":"w1"`)
		assert.Contains(t, lines[i], `"goid":`)
	}
}

func TestPanicError_errorsAs(t *testing.T) {
	err := error(NewPanicError(io.EOF))
	require.True(t, errors.Is(err, io.EOF))
	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
}
