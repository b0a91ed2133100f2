package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-loopthread"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

// errSynthetic is returned by the loop body, every Config.FailEvery
// iterations.
var errSynthetic = errors.New("loopbench: synthetic failure")

type (
	// Report summarizes a benchmark run.
	Report struct {
		Loops   []LoopReport
		Elapsed time.Duration
	}

	// LoopReport summarizes a single controller.
	LoopReport struct {
		Name  string
		Stats loopthread.Stats
	}
)

// Total sums the stats of all controllers.
func (x *Report) Total() (total loopthread.Stats) {
	for _, l := range x.Loops {
		total.Requested += l.Stats.Requested
		total.Completed += l.Stats.Completed
		total.Failed += l.Stats.Failed
	}
	return
}

// Throughput is completed iterations per second.
func (x *Report) Throughput() float64 {
	if x.Elapsed <= 0 {
		return 0
	}
	return float64(x.Total().Completed) / x.Elapsed.Seconds()
}

// WriteTo writes a human-readable table.
func (x *Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LOOP\tREQUESTED\tCOMPLETED\tFAILED")
	for _, l := range x.Loops {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", l.Name, l.Stats.Requested, l.Stats.Completed, l.Stats.Failed)
	}
	total := x.Total()
	_, _ = fmt.Fprintf(tw, "total\t%d\t%d\t%d\n", total.Requested, total.Completed, total.Failed)
	if err := tw.Flush(); err != nil {
		return cw.n, err
	}
	_, err := fmt.Fprintf(cw, "elapsed: %s, throughput: %.1f iterations/s\n", x.Elapsed, x.Throughput())
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (x *countingWriter) Write(p []byte) (int, error) {
	n, err := x.w.Write(p)
	x.n += int64(n)
	return n, err
}

// Run drives cfg.Controllers independent controllers concurrently, each for
// cfg.Iterations iterations, or until ctx is canceled. The report is always
// returned, and reflects the iterations that completed. If cfg.FailFast is
// set, the first failed iteration cancels the run and is returned.
func Run(ctx context.Context, cfg *Config, logger *logiface.Logger[logiface.Event]) (*Report, error) {
	var limiter *catrate.Limiter
	if cfg.ProgressRate > 0 {
		limiter = catrate.NewLimiter(map[time.Duration]int{time.Second: cfg.ProgressRate})
	}

	report := &Report{Loops: make([]LoopReport, cfg.Controllers)}
	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()

	for i := range cfg.Controllers {
		name := fmt.Sprintf("loop-%d", i)
		b := &bench{
			cfg:     cfg,
			name:    name,
			logger:  logger,
			limiter: limiter,
		}
		b.ctrl = loopthread.New(
			b.body,
			loopthread.WithLogger(logger),
			loopthread.WithName(name),
			loopthread.WithLockOSThread(cfg.LockOSThread),
		)
		g.Go(func() error {
			err := b.run(ctx)
			report.Loops[i] = LoopReport{Name: name, Stats: b.ctrl.Stats()}
			return err
		})
	}

	err := g.Wait()
	report.Elapsed = time.Since(start)

	total := report.Total()
	logger.Info().
		Int(`controllers`, cfg.Controllers).
		Uint64(`completed`, total.Completed).
		Uint64(`failed`, total.Failed).
		Dur(`elapsed`, report.Elapsed).
		Float64(`throughput`, report.Throughput()).
		Log(`benchmark finished`)

	return report, err
}

// bench drives a single controller
type bench struct {
	cfg     *Config
	ctrl    *loopthread.Controller
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	name    string
	n       int // guarded by the controller, only accessed by body
}

func (x *bench) body() error {
	x.n++
	if x.cfg.Work > 0 {
		time.Sleep(x.cfg.Work)
	}
	if x.cfg.FailEvery > 0 && x.n%x.cfg.FailEvery == 0 {
		return errSynthetic
	}
	return nil
}

func (x *bench) run(ctx context.Context) (err error) {
	if err := x.ctrl.Start(); err != nil {
		return err
	}
	defer func() {
		if e := x.ctrl.Close(); err == nil {
			err = e
		}
	}()

	for i := range x.cfg.Iterations {
		if ctx.Err() != nil {
			break
		}

		var iterErr error
		switch x.cfg.Mode {
		case ModeRun:
			if err := x.ctrl.RunIteration(); err != nil {
				return err
			}
			iterErr = x.ctrl.WaitIterationContext(ctx)
			if ctx.Err() != nil && errors.Is(iterErr, ctx.Err()) {
				// canceled, the iteration will be run to completion by Close
				iterErr = nil
			}
		default:
			// reports the failure of the previous iteration, if any
			iterErr = x.ctrl.RestartIteration()
			if errors.Is(iterErr, loopthread.ErrInvalidTransition) {
				return iterErr
			}
		}

		if iterErr != nil && x.cfg.FailFast {
			return fmt.Errorf("%s: iteration failed: %w", x.name, iterErr)
		}

		x.progress(i + 1)
	}

	if err := x.ctrl.WaitIteration(); err != nil && x.cfg.FailFast {
		return fmt.Errorf("%s: iteration failed: %w", x.name, err)
	}

	return nil
}

func (x *bench) progress(requested int) {
	if x.limiter != nil {
		if _, ok := x.limiter.Allow(x.name); !ok {
			return
		}
	}
	x.logger.Info().
		Str(`loop`, x.name).
		Int(`requested`, requested).
		Int(`total`, x.cfg.Iterations).
		Log(`progress`)
}
