// Package loopthread implements Controller, which runs a function (the loop
// body) on a single dedicated goroutine, one iteration at a time, on demand.
//
// The goroutine is started and stopped independently of constructing the
// Controller, and persists across any number of iterations. Each iteration is
// requested by RunIteration (or RestartIteration), and WaitIteration blocks
// until the most recently requested iteration has returned.
//
//	c := loopthread.New(func() error {
//		// one unit of work
//		return nil
//	})
//	defer c.Close()
//	if err := c.Start(); err != nil {
//		return err
//	}
//	for range 10 {
//		if err := c.RestartIteration(); err != nil {
//			return err
//		}
//	}
//	return c.WaitIteration()
//
// This is not a pool or a scheduler: there is no queue, and at most one
// iteration is pending or running, at any time. Stop is cooperative, and is
// only observed between iterations.
//
// See also [github.com/joeycumines/go-loopthread/worker], for the underlying
// goroutine wrapper.
package loopthread
