package worker

import (
	"runtime"
	"testing"
	"time"
)

// checkNumGoroutines returns a func that fails the test if the number of
// goroutines hasn't returned to the starting value, within the timeout.
// Usage: defer checkNumGoroutines(time.Second)(t)
func checkNumGoroutines(timeout time.Duration) func(t *testing.T) {
	before := runtime.NumGoroutine()
	return func(t *testing.T) {
		t.Helper()
		deadline := time.Now().Add(timeout)
		for {
			after := runtime.NumGoroutine()
			if after <= before {
				return
			}
			if time.Now().After(deadline) {
				t.Errorf(`goroutine leak: before=%d after=%d`, before, after)
				return
			}
			time.Sleep(time.Millisecond * 10)
		}
	}
}
