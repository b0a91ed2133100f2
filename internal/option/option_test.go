package option

import (
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
)

func TestResolve_defaults(t *testing.T) {
	opts := Resolve(nil)
	assert.Equal(t, &Options{AutoJoin: true}, opts)
}

func TestResolve(t *testing.T) {
	logger := logiface.New[logiface.Event]()
	for _, tc := range [...]struct {
		name string
		opts []Option
		want Options
	}{
		{`nil option skipped`, []Option{nil}, Options{AutoJoin: true}},
		{`auto join disabled`, []Option{WithAutoJoin(false)}, Options{}},
		{`strict`, []Option{WithStrict(true)}, Options{AutoJoin: true, Strict: true}},
		{`lock os thread`, []Option{WithLockOSThread(true)}, Options{AutoJoin: true, LockOSThread: true}},
		{`name`, []Option{WithName(`a`)}, Options{AutoJoin: true, Name: `a`}},
		{`last wins`, []Option{WithName(`a`), WithName(`b`)}, Options{AutoJoin: true, Name: `b`}},
		{`logger`, []Option{WithLogger(logger)}, Options{AutoJoin: true, Logger: logger}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, &tc.want, Resolve(tc.opts))
		})
	}
}
