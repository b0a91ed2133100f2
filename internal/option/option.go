// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package option implements the functional options shared by the worker and
// loopthread packages.
package option

import (
	"github.com/joeycumines/logiface"
)

// Options holds the resolved configuration.
type Options struct {
	// Logger is nil-safe, a nil value disables logging.
	Logger *logiface.Logger[logiface.Event]

	// Name is attached to every log record.
	Name string

	// AutoJoin controls whether Close waits for the goroutine to exit.
	// Defaults to true.
	AutoJoin bool

	// Strict causes precondition violations to panic, rather than returning
	// the error.
	Strict bool

	// LockOSThread wires the goroutine to its own OS thread, for the duration
	// of each run.
	LockOSThread bool
}

// Option configures Options.
type Option interface {
	apply(*Options)
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*Options)
}

func (x *optionImpl) apply(opts *Options) {
	x.applyFunc(opts)
}

// Func adapts fn as an Option.
func Func(fn func(opts *Options)) Option {
	return &optionImpl{fn}
}

// Resolve applies opts over the defaults. Nil options are ignored.
func Resolve(opts []Option) *Options {
	cfg := &Options{
		AutoJoin: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}

func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return Func(func(opts *Options) { opts.Logger = logger })
}

func WithName(name string) Option {
	return Func(func(opts *Options) { opts.Name = name })
}

func WithAutoJoin(enabled bool) Option {
	return Func(func(opts *Options) { opts.AutoJoin = enabled })
}

func WithStrict(enabled bool) Option {
	return Func(func(opts *Options) { opts.Strict = enabled })
}

func WithLockOSThread(enabled bool) Option {
	return Func(func(opts *Options) { opts.LockOSThread = enabled })
}
