// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package goid resolves the identifier of the calling goroutine.
package goid

import (
	"runtime"
)

// Get returns the current goroutine's ID, or 0 if it could not be parsed.
//
// The value is parsed from the header of runtime.Stack, which has the form
// "goroutine 123 [running]:". It is intended for identity comparisons and
// diagnostics only.
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
