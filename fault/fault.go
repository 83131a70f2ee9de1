// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fault tags errors with a small, stable set of kinds so the control
// loop can dispatch on what went wrong without inspecting error strings.
package fault

import "errors"

// Kind is a comparable error identifier. It implements error so a bare Kind
// can be returned where no further context exists.
type Kind string

func (k Kind) Error() string { return string(k) }

// Kinds.
const (
	None     Kind = "ok"
	Checksum Kind = "checksum"
	Framing  Kind = "framing"
	Bus      Kind = "bus"
	Range    Kind = "range"
	Config   Kind = "config"
	Unknown  Kind = "error"
)

// E wraps a cause with its Kind and the operation that produced it.
type E struct {
	K   Kind
	Op  string
	Err error
}

func (e *E) Error() string {
	msg := string(e.K)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *E) Unwrap() error { return e.Err }

// Kind implements the kinder interface used by Of.
func (e *E) Kind() Kind { return e.K }

// Wrap returns err tagged with k, or nil if err is nil.
func Wrap(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{K: k, Op: op, Err: err}
}

// Of extracts the Kind from an error chain, defaulting to Unknown.
func Of(err error) Kind {
	if err == nil {
		return None
	}
	type kinder interface{ Kind() Kind }
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	var bare Kind
	if errors.As(err, &bare) {
		return bare
	}
	return Unknown
}
