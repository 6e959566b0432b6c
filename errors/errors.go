/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package errors implements the engine's closed error taxonomy (spec §6/§7): a small,
// fixed set of Kind values every fallible operation returns instead of raising.
package errors

import (
	"fmt"
)

// Kind is the canonical error taxonomy surfaced to user code.
type Kind int32

const (
	OK Kind = iota
	NoOpen
	NoReadable
	NoWriteable
	Closing
	InvalidHandle
	InvalidParam
	Retry
	Timeout
	Intr
	Posted
	TooManyFD
	ErrGeneric
)

var names = map[Kind]string{
	OK:            "OK",
	NoOpen:        "NO_OPEN",
	NoReadable:    "NO_READABLE",
	NoWriteable:   "NO_WRITEABLE",
	Closing:       "CLOSING",
	InvalidHandle: "INVALID_HANDLE",
	InvalidParam:  "INVALID_PARAM",
	Retry:         "RETRY",
	Timeout:       "TIMEOUT",
	Intr:          "INTR",
	Posted:        "POSTED",
	TooManyFD:     "TOO_MANY_FD",
	ErrGeneric:    "ERROR",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "ERROR"
}

// Error is the error type carried on submission failures, Request.Err, and close
// callbacks. It chains parents (Add) the way the teacher's errors.Error does, but over
// the fixed Kind space rather than an open HTTP-status-like code.
type Error interface {
	error
	Kind() Kind
	Is(Kind) bool
	Add(parents ...error)
	Parents() []error
}

type engErr struct {
	k Kind
	m string
	p []error
}

// New builds an Error of the given kind. msg may be empty, in which case Kind.String()
// is used as the message.
func New(k Kind, msg string, parents ...error) Error {
	e := &engErr{k: k, m: msg}
	e.Add(parents...)
	return e
}

func (e *engErr) Error() string {
	if e.m != "" {
		return fmt.Sprintf("%s: %s", e.k.String(), e.m)
	}
	return e.k.String()
}

func (e *engErr) Kind() Kind { return e.k }

func (e *engErr) Is(k Kind) bool { return e.k == k }

func (e *engErr) Add(parents ...error) {
	for _, p := range parents {
		if p != nil {
			e.p = append(e.p, p)
		}
	}
}

func (e *engErr) Parents() []error { return e.p }

// FromErrno normalizes an OS error observed at a poller/syscall boundary into the
// canonical taxonomy, per spec §7: INTR and RETRY never escape the loop, POSTED maps to
// success, everything unrecognized becomes ErrGeneric.
func FromErrno(err error, retryable, interrupted bool) Kind {
	if err == nil {
		return OK
	}
	switch {
	case interrupted:
		return Intr
	case retryable:
		return Retry
	default:
		return ErrGeneric
	}
}

// IsKind reports whether err carries the given Kind, unwrapping engine errors only
// (it does not walk the standard errors.Unwrap chain, since the taxonomy is closed).
func IsKind(err error, k Kind) bool {
	if err == nil {
		return k == OK
	}
	if e, ok := err.(Error); ok {
		return e.Is(k)
	}
	return false
}
