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

// Package poller implements the two poller families spec.md §4.5 requires: a
// completion-style poller (Windows IOCP) reporting "this posted I/O finished", and a
// readiness-style poller (Linux epoll, Darwin kqueue) reporting "this FD is now
// readable/writable", the latter paired with a kernel submission ring for file I/O.
// Exactly one concrete implementation is compiled per platform via build tags; loop
// depends only on the Poller interface below.
package poller

import (
	engerr "github.com/antmuse/AntEngine-sub001/errors"
)

// Family distinguishes which OS primitive a Poller wraps (spec.md §1/§4.5).
type Family uint8

const (
	FamilyReadiness Family = iota
	FamilyCompletion
)

// EventMask tags what a readiness-family record is reporting.
type EventMask uint32

const (
	EventReadable EventMask = 1 << iota
	EventWritable
	EventHangup
	EventError
)

// Event is a single record returned from Wait. On the completion family, Transferred
// and Status carry the OS's I/O outcome directly, UserData is the key given to Bind, and
// Native identifies the posted Request; on the readiness family, Mask reports which directions are ready and UserData
// recovers the owning handle, with no per-event byte count (the loop performs the actual
// send/recv after locating the handle's queued Request, per spec.md §4.6 step 4).
type Event struct {
	UserData    uintptr
	Mask        EventMask
	Transferred uint32
	Status      engerr.Kind

	// Native is the native completion record pointer (completion family only); the loop
	// looks the owning Request up by this address in the map Submit registered it in.
	Native uintptr
}

// FileOp is a single positional file read/write submitted to the readiness family's
// kernel submission ring (spec.md §4.3 "readiness family submits via the kernel
// submission ring", §4.5).
type FileOp struct {
	FD       int
	Buf      []byte
	Offset   int64
	Write    bool
	UserData uintptr
}

// Poller is the single contract the loop depends on (spec.md §4.5); Add/Remove are
// readiness-only no-ops on the completion family, which binds handles once at
// registration time and never revisits the event mask.
type Poller interface {
	Family() Family

	// Add binds fd for future events under the given opaque user-data token (readiness
	// family only; completion family callers should not need it beyond Bind).
	Add(fd int, mask EventMask, userData uintptr) error

	// Modify changes the registered event mask for an already-added fd (readiness family).
	Modify(fd int, mask EventMask, userData uintptr) error

	// Remove unregisters fd (readiness family only; completion family removes implicitly
	// on handle close, per spec.md §4.5).
	Remove(fd int) error

	// Bind associates a native OS handle with the completion port (completion family
	// only), returning the same userData it will later recover from GetQueuedCompletionStatus.
	Bind(fd int, userData uintptr) error

	// SubmitFile enqueues a positional file op on the readiness family's submission ring;
	// the completion family returns InvalidParam since its file I/O goes through native
	// overlapped calls on the handle itself rather than a separate ring.
	SubmitFile(op FileOp) error

	// Wait blocks up to timeoutMs (0 = return immediately, <0 = "as long as needed, see
	// loop's deadline-derived cap") and fills events with up to len(events) records,
	// returning how many were filled.
	Wait(events []Event, timeoutMs int) (int, error)

	// Wake unblocks a concurrent Wait call from any thread, for PostTask (spec.md §4.6
	// "Wakeup from other threads"). The wake itself never appears as an Event.
	Wake() error

	Close() error
}

// Config parameterizes poller construction; FileSubmissionLimit is the readiness
// family's file-submission-ring cap (spec.md §4.5 "suggested cap: 2,000", kept a
// constructor parameter rather than a constant per SPEC_FULL.md's Open Question
// decision).
type Config struct {
	FileSubmissionLimit int
}

const defaultFileSubmissionLimit = 2000

func (c Config) limit() int {
	if c.FileSubmissionLimit > 0 {
		return c.FileSubmissionLimit
	}
	return defaultFileSubmissionLimit
}

// wrapOSErr normalizes a raw OS error into the canonical taxonomy (spec §7); platform
// files classify retryable/interrupted from their own errno type before calling this.
func wrapOSErr(err error, retryable, interrupted bool) engerr.Error {
	if err == nil {
		return nil
	}
	return engerr.New(engerr.FromErrno(err, retryable, interrupted), err.Error())
}
