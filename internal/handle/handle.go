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

// Package handle implements the uniform handle hierarchy (spec §3/§4.3): a polymorphic,
// refcounted resource wrapper spanning listener, stream, datagram, file, and timer
// handles, each with its own per-FD read/write pending queues on the readiness family.
//
// Design note (spec §9): rather than a raw back-pointer cycle to the owning loop (the
// source's Handle -> Loop -> Handle graph), each Handle carries an ID (its slot in the
// loop's handle table) plus a LoopRef interface — Go's garbage collector makes the
// "weak back-pointer" concern moot, but the ID still gives O(1) active/closing-list
// membership without scanning.
package handle

import (
	"sync/atomic"

	"github.com/antmuse/AntEngine-sub001/internal/ring"
	"github.com/antmuse/AntEngine-sub001/internal/timerheap"
)

// Flag is the handle state/readiness bitmask from spec §3.
type Flag uint32

const (
	FlagOpen Flag = 1 << iota
	FlagClosing
	FlagClosed
	FlagReadable
	FlagWritable
	FlagSyncRead
	FlagSyncWrite
)

// Kind tags which concrete resource a Handle wraps.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTimer
	KindListener
	KindConnector
	KindStream
	KindDatagram
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindListener:
		return "listener"
	case KindConnector:
		return "connector"
	case KindStream:
		return "stream"
	case KindDatagram:
		return "datagram"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// CloseFunc fires at most once, when both grab and fly reach zero and the closing
// drain has finished, per spec §3 invariant (c).
type CloseFunc func(h *Handle, err error)

// LoopRef is the minimal contract a Handle needs from its owning loop: fly-count
// bookkeeping, cancellation, and closing-list scheduling (I/O submission goes through
// the separate Submitter interface). internal loop.Loop
// satisfies this; it is the sole place family-specific behavior lives, per spec §4.5.
type LoopRef interface {
	IncFly()
	DecFly()
	ScheduleClose(h *Handle)
	CancelAll(h *Handle)
}

// Handle is the base resource wrapper every concrete handle type (Listener, Stream,
// Datagram, File, Timer) embeds, per spec §3.
type Handle struct {
	id    uint64
	kind  Kind
	flags Flag // mutated on the loop thread only

	grab int32 // atomic: strong-holder count, may be touched cross-thread
	fly  int32 // loop-thread only: outstanding-I/O count

	loop     LoopRef
	userData any
	onClose  CloseFunc

	// ReadQ / WriteQ are the per-FD pending request queues used by readiness-family
	// handles (spec §4.3 "Per-FD request queueing"); unused by the completion family.
	ReadQ  ring.Ring
	WriteQ ring.Ring

	heapIdx int // timerheap.Item slot, -1 when not linked
}

// Init prepares a zero-value Handle for use; concrete constructors call this before
// returning the embedding type.
func (h *Handle) Init(id uint64, kind Kind) {
	h.id = id
	h.kind = kind
	h.heapIdx = -1
}

func (h *Handle) ID() uint64 { return h.id }
func (h *Handle) Kind() Kind { return h.kind }

// AsHandle returns h itself; concrete types (Stream, Datagram, Listener, File,
// TimedHandle) promote this so code holding a Request.Owner (set to the concrete
// wrapper, not the embedded Handle) can recover the base Handle generically.
func (h *Handle) AsHandle() *Handle { return h }

func (h *Handle) Flags() Flag        { return h.flags }
func (h *Handle) HasFlag(f Flag) bool { return h.flags&f != 0 }
func (h *Handle) setFlag(f Flag)     { h.flags |= f }
func (h *Handle) clearFlag(f Flag)   { h.flags &^= f }

func (h *Handle) UserData() any          { return h.userData }
func (h *Handle) SetUserData(v any)      { h.userData = v }

// HeapIndex / SetHeapIndex satisfy timerheap.Item for handle types with a timer
// component (TimedHandle embeds Handle and is itself the Item).
func (h *Handle) HeapIndex() int     { return h.heapIdx }
func (h *Handle) SetHeapIndex(i int) { h.heapIdx = i }

// Open transitions the handle to OPEN and records its owning loop, per spec §4.3. The
// loop itself holds one grab reference between Open and Close, per spec §5.
func (h *Handle) Open(loop LoopRef, onClose CloseFunc) {
	h.loop = loop
	h.onClose = onClose
	h.setFlag(FlagOpen)
	atomic.StoreInt32(&h.grab, 1)
}

// Grab / Release manage the strong-holder count (spec §5); Grab is safe to call from
// any thread since it only affects the atomic counter, never handle state.
func (h *Handle) Grab() int32 { return atomic.AddInt32(&h.grab, 1) }

// Release drops one strong reference, returning the new count. Destruction is the
// caller's (the loop's) responsibility once both GrabCount() and FlyCount() reach zero.
func (h *Handle) Release() int32 { return atomic.AddInt32(&h.grab, -1) }

func (h *Handle) GrabCount() int32 { return atomic.LoadInt32(&h.grab) }
func (h *Handle) FlyCount() int32  { return h.fly }

// IncFly / DecFly track outstanding Requests owned by the OS or the pending ring (spec
// §5); both the loop's global fly count and this handle's are bumped together by
// whichever code path posts a Request (see Listener/Stream/Datagram/File).
func (h *Handle) IncFly() {
	h.fly++
	if h.loop != nil {
		h.loop.IncFly()
	}
}

func (h *Handle) DecFly() {
	h.fly--
	if h.loop != nil {
		h.loop.DecFly()
	}
}

// IsClosing / IsOpen / IsClosed report the handle's lifecycle state (spec §3 flags).
func (h *Handle) IsClosing() bool { return h.HasFlag(FlagClosing) }
func (h *Handle) IsOpen() bool    { return h.HasFlag(FlagOpen) && !h.HasFlag(FlagClosing) }
func (h *Handle) IsClosed() bool  { return h.HasFlag(FlagClosed) }

// RequestClose begins the close path: idempotent (spec §8 "a second close_handle
// returns CLOSING and produces no additional callbacks"), sets CLOSING (which, per
// invariant (b), is never cleared), and asks the loop to cancel outstanding I/O and
// drain this handle's queues. The loop schedules the actual CLOSE callback once both
// refcounts reach zero (spec §3/§4.6 step 7).
func (h *Handle) RequestClose() bool {
	if h.HasFlag(FlagClosing) {
		return false
	}
	h.setFlag(FlagClosing)
	if h.loop != nil {
		h.loop.CancelAll(h)
		if h.fly == 0 {
			h.loop.ScheduleClose(h)
		}
	}
	return true
}

// FireClose invokes the close callback exactly once and marks the handle CLOSED; only
// the loop's closing-drain step (spec §4.6 step 7) calls this.
func (h *Handle) FireClose(err error) {
	if h.HasFlag(FlagClosed) {
		return
	}
	h.setFlag(FlagClosed)
	if h.onClose != nil {
		h.onClose(h, err)
	}
}

// SetSyncRead / ClearSyncRead / SetSyncWrite / ClearSyncWrite track the readiness-family
// SYNC_READ/SYNC_WRITE bookkeeping from spec §4.3: set when the FD was reported ready
// but no request was queued, so the loop can run the next posted request synchronously
// instead of waiting for another readiness event.
func (h *Handle) SetSyncRead()    { h.setFlag(FlagSyncRead) }
func (h *Handle) ClearSyncRead()  { h.clearFlag(FlagSyncRead) }
func (h *Handle) SetSyncWrite()   { h.setFlag(FlagSyncWrite) }
func (h *Handle) ClearSyncWrite() { h.clearFlag(FlagSyncWrite) }

func (h *Handle) SetReadable(v bool) {
	if v {
		h.setFlag(FlagReadable)
	} else {
		h.clearFlag(FlagReadable)
	}
}

func (h *Handle) SetWritable(v bool) {
	if v {
		h.setFlag(FlagWritable)
	} else {
		h.clearFlag(FlagWritable)
	}
}

// compile-time check that Handle alone satisfies timerheap.Item (TimedHandle relies on
// this via embedding).
var _ timerheap.Item = (*Handle)(nil)
