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

// Package loop implements the reactor loop (spec §4.6/C6): the single-threaded event
// loop that owns the pending ring, the timer heap, and the handle table, and is the sole
// implementation of internal/handle's LoopRef and Submitter interfaces — the one place
// family-specific (completion vs. readiness) behavior lives, per spec §4.5.
package loop

import (
	"sync"
	"time"

	"github.com/antmuse/AntEngine-sub001/internal/corelog"
	"github.com/antmuse/AntEngine-sub001/internal/handle"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/poller"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
	"github.com/antmuse/AntEngine-sub001/internal/ring"
	"github.com/antmuse/AntEngine-sub001/internal/timerheap"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
)

const maxEventsPerWait = 128

// fileTokenTag marks a submitFileOp token so its numeric value can never collide with a
// handle ID (both are small sequential counters starting at 1; dispatchEvents tells them
// apart by checking fileReqs before treating ev.UserData as a handle ID).
const fileTokenTag uintptr = 1 << 63

// Task is a unit of work submitted from any thread via PostTask, run on the loop thread
// in enqueue order (spec §4.6 "Wakeup from other threads").
type Task func()

// owner is satisfied by every concrete handle type's outer wrapper (Stream, Datagram,
// Listener, File, TimedHandle) through embedding handle.Handle; Request.Owner is always
// set to the concrete wrapper (so user callbacks can recover their own type), so the loop
// uses this to get back to the shared base Handle.
type owner interface {
	AsHandle() *handle.Handle
}

// ioPerformer is implemented by the readiness family's socket-backed handle wrappers
// (Stream, Datagram, Listener); dispatchOne calls PerformIO once a queued request's
// readiness wait is satisfied, immediately before firing its callback — this is where
// the actual recv/send/accept syscall happens (spec §4.6 step 4: "the loop performs the
// actual send/recv after locating the handle's queued Request"). File handles do not
// implement this: their I/O goes through the poller's kernel submission ring instead
// (see fileOwner below), since positional file I/O has no readiness notion to wait on.
type ioPerformer interface {
	PerformIO(req *reqpool.Request) error
}

// fileOwner is implemented only by *handle.File; Submit and dispatchEvents use it to
// route file requests to the poller's submission ring (spec §4.3/§4.5) instead of the
// per-handle ReadQ/WriteQ a socket handle's readiness wait uses.
type fileOwner interface {
	FD() int
}

// ioIssuer is implemented by the completion family's concrete handle wrappers
// (Stream, Listener, Datagram, File, all on the Windows/IOCP build) to issue the real
// overlapped syscall — WSARecv/WSASend/AcceptEx/ConnectEx/ReadFile/WriteFile — for req
// and return the address of the OVERLAPPED structure the syscall was given. That
// address is exactly what poller_iocp_windows.go's Wait reads back out of
// GetQueuedCompletionStatus as Event.Native, so it is also the key Submit registers the
// Request under. The handle keeps the OVERLAPPED (and any buffer descriptors it
// references) alive by stashing it in req.Native — never by returning it here.
type ioIssuer interface {
	IssueIO(req *reqpool.Request) (native uintptr, err error)
}

// Loop is the reactor described by spec §4.6. It is not safe for concurrent use except
// through PostTask, which may be called from any thread; every other method must run on
// the loop's own goroutine.
type Loop struct {
	poller poller.Poller
	log    corelog.Logger

	pending ring.Ring
	timers  *timerheap.Heap

	handles  map[uint64]*handle.Handle
	closing  []*handle.Handle
	nextID   uint64
	flyTotal int

	taskMu sync.Mutex
	tasks  []Task

	// nativeReqs recovers the Request a completion-family event refers to: Submit asks
	// the handle to issue the real overlapped syscall (ioIssuer below) and registers the
	// resulting OVERLAPPED address here; dispatchCompletion looks up ev.Native (itself
	// the OVERLAPPED address GetQueuedCompletionStatus handed back) and removes it, per
	// spec §4.5 "the loop recovers the owning Request by fixed offset".
	nativeMu   sync.Mutex
	nativeReqs map[uintptr]*reqpool.Request

	// fileReqs is nativeReqs's counterpart for the readiness family's file submission
	// ring (SPEC_FULL.md supplemented feature, spec §4.3/§4.5): the ring completes with
	// a byte count and status already known, exactly like a completion-family event, so
	// it is recovered the same way rather than through a handle's ReadQ/WriteQ.
	fileMu        sync.Mutex
	fileReqs      map[uintptr]*reqpool.Request
	nextFileToken uintptr

	requests *reqpool.Pool
}

// New constructs a Loop bound to p. The caller is responsible for choosing the right
// poller.New for the host platform (spec §1's "best available completion primitive").
func New(p poller.Poller, log corelog.Logger) (*Loop, error) {
	if log == nil {
		log = corelog.Nop()
	}
	l := &Loop{
		poller:     p,
		log:        log,
		timers:     timerheap.New(),
		handles:    make(map[uint64]*handle.Handle),
		nativeReqs: make(map[uintptr]*reqpool.Request),
		fileReqs:   make(map[uintptr]*reqpool.Request),
		requests:   reqpool.NewPool(),
	}
	return l, nil
}

// ---- handle.LoopRef ----

func (l *Loop) IncFly() { l.flyTotal++ }

func (l *Loop) DecFly() {
	l.flyTotal--
	if l.flyTotal < 0 {
		l.flyTotal = 0
	}
}

// ScheduleClose adds h to the closing list; step 7 of the iteration drains it (spec
// §4.6).
func (l *Loop) ScheduleClose(h *handle.Handle) {
	l.closing = append(l.closing, h)
}

// CancelAll drains h's pending read/write queues into the loop's global pending ring,
// tagging each drained request Closing so its callback still fires exactly once (spec §8
// "close cancels outstanding requests with CLOSING rather than dropping them silently").
// Any OS-side wait these requests were behind unblocks when the caller closes the fd
// itself, which on the readiness family is sufficient; there is no separate cancel-I/O
// call to make here.
func (l *Loop) CancelAll(h *handle.Handle) {
	for req := h.ReadQ.PopHead(); req != nil; req = h.ReadQ.PopHead() {
		req.Err = engerr.Closing
		l.pending.PushTail(req)
	}
	for req := h.WriteQ.PopHead(); req != nil; req = h.WriteQ.PopHead() {
		req.Err = engerr.Closing
		l.pending.PushTail(req)
	}
}

// ---- handle.Submitter ----

// Submit posts req against h, per spec §4.3 "either submits to the OS immediately
// (completion family) or enqueues into a per-handle ring (readiness family)".
func (l *Loop) Submit(h *handle.Handle, req *reqpool.Request) error {
	if h.IsClosing() {
		req.Err = engerr.Closing
		l.pending.PushTail(req)
		return nil
	}

	if l.poller.Family() == poller.FamilyCompletion {
		issuer, ok := req.Owner.(ioIssuer)
		if !ok {
			return engerr.New(engerr.InvalidParam, "handle type does not support completion-family I/O")
		}
		native, err := issuer.IssueIO(req)
		if err != nil {
			return err
		}
		l.nativeMu.Lock()
		l.nativeReqs[native] = req
		l.nativeMu.Unlock()
		return nil
	}

	// Positional file I/O has no readiness notion; route it to the kernel submission
	// ring instead of a per-handle pending queue (spec §4.3/§4.5).
	if fo, ok := req.Owner.(fileOwner); ok {
		return l.submitFileOp(fo.FD(), req)
	}

	// Readiness family: queue per spec §4.3's SYNC_READ/SYNC_WRITE fast path.
	switch req.Kind {
	case reqpool.KindRead, reqpool.KindAccept:
		if req.Kind == reqpool.KindRead && h.HasFlag(handle.FlagSyncRead) {
			h.ClearSyncRead()
			l.pending.PushTail(req)
			return nil
		}
		// Accept reordering permitted (spec §4.3/§9): still FIFO-queued per handle, but
		// the drain step may serve it ahead of older reads/writes on other handles.
		h.ReadQ.PushTail(req)
	case reqpool.KindWrite:
		if h.HasFlag(handle.FlagSyncWrite) {
			h.ClearSyncWrite()
			l.pending.PushTail(req)
			return nil
		}
		h.WriteQ.PushTail(req)
	case reqpool.KindConnect:
		h.WriteQ.PushTail(req)
	default:
		return engerr.New(engerr.InvalidParam, "unknown request kind")
	}
	return nil
}

// submitFileOp builds a poller.FileOp from req and enqueues it on the submission ring,
// reserving a recovery token the same way the completion family reserves one in Submit
// (spec §4.3/§4.5, SPEC_FULL.md supplemented feature).
func (l *Loop) submitFileOp(fd int, req *reqpool.Request) error {
	buf := req.WritableSlice()
	if req.Kind == reqpool.KindWrite {
		buf = req.ReadableSlice()
	}

	l.fileMu.Lock()
	l.nextFileToken++
	token := l.nextFileToken | fileTokenTag
	l.fileReqs[token] = req
	l.fileMu.Unlock()

	op := poller.FileOp{
		FD:       fd,
		Buf:      buf,
		Offset:   req.Offset,
		Write:    req.Kind == reqpool.KindWrite,
		UserData: token,
	}
	if err := l.poller.SubmitFile(op); err != nil {
		l.fileMu.Lock()
		delete(l.fileReqs, token)
		l.fileMu.Unlock()
		return err
	}
	return nil
}

// OpenHandle registers h on the active list and, for FD-backed handles, binds fd to the
// poller under h's ID as the recovery token (spec §6 "Loop::open_handle(handle)").
// h.Open must already have been called with this Loop.
func (l *Loop) OpenHandle(fd int, h *handle.Handle, mask poller.EventMask) error {
	l.handles[h.ID()] = h
	if l.poller.Family() == poller.FamilyCompletion {
		return l.poller.Bind(fd, uintptr(h.ID()))
	}
	return l.poller.Add(fd, mask, uintptr(h.ID()))
}

// OpenTimer registers a TimedHandle (no OS FD) and arms it at now+FirstGapNanos, per spec
// §4.4; nowUnixNano is passed in rather than read internally so callers and tests share
// one clock reading.
func (l *Loop) OpenTimer(t *handle.TimedHandle, nowUnixNano int64) {
	l.handles[t.ID()] = t.AsHandle()
	l.timers.Insert(t, nowUnixNano+t.FirstGapNanos)
}

// CloseHandle begins the close path for h (spec §6 "Loop::close_handle(handle)"); a
// thin, named wrapper over Handle.RequestClose kept here so callers do not need to reach
// into internal/handle directly for the one loop-facing entry point.
func (l *Loop) CloseHandle(h *handle.Handle) bool {
	return h.RequestClose()
}

// NextHandleID hands out a monotonically increasing ID for new handles, used as both the
// active-table key and the poller recovery token (spec §9's GC-safe ID replacement for
// the source's raw back-pointer).
func (l *Loop) NextHandleID() uint64 {
	l.nextID++
	return l.nextID
}

// PostTask enqueues fn for execution on the loop thread and wakes a concurrent Wait call
// (spec §4.6 "Wakeup from other threads"). Safe from any thread. Only the empty-to-
// nonempty transition wakes the poller (spec §8 scenario 3: "exactly one wake byte per
// non-empty transition"), so a thousand PostTask calls queued between iterations cost at
// most one wake.
func (l *Loop) PostTask(fn Task) {
	l.taskMu.Lock()
	wasEmpty := len(l.tasks) == 0
	l.tasks = append(l.tasks, fn)
	l.taskMu.Unlock()

	if !wasEmpty {
		return
	}
	if err := l.poller.Wake(); err != nil {
		l.log.Warn("poller wake failed", corelog.F("error", err))
	}
}

func (l *Loop) drainTasks() {
	l.taskMu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.taskMu.Unlock()

	for _, t := range tasks {
		t()
	}
}

// HandleCount reports the number of handles still in the active table (spec §4.6 step 8
// exit condition).
func (l *Loop) HandleCount() int { return len(l.handles) }

// Run drives iterations until both the handle count and in-flight fly count reach zero
// (spec §4.6 step 8).
func (l *Loop) Run() {
	for l.iterate() {
	}
}

// Step runs exactly one iteration and reports whether Run would continue; exported for
// callers embedding the reactor in their own scheduling loop, and for tests that need to
// observe one pass at a time.
func (l *Loop) Step() bool {
	return l.iterate()
}

// iterate runs exactly one pass of spec §4.6's eight steps and reports whether the loop
// should keep running.
func (l *Loop) iterate() bool {
	waitMS := l.computeWaitMS()

	events := make([]poller.Event, maxEventsPerWait)
	n, err := l.poller.Wait(events, waitMS)
	if err != nil {
		l.log.Warn("poller wait failed", corelog.F("error", err))
	}

	l.dispatchEvents(events[:n])
	l.drainTasks()
	l.drainPending()
	l.tickTimers()
	l.drainClosing()

	return len(l.handles) > 0 || l.flyTotal > 0
}

// computeWaitMS implements step 1: 0 if there is already work to do, otherwise the time
// to the next timer deadline capped at one second.
func (l *Loop) computeWaitMS() int {
	if !l.pending.Empty() || len(l.closing) > 0 {
		return 0
	}
	deadline, ok := l.timers.PeekDeadline()
	if !ok {
		return 1000
	}
	now := time.Now().UnixNano()
	remain := (deadline - now) / int64(time.Millisecond)
	if remain < 0 {
		return 0
	}
	if remain > 1000 {
		return 1000
	}
	return int(remain)
}

// dispatchEvents implements step 3: readiness events set SYNC_READ/SYNC_WRITE or pop a
// queued request into the pending ring; completion events recover their Request by the
// token Submit reserved and go straight to the pending ring.
func (l *Loop) dispatchEvents(events []poller.Event) {
	for _, ev := range events {
		if l.poller.Family() == poller.FamilyCompletion {
			l.dispatchCompletion(ev)
			continue
		}

		if l.dispatchFileCompletion(ev) {
			continue
		}

		h, ok := l.handles[uint64(ev.UserData)]
		if !ok {
			continue
		}

		if ev.Mask&(poller.EventHangup|poller.EventError) != 0 {
			h.SetReadable(false)
			h.SetWritable(false)
			h.RequestClose()
			continue
		}

		if ev.Mask&poller.EventReadable != 0 {
			l.dispatchReadiness(h, &h.ReadQ, handle.FlagSyncRead)
		}
		if ev.Mask&poller.EventWritable != 0 {
			l.dispatchReadiness(h, &h.WriteQ, handle.FlagSyncWrite)
		}
	}
}

func (l *Loop) dispatchReadiness(h *handle.Handle, q *ring.Ring, syncFlag handle.Flag) {
	if req := q.PopHead(); req != nil {
		l.pending.PushTail(req)
		return
	}
	if syncFlag == handle.FlagSyncRead {
		h.SetSyncRead()
	} else {
		h.SetSyncWrite()
	}
}

// ioFinisher is implemented by handle types whose completion needs more than the byte
// count and status the OVERLAPPED record itself carries — Listener, and Datagram for an
// unconnected read's sender address. Listener decodes AcceptEx's local/peer address pair
// (GetAcceptExSockaddrs) out of the scratch
// buffer its ioIssuer.IssueIO stashed in req.Native before handing req to the pending
// ring, mirroring what the readiness family's Listener.PerformIO gets for free from
// Socket.Accept.
type ioFinisher interface {
	FinishIO(req *reqpool.Request)
}

// dispatchCompletion handles a completion-family event: the native record already
// carries the transferred count and status, so the Request goes straight to the pending
// ring for callback dispatch (step 5), skipping the readiness inner loop of step 4.
func (l *Loop) dispatchCompletion(ev poller.Event) {
	l.nativeMu.Lock()
	req, ok := l.nativeReqs[ev.Native]
	if ok {
		delete(l.nativeReqs, ev.Native)
	}
	l.nativeMu.Unlock()
	if !ok || req == nil {
		return
	}
	req.SetUsed(int(ev.Transferred))
	req.Err = ev.Status
	if f, ok := req.Owner.(ioFinisher); ok {
		f.FinishIO(req)
	}
	l.pending.PushTail(req)
}

// dispatchFileCompletion recovers a request submitted via submitFileOp, reporting
// whether ev.UserData named one (SPEC_FULL.md supplemented feature: the readiness
// family's file submission ring completes with a byte count and status already known,
// exactly like dispatchCompletion, so a true readiness event never reaches this map).
func (l *Loop) dispatchFileCompletion(ev poller.Event) bool {
	l.fileMu.Lock()
	req, ok := l.fileReqs[ev.UserData]
	if ok {
		delete(l.fileReqs, ev.UserData)
	}
	l.fileMu.Unlock()
	if !ok || req == nil {
		return false
	}
	req.SetUsed(int(ev.Transferred))
	req.Err = ev.Status
	l.pending.PushTail(req)
	return true
}

// drainPending implements step 4 and step 5: dispatch each request by kind, then fire
// its callback exactly once and drop fly references.
func (l *Loop) drainPending() {
	var batch ring.Ring
	l.pending.DrainInto(&batch)

	for req := batch.PopHead(); req != nil; req = batch.PopHead() {
		l.dispatchOne(req)
	}
}

// dispatchOne performs step 4's actual I/O for a readiness-family request whose wait is
// satisfied (spec §4.6 step 4: "the loop performs the actual send/recv after locating
// the handle's queued Request"), then fires its callback exactly once (step 5) and drops
// its fly reference.
func (l *Loop) dispatchOne(req *reqpool.Request) {
	own, _ := req.Owner.(owner)
	var h *handle.Handle
	if own != nil {
		h = own.AsHandle()
	}

	if req.Err == engerr.OK && l.poller.Family() == poller.FamilyReadiness {
		if performer, ok := req.Owner.(ioPerformer); ok {
			if err := performer.PerformIO(req); err != nil {
				retryable, interrupted := netutil.ClassifyIOErr(err)
				kind := engerr.FromErrno(err, retryable, interrupted)
				if kind == engerr.Retry && h != nil {
					// Spurious readiness wakeup: requeue instead of completing, per
					// spec §4.3's per-handle FIFO ordering (re-arrive at the same
					// queue position rather than a synthetic failure).
					if req.Kind == reqpool.KindWrite || req.Kind == reqpool.KindConnect {
						h.WriteQ.PushHead(req)
					} else {
						h.ReadQ.PushHead(req)
					}
					return
				}
				req.Err = kind
				if req.Kind == reqpool.KindConnect && h != nil {
					// Connect-error double-dispatch (spec §9 Open Question decision):
					// the failed connector also closes, so both its close callback and
					// this Request's callback observe the failure exactly once.
					h.RequestClose()
				}
			}
		}
	}

	if req.Done != nil {
		req.Done(req)
	}

	if h != nil {
		h.DecFly()
		if h.FlyCount() == 0 && h.IsClosing() {
			l.ScheduleClose(h)
		}
	}
}

// tickTimers implements step 6 (spec §4.4's firing policy): while the top deadline has
// passed, pop, fire, and reinsert if the callback says to continue.
func (l *Loop) tickTimers() {
	now := time.Now().UnixNano()
	for _, item := range l.timers.PopExpired(now) {
		th, ok := item.(*handle.TimedHandle)
		if !ok || th.Callback == nil {
			continue
		}
		rc := th.Callback(th)
		if rc != 0 {
			th.RequestClose()
			continue
		}
		if th.ShouldRearm() {
			l.timers.Insert(th, now+th.RepeatNanos)
		} else {
			th.RequestClose()
		}
	}
}

// drainClosing implements step 7: fire each closing handle's close callback exactly once
// and drop the loop's own strong reference.
func (l *Loop) drainClosing() {
	batch := l.closing
	l.closing = nil
	for _, h := range batch {
		delete(l.handles, h.ID())
		h.FireClose(nil)
		h.Release()
	}
}
