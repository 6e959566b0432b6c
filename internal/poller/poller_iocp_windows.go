//go:build windows

package poller

import (
	"unsafe"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
	"golang.org/x/sys/windows"
)

// iocpPoller is the Windows completion-family poller (spec.md §4.5/C5). Handles are
// bound once via Bind; every subsequent overlapped I/O the handle's Socket posts
// surfaces here as a single completion record carrying the transferred byte count and
// status, recovered by the completion key passed to Bind.
type iocpPoller struct {
	port windows.Handle
}

// New constructs the completion-family poller for this platform (IOCP). The readiness
// family's file-submission ring has no analogue here: handle.File posts overlapped reads
///writes directly against its own OS handle, reusing the same completion port.
func New(cfg Config) (Poller, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, wrapOSErr(err, false, false)
	}
	return &iocpPoller{port: port}, nil
}

func (p *iocpPoller) Family() Family { return FamilyCompletion }

// Add/Modify/Remove are readiness-only concepts (spec.md §4.5); the completion family
// binds once via Bind and never revisits the registration.
func (p *iocpPoller) Add(fd int, mask EventMask, userData uintptr) error    { return nil }
func (p *iocpPoller) Modify(fd int, mask EventMask, userData uintptr) error { return nil }
func (p *iocpPoller) Remove(fd int) error                                  { return nil }

func (p *iocpPoller) Bind(fd int, userData uintptr) error {
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), p.port, uint32(userData), 0)
	if err != nil {
		return wrapOSErr(err, false, false)
	}
	return nil
}

// SubmitFile has no meaning on the completion family: handle.File issues its overlapped
// reads/writes directly, so there is no separate ring to enqueue onto.
func (p *iocpPoller) SubmitFile(op FileOp) error {
	return engerr.New(engerr.InvalidParam, "file submission ring not used on completion family")
}

func (p *iocpPoller) Wait(events []Event, timeoutMs int) (int, error) {
	if timeoutMs < 0 {
		timeoutMs = int(windows.INFINITE)
	}

	n := 0
	for n < len(events) {
		var transferred uint32
		var key uintptr
		var overlapped *windows.Overlapped

		// GetQueuedCompletionStatus blocks for timeoutMs only on the first call of this
		// batch; subsequent calls use a zero timeout so one readiness wake-up drains
		// whatever else is already queued without an extra OS round trip, per spec.md
		// §4.6 step 2 "poller.wait(events, max=128, wait_ms)".
		wait := uint32(timeoutMs)
		if n > 0 {
			wait = 0
		}

		err := windows.GetQueuedCompletionStatus(p.port, &transferred, &key, &overlapped, wait)
		if overlapped == nil {
			if err != nil && n == 0 {
				if err == windows.WAIT_TIMEOUT {
					return 0, nil
				}
				return 0, wrapOSErr(err, false, false)
			}
			break
		}

		status := engerr.OK
		if err != nil {
			status = engerr.ErrGeneric
		}
		events[n] = Event{
			UserData:    uintptr(key),
			Transferred: transferred,
			Status:      status,
			Native:      uintptr(unsafe.Pointer(overlapped)),
		}
		n++
	}
	return n, nil
}

// Wake unblocks a concurrent GetQueuedCompletionStatus call from any thread by posting a
// zero-length completion with a nil overlapped pointer (spec.md §4.6 "Wakeup from other
// threads"); Wait's overlapped==nil branch treats this as "stop filling, return now"
// without synthesizing an Event for it.
func (p *iocpPoller) Wake() error {
	if err := windows.PostQueuedCompletionStatus(p.port, 0, 0, nil); err != nil {
		return wrapOSErr(err, false, false)
	}
	return nil
}

func (p *iocpPoller) Close() error {
	return windows.CloseHandle(p.port)
}
