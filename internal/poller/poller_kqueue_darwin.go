//go:build darwin

package poller

import (
	"sync"

	"golang.org/x/sys/unix"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
)

// kqueuePoller is the Darwin readiness-family poller (spec.md §4.5/C5'). kqueue reports
// read/write readiness as separate filters on the same fd, so Add/Modify register both
// directions the caller asked for in one Kevent batch.
type kqueuePoller struct {
	kq int

	mu   sync.Mutex
	data map[int]uintptr
}

// New constructs the readiness-family poller for this platform (kqueue). Darwin has no
// kernel file-submission ring analogous to io_uring; SubmitFile rejects every
// handle.File read/write on this platform with InvalidParam, and no other path in the
// loop performs file I/O, so file handles are not usable here.
const wakeIdent = 1

func New(cfg Config) (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, wrapOSErr(err, false, false)
	}
	wake := unix.Kevent_t{Ident: wakeIdent, Filter: unix.EVFILT_USER, Flags: unix.EV_ADD | unix.EV_CLEAR}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{wake}, nil, nil); err != nil {
		unix.Close(kq)
		return nil, wrapOSErr(err, false, false)
	}
	return &kqueuePoller{kq: kq, data: make(map[int]uintptr)}, nil
}

func (p *kqueuePoller) Family() Family { return FamilyReadiness }

func (p *kqueuePoller) changeList(fd int, mask EventMask, flag uint16) []unix.Kevent_t {
	var kevs []unix.Kevent_t
	if mask&EventReadable != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flag})
	}
	if mask&EventWritable != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flag})
	}
	return kevs
}

func (p *kqueuePoller) Add(fd int, mask EventMask, userData uintptr) error {
	p.mu.Lock()
	p.data[fd] = userData
	p.mu.Unlock()

	kevs := p.changeList(fd, mask, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevs) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
		return wrapOSErr(err, false, false)
	}
	return nil
}

func (p *kqueuePoller) Modify(fd int, mask EventMask, userData uintptr) error {
	p.mu.Lock()
	p.data[fd] = userData
	p.mu.Unlock()

	// Darwin has no single "rearm with this mask" call; drop the opposite filter and
	// (re)add the requested one.
	var kevs []unix.Kevent_t
	if mask&EventReadable != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if mask&EventWritable != 0 {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else {
		kevs = append(kevs, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	// Deletes on a filter that was never added return ENOENT; that is expected churn,
	// not a real failure, so it is ignored here.
	unix.Kevent(p.kq, kevs, nil, nil)
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	p.mu.Lock()
	delete(p.data, fd)
	p.mu.Unlock()

	kevs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	unix.Kevent(p.kq, kevs, nil, nil)
	return nil
}

func (p *kqueuePoller) Bind(fd int, userData uintptr) error { return nil }

func (p *kqueuePoller) SubmitFile(op FileOp) error {
	return engerr.New(engerr.InvalidParam, "no kernel submission ring on darwin; file I/O is not supported")
}

func (p *kqueuePoller) Wait(events []Event, timeoutMs int) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1e6))
		ts = &t
	}

	raw := make([]unix.Kevent_t, len(events))
	n, err := unix.Kevent(p.kq, nil, raw, ts)
	for err == unix.EINTR {
		n, err = unix.Kevent(p.kq, nil, raw, ts)
	}
	if err != nil {
		return 0, wrapOSErr(err, false, false)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := 0
	for i := 0; i < n; i++ {
		if raw[i].Filter == unix.EVFILT_USER {
			continue
		}
		fd := int(raw[i].Ident)
		var mask EventMask
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			mask |= EventReadable
		case unix.EVFILT_WRITE:
			mask |= EventWritable
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			mask |= EventHangup
		}
		if raw[i].Flags&unix.EV_ERROR != 0 {
			mask |= EventError
		}
		events[out] = Event{UserData: p.data[fd], Mask: mask}
		out++
	}
	return out, nil
}

// Wake unblocks a concurrent Kevent call from any thread by triggering the EVFILT_USER
// filter registered in New (spec.md §4.6 "Wakeup from other threads").
func (p *kqueuePoller) Wake() error {
	trigger := unix.Kevent_t{Ident: wakeIdent, Filter: unix.EVFILT_USER, Fflags: unix.NOTE_TRIGGER}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{trigger}, nil, nil)
	if err != nil {
		return wrapOSErr(err, false, false)
	}
	return nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
