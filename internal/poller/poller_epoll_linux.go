//go:build linux

package poller

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux readiness-family poller (spec.md §4.5/C5'). It tracks its own
// fd->userData table because unix.EpollEvent only carries a 32-bit Fd in its data union,
// not an arbitrary pointer-sized token.
type epollPoller struct {
	epfd   int
	wakeFD int

	mu   sync.Mutex
	data map[int32]uintptr

	files *fileSubmitter
}

// New constructs the readiness-family poller for this platform (epoll) along with its
// attached file-submission ring, per spec.md §4.5 "the poller additionally owns an
// attached submission queue for file operations".
func New(cfg Config) (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, wrapOSErr(err, false, false)
	}
	fs, err := newFileSubmitter(cfg.limit())
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		fs.close()
		unix.Close(epfd)
		return nil, wrapOSErr(err, false, false)
	}
	wakeEv := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &wakeEv); err != nil {
		unix.Close(wakeFD)
		fs.close()
		unix.Close(epfd)
		return nil, wrapOSErr(err, false, false)
	}

	return &epollPoller{epfd: epfd, wakeFD: wakeFD, data: make(map[int32]uintptr), files: fs}, nil
}

func (p *epollPoller) Family() Family { return FamilyReadiness }

func toEpollEvents(mask EventMask) uint32 {
	var ev uint32
	if mask&EventReadable != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&EventWritable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) EventMask {
	var mask EventMask
	if ev&unix.EPOLLIN != 0 {
		mask |= EventReadable
	}
	if ev&unix.EPOLLOUT != 0 {
		mask |= EventWritable
	}
	if ev&unix.EPOLLHUP != 0 || ev&unix.EPOLLRDHUP != 0 {
		mask |= EventHangup
	}
	if ev&unix.EPOLLERR != 0 {
		mask |= EventError
	}
	return mask
}

func (p *epollPoller) Add(fd int, mask EventMask, userData uintptr) error {
	p.mu.Lock()
	p.data[int32(fd)] = userData
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return wrapOSErr(err, false, false)
	}
	return nil
}

func (p *epollPoller) Modify(fd int, mask EventMask, userData uintptr) error {
	p.mu.Lock()
	p.data[int32(fd)] = userData
	p.mu.Unlock()

	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return wrapOSErr(err, false, false)
	}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	p.mu.Lock()
	delete(p.data, int32(fd))
	p.mu.Unlock()

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return wrapOSErr(err, false, false)
	}
	return nil
}

// Bind is a no-op on the readiness family (spec.md §4.5: completion-only concept).
func (p *epollPoller) Bind(fd int, userData uintptr) error { return nil }

// SubmitFile enqueues a positional file read/write on the attached submission ring; see
// fileSubmitter for the overflow-FIFO behavior (SPEC_FULL.md supplemented feature).
func (p *epollPoller) SubmitFile(op FileOp) error { return p.files.submit(op) }

func (p *epollPoller) Wait(events []Event, timeoutMs int) (int, error) {
	// Flush any ring-eligible file submissions queued since the last iteration (spec.md
	// §4.6 step 2: "batches kernel submissions lazily... at the top of a loop iteration").
	p.files.flush()

	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	for err == unix.EINTR {
		n, err = unix.EpollWait(p.epfd, raw, timeoutMs)
	}
	if err != nil {
		return 0, wrapOSErr(err, false, false)
	}

	p.mu.Lock()
	out := 0
	for i := 0; i < n; i++ {
		if raw[i].Fd == int32(p.wakeFD) {
			var buf [8]byte
			unix.Read(p.wakeFD, buf[:])
			continue
		}
		ud := p.data[raw[i].Fd]
		events[out] = Event{UserData: ud, Mask: fromEpollEvents(raw[i].Events)}
		out++
	}
	p.mu.Unlock()

	completed := p.files.reapInto(events[out:])
	return out + completed, nil
}

// Wake unblocks a concurrent EpollWait from any thread by writing to the eventfd
// registered in New (spec.md §4.6 "Wakeup from other threads").
func (p *epollPoller) Wake() error {
	buf := [8]byte{1, 0, 0, 0, 0, 0, 0, 0}
	_, err := unix.Write(p.wakeFD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return wrapOSErr(err, false, false)
	}
	return nil
}

func (p *epollPoller) Close() error {
	p.files.close()
	unix.Close(p.wakeFD)
	return unix.Close(p.epfd)
}
