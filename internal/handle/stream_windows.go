//go:build windows

package handle

import (
	"unsafe"

	"golang.org/x/sys/windows"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
)

// streamOverlapped pins the OVERLAPPED record plus whatever the pending WSARecv/
// WSASend/ConnectEx call referenced (nothing beyond req's own buffer, for a stream)
// until the completion port reports it done. req.Native holds this to keep it alive;
// see loop.ioIssuer.
type streamOverlapped struct {
	windows.Overlapped
}

// IssueIO satisfies loop.ioIssuer on the completion family (spec §4.5/C5): it issues
// the real WSARecv/WSASend/ConnectEx call req describes and returns the address
// GetQueuedCompletionStatus will hand back once it completes.
func (s *Stream) IssueIO(req *reqpool.Request) (uintptr, error) {
	op := &streamOverlapped{}
	req.Native = op

	switch req.Kind {
	case reqpool.KindRead:
		if err := s.Sock.RecvOverlapped(req.WritableSlice(), &op.Overlapped); err != nil {
			return 0, err
		}
	case reqpool.KindWrite:
		if err := s.Sock.SendOverlapped(req.ReadableSlice()[req.Step:], &op.Overlapped); err != nil {
			return 0, err
		}
	case reqpool.KindConnect:
		addr, _ := req.UserData.(netutil.NetAddress)
		if err := s.Sock.ConnectOverlapped(addr, &op.Overlapped); err != nil {
			return 0, err
		}
	default:
		return 0, engerr.New(engerr.InvalidParam, "stream: unsupported request kind for completion-family I/O")
	}

	return uintptr(unsafe.Pointer(&op.Overlapped)), nil
}
