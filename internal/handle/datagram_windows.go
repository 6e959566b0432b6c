//go:build windows

package handle

import (
	"unsafe"

	"golang.org/x/sys/windows"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
)

// datagramOverlapped pins the OVERLAPPED record plus, for the unconnected-peer case,
// the raw sockaddr WSARecvFrom decodes the sender into.
type datagramOverlapped struct {
	windows.Overlapped
	from    windows.RawSockaddrAny
	fromLen int32
}

// IssueIO satisfies loop.ioIssuer on the completion family: connected datagrams use
// WSARecv/WSASend exactly like a Stream, unconnected ones use WSARecvFrom/WSASendto
// carrying the peer address (spec §4.3 "connected vs. unconnected").
func (d *Datagram) IssueIO(req *reqpool.Request) (uintptr, error) {
	op := &datagramOverlapped{fromLen: int32(unsafe.Sizeof(windows.RawSockaddrAny{}))}
	req.Native = op

	switch req.Kind {
	case reqpool.KindRead:
		if d.connected {
			if err := d.Sock.RecvOverlapped(req.WritableSlice(), &op.Overlapped); err != nil {
				return 0, err
			}
		} else {
			if err := d.Sock.RecvFromOverlapped(req.WritableSlice(), &op.from, &op.fromLen, &op.Overlapped); err != nil {
				return 0, err
			}
		}
	case reqpool.KindWrite:
		if d.connected {
			if err := d.Sock.SendOverlapped(req.ReadableSlice(), &op.Overlapped); err != nil {
				return 0, err
			}
		} else {
			addr, _ := req.UserData.(netutil.NetAddress)
			if err := d.Sock.SendToOverlapped(req.ReadableSlice(), addr, &op.Overlapped); err != nil {
				return 0, err
			}
		}
	default:
		return 0, engerr.New(engerr.InvalidParam, "datagram: unsupported request kind for completion-family I/O")
	}

	return uintptr(unsafe.Pointer(&op.Overlapped)), nil
}

// FinishIO satisfies loop.ioFinisher: an unconnected read's sender address is only
// known once WSARecvFrom's completion surfaces, so it is decoded here instead of in
// IssueIO (spec §4.3, mirrors Datagram.PerformIO's synchronous RecvFrom path).
func (d *Datagram) FinishIO(req *reqpool.Request) {
	if d.connected || req.Kind != reqpool.KindRead {
		return
	}
	op, ok := req.Native.(*datagramOverlapped)
	if !ok {
		return
	}
	if sa, err := op.from.Sockaddr(); err == nil {
		req.PeerAddr = netutil.FromSockaddr(sa)
	}
}
