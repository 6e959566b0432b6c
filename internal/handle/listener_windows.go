//go:build windows

package handle

import (
	"unsafe"

	"golang.org/x/sys/windows"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
)

// listenerOverlapped pins the OVERLAPPED record and the address scratch buffer AcceptEx
// writes the local/peer sockaddrs into until the completion port reports it done; the
// accept socket itself is kept alive via req.NewSock instead of a second reference here.
type listenerOverlapped struct {
	windows.Overlapped
	addrBuf []byte
}

// IssueIO satisfies loop.ioIssuer on the completion family: it pre-creates the socket
// AcceptEx will attach the incoming connection to (AcceptEx, unlike accept(), requires
// an already-allocated socket) and issues the call against req's address scratch buffer
// (reqpool.Request.AddressCache, spec §4.2).
func (l *Listener) IssueIO(req *reqpool.Request) (uintptr, error) {
	if req.Kind != reqpool.KindAccept {
		return 0, engerr.New(engerr.InvalidParam, "listener: only accept requests support completion-family I/O")
	}

	accept, err := netutil.NewStreamSocket(l.Sock.Family)
	if err != nil {
		return 0, err
	}

	op := &listenerOverlapped{addrBuf: req.AddressCache(0)}
	req.Native = op
	req.NewSock = accept

	if err := l.Sock.AcceptOverlapped(accept, op.addrBuf, &op.Overlapped); err != nil {
		_ = accept.Close()
		return 0, err
	}

	return uintptr(unsafe.Pointer(&op.Overlapped)), nil
}

// FinishIO satisfies loop.ioFinisher: once the completion surfaces, decode the local
// and peer addresses AcceptEx wrote into op.addrBuf (GetAcceptExSockaddrs, per spec
// §4.2's AddressCache comment) into req.PeerAddr/req.LocalAddr, matching what the
// readiness family's PerformIO gets for free from Socket.Accept.
func (l *Listener) FinishIO(req *reqpool.Request) {
	op, ok := req.Native.(*listenerOverlapped)
	if !ok {
		return
	}

	addrLen := uint32((len(op.addrBuf) - 2*addressPadConst) / 2)
	var lrsa, rrsa *windows.RawSockaddrAny
	var lrsalen, rrsalen int32
	windows.GetAcceptExSockaddrs(&op.addrBuf[0], 0, addrLen, addrLen, &lrsa, &lrsalen, &rrsa, &rrsalen)

	if lrsa != nil {
		if sa, err := lrsa.Sockaddr(); err == nil {
			req.LocalAddr = netutil.FromSockaddr(sa)
		}
	}
	if rrsa != nil {
		if sa, err := rrsa.Sockaddr(); err == nil {
			req.PeerAddr = netutil.FromSockaddr(sa)
		}
	}
}

// addressPadConst mirrors netutil's addressPad (AcceptEx's mandated 16-byte slack per
// address slot); duplicated here since it is unexported across the package boundary.
const addressPadConst = 16
