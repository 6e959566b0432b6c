//go:build windows

package netutil

import (
	"net/netip"
	"time"

	"golang.org/x/sys/windows"
)

func NewStreamSocket(fam Family) (*Socket, error) {
	af := windows.AF_INET
	if fam == FamilyInet6 {
		af = windows.AF_INET6
	}
	fd, err := windows.Socket(af, windows.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	return &Socket{FD: int(fd), Type: SockStream, Family: fam}, nil
}

func NewDatagramSocket(fam Family) (*Socket, error) {
	af := windows.AF_INET
	if fam == FamilyInet6 {
		af = windows.AF_INET6
	}
	fd, err := windows.Socket(af, windows.SOCK_DGRAM, 0)
	if err != nil {
		return nil, err
	}
	return &Socket{FD: int(fd), Type: SockDgram, Family: fam}, nil
}

func sockaddr(a NetAddress) windows.Sockaddr {
	switch a.Family {
	case FamilyInet6:
		s := &windows.SockaddrInet6{Port: int(a.Port)}
		s.Addr = a.IP.As16()
		return s
	default:
		s := &windows.SockaddrInet4{Port: int(a.Port)}
		s.Addr = a.IP.As4()
		return s
	}
}

// FromSockaddr exposes fromSockaddr for callers outside this package that decode a
// windows.Sockaddr obtained some way other than through Socket's own methods (e.g.
// AcceptEx's RawSockaddrAny.Sockaddr() result in internal/handle's completion-family
// accept path).
func FromSockaddr(sa windows.Sockaddr) NetAddress { return fromSockaddr(sa) }

func fromSockaddr(sa windows.Sockaddr) NetAddress {
	switch v := sa.(type) {
	case *windows.SockaddrInet4:
		return NetAddress{Family: FamilyInet4, IP: netip.AddrFrom4(v.Addr), Port: uint16(v.Port)}
	case *windows.SockaddrInet6:
		return NetAddress{Family: FamilyInet6, IP: netip.AddrFrom16(v.Addr), Port: uint16(v.Port)}
	default:
		return NetAddress{}
	}
}

func (s *Socket) Bind(a NetAddress) error {
	return windows.Bind(windows.Handle(s.FD), sockaddr(a))
}

func (s *Socket) Listen(backlog int) error {
	if backlog <= 0 || backlog > MaxListenBacklog {
		backlog = MaxListenBacklog
	}
	return windows.Listen(windows.Handle(s.FD), backlog)
}

func (s *Socket) Connect(a NetAddress) error {
	return windows.Connect(windows.Handle(s.FD), sockaddr(a))
}

func (s *Socket) Accept() (*Socket, NetAddress, error) {
	fd, sa, err := windows.Accept(windows.Handle(s.FD))
	if err != nil {
		return nil, NetAddress{}, err
	}
	addr := NetAddress{}
	if sa != nil {
		addr = fromSockaddr(sa)
	}
	return &Socket{FD: int(fd), Type: SockStream, Family: s.Family}, addr, nil
}

func (s *Socket) Send(b []byte) (int, error) {
	return windows.Write(windows.Handle(s.FD), b)
}

func (s *Socket) Recv(b []byte) (int, error) {
	return windows.Read(windows.Handle(s.FD), b)
}

func (s *Socket) SendTo(b []byte, a NetAddress) (int, error) {
	return len(b), windows.Sendto(windows.Handle(s.FD), b, 0, sockaddr(a))
}

func (s *Socket) RecvFrom(b []byte) (int, NetAddress, error) {
	n, sa, err := windows.Recvfrom(windows.Handle(s.FD), b, 0)
	if err != nil {
		return n, NetAddress{}, err
	}
	addr := NetAddress{}
	if sa != nil {
		addr = fromSockaddr(sa)
	}
	return n, addr, nil
}

// RecvOverlapped issues an asynchronous WSARecv against ov, completing through whatever
// IOCP fd is bound to (spec §4.5 completion family). The call returning
// ERROR_IO_PENDING is the expected case: it means the completion will surface later via
// GetQueuedCompletionStatus, not that the call failed.
func (s *Socket) RecvOverlapped(buf []byte, ov *windows.Overlapped) error {
	wsabuf := windows.WSABuf{Len: uint32(len(buf)), Buf: bufPtr(buf)}
	var n, flags uint32
	err := windows.WSARecv(windows.Handle(s.FD), &wsabuf, 1, &n, &flags, ov, nil)
	if err != nil && err != windows.ERROR_IO_PENDING {
		return err
	}
	return nil
}

// SendOverlapped issues an asynchronous WSASend against ov; see RecvOverlapped.
func (s *Socket) SendOverlapped(buf []byte, ov *windows.Overlapped) error {
	wsabuf := windows.WSABuf{Len: uint32(len(buf)), Buf: bufPtr(buf)}
	var n uint32
	err := windows.WSASend(windows.Handle(s.FD), &wsabuf, 1, &n, 0, ov, nil)
	if err != nil && err != windows.ERROR_IO_PENDING {
		return err
	}
	return nil
}

// RecvFromOverlapped issues an asynchronous WSARecvFrom for the unconnected datagram
// case; from is scratch space the eventual completion's peer address is decoded out of
// via fromSockaddr once GetAcceptExSockaddrs-style post-processing is done by the
// caller (datagram_windows.go).
func (s *Socket) RecvFromOverlapped(buf []byte, from *windows.RawSockaddrAny, fromLen *int32, ov *windows.Overlapped) error {
	wsabuf := windows.WSABuf{Len: uint32(len(buf)), Buf: bufPtr(buf)}
	var n, flags uint32
	err := windows.WSARecvFrom(windows.Handle(s.FD), &wsabuf, 1, &n, &flags, from, fromLen, ov, nil)
	if err != nil && err != windows.ERROR_IO_PENDING {
		return err
	}
	return nil
}

// SendToOverlapped issues an asynchronous WSASendto for the unconnected datagram case.
func (s *Socket) SendToOverlapped(buf []byte, a NetAddress, ov *windows.Overlapped) error {
	wsabuf := windows.WSABuf{Len: uint32(len(buf)), Buf: bufPtr(buf)}
	var n uint32
	err := windows.WSASendto(windows.Handle(s.FD), &wsabuf, 1, &n, 0, sockaddr(a), ov, nil)
	if err != nil && err != windows.ERROR_IO_PENDING {
		return err
	}
	return nil
}

// AcceptOverlapped issues AcceptEx on the pre-created accept socket, landing both local
// and peer address records into addrBuf (sized via reqpool.Request.AddressCache — spec
// §4.2 "scratch buffer sized for two endpoint addresses plus the completion API's
// mandated padding"). GetAcceptExSockaddrs decodes addrBuf after the completion
// surfaces; see listener_windows.go.
func (s *Socket) AcceptOverlapped(accept *Socket, addrBuf []byte, ov *windows.Overlapped) error {
	var recvd uint32
	addrLen := uint32((len(addrBuf) - 2*addressPad) / 2)
	err := windows.AcceptEx(windows.Handle(s.FD), windows.Handle(accept.FD), &addrBuf[0], 0, addrLen, addrLen, &recvd, ov)
	if err != nil && err != windows.ERROR_IO_PENDING {
		return err
	}
	return nil
}

// addressPad is AcceptEx's mandated extra slack per address slot (16 bytes, matching
// reqpool.Request.AddressCache's own padding term).
const addressPad = 16

// ConnectOverlapped issues ConnectEx, which — unlike the synchronous Connect above —
// requires the socket to already be bound to a local address; an unbound socket is
// bound to the wildcard address for a's family first.
func (s *Socket) ConnectOverlapped(a NetAddress, ov *windows.Overlapped) error {
	if err := windows.LoadConnectEx(); err != nil {
		return err
	}
	if _, err := windows.Getsockname(windows.Handle(s.FD)); err != nil {
		wildcard := NetAddress{Family: a.Family}
		if err := s.Bind(wildcard); err != nil {
			return err
		}
	}
	var sent uint32
	err := windows.ConnectEx(windows.Handle(s.FD), sockaddr(a), nil, 0, &sent, ov)
	if err != nil && err != windows.ERROR_IO_PENDING {
		return err
	}
	return nil
}

// bufPtr returns a pointer suitable for a WSABuf.Buf field; b must be non-empty.
func bufPtr(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return &b[0]
}

func (s *Socket) Shutdown(how int) error {
	return windows.Shutdown(windows.Handle(s.FD), how)
}

func (s *Socket) Close() error {
	return windows.Closesocket(windows.Handle(s.FD))
}

func (s *Socket) GetSockName() (NetAddress, error) {
	sa, err := windows.Getsockname(windows.Handle(s.FD))
	if err != nil {
		return NetAddress{}, err
	}
	return fromSockaddr(sa), nil
}

func (s *Socket) GetPeerName() (NetAddress, error) {
	sa, err := windows.Getpeername(windows.Handle(s.FD))
	if err != nil {
		return NetAddress{}, err
	}
	return fromSockaddr(sa), nil
}

func (s *Socket) SockError() error {
	errno, err := windows.GetsockoptInt(windows.Handle(s.FD), windows.SOL_SOCKET, windows.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return windows.Errno(errno)
}

// ClassifyIOErr mirrors socket_unix.go's classification for the Windows build; the
// readiness-family loop path that consults it never runs on Windows (IOCP is the
// completion family), but loop.go is platform-neutral and calls it unconditionally, so
// every platform must provide it.
func ClassifyIOErr(err error) (retryable, interrupted bool) {
	if err == windows.WSAEWOULDBLOCK {
		return true, false
	}
	return false, false
}

func setReusePort(fd int) error {
	// Windows has no SO_REUSEPORT; SO_REUSEADDR already allows rebinding a TIME_WAIT
	// port, which is the behavior callers actually want here.
	return nil
}

// setKeepAlive configures idle/interval keepalive via WSAIoctl(SIO_KEEPALIVE_VALS).
// Windows exposes no per-socket probe-count knob, so a requested count must fail
// loudly rather than be silently dropped, per spec §4.1.
func (s *Socket) setKeepAlive(o Options) error {
	fd := windows.Handle(s.FD)
	if err := windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	if o.KeepProbes > 0 {
		return errUnsupported("keepalive probe count")
	}
	if o.KeepIdle > 0 || o.KeepInterval > 0 {
		return setKeepAliveVals(fd, o.KeepIdle, o.KeepInterval)
	}
	return nil
}

func setPromiscuous(fd int, ifname string, on bool) error {
	return errUnsupported("promiscuous mode")
}

func setTimeoutOpt(fd windows.Handle, opt int, d time.Duration) error {
	ms := int32(d.Milliseconds())
	return windows.SetsockoptInt(fd, windows.SOL_SOCKET, opt, int(ms))
}

func (s *Socket) SetOptions(o Options) error {
	fd := windows.Handle(s.FD)
	if o.ReuseAddr {
		if err := windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
			return err
		}
	}
	if o.NoDelay && s.Type == SockStream {
		if err := windows.SetsockoptInt(fd, windows.IPPROTO_TCP, windows.TCP_NODELAY, 1); err != nil {
			return err
		}
	}
	if o.SendBufferSize > 0 {
		if err := windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_SNDBUF, o.SendBufferSize); err != nil {
			return err
		}
	}
	if o.RecvBufferSize > 0 {
		if err := windows.SetsockoptInt(fd, windows.SOL_SOCKET, windows.SO_RCVBUF, o.RecvBufferSize); err != nil {
			return err
		}
	}
	if o.SendTimeout > 0 {
		if err := setTimeoutOpt(fd, windows.SO_SNDTIMEO, o.SendTimeout); err != nil {
			return err
		}
	}
	if o.RecvTimeout > 0 {
		if err := setTimeoutOpt(fd, windows.SO_RCVTIMEO, o.RecvTimeout); err != nil {
			return err
		}
	}
	if o.KeepAlive {
		if err := s.setKeepAlive(o); err != nil {
			return err
		}
	}
	s.Opts = o
	return nil
}
