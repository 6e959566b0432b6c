//go:build linux || darwin

package netutil

import (
	"net/netip"
	"time"

	"golang.org/x/sys/unix"
)

// NewStreamSocket creates a nonblocking TCP/unix-domain stream socket for the given
// family. local-domain sockets are preferred for the command channel (spec §4.1).
func NewStreamSocket(fam Family) (*Socket, error) {
	domain := unix.AF_INET
	switch fam {
	case FamilyInet6:
		domain = unix.AF_INET6
	case FamilyUnix:
		domain = unix.AF_UNIX
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Socket{FD: fd, Type: SockStream, Family: fam}, nil
}

// NewDatagramSocket creates a nonblocking UDP socket.
func NewDatagramSocket(fam Family) (*Socket, error) {
	domain := unix.AF_INET
	if fam == FamilyInet6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Socket{FD: fd, Type: SockDgram, Family: fam}, nil
}

func sockaddr(a NetAddress) unix.Sockaddr {
	switch a.Family {
	case FamilyInet4:
		s := &unix.SockaddrInet4{Port: int(a.Port)}
		s.Addr = a.IP.As4()
		return s
	case FamilyInet6:
		s := &unix.SockaddrInet6{Port: int(a.Port)}
		s.Addr = a.IP.As16()
		return s
	case FamilyUnix:
		return &unix.SockaddrUnix{Name: a.Path}
	default:
		return nil
	}
}

func fromSockaddr(sa unix.Sockaddr) NetAddress {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return NetAddress{Family: FamilyInet4, IP: netip.AddrFrom4(v.Addr), Port: uint16(v.Port)}
	case *unix.SockaddrInet6:
		return NetAddress{Family: FamilyInet6, IP: netip.AddrFrom16(v.Addr), Port: uint16(v.Port)}
	case *unix.SockaddrUnix:
		return NetAddress{Family: FamilyUnix, Path: v.Name}
	default:
		return NetAddress{}
	}
}

func (s *Socket) Bind(a NetAddress) error {
	return unix.Bind(s.FD, sockaddr(a))
}

// Listen clamps backlog to the OS maximum, per spec §4.1.
func (s *Socket) Listen(backlog int) error {
	if backlog <= 0 || backlog > MaxListenBacklog {
		backlog = MaxListenBacklog
	}
	return unix.Listen(s.FD, backlog)
}

// Connect initiates (for nonblocking sockets) or performs a connect. EINPROGRESS is
// returned to the caller, which is expected to treat it as "posted" (async family) or
// retry (readiness family via poller writable event).
func (s *Socket) Connect(a NetAddress) error {
	return unix.Connect(s.FD, sockaddr(a))
}

// Accept returns a new nonblocking connected Socket plus its peer address, or
// unix.EAGAIN when no connection is pending.
func (s *Socket) Accept() (*Socket, NetAddress, error) {
	fd, sa, err := unix.Accept4(s.FD, unix.SOCK_NONBLOCK)
	if err != nil {
		return nil, NetAddress{}, err
	}
	addr := NetAddress{}
	if sa != nil {
		addr = fromSockaddr(sa)
	}
	return &Socket{FD: fd, Type: SockStream, Family: s.Family}, addr, nil
}

func (s *Socket) Send(b []byte) (int, error) {
	return unix.Write(s.FD, b)
}

func (s *Socket) Recv(b []byte) (int, error) {
	return unix.Read(s.FD, b)
}

func (s *Socket) SendTo(b []byte, a NetAddress) (int, error) {
	return len(b), unix.Sendto(s.FD, b, 0, sockaddr(a))
}

func (s *Socket) RecvFrom(b []byte) (int, NetAddress, error) {
	n, sa, err := unix.Recvfrom(s.FD, b, 0)
	if err != nil {
		return n, NetAddress{}, err
	}
	addr := NetAddress{}
	if sa != nil {
		addr = fromSockaddr(sa)
	}
	return n, addr, nil
}

func (s *Socket) Shutdown(how int) error {
	return unix.Shutdown(s.FD, how)
}

func (s *Socket) Close() error {
	return unix.Close(s.FD)
}

func (s *Socket) GetSockName() (NetAddress, error) {
	sa, err := unix.Getsockname(s.FD)
	if err != nil {
		return NetAddress{}, err
	}
	return fromSockaddr(sa), nil
}

func (s *Socket) GetPeerName() (NetAddress, error) {
	sa, err := unix.Getpeername(s.FD)
	if err != nil {
		return NetAddress{}, err
	}
	return fromSockaddr(sa), nil
}

// SockError reads and clears SO_ERROR, used after a nonblocking connect's writable
// event fires, per spec §4.6 step 4 ("For connect... check socket error").
func (s *Socket) SockError() error {
	errno, err := unix.GetsockoptInt(s.FD, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

// ClassifyIOErr reports whether err is a transient "try again" condition or an
// interrupted syscall, the two cases spec §7 says the loop must retry rather than
// surface; callers feed the result straight into errors.FromErrno.
func ClassifyIOErr(err error) (retryable, interrupted bool) {
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return true, false
	}
	if err == unix.EINTR {
		return false, true
	}
	return false, false
}

// SetOptions applies the uniform option set from spec §4.1. KeepAlive probe count must
// succeed or return an unsupported-option error rather than silently degrading.
func (s *Socket) SetOptions(o Options) error {
	fd := s.FD
	if o.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return err
		}
	}
	if o.ReusePort {
		if err := setReusePort(fd); err != nil {
			return err
		}
	}
	if o.NoDelay && s.Type == SockStream {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return err
		}
	}
	if o.LingerSeconds >= 0 {
		l := &unix.Linger{Onoff: 1, Linger: int32(o.LingerSeconds)}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, l); err != nil {
			return err
		}
	}
	if o.Broadcast {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
			return err
		}
	}
	if o.SendBufferSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, o.SendBufferSize); err != nil {
			return err
		}
	}
	if o.RecvBufferSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, o.RecvBufferSize); err != nil {
			return err
		}
	}
	if o.SendTimeout > 0 {
		if err := setTimeoutOpt(fd, unix.SO_SNDTIMEO, o.SendTimeout); err != nil {
			return err
		}
	}
	if o.RecvTimeout > 0 {
		if err := setTimeoutOpt(fd, unix.SO_RCVTIMEO, o.RecvTimeout); err != nil {
			return err
		}
	}
	if o.KeepAlive {
		if err := s.setKeepAlive(o); err != nil {
			return err
		}
	}
	if !o.Blocking {
		if err := unix.SetNonblock(fd, true); err != nil {
			return err
		}
	}
	if o.IPHeaderIncl {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
			return err
		}
	}
	s.Opts = o
	return nil
}

func setTimeoutOpt(fd int, opt int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, opt, &tv)
}
