//go:build linux

package netutil

import "golang.org/x/sys/unix"

func setReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// setKeepAlive configures idle/interval/probe-count keepalive. Linux supports all
// three knobs natively, so this never needs to report unsupported.
func (s *Socket) setKeepAlive(o Options) error {
	fd := s.FD
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	if o.KeepIdle > 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(o.KeepIdle.Seconds())); err != nil {
			return err
		}
	}
	if o.KeepInterval > 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(o.KeepInterval.Seconds())); err != nil {
			return err
		}
	}
	if o.KeepProbes > 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, o.KeepProbes); err != nil {
			return err
		}
	}
	return nil
}

// setPromiscuous toggles IFF_PROMISC via SIOCSIFFLAGS; wired only on Linux where a raw
// socket bound to an interface makes this meaningful.
func setPromiscuous(fd int, ifname string, on bool) error {
	idx, err := unix.IfNameToIndex(ifname)
	if err != nil {
		return err
	}
	mreq := unix.PacketMreq{
		Ifindex: int32(idx),
		Type:    unix.PACKET_MR_PROMISC,
	}
	opt := unix.PACKET_ADD_MEMBERSHIP
	if !on {
		opt = unix.PACKET_DROP_MEMBERSHIP
	}
	return unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, opt, &mreq)
}
