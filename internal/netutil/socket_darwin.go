//go:build darwin

package netutil

import "golang.org/x/sys/unix"

func setReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// setKeepAlive configures idle/interval keepalive. darwin has no TCP_KEEPCNT, so a
// requested probe count must fail loudly (spec §4.1) rather than be silently dropped.
func (s *Socket) setKeepAlive(o Options) error {
	fd := s.FD
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	if o.KeepIdle > 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPALIVE, int(o.KeepIdle.Seconds())); err != nil {
			return err
		}
	}
	if o.KeepInterval > 0 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(o.KeepInterval.Seconds())); err != nil {
			return err
		}
	}
	if o.KeepProbes > 0 {
		return errUnsupported("keepalive probe count")
	}
	return nil
}

func setPromiscuous(fd int, ifname string, on bool) error {
	return errUnsupported("promiscuous mode")
}
