//go:build linux || darwin

package netutil

import "golang.org/x/sys/unix"

// SocketPair opens two connected stream endpoints, local-domain preferred, per spec
// §4.1. Native AF_UNIX socketpair succeeds unconditionally on this family.
func SocketPair() (*Socket, *Socket, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, nil, err
		}
	}
	a := &Socket{FD: fds[0], Type: SockStream, Family: FamilyUnix}
	b := &Socket{FD: fds[1], Type: SockStream, Family: FamilyUnix}
	return a, b, nil
}
