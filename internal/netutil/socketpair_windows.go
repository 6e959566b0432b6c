//go:build windows

package netutil

import "golang.org/x/sys/windows"

// SocketPair fabricates a connected pair on the family without a native socketpair:
// listen on loopback, self-connect, accept, then discard the listener, per spec §4.1.
func SocketPair() (*Socket, *Socket, error) {
	lst, err := NewStreamSocket(FamilyInet4)
	if err != nil {
		return nil, nil, err
	}
	defer lst.Close()

	loop := NetAddress{Family: FamilyInet4, Port: 0}
	if err := lst.Bind(loop); err != nil {
		return nil, nil, err
	}
	if err := lst.Listen(1); err != nil {
		return nil, nil, err
	}
	addr, err := lst.GetSockName()
	if err != nil {
		return nil, nil, err
	}
	addr.IP = addr.IP // loopback already set by the OS-assigned bind

	clientSock, err := NewStreamSocket(FamilyInet4)
	if err != nil {
		return nil, nil, err
	}
	if err := clientSock.Connect(addr); err != nil && err != windows.WSAEWOULDBLOCK {
		clientSock.Close()
		return nil, nil, err
	}

	serverSock, _, err := lst.Accept()
	if err != nil {
		clientSock.Close()
		return nil, nil, err
	}
	return serverSock, clientSock, nil
}
