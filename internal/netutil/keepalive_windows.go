//go:build windows

package netutil

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/windows"
)

const sioKeepaliveVals = windows.IOC_IN | windows.IOC_VENDOR | 4

// setKeepAliveVals issues the SIO_KEEPALIVE_VALS control code, the Windows mechanism
// for per-connection keepalive idle/interval tuning (there is no setsockopt for it).
func setKeepAliveVals(fd windows.Handle, idle, interval time.Duration) error {
	var in [12]byte
	binary.LittleEndian.PutUint32(in[0:4], 1) // onoff
	binary.LittleEndian.PutUint32(in[4:8], uint32(idle.Milliseconds()))
	binary.LittleEndian.PutUint32(in[8:12], uint32(interval.Milliseconds()))
	var out [4]byte
	var ret uint32
	return windows.WSAIoctl(fd, sioKeepaliveVals, &in[0], uint32(len(in)), &out[0], uint32(len(out)), &ret, nil, 0)
}
