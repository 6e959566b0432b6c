/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package netutil provides the engine's socket abstraction (spec §4.1): an opaque
// handle wrapper over an OS socket descriptor, address handling sized to hold either an
// IPv4 or IPv6 endpoint, and a connected-pair primitive for the command channel.
package netutil

import (
	"fmt"
	"net"
	"net/netip"
)

// Family distinguishes the wire family of a NetAddress.
type Family uint8

const (
	FamilyUnspecified Family = iota
	FamilyInet4
	FamilyInet6
	FamilyUnix
)

// NetAddress holds either an IPv4 or IPv6 endpoint (or a filesystem path for
// AF_UNIX) in one fixed-shape value, per spec §4.1.
type NetAddress struct {
	Family Family
	IP     netip.Addr
	Port   uint16
	Path   string // AF_UNIX only
}

// AddrFromTCP builds a NetAddress from a *net.TCPAddr, normalizing 4-in-6 addresses to
// FamilyInet4 so the canonical text form matches what callers expect to log.
func AddrFromTCP(a *net.TCPAddr) NetAddress {
	if a == nil {
		return NetAddress{}
	}
	ip, _ := netip.AddrFromSlice(a.IP)
	ip = ip.Unmap()
	fam := FamilyInet6
	if ip.Is4() {
		fam = FamilyInet4
	}
	return NetAddress{Family: fam, IP: ip, Port: uint16(a.Port)}
}

// UnixPath builds a NetAddress for an AF_UNIX endpoint.
func UnixPath(path string) NetAddress {
	return NetAddress{Family: FamilyUnix, Path: path}
}

// String renders the canonical "IP:port" text form used in logs, per spec §4.1.
func (a NetAddress) String() string {
	switch a.Family {
	case FamilyUnix:
		return a.Path
	case FamilyInet4, FamilyInet6:
		return fmt.Sprintf("%s:%d", a.IP.String(), a.Port)
	default:
		return "<unspecified>"
	}
}

// TCPAddr converts back to *net.TCPAddr for APIs that still need it (e.g. dialing
// helpers in tests).
func (a NetAddress) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: a.IP.AsSlice(), Port: int(a.Port)}
}

// ParseNetAddress parses a "host:port" string into a NetAddress.
func ParseNetAddress(s string) (NetAddress, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return NetAddress{}, err
	}
	fam := FamilyInet6
	if ap.Addr().Is4() {
		fam = FamilyInet4
	}
	return NetAddress{Family: fam, IP: ap.Addr(), Port: ap.Port()}, nil
}
