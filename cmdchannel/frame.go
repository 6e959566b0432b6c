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

// Package cmdchannel implements the cross-process command channel (spec §4.7): a fixed
// 16-byte binary frame header over a connected stream socket, used by the supervisor to
// drive worker processes (exit, heartbeat, respawn) and to invoke registered tasks on a
// remote loop.
package cmdchannel

import "encoding/binary"

// Type tags a frame's payload shape. The high bit (RespBit) distinguishes a response
// from the request it answers, per spec §4.7.
type Type uint16

const (
	RespBit Type = 0x8000

	TypeExit      Type = 1
	TypeExitResp       = RespBit | TypeExit
	TypeHeartbeat Type = 2
	TypeHeartbeatResp  = RespBit | TypeHeartbeat
	TypeTask      Type = 3
	TypeRespawn   Type = 4
)

// ProtocolVersion is stamped into every frame header's Version field, per spec §4.7's
// VERSION type ("used as version constant").
const ProtocolVersion uint16 = 0xF001

// HeaderSize is the fixed wire size of Header, per spec §6 ("header is {u32 size; u16
// type; u16 version; u32 sn} (16 bytes)"). The four named fields sum to 12 bytes; the
// remaining 4 bytes are reserved padding, written as zero and ignored on read, matching
// the original's platform struct layout.
const HeaderSize = 16

// Header is the fixed frame header, little-endian on the wire (spec §6).
type Header struct {
	Size    uint32 // total frame size, header + payload
	Type    Type
	Version uint16
	SN      uint32 // sequence number, correlates a response to its request
}

// IsResponse reports whether h.Type carries RespBit.
func (h Header) IsResponse() bool { return h.Type&RespBit != 0 }

// Base strips RespBit, returning the request type a response answers.
func (h Header) Base() Type { return h.Type &^ RespBit }

// Frame is a decoded header plus its payload bytes.
type Frame struct {
	Header
	Payload []byte
}

// PutHeader encodes h into the first HeaderSize bytes of b, per spec §6's little-endian
// wire format. b must be at least HeaderSize bytes.
func PutHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint32(b[0:4], h.Size)
	binary.LittleEndian.PutUint16(b[4:6], uint16(h.Type))
	binary.LittleEndian.PutUint16(b[6:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.SN)
	for i := 12; i < HeaderSize; i++ {
		b[i] = 0
	}
}

// GetHeader decodes a Header from the first HeaderSize bytes of b.
func GetHeader(b []byte) Header {
	return Header{
		Size:    binary.LittleEndian.Uint32(b[0:4]),
		Type:    Type(binary.LittleEndian.Uint16(b[4:6])),
		Version: binary.LittleEndian.Uint16(b[6:8]),
		SN:      binary.LittleEndian.Uint32(b[8:12]),
	}
}

// Encode writes f's header and payload into a fresh byte slice ready to send.
func (f Frame) Encode() []byte {
	out := make([]byte, HeaderSize+len(f.Payload))
	f.Header.Size = uint32(len(out))
	PutHeader(out, f.Header)
	copy(out[HeaderSize:], f.Payload)
	return out
}

func newFrame(t Type, sn uint32, payload []byte) Frame {
	return Frame{
		Header:  Header{Type: t, Version: ProtocolVersion, SN: sn},
		Payload: payload,
	}
}

// NewExit builds an EXIT request frame (spec §4.7: "initiate shutdown on this loop").
func NewExit(sn uint32) Frame { return newFrame(TypeExit, sn, nil) }

// NewExitResp builds the EXIT_RESP acknowledgement, echoing the request's sn.
func NewExitResp(sn uint32) Frame { return newFrame(TypeExitResp, sn, nil) }

// NewHeartbeat builds a HEARTBEAT request frame (spec §4.7: "request -> response
// round-trip; increments counters").
func NewHeartbeat(sn uint32) Frame { return newFrame(TypeHeartbeat, sn, nil) }

// NewHeartbeatResp builds the HEARTBEAT response, echoing the request's sn.
func NewHeartbeatResp(sn uint32) Frame { return newFrame(TypeHeartbeatResp, sn, nil) }

// NewRespawn builds a RESPAWN advisory frame (spec §4.7: "supervisor respawns this
// worker").
func NewRespawn(sn uint32) Frame { return newFrame(TypeRespawn, sn, nil) }

// NewTask builds a TASK frame. Unlike the source (whose TASK frame carries a raw
// function pointer valid because fork() shares the parent's address space with its
// children), a Go supervisor's workers are independently exec'd processes with no
// shared address space, so a bare pointer would be meaningless across the wire. TASK
// frames here instead name a locally-registered opcode string plus an opaque payload;
// Channel.RegisterTask binds opcode strings to handlers on each side independently. This
// is a deliberate generalization of spec §4.7's "function pointer + optional this + user
// data" payload to a process-boundary-safe encoding, noted in DESIGN.md.
func NewTask(sn uint32, opcode string, payload []byte) Frame {
	buf := make([]byte, 2+len(opcode)+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(opcode)))
	copy(buf[2:], opcode)
	copy(buf[2+len(opcode):], payload)
	return newFrame(TypeTask, sn, buf)
}

// DecodeTask splits a TASK frame's payload back into its opcode and user payload.
func DecodeTask(payload []byte) (opcode string, data []byte, ok bool) {
	if len(payload) < 2 {
		return "", nil, false
	}
	n := int(binary.LittleEndian.Uint16(payload[0:2]))
	if len(payload) < 2+n {
		return "", nil, false
	}
	return string(payload[2 : 2+n]), payload[2+n:], true
}
