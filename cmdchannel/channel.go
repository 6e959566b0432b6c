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

package cmdchannel

import (
	engerr "github.com/antmuse/AntEngine-sub001/errors"
	"github.com/antmuse/AntEngine-sub001/internal/corelog"
	"github.com/antmuse/AntEngine-sub001/internal/handle"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/poller"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
	"github.com/antmuse/AntEngine-sub001/loop"
)

// readChunk sizes each posted read Request; frames are reassembled across reads
// regardless of how they straddle this boundary (spec §4.7).
const readChunk = 4096

// Counters is the metrics-visible surface a Channel increments on both sides of a
// HEARTBEAT round trip (SPEC_FULL.md supplemented feature, grounded on
// original_source/Include/Engine.h's EngineStats.mHeartbeat/mHeartbeatResp fields).
// metrics.Registry satisfies this.
type Counters interface {
	HeartbeatSent()
	HeartbeatAcked()
	HeartbeatRecv()
}

type noopCounters struct{}

func (noopCounters) HeartbeatSent()  {}
func (noopCounters) HeartbeatAcked() {}
func (noopCounters) HeartbeatRecv()  {}

// TaskHandler runs a received TASK frame's payload on the loop thread.
type TaskHandler func(payload []byte)

// Channel is the cross-process command channel (spec §4.7): one connected end of a
// stream socket pair (typically netutil.SocketPair, with the other end handed to a
// spawned worker), bound into a Loop as a Stream handle. Outbound frames are written
// whole; inbound bytes are reassembled until whole frames can be dispatched.
type Channel struct {
	sock     *netutil.Socket
	stream   *handle.Stream
	loop     *loop.Loop
	reqs     *reqpool.Pool
	counters Counters
	log      corelog.Logger

	pending []byte // reassembly buffer, spec §4.7 "receiver accumulates into a reassembly buffer"
	sn      uint32

	handlers map[string]TaskHandler

	// OnExit fires when a non-response EXIT frame arrives, before the EXIT_RESP is sent
	// back; callers normally stop their Loop from here.
	OnExit func(sn uint32)
	// OnRespawn fires when a RESPAWN advisory frame arrives.
	OnRespawn func()
	// OnClosed fires once the underlying stream handle finishes closing.
	OnClosed func(err error)
}

// New wraps sock (already connected) as a command channel. counters may be nil, in
// which case heartbeat counting is a no-op (useful for tests that don't care about
// metrics wiring).
func New(sock *netutil.Socket, reqs *reqpool.Pool, counters Counters, log corelog.Logger) *Channel {
	if counters == nil {
		counters = noopCounters{}
	}
	return &Channel{
		sock:     sock,
		reqs:     reqs,
		counters: counters,
		log:      log,
		handlers: make(map[string]TaskHandler),
	}
}

// RegisterTask binds opcode to fn; a TASK frame naming this opcode, received on this
// channel, invokes fn on the loop thread. See NewTask's doc comment for why TASK frames
// carry an opcode string rather than a raw function pointer.
func (c *Channel) RegisterTask(opcode string, fn TaskHandler) {
	c.handlers[opcode] = fn
}

// Open registers the channel's socket with l under a freshly allocated handle ID and
// starts the read loop. onClose, if non-nil, runs before OnClosed when the stream
// handle's close completes.
func (c *Channel) Open(l *loop.Loop, onClose handle.CloseFunc) error {
	c.loop = l
	c.stream = handle.NewStream(l.NextHandleID(), c.sock)
	c.stream.OpenStream(l, func(h *handle.Handle, err error) {
		if onClose != nil {
			onClose(h, err)
		}
		if c.OnClosed != nil {
			c.OnClosed(err)
		}
	})
	if err := l.OpenHandle(c.sock.FD, &c.stream.Handle, poller.EventReadable); err != nil {
		return err
	}
	return c.postRead()
}

// Close begins closing the underlying stream handle (spec §3 RequestClose semantics).
func (c *Channel) Close() bool { return c.stream.Close() }

func (c *Channel) postRead() error {
	req := c.reqs.New(readChunk)
	req.Done = c.onRead
	return c.stream.Read(req, c.loop)
}

func (c *Channel) onRead(req *reqpool.Request) {
	defer c.reqs.Delete(req)

	if req.Err != engerr.OK {
		if c.log != nil {
			c.log.Warn("cmdchannel read failed", corelog.F("error", req.Err))
		}
		return
	}

	c.pending = append(c.pending, req.ReadableSlice()...)
	consumed := c.drainFrames()
	if consumed > 0 {
		remaining := len(c.pending) - consumed
		copy(c.pending, c.pending[consumed:])
		c.pending = c.pending[:remaining]
	}

	if c.stream.IsClosing() {
		return
	}
	if err := c.postRead(); err != nil && c.log != nil {
		c.log.Warn("cmdchannel repost read failed", corelog.F("error", err))
	}
}

// drainFrames dispatches every whole frame currently in c.pending and returns how many
// bytes were consumed, mirroring the source's Loop::onRead header-walk (spec §4.7).
func (c *Channel) drainFrames() int {
	consumed := 0
	for consumed+HeaderSize <= len(c.pending) {
		h := GetHeader(c.pending[consumed:])
		if h.Size < HeaderSize || consumed+int(h.Size) > len(c.pending) {
			break
		}
		payload := c.pending[consumed+HeaderSize : consumed+int(h.Size)]
		c.dispatch(h, payload)
		consumed += int(h.Size)
	}
	return consumed
}

func (c *Channel) dispatch(h Header, payload []byte) {
	switch h.Base() {
	case TypeExit:
		if h.IsResponse() {
			return
		}
		if c.OnExit != nil {
			c.OnExit(h.SN)
		}
		c.sendErr(NewExitResp(h.SN))

	case TypeHeartbeat:
		if h.IsResponse() {
			c.counters.HeartbeatAcked()
			return
		}
		c.counters.HeartbeatRecv()
		c.sendErr(NewHeartbeatResp(h.SN))

	case TypeRespawn:
		if h.IsResponse() {
			return
		}
		if c.OnRespawn != nil {
			c.OnRespawn()
		}

	case TypeTask:
		if h.IsResponse() {
			return
		}
		opcode, data, ok := DecodeTask(payload)
		if !ok {
			if c.log != nil {
				c.log.Warn("cmdchannel malformed task frame")
			}
			return
		}
		if fn, found := c.handlers[opcode]; found {
			fn(data)
		} else if c.log != nil {
			c.log.Warn("cmdchannel unknown task opcode", corelog.F("opcode", opcode))
		}

	default:
		if c.log != nil {
			c.log.Warn("cmdchannel unknown frame type", corelog.F("type", uint16(h.Type)))
		}
	}
}

func (c *Channel) sendErr(f Frame) {
	if err := c.send(f); err != nil && c.log != nil {
		c.log.Warn("cmdchannel send failed", corelog.F("error", err), corelog.F("type", uint16(f.Type)))
	}
}

func (c *Channel) send(f Frame) error {
	buf := f.Encode()
	req := c.reqs.New(len(buf))
	n := copy(req.WritableSlice(), buf)
	req.SetUsed(n)
	req.Done = func(r *reqpool.Request) { c.reqs.Delete(r) }
	return c.stream.Write(req, c.loop)
}

func (c *Channel) nextSN() uint32 {
	c.sn++
	return c.sn
}

// SendExit writes an EXIT request frame (spec §4.7).
func (c *Channel) SendExit() error { return c.send(NewExit(c.nextSN())) }

// SendHeartbeat writes a HEARTBEAT request frame and counts it as sent.
func (c *Channel) SendHeartbeat() error {
	c.counters.HeartbeatSent()
	return c.send(NewHeartbeat(c.nextSN()))
}

// SendRespawn writes a RESPAWN advisory frame (spec §4.7).
func (c *Channel) SendRespawn() error { return c.send(NewRespawn(c.nextSN())) }

// SendTask writes a TASK frame naming opcode, invoking the remote side's handler
// registered via RegisterTask.
func (c *Channel) SendTask(opcode string, payload []byte) error {
	return c.send(NewTask(c.nextSN(), opcode, payload))
}
