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

// Package reqpool implements the Request object (spec §3/§4.2): a per-operation
// descriptor carrying a buffer slice, user data, result code, and queue linkage,
// freelisted through a per-process pool to avoid per-operation heap churn.
package reqpool

import (
	"sync"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
)

// Kind tags what operation a Request represents.
type Kind uint8

const (
	KindRead Kind = iota
	KindWrite
	KindAccept
	KindConnect
)

// HandleRef is the minimal contract a Request needs from its owning handle: identity
// for ownership checks. internal/handle.Handle satisfies this.
type HandleRef interface {
	ID() uint64
}

// Callback runs on the loop thread exactly once when a Request completes.
type Callback func(r *Request)

// Request is the uniform I/O operation descriptor spanning read/write/accept/connect,
// per spec §3. Completion-family posting stores a native completion record in Native;
// readiness-family posting links Request into a handle's pending queue via Next.
type Request struct {
	Kind     Kind
	Owner    HandleRef
	buf      []byte
	used     int
	Step     int // bytes already transferred, for partial writes
	Err      engerr.Kind
	UserData any
	Done     Callback
	Offset   int64 // positional read/write for files

	// Native holds an OS-native completion record pointer (OVERLAPPED on the
	// completion family, unused on readiness); it is opaque to this package.
	Native any

	// Next links Request into a handle's per-FD pending ring (readiness family) or
	// the loop's global pending ring during drainage (spec §3 "Pending ring").
	Next *Request

	// NewSock / PeerAddr / LocalAddr are populated on accept completion.
	NewSock   any
	PeerAddr  any
	LocalAddr any

	pool *Pool
	cap  int
}

// WritableSlice returns the portion of the buffer available for a read to fill.
func (r *Request) WritableSlice() []byte { return r.buf[r.used:cap(r.buf)] }

// ReadableSlice returns the portion of the buffer already populated for a write to
// drain.
func (r *Request) ReadableSlice() []byte { return r.buf[:r.used] }

// SetUsed records how many bytes of buf are valid, e.g. after a recv/read completes.
func (r *Request) SetUsed(n int) { r.used = n }

// Used returns the number of valid bytes currently in the buffer.
func (r *Request) Used() int { return r.used }

// Reset clears per-operation state so the Request can be reused from the pool. The
// underlying buffer capacity is preserved.
func (r *Request) Reset() {
	r.Kind = KindRead
	r.Owner = nil
	r.used = 0
	r.Step = 0
	r.Err = engerr.OK
	r.UserData = nil
	r.Done = nil
	r.Offset = 0
	r.Native = nil
	r.Next = nil
	r.NewSock = nil
	r.PeerAddr = nil
	r.LocalAddr = nil
}

// addressCacheSize is the padding reserved in accept requests for two endpoint
// addresses plus the slop the completion API (AcceptEx) mandates, per spec §4.2.
const addressCacheSize = 2 * (16 /*sockaddr_in6*/ + 16)

// AddressCache returns a scratch buffer sized for two endpoint addresses plus the
// completion API's mandated padding, used by AcceptEx-style completion posting.
func (r *Request) AddressCache(extra int) []byte {
	return make([]byte, addressCacheSize+extra)
}

// Pool is the per-process freelist backing Request.New/Request.Delete (spec §4.2).
// Pools are bucketed by power-of-two buffer capacity so a freed 4KiB-buffer Request is
// only reused for a request whose size rounds up to 4KiB (2049..4096 bytes).
type Pool struct {
	mu      sync.Mutex
	buckets map[int][]*Request
}

// NewPool constructs an empty Request pool.
func NewPool() *Pool {
	return &Pool{buckets: make(map[int][]*Request)}
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// New allocates (or reuses from the freelist) a Request with a power-of-two capacity
// buffer of at least capacity bytes, per spec §4.2.
func (p *Pool) New(capacity int) *Request {
	c := nextPow2(capacity)

	p.mu.Lock()
	bucket := p.buckets[c]
	var r *Request
	if n := len(bucket); n > 0 {
		r = bucket[n-1]
		p.buckets[c] = bucket[:n-1]
	}
	p.mu.Unlock()

	if r != nil {
		r.Reset()
		return r
	}
	return &Request{buf: make([]byte, c), cap: c, pool: p}
}

// Delete returns r to its bucket for reuse. It is safe to call on a Request obtained
// from any Pool instance; Delete always returns it to the pool that created it.
func (p *Pool) Delete(r *Request) {
	if r == nil {
		return
	}
	owner := r.pool
	if owner == nil {
		owner = p
	}
	r.Reset()
	owner.mu.Lock()
	owner.buckets[r.cap] = append(owner.buckets[r.cap], r)
	owner.mu.Unlock()
}
