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

// Package ring implements the Pending ring (spec §3): a pointer to the tail of a
// circular singly-linked list of Requests whose head is tail.Next. Push-tail,
// push-head and pop-head are all O(1); the ring is empty iff the tail pointer is nil.
// Handles own two such rings (read/write); the loop owns one global ring used during
// event drainage.
package ring

import "github.com/antmuse/AntEngine-sub001/internal/reqpool"

// Ring is an intrusive circular singly-linked list of *reqpool.Request, per spec §3.
type Ring struct {
	tail *reqpool.Request
	n    int
}

// Empty reports whether the ring holds no requests.
func (r *Ring) Empty() bool { return r.tail == nil }

// Len returns the number of requests currently queued.
func (r *Ring) Len() int { return r.n }

// PushTail appends req at the tail, O(1).
func (r *Ring) PushTail(req *reqpool.Request) {
	if r.tail == nil {
		req.Next = req
	} else {
		req.Next = r.tail.Next
		r.tail.Next = req
	}
	r.tail = req
	r.n++
}

// PushHead prepends req at the head, O(1). Used to re-queue a request after a partial
// result or RETRY (spec §8 "RETRY... request re-queued at head").
func (r *Ring) PushHead(req *reqpool.Request) {
	if r.tail == nil {
		req.Next = req
		r.tail = req
	} else {
		req.Next = r.tail.Next
		r.tail.Next = req
	}
	r.n++
}

// PopHead removes and returns the head request, or nil if the ring is empty.
func (r *Ring) PopHead() *reqpool.Request {
	if r.tail == nil {
		return nil
	}
	head := r.tail.Next
	if head == r.tail {
		r.tail = nil
	} else {
		r.tail.Next = head.Next
	}
	head.Next = nil
	r.n--
	return head
}

// Peek returns the head request without removing it, or nil if empty.
func (r *Ring) Peek() *reqpool.Request {
	if r.tail == nil {
		return nil
	}
	return r.tail.Next
}

// DrainInto pops every request out of r and appends them, in FIFO order, to dst. This
// is how a closing handle's read/write rings are drained into the loop's global pending
// ring with a cancellation error (spec §3 "close... drains their request queues into
// the loop pending ring").
func (r *Ring) DrainInto(dst *Ring) {
	for {
		req := r.PopHead()
		if req == nil {
			return
		}
		dst.PushTail(req)
	}
}
