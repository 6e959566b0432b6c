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

// Package timerheap implements the engine's timer wheel (spec §4.4): a single
// min-heap per loop, keyed by absolute deadline, ties broken by insertion order.
package timerheap

import "container/heap"

// Item is anything that can sit in the timer heap; internal/handle.TimedHandle
// satisfies it.
type Item interface {
	// HeapIndex/SetHeapIndex let the heap maintain each item's position so Remove and
	// Relink are O(log n) instead of O(n) scans.
	HeapIndex() int
	SetHeapIndex(i int)
}

type entry struct {
	deadline int64 // unix nanos
	seq      uint64
	item     Item
}

// Heap is the min-heap described by spec §4.4. It is not safe for concurrent use;
// callers (the loop) own it on the loop thread only.
type Heap struct {
	entries []*entry
	seq     uint64
	index   map[Item]*entry
}

// New constructs an empty timer heap.
func New() *Heap {
	return &Heap{index: make(map[Item]*entry)}
}

func (h *Heap) Len() int { return len(h.entries) }

func (h *Heap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.seq < b.seq // ties broken by insertion order, per spec §3
}

func (h *Heap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].item.SetHeapIndex(i)
	h.entries[j].item.SetHeapIndex(j)
}

func (h *Heap) Push(x any) {
	e := x.(*entry)
	e.item.SetHeapIndex(len(h.entries))
	h.entries = append(h.entries, e)
}

func (h *Heap) Pop() any {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.entries = old[:n-1]
	e.item.SetHeapIndex(-1)
	return e
}

// Insert adds item with the given absolute deadline (unix nanoseconds).
func (h *Heap) Insert(item Item, deadlineUnixNano int64) {
	h.seq++
	e := &entry{deadline: deadlineUnixNano, seq: h.seq, item: item}
	h.index[item] = e
	heap.Push(h, e)
}

// Remove deletes item from the heap, O(log n). No-op if item is not present.
func (h *Heap) Remove(item Item) {
	_, ok := h.index[item]
	if !ok {
		return
	}
	idx := item.HeapIndex()
	if idx >= 0 && idx < len(h.entries) {
		heap.Remove(h, idx)
	}
	delete(h.index, item)
}

// Relink removes item (if present) and reinserts it at a new deadline, as done after
// every successful read/write on an idle-timed handle (spec §4.4).
func (h *Heap) Relink(item Item, deadlineUnixNano int64) {
	h.Remove(item)
	h.Insert(item, deadlineUnixNano)
}

// PeekDeadline returns the earliest deadline in the heap and true, or (0, false) when
// empty.
func (h *Heap) PeekDeadline() (int64, bool) {
	if len(h.entries) == 0 {
		return 0, false
	}
	return h.entries[0].deadline, true
}

// PopExpired removes and returns every item whose deadline is <= nowUnixNano, in
// deadline order, implementing the firing policy of spec §4.4 ("while the top
// element's deadline <= now, pop-call-reinsert" — the reinsertion itself is the
// caller's responsibility, driven by the callback's return value).
func (h *Heap) PopExpired(nowUnixNano int64) []Item {
	var out []Item
	for len(h.entries) > 0 && h.entries[0].deadline <= nowUnixNano {
		e := heap.Pop(h).(*entry)
		delete(h.index, e.item)
		out = append(out, e.item)
	}
	return out
}

// Contains reports whether item is currently linked into the heap.
func (h *Heap) Contains(item Item) bool {
	_, ok := h.index[item]
	return ok
}
