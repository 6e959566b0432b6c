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

// Package slab implements the shared-memory slab allocator (spec §4.8/C8): a
// EngineData counters header followed by a page-based segregated-free-list pool, placed
// into a single mmap'd region so every child process sees the same allocator state.
package slab

import (
	"sync/atomic"
	"unsafe"
)

// EngineData is the fixed header at offset 0 of the shared region (spec §6 "Offset 0:
// EngineData header"). Every field is mutated only via sync/atomic so readers in other
// processes never observe a torn update; the struct's layout is fixed (no padding-
// sensitive reordering) since its field order is part of the region's on-disk format.
type EngineData struct {
	OpenHandles     int64
	ClosedHandles   int64
	InFlightReqs    int64
	BytesIn         int64
	BytesOut        int64
	PacketsIn       int64
	PacketsOut      int64
	HeartbeatSent   int64
	HeartbeatAcked  int64
	HeartbeatRecv   int64
	processTableOff int64 // reserved: offset of a process table; nothing in this module writes it
}

// EngineDataSize is the header's footprint in the region; the slab pool begins
// immediately after it, per spec §6.
const EngineDataSize = int(unsafe.Sizeof(EngineData{}))

func headerAt(region []byte) *EngineData {
	return (*EngineData)(unsafe.Pointer(&region[0]))
}

func (d *EngineData) addOpenHandle(n int64)   { atomic.AddInt64(&d.OpenHandles, n) }
func (d *EngineData) addClosedHandle(n int64) { atomic.AddInt64(&d.ClosedHandles, n) }
func (d *EngineData) addInFlight(n int64)     { atomic.AddInt64(&d.InFlightReqs, n) }

// AddBytes records n bytes transferred in direction (in=true) or out (in=false).
func (d *EngineData) AddBytes(n int64, in bool) {
	if in {
		atomic.AddInt64(&d.BytesIn, n)
	} else {
		atomic.AddInt64(&d.BytesOut, n)
	}
}

// AddPackets mirrors AddBytes for packet counts.
func (d *EngineData) AddPackets(n int64, in bool) {
	if in {
		atomic.AddInt64(&d.PacketsIn, n)
	} else {
		atomic.AddInt64(&d.PacketsOut, n)
	}
}

// HeartbeatSent / HeartbeatAcked / HeartbeatRecv satisfy cmdchannel.Counters, letting a
// Channel increment the shared, cross-process-visible EngineData totals directly
// (SPEC_FULL.md supplemented feature; grounded on
// original_source/Include/Engine.h's EngineStats.mHeartbeat/mHeartbeatResp).
func (d *EngineData) IncHeartbeatSent()  { atomic.AddInt64(&d.HeartbeatSent, 1) }
func (d *EngineData) IncHeartbeatAcked() { atomic.AddInt64(&d.HeartbeatAcked, 1) }
func (d *EngineData) IncHeartbeatRecv()  { atomic.AddInt64(&d.HeartbeatRecv, 1) }

// Region is a shared, process-visible mapped area: a live EngineData header plus the
// slab Pool that follows it. OpenRegion (region_unix.go / region_windows.go) backs it by
// a named file mapped MAP_SHARED so every process that opens the same path observes the
// same bytes.
type Region struct {
	mem    []byte
	closer func() error
}

// Header returns the region's EngineData counters block.
func (r *Region) Header() *EngineData { return headerAt(r.mem) }

// Pool returns the slab pool occupying the remainder of the region, initializing its
// layout on first use (spec §4.8 "initialize() computes the slot count..."). Callers in
// every process must pass the same pageSize/minShift; only the first caller to actually
// create the region's backing file performs initialization (see OpenRegion).
func (r *Region) Pool(pageSize int, minShift uint, fresh bool) *Pool {
	p := &Pool{region: r.mem[EngineDataSize:]}
	if fresh {
		p.initialize(pageSize, minShift)
	} else {
		p.attach()
	}
	return p
}

// Close unmaps the region.
func (r *Region) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// Size returns the total mapped region length, header included.
func (r *Region) Size() int { return len(r.mem) }
