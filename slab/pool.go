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

package slab

import (
	"math/bits"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/bits-and-blooms/bitset"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
)

// pageKind tags what a pageDesc currently holds (spec §4.8's four chunk regimes plus the
// free-page bookkeeping states).
type pageKind int32

const (
	pageFreeHead pageKind = iota // head of a free, unallocated multi-page run
	pageFreeCont                 // continuation page of a free run
	pageRunHead                  // head of an allocated whole-page run ("page" class)
	pageRunCont                  // continuation page of an allocated run
	pageSmall                    // size class below the exact-word boundary
	pageExact                    // size class whose chunk count exactly fills one word
	pageBig                      // size class above the exact-word boundary
)

// listEnd / notLinked are the two link-field sentinels: listEnd marks the start/end of a
// doubly-linked list, notLinked marks a page that is not currently a member of any list
// (fully-used pages are evicted from their slot's free list, per spec §4.8).
const (
	listEnd   int64 = -1
	notLinked int64 = -2
)

// pageDesc is one page-array slot (spec §4.8's "page array"); index i describes the page
// at data offset i*pageSize. run/head disambiguate by role: a run or free head stores its
// length in run, a continuation page stores its run's head index in head. word is the
// chunk-bitmap for the Exact/Big regimes (spec: "bitmap is exactly one machine word... or
// occupies [bits of] that word"); Small pages keep their (possibly >64-bit) bitmap
// embedded in the page's own data instead (spec: "bitmap lives in the first chunks of the
// page itself").
type pageDesc struct {
	run  int64
	head int64
	word uint64
	next int64
	prev int64
	kind pageKind
	slot int32
}

// poolHeader is the fixed-layout block at the start of the pool region (right after
// EngineData), holding the spinlock and the layout geometry every attaching process must
// agree on.
type poolHeader struct {
	lock uint32
	_    uint32

	pageSize     int64
	minShift     uint64
	exactShift   uint64
	maxSlabSize  int64
	slotCount    int64
	pageCount    int64
	dataOffset   int64 // offset of the page-aligned data area, relative to the pool region
	freePageHead int64
}

var poolHeaderSize = int(unsafe.Sizeof(poolHeader{}))
var pageDescSize = int(unsafe.Sizeof(pageDesc{}))

// PageStat mirrors the source's MemStat: total chunks available, chunks in use, lifetime
// allocation requests, and allocation failures, one instance per size-class slot (spec
// §4.8's "statistics are maintained per size class").
type PageStat struct {
	Total    int64
	Used     int64
	Requests int64
	Fails    int64
}

// Pool is the shared slab allocator (spec §4.8/C8): a page-based segregated free-list
// allocator, serialized by a spinlock so every process mapping the same Region sees a
// consistent layout. All exported methods take offsets relative to the pool's data area,
// not raw pointers — Go's allocator gives every process its own virtual mapping address,
// so only offsets are meaningful across the process boundary.
type Pool struct {
	region []byte
	hdr    *poolHeader
	slots  []int64 // one free-list head per size-class slot
	stats  []PageStat
	pages  []pageDesc
	data   []byte
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

// initialize lays out a brand-new pool over p.region, per spec §4.8's "initialize()
// computes the slot count from min_shift and page_shift, lays out slot heads, a stats
// array, then a page-array covering the remainder." Only the process that created the
// backing region (OpenRegion's fresh==true) calls this; others call attach.
func (p *Pool) initialize(pageSize int, minShift uint) {
	pageShift := uint(bits.Len(uint(pageSize))) - 1
	exactSize := pageSize / 64 // page_size / (8 * word_size), word_size == 8 bytes
	exactShift := uint(bits.Len(uint(exactSize))) - 1
	slotCount := int64(pageShift - minShift)

	base := poolHeaderSize + int(slotCount)*8 + int(slotCount)*int(unsafe.Sizeof(PageStat{}))
	pageCount := int64((len(p.region) - base) / (pageDescSize + pageSize))
	if pageCount < 0 {
		pageCount = 0
	}
	dataOffset := alignUp(base+int(pageCount)*pageDescSize, pageSize)
	for pageCount > 0 && dataOffset+int(pageCount)*pageSize > len(p.region) {
		pageCount--
		dataOffset = alignUp(base+int(pageCount)*pageDescSize, pageSize)
	}

	hdr := (*poolHeader)(unsafe.Pointer(&p.region[0]))
	hdr.pageSize = int64(pageSize)
	hdr.minShift = uint64(minShift)
	hdr.exactShift = uint64(exactShift)
	hdr.maxSlabSize = int64(pageSize / 2)
	hdr.slotCount = slotCount
	hdr.pageCount = pageCount
	hdr.dataOffset = int64(dataOffset)
	hdr.freePageHead = listEnd
	hdr.lock = 0
	p.hdr = hdr

	p.attachSlices()

	for i := range p.slots {
		p.slots[i] = listEnd
	}
	for i := range p.stats {
		p.stats[i] = PageStat{}
	}

	if pageCount > 0 {
		p.pages[0] = pageDesc{kind: pageFreeHead, run: pageCount, head: -1, next: listEnd, prev: listEnd}
		for i := int64(1); i < pageCount; i++ {
			p.pages[i] = pageDesc{kind: pageFreeCont, head: 0, next: notLinked, prev: notLinked}
		}
		hdr.freePageHead = 0
	}
}

// attach binds Pool's slice overlays to a region a sibling process already initialized.
func (p *Pool) attach() {
	p.hdr = (*poolHeader)(unsafe.Pointer(&p.region[0]))
	p.attachSlices()
}

func (p *Pool) attachSlices() {
	slotsOff := poolHeaderSize
	statsOff := slotsOff + int(p.hdr.slotCount)*8
	pagesOff := statsOff + int(p.hdr.slotCount)*int(unsafe.Sizeof(PageStat{}))

	if p.hdr.slotCount > 0 {
		p.slots = unsafe.Slice((*int64)(unsafe.Pointer(&p.region[slotsOff])), p.hdr.slotCount)
		p.stats = unsafe.Slice((*PageStat)(unsafe.Pointer(&p.region[statsOff])), p.hdr.slotCount)
	}
	if p.hdr.pageCount > 0 {
		p.pages = unsafe.Slice((*pageDesc)(unsafe.Pointer(&p.region[pagesOff])), p.hdr.pageCount)
	}
	p.data = p.region[p.hdr.dataOffset:]
}

// lock / unlock implement the pool-wide spinlock (spec §4.8 "all operations take a
// spinlock held over the allocator header"), a CAS spin over a word in the shared region
// so it serializes every process mapping it, not just goroutines in this one.
func (p *Pool) lock() {
	for !atomic.CompareAndSwapUint32(&p.hdr.lock, 0, 1) {
		runtime.Gosched()
	}
}

func (p *Pool) unlock() { atomic.StoreUint32(&p.hdr.lock, 0) }

// SlotCount returns the number of size-class slots.
func (p *Pool) SlotCount() int { return int(p.hdr.slotCount) }

// PageSize returns the pool's configured page size in bytes.
func (p *Pool) PageSize() int { return int(p.hdr.pageSize) }

// MaxSlabSize returns the largest request size served by a size-class chunk; larger
// requests are served whole pages directly.
func (p *Pool) MaxSlabSize() int { return int(p.hdr.maxSlabSize) }

// Bytes returns the size-byte slice backing offset, for reading or writing data placed
// there by Alloc. The slice aliases the pool's shared region directly, so writes through
// it are visible to every process mapping the same Region.
func (p *Pool) Bytes(offset int64, size int) []byte {
	return p.data[offset : offset+int64(size) : offset+int64(size)]
}

// Stat returns a snapshot of size-class slot's statistics.
func (p *Pool) Stat(slot int) PageStat {
	p.lock()
	defer p.unlock()
	return p.stats[slot]
}

// classify picks the size-class shift/slot for a request, per spec §4.8: power-of-two
// classes from min_size up; requests at or below min_size use slot 0.
func classify(n int, minShift uint) (shift uint, slot int64) {
	minSize := 1 << minShift
	if n <= minSize {
		return minShift, 0
	}
	shift = uint(bits.Len(uint(n - 1)))
	return shift, int64(shift) - int64(minShift)
}

// Alloc reserves n bytes, returning an offset relative to the pool's data area (spec
// §4.8). Requests larger than max_slab_size are served whole pages; smaller requests are
// rounded up to a size class and served a chunk from a partially-free page of that class,
// allocating a fresh page when none is partially free.
func (p *Pool) Alloc(n int) (int64, error) {
	if n <= 0 {
		return 0, engerr.New(engerr.InvalidParam, "slab: alloc size must be positive")
	}
	p.lock()
	defer p.unlock()

	pageSize := int64(p.hdr.pageSize)
	if int64(n) > p.hdr.maxSlabSize {
		pages := (int64(n) + pageSize - 1) / pageSize
		idx, err := p.allocPages(pages)
		if err != nil {
			return 0, err
		}
		return idx * pageSize, nil
	}

	shift, slot := classify(n, uint(p.hdr.minShift))
	st := &p.stats[slot]
	st.Requests++

	if headIdx := p.slots[slot]; headIdx != listEnd {
		offset, full, err := p.allocChunk(headIdx, shift, slot)
		if err == nil {
			st.Used++
			if full {
				unlinkDoubly(&p.slots[slot], p.pages, headIdx)
			}
			return offset, nil
		}
	}

	idx, err := p.allocPages(1)
	if err != nil {
		st.Fails++
		return 0, err
	}
	p.initPage(idx, slot, shift)
	linkDoubly(&p.slots[slot], p.pages, idx)

	offset, full, err := p.allocChunk(idx, shift, slot)
	if err != nil {
		st.Fails++
		return 0, err
	}
	st.Used++
	if full {
		unlinkDoubly(&p.slots[slot], p.pages, idx)
	}
	return offset, nil
}

// Free releases an offset previously returned by Alloc, per spec §4.8: locates the
// owning page, clears the chunk's bit, and returns the page to its free-page run once
// every chunk on it is free; adjacent free runs coalesce both ways via freePages.
func (p *Pool) Free(offset int64) error {
	p.lock()
	defer p.unlock()

	if offset < 0 || offset >= int64(len(p.data)) {
		return engerr.New(engerr.InvalidParam, "slab: offset outside pool data area")
	}
	pageSize := int64(p.hdr.pageSize)
	idx := offset / pageSize
	pg := &p.pages[idx]

	switch pg.kind {
	case pageRunHead:
		p.freePages(idx, pg.run)
		return nil

	case pageSmall:
		shift := uint(p.hdr.minShift) + uint(pg.slot)
		offInPage := offset - idx*pageSize
		wasFull, empty := p.freeChunkSmall(idx, offInPage, shift)
		slot := int64(pg.slot)
		p.stats[slot].Used--
		if wasFull {
			linkDoubly(&p.slots[slot], p.pages, idx)
		}
		if empty {
			cpp := pageSize >> shift
			p.stats[slot].Total -= cpp - controlChunks(shift, pageSize)
			unlinkDoubly(&p.slots[slot], p.pages, idx)
			p.freePages(idx, 1)
		}
		return nil

	case pageExact, pageBig:
		shift := uint(p.hdr.minShift) + uint(pg.slot)
		offInPage := offset - idx*pageSize
		wasFull, empty := freeChunkWord(pg, offInPage, shift, pageSize)
		slot := int64(pg.slot)
		p.stats[slot].Used--
		if wasFull {
			linkDoubly(&p.slots[slot], p.pages, idx)
		}
		if empty {
			p.stats[slot].Total -= pageSize >> shift
			unlinkDoubly(&p.slots[slot], p.pages, idx)
			p.freePages(idx, 1)
		}
		return nil

	default:
		return engerr.New(engerr.InvalidParam, "slab: double free or corrupt offset")
	}
}

func (p *Pool) allocChunk(idx int64, shift uint, slot int64) (int64, bool, error) {
	if shift < uint(p.hdr.exactShift) {
		return p.allocChunkSmall(idx, shift)
	}
	return allocChunkWord(&p.pages[idx], idx, shift, int64(p.hdr.pageSize))
}

func (p *Pool) initPage(idx, slot int64, shift uint) {
	if shift < uint(p.hdr.exactShift) {
		p.initPageSmall(idx, slot, shift)
		return
	}
	pageSize := int64(p.hdr.pageSize)
	cpp := pageSize >> shift
	kind := pageExact
	if cpp < 64 {
		kind = pageBig
	}
	p.pages[idx] = pageDesc{kind: kind, slot: int32(slot), head: -1, next: notLinked, prev: notLinked}
	p.stats[slot].Total += cpp
}

// controlChunks returns how many whole chunks of size 1<<shift a Small page must reserve
// to hold its own embedded free-chunk bitmap.
func controlChunks(shift uint, pageSize int64) int64 {
	chunkSize := int64(1) << shift
	cpp := pageSize / chunkSize
	words := (cpp + 63) / 64
	bytes := words * 8
	c := (bytes + chunkSize - 1) / chunkSize
	if c < 1 {
		c = 1
	}
	return c
}

func (p *Pool) pageWords(idx int64, nwords int) []uint64 {
	off := idx * p.hdr.pageSize
	if nwords == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&p.data[off])), nwords)
}

func (p *Pool) initPageSmall(idx, slot int64, shift uint) {
	pageSize := p.hdr.pageSize
	chunkSize := int64(1) << shift
	cpp := pageSize / chunkSize
	words := int((cpp + 63) / 64)
	ctrl := controlChunks(shift, pageSize)

	bs := bitset.From(p.pageWords(idx, words))
	bs.ClearAll()
	for i := int64(0); i < ctrl; i++ {
		bs.Set(uint(i))
	}

	p.pages[idx] = pageDesc{kind: pageSmall, slot: int32(slot), head: -1, next: notLinked, prev: notLinked}
	p.stats[slot].Total += cpp - ctrl
}

func (p *Pool) allocChunkSmall(idx int64, shift uint) (int64, bool, error) {
	pageSize := p.hdr.pageSize
	chunkSize := int64(1) << shift
	cpp := pageSize / chunkSize
	words := int((cpp + 63) / 64)

	bs := bitset.From(p.pageWords(idx, words))
	bitIdx, ok := bs.NextClear(0)
	if !ok || int64(bitIdx) >= cpp {
		return 0, false, engerr.New(engerr.ErrGeneric, "slab: page full")
	}
	bs.Set(bitIdx)
	full := bs.Count() == uint(cpp)
	offset := idx*pageSize + int64(bitIdx)*chunkSize
	return offset, full, nil
}

func (p *Pool) freeChunkSmall(idx, offInPage int64, shift uint) (wasFull, empty bool) {
	pageSize := p.hdr.pageSize
	chunkSize := int64(1) << shift
	cpp := pageSize / chunkSize
	words := int((cpp + 63) / 64)
	ctrl := controlChunks(shift, pageSize)

	bs := bitset.From(p.pageWords(idx, words))
	wasFull = bs.Count() == uint(cpp)
	bs.Clear(uint(offInPage / chunkSize))
	empty = bs.Count() == uint(ctrl)
	return wasFull, empty
}

func allocChunkWord(pg *pageDesc, idx int64, shift uint, pageSize int64) (int64, bool, error) {
	cpp := pageSize >> shift
	mask := wordMask(cpp)
	free := (^pg.word) & mask
	if free == 0 {
		return 0, false, engerr.New(engerr.ErrGeneric, "slab: page full")
	}
	bit := bits.TrailingZeros64(free)
	pg.word |= uint64(1) << uint(bit)
	full := (pg.word & mask) == mask
	offset := idx*pageSize + int64(bit)<<shift
	return offset, full, nil
}

func freeChunkWord(pg *pageDesc, offInPage int64, shift uint, pageSize int64) (wasFull, empty bool) {
	cpp := pageSize >> shift
	mask := wordMask(cpp)
	wasFull = (pg.word & mask) == mask
	bit := offInPage >> shift
	pg.word &^= uint64(1) << uint(bit)
	empty = (pg.word & mask) == 0
	return wasFull, empty
}

func wordMask(cpp int64) uint64 {
	if cpp >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(cpp)) - 1
}

// allocPages dequeues need contiguous pages from the free-page list (spec §4.8
// "allocate ceil(n/page_size) contiguous pages from the free-page list"), splitting the
// chosen run if it is larger than required.
func (p *Pool) allocPages(need int64) (int64, error) {
	cur := p.hdr.freePageHead
	for cur != listEnd {
		run := p.pages[cur].run
		if run >= need {
			if run > need {
				rem := cur + need
				remRun := run - need
				unlinkDoubly(&p.hdr.freePageHead, p.pages, cur)
				p.pages[rem] = pageDesc{kind: pageFreeHead, run: remRun, head: -1, next: notLinked, prev: notLinked}
				for i := int64(1); i < remRun; i++ {
					p.pages[rem+i] = pageDesc{kind: pageFreeCont, head: rem, next: notLinked, prev: notLinked}
				}
				linkDoubly(&p.hdr.freePageHead, p.pages, rem)
			} else {
				unlinkDoubly(&p.hdr.freePageHead, p.pages, cur)
			}

			p.pages[cur] = pageDesc{kind: pageRunHead, run: need, slot: -1, head: -1, next: notLinked, prev: notLinked}
			for i := int64(1); i < need; i++ {
				p.pages[cur+i] = pageDesc{kind: pageRunCont, head: cur, next: notLinked, prev: notLinked}
			}
			return cur, nil
		}
		cur = p.pages[cur].next
	}
	return 0, engerr.New(engerr.ErrGeneric, "slab: out of pages")
}

// freePages returns a run of pages to the free-page list, coalescing with any
// immediately adjacent free run on either side (spec §4.8 "adjacent free runs coalesce
// both ways"), found by array-index adjacency rather than pointer arithmetic.
func (p *Pool) freePages(idx, n int64) {
	end := idx + n
	if end < p.hdr.pageCount && p.pages[end].kind == pageFreeHead {
		n += p.pages[end].run
		unlinkDoubly(&p.hdr.freePageHead, p.pages, end)
	}

	if idx > 0 {
		before := idx - 1
		headIdx := int64(-1)
		switch p.pages[before].kind {
		case pageFreeHead:
			headIdx = before
		case pageFreeCont:
			headIdx = p.pages[before].head
		}
		if headIdx != -1 {
			n += p.pages[headIdx].run
			unlinkDoubly(&p.hdr.freePageHead, p.pages, headIdx)
			idx = headIdx
		}
	}

	p.pages[idx] = pageDesc{kind: pageFreeHead, run: n, head: -1, next: notLinked, prev: notLinked}
	for i := int64(1); i < n; i++ {
		p.pages[idx+i] = pageDesc{kind: pageFreeCont, head: idx, next: notLinked, prev: notLinked}
	}
	linkDoubly(&p.hdr.freePageHead, p.pages, idx)
}

func linkDoubly(head *int64, pages []pageDesc, idx int64) {
	pg := &pages[idx]
	pg.prev = listEnd
	pg.next = *head
	if pg.next != listEnd {
		pages[pg.next].prev = idx
	}
	*head = idx
}

func unlinkDoubly(head *int64, pages []pageDesc, idx int64) {
	pg := &pages[idx]
	if pg.prev == listEnd {
		*head = pg.next
	} else {
		pages[pg.prev].next = pg.next
	}
	if pg.next != listEnd {
		pages[pg.next].prev = pg.prev
	}
	pg.next, pg.prev = notLinked, notLinked
}
