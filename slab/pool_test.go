package slab_test

import (
	"path/filepath"
	"testing"

	"github.com/antmuse/AntEngine-sub001/slab"
)

func newTestPool(t *testing.T, size int) *slab.Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "region.bin")
	region, fresh, err := slab.OpenRegion(path, size)
	if err != nil {
		t.Fatalf("OpenRegion: %v", err)
	}
	if !fresh {
		t.Fatalf("expected fresh region for a brand-new path")
	}
	t.Cleanup(func() { region.Close() })
	return region.Pool(4096, 3, true)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	p := newTestPool(t, 4*1024*1024)

	sizes := []int{24, 96, 512, 2048, 9000}
	for _, sz := range sizes {
		off, err := p.Alloc(sz)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", sz, err)
		}
		buf := p.Bytes(off, sz)
		for i := range buf {
			buf[i] = byte(i)
		}
		if err := p.Free(off); err != nil {
			t.Fatalf("Free(%d) offset %d: %v", sz, off, err)
		}
	}

	for slot := 0; slot < p.SlotCount(); slot++ {
		st := p.Stat(slot)
		if st.Used != 0 {
			t.Fatalf("slot %d: Used = %d, want 0 after all frees", slot, st.Used)
		}
	}
}

func TestSizeClassBoundaries(t *testing.T) {
	p := newTestPool(t, 4*1024*1024)
	pageSize := p.PageSize()
	maxSlab := p.MaxSlabSize()

	if maxSlab != pageSize/2 {
		t.Fatalf("MaxSlabSize = %d, want %d", maxSlab, pageSize/2)
	}

	cases := []int{maxSlab, pageSize, pageSize + 1}
	offsets := make([]int64, len(cases))
	for i, sz := range cases {
		off, err := p.Alloc(sz)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", sz, err)
		}
		offsets[i] = off
	}
	for i, off := range offsets {
		if err := p.Free(off); err != nil {
			t.Fatalf("Free(case %d, offset %d): %v", i, off, err)
		}
	}
}

func TestAllocRejectsNonPositiveSize(t *testing.T) {
	p := newTestPool(t, 1024*1024)
	if _, err := p.Alloc(0); err == nil {
		t.Fatal("Alloc(0): want error, got nil")
	}
	if _, err := p.Alloc(-1); err == nil {
		t.Fatal("Alloc(-1): want error, got nil")
	}
}

func TestFreeRejectsBadOffset(t *testing.T) {
	p := newTestPool(t, 1024*1024)
	if err := p.Free(-1); err == nil {
		t.Fatal("Free(-1): want error, got nil")
	}
	if err := p.Free(1 << 40); err == nil {
		t.Fatal("Free(huge offset): want error, got nil")
	}
}

// TestAllocFreeStress exercises a scaled-down version of the mixed-size churn scenario:
// many rounds of alloc/free across all slab regimes (small, exact, big, whole-page),
// asserting every size class's Used count returns to zero and no page leaks out of the
// free-page list.
func TestAllocFreeStress(t *testing.T) {
	p := newTestPool(t, 8*1024*1024)
	sizes := []int{24, 96, 512, 2048, 9000}

	const iterations = 2000
	live := make([]int64, 0, 64)

	for i := 0; i < iterations; i++ {
		sz := sizes[i%len(sizes)]
		off, err := p.Alloc(sz)
		if err != nil {
			t.Fatalf("iteration %d: Alloc(%d): %v", i, sz, err)
		}
		live = append(live, off)

		if len(live) >= 8 {
			victim := live[0]
			live = live[1:]
			if err := p.Free(victim); err != nil {
				t.Fatalf("iteration %d: Free: %v", i, err)
			}
		}
	}

	for _, off := range live {
		if err := p.Free(off); err != nil {
			t.Fatalf("final drain: Free(%d): %v", off, err)
		}
	}

	for slot := 0; slot < p.SlotCount(); slot++ {
		st := p.Stat(slot)
		if st.Used != 0 {
			t.Fatalf("slot %d: Used = %d, want 0 after draining all live allocations", slot, st.Used)
		}
	}
}

func TestOpenRegionAttachesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.bin")

	r1, fresh1, err := slab.OpenRegion(path, 1024*1024)
	if err != nil {
		t.Fatalf("OpenRegion (create): %v", err)
	}
	if !fresh1 {
		t.Fatal("first OpenRegion: want fresh = true")
	}
	p1 := r1.Pool(4096, 3, true)
	off, err := p1.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	copy(p1.Bytes(off, 4), []byte{1, 2, 3, 4})
	if err := r1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r2, fresh2, err := slab.OpenRegion(path, 1024*1024)
	if err != nil {
		t.Fatalf("OpenRegion (attach): %v", err)
	}
	defer r2.Close()
	if fresh2 {
		t.Fatal("second OpenRegion: want fresh = false")
	}
	p2 := r2.Pool(4096, 3, false)
	got := p2.Bytes(off, 4)
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEngineDataCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.bin")
	r, _, err := slab.OpenRegion(path, 1024*1024)
	if err != nil {
		t.Fatalf("OpenRegion: %v", err)
	}
	defer r.Close()

	hdr := r.Header()
	hdr.AddBytes(10, true)
	hdr.AddBytes(20, false)
	hdr.AddPackets(1, true)
	hdr.IncHeartbeatSent()
	hdr.IncHeartbeatAcked()
	hdr.IncHeartbeatRecv()

	if hdr.BytesIn != 10 || hdr.BytesOut != 20 || hdr.PacketsIn != 1 {
		t.Fatalf("unexpected counters: %+v", hdr)
	}
	if hdr.HeartbeatSent != 1 || hdr.HeartbeatAcked != 1 || hdr.HeartbeatRecv != 1 {
		t.Fatalf("unexpected heartbeat counters: %+v", hdr)
	}
}
