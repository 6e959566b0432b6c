package timerheap_test

import (
	"testing"

	"github.com/antmuse/AntEngine-sub001/internal/timerheap"
)

type item struct {
	name string
	idx  int
}

func (i *item) HeapIndex() int     { return i.idx }
func (i *item) SetHeapIndex(n int) { i.idx = n }

func TestTopIsEarliestDeadline(t *testing.T) {
	h := timerheap.New()
	a, b, c := &item{name: "a"}, &item{name: "b"}, &item{name: "c"}
	h.Insert(a, 300)
	h.Insert(b, 100)
	h.Insert(c, 200)

	d, ok := h.PeekDeadline()
	if !ok || d != 100 {
		t.Fatalf("expected earliest deadline 100, got %d ok=%v", d, ok)
	}
}

func TestPopExpiredOrdersByDeadlineThenInsertion(t *testing.T) {
	h := timerheap.New()
	a, b, c := &item{name: "a"}, &item{name: "b"}, &item{name: "c"}
	h.Insert(a, 100)
	h.Insert(b, 100)
	h.Insert(c, 50)

	got := h.PopExpired(100)
	if len(got) != 3 {
		t.Fatalf("expected 3 expired items, got %d", len(got))
	}
	if got[0].(*item) != c {
		t.Fatalf("expected c (earlier deadline) first")
	}
	if got[1].(*item) != a || got[2].(*item) != b {
		t.Fatalf("expected ties broken by insertion order: a then b")
	}
}

func TestRemoveAndRelink(t *testing.T) {
	h := timerheap.New()
	a := &item{name: "a"}
	h.Insert(a, 100)
	if !h.Contains(a) {
		t.Fatalf("expected heap to contain a")
	}
	h.Remove(a)
	if h.Contains(a) {
		t.Fatalf("expected heap to no longer contain a")
	}

	h.Insert(a, 100)
	h.Relink(a, 200)
	d, _ := h.PeekDeadline()
	if d != 200 {
		t.Fatalf("expected relinked deadline 200, got %d", d)
	}
}

func TestPopExpiredOnlyTakesDueItems(t *testing.T) {
	h := timerheap.New()
	a, b := &item{name: "a"}, &item{name: "b"}
	h.Insert(a, 50)
	h.Insert(b, 150)

	got := h.PopExpired(100)
	if len(got) != 1 || got[0].(*item) != a {
		t.Fatalf("expected only a to be expired, got %v", got)
	}
	d, ok := h.PeekDeadline()
	if !ok || d != 150 {
		t.Fatalf("expected b still pending with deadline 150, got %d ok=%v", d, ok)
	}
}
