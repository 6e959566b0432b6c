package ring_test

import (
	"testing"

	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
	"github.com/antmuse/AntEngine-sub001/internal/ring"
)

func TestFIFOOrder(t *testing.T) {
	var r ring.Ring
	pool := reqpool.NewPool()
	a, b, c := pool.New(8), pool.New(8), pool.New(8)
	a.UserData, b.UserData, c.UserData = "a", "b", "c"

	r.PushTail(a)
	r.PushTail(b)
	r.PushTail(c)

	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	for _, want := range []string{"a", "b", "c"} {
		got := r.PopHead()
		if got.UserData != want {
			t.Fatalf("expected %s, got %v", want, got.UserData)
		}
	}
	if !r.Empty() {
		t.Fatalf("expected ring empty after draining")
	}
}

func TestPushHeadReQueues(t *testing.T) {
	var r ring.Ring
	pool := reqpool.NewPool()
	a, b := pool.New(8), pool.New(8)
	a.UserData, b.UserData = "a", "b"

	r.PushTail(a)
	r.PushHead(b)

	if got := r.PopHead(); got.UserData != "b" {
		t.Fatalf("expected b re-queued at head, got %v", got.UserData)
	}
	if got := r.PopHead(); got.UserData != "a" {
		t.Fatalf("expected a next, got %v", got.UserData)
	}
}

func TestDrainInto(t *testing.T) {
	var src, dst ring.Ring
	pool := reqpool.NewPool()
	src.PushTail(pool.New(8))
	src.PushTail(pool.New(8))

	src.DrainInto(&dst)
	if !src.Empty() {
		t.Fatalf("expected src empty after drain")
	}
	if dst.Len() != 2 {
		t.Fatalf("expected dst len 2, got %d", dst.Len())
	}
}
