package reqpool_test

import (
	"testing"

	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
)

func TestNewRoundsUpToPowerOfTwo(t *testing.T) {
	p := reqpool.NewPool()
	r := p.New(100)
	if len(r.WritableSlice()) != 128 {
		t.Fatalf("expected 128-byte buffer, got %d", len(r.WritableSlice()))
	}
}

func TestDeleteReusesBuffer(t *testing.T) {
	p := reqpool.NewPool()
	r1 := p.New(64)
	buf1 := r1.WritableSlice()
	p.Delete(r1)

	r2 := p.New(64)
	if len(r2.WritableSlice()) != len(buf1) {
		t.Fatalf("expected reused buffer of same size")
	}
}

func TestResetClearsState(t *testing.T) {
	p := reqpool.NewPool()
	r := p.New(32)
	r.Kind = reqpool.KindWrite
	r.SetUsed(10)
	r.UserData = "x"
	p.Delete(r)

	r2 := p.New(32)
	if r2.Kind != reqpool.KindRead || r2.Used() != 0 || r2.UserData != nil {
		t.Fatalf("expected reset request, got %+v", r2)
	}
}

func TestWritableAndReadableSlices(t *testing.T) {
	p := reqpool.NewPool()
	r := p.New(16)
	copy(r.WritableSlice(), []byte("hello"))
	r.SetUsed(5)
	if string(r.ReadableSlice()) != "hello" {
		t.Fatalf("expected readable slice 'hello', got %q", r.ReadableSlice())
	}
}
