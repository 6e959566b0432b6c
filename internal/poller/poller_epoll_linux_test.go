//go:build linux

package poller

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestEpollEventMaskRoundTrip(t *testing.T) {
	cases := []EventMask{EventReadable, EventWritable, EventReadable | EventWritable}
	for _, mask := range cases {
		got := fromEpollEvents(toEpollEvents(mask))
		if got != mask {
			t.Fatalf("round trip mismatch: want %v got %v", mask, got)
		}
	}
}

func TestEpollPollerPipeReadable(t *testing.T) {
	fds, err := unixPipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	const token uintptr = 0xABCD
	if err := p.Add(fds[0], EventReadable, token); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make([]Event, 8)
	n, err := p.Wait(events, 1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n == 0 {
		t.Fatal("expected at least one readiness event")
	}

	var found bool
	for _, e := range events[:n] {
		if e.UserData == token && e.Mask&EventReadable != 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected readable event for token %v, got %+v", token, events[:n])
	}
}

func unixPipe() ([2]int, error) {
	var fds [2]int
	err := unix.Pipe(fds[:])
	return fds, err
}
