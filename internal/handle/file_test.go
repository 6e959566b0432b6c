//go:build linux

package handle_test

import (
	"bytes"
	"os"
	"testing"
	"time"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
	"github.com/antmuse/AntEngine-sub001/internal/handle"
	"github.com/antmuse/AntEngine-sub001/internal/poller"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
	"github.com/antmuse/AntEngine-sub001/loop"
)

// TestFileReadSubmissionRing drives spec.md §8 scenario 5 end to end: a 4 KiB read of a
// known file is submitted through Loop.Submit, lands on the epoll poller's attached
// io_uring file-submission ring (internal/poller/file_uring_linux.go), and its callback
// must observe the full 4096 bytes. This is the exact path the to_submit=0 regression in
// fileSubmitter.flush lived in, so it stands in for a regression test for that bug too.
func TestFileReadSubmissionRing(t *testing.T) {
	want := make([]byte, 4096)
	for i := range want {
		want[i] = byte(i)
	}

	path := t.TempDir() + "/ring-read.bin"
	if err := os.WriteFile(path, want, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	p, err := poller.New(poller.Config{})
	if err != nil {
		t.Fatalf("poller.New: %v", err)
	}
	defer p.Close()

	lp, err := loop.New(p, nil)
	if err != nil {
		t.Fatalf("loop.New: %v", err)
	}

	fh := handle.NewFile(lp.NextHandleID(), path, f)
	fh.OpenFile(lp, nil)

	pool := reqpool.NewPool()
	req := pool.New(len(want))
	req.Offset = 0

	done := false
	var gotErr engerr.Kind
	var gotUsed int
	var gotBuf []byte
	req.Done = func(r *reqpool.Request) {
		done = true
		gotErr = r.Err
		gotUsed = r.Used()
		gotBuf = append([]byte(nil), r.ReadableSlice()...)
	}

	if err := fh.Read(req, lp); err != nil {
		t.Fatalf("Read: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !done {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for file read completion via submission ring")
		}
		lp.Step()
	}

	if gotErr != engerr.OK {
		t.Fatalf("request failed: %s", gotErr)
	}
	if gotUsed != len(want) {
		t.Fatalf("used = %d, want %d", gotUsed, len(want))
	}
	if !bytes.Equal(gotBuf, want) {
		t.Fatalf("content mismatch: read bytes did not match file contents")
	}
}
