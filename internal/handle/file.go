package handle

import (
	"os"

	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
)

// File is a regular-file handle (spec §4.3). Reads/writes are positional: the
// readiness family submits them to the poller's kernel submission ring
// (internal/poller's io_uring-backed fileSubmitter), the completion family uses
// OVERLAPPED records carrying the same offset.
type File struct {
	Handle
	Name string
	F    *os.File
}

func NewFile(id uint64, name string, f *os.File) *File {
	h := &File{Name: name, F: f}
	h.Init(id, KindFile)
	return h
}

func (f *File) OpenFile(loop Submitter, onClose CloseFunc) {
	f.Open(loop, onClose)
}

// FD returns the raw descriptor for submission-ring registration.
func (f *File) FD() int {
	if f.F == nil {
		return -1
	}
	return int(f.F.Fd())
}

// Read posts a positional read at req.Offset.
func (f *File) Read(req *reqpool.Request, loop Submitter) error {
	req.Kind = reqpool.KindRead
	req.Owner = f
	f.IncFly()
	if err := loop.Submit(&f.Handle, req); err != nil {
		f.DecFly()
		return err
	}
	return nil
}

// Write posts a positional write at req.Offset.
func (f *File) Write(req *reqpool.Request, loop Submitter) error {
	req.Kind = reqpool.KindWrite
	req.Owner = f
	f.IncFly()
	if err := loop.Submit(&f.Handle, req); err != nil {
		f.DecFly()
		return err
	}
	return nil
}

func (f *File) Close() bool { return f.RequestClose() }
