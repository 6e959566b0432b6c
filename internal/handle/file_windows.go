//go:build windows

package handle

import (
	"unsafe"

	"golang.org/x/sys/windows"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
)

// fileOverlapped pins the OVERLAPPED record until the completion port reports it done.
// Offset/OffsetHigh are set from req.Offset before the call: ReadFile/WriteFile treat a
// non-nil OVERLAPPED's offset fields as the positional file pointer to use, ignoring the
// handle's own file position, exactly like io_uring's SQE.off on the readiness family
// (internal/poller/file_uring_linux.go).
type fileOverlapped struct {
	windows.Overlapped
}

// IssueIO satisfies loop.ioIssuer on the completion family. The caller-supplied *os.File
// must have been opened with FILE_FLAG_OVERLAPPED (CreateFile's Windows-specific flag,
// outside os.File's portable surface) and bound to the loop's completion port via
// OpenHandle for this to actually complete asynchronously; otherwise ReadFile/WriteFile
// block synchronously in place, which is still correct but defeats the point.
func (f *File) IssueIO(req *reqpool.Request) (uintptr, error) {
	op := &fileOverlapped{}
	op.Offset = uint32(req.Offset)
	op.OffsetHigh = uint32(req.Offset >> 32)
	req.Native = op

	h := windows.Handle(f.FD())
	var n uint32
	var err error
	switch req.Kind {
	case reqpool.KindRead:
		err = windows.ReadFile(h, req.WritableSlice(), &n, &op.Overlapped)
	case reqpool.KindWrite:
		err = windows.WriteFile(h, req.ReadableSlice()[req.Step:], &n, &op.Overlapped)
	default:
		return 0, engerr.New(engerr.InvalidParam, "file: unsupported request kind for completion-family I/O")
	}
	if err != nil && err != windows.ERROR_IO_PENDING {
		return 0, err
	}

	return uintptr(unsafe.Pointer(&op.Overlapped)), nil
}
