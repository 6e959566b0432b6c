package handle

import (
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
)

// Stream is a connected byte-stream handle (spec §4.3): TCP or AF_UNIX stream socket,
// already connected either via Connect() or produced by a Listener's Accept.
type Stream struct {
	Handle
	Sock      *netutil.Socket
	connected bool
}

func NewStream(id uint64, sock *netutil.Socket) *Stream {
	s := &Stream{Sock: sock}
	s.Init(id, KindStream)
	return s
}

func (s *Stream) OpenStream(loop Submitter, onClose CloseFunc) {
	s.Open(loop, onClose)
}

// Read posts a read Request (spec §4.3): appended to ReadQ on the readiness family
// unless SYNC_READ is set (meaning the FD was already reported ready with nothing
// queued), in which case the loop runs it in the same iteration.
func (s *Stream) Read(req *reqpool.Request, loop Submitter) error {
	req.Kind = reqpool.KindRead
	req.Owner = s
	s.IncFly()
	if err := loop.Submit(&s.Handle, req); err != nil {
		s.DecFly()
		return err
	}
	return nil
}

// Write posts a write Request, queued on WriteQ for the readiness family.
func (s *Stream) Write(req *reqpool.Request, loop Submitter) error {
	req.Kind = reqpool.KindWrite
	req.Owner = s
	s.IncFly()
	if err := loop.Submit(&s.Handle, req); err != nil {
		s.DecFly()
		return err
	}
	return nil
}

// Connect posts a connect Request against an address; on the readiness family this
// initiates a nonblocking connect and waits for the writable event, on the completion
// family it is submitted as ConnectEx-style native I/O.
func (s *Stream) Connect(req *reqpool.Request, addr netutil.NetAddress, loop Submitter) error {
	req.Kind = reqpool.KindConnect
	req.Owner = s
	req.UserData = addr
	s.IncFly()
	if err := loop.Submit(&s.Handle, req); err != nil {
		s.DecFly()
		return err
	}
	return nil
}

func (s *Stream) SetConnected(v bool) { s.connected = v }
func (s *Stream) Connected() bool     { return s.connected }

func (s *Stream) Close() bool { return s.RequestClose() }

// PerformIO runs the actual syscall for req once the readiness family has reported the
// handle's FD ready, per spec §4.6 step 4 ("the loop performs the actual send/recv after
// locating the handle's queued Request"). A write that only partially drains the buffer
// leaves req.Step short of ReadableSlice's length and returns the underlying error (EAGAIN
// once the socket buffer fills), which the loop classifies as retryable and requeues; the
// next writable event resumes from req.Step.
func (s *Stream) PerformIO(req *reqpool.Request) error {
	switch req.Kind {
	case reqpool.KindRead:
		n, err := s.Sock.Recv(req.WritableSlice())
		if err != nil {
			return err
		}
		req.SetUsed(n)
		return nil

	case reqpool.KindWrite:
		buf := req.ReadableSlice()
		for req.Step < len(buf) {
			n, err := s.Sock.Send(buf[req.Step:])
			if err != nil {
				return err
			}
			req.Step += n
			if n == 0 {
				break
			}
		}
		return nil

	case reqpool.KindConnect:
		if err := s.Sock.SockError(); err != nil {
			return err
		}
		s.SetConnected(true)
		return nil

	default:
		return nil
	}
}
