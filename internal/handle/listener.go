package handle

import (
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
)

// Submitter is implemented by the loop; it is the single place that knows whether the
// current poller is completion- or readiness-family (spec §4.5/§4.6) and therefore
// whether a posted Request goes straight to the OS or onto this handle's pending queue.
type Submitter interface {
	LoopRef
	Submit(h *Handle, req *reqpool.Request) error
}

// Listener is a bound, listening socket handle (spec §4.3). Its queue (ReadQ) carries
// pending Accept requests.
type Listener struct {
	Handle
	Sock *netutil.Socket
}

// NewListener wraps an already-bound, listening socket.
func NewListener(id uint64, sock *netutil.Socket) *Listener {
	l := &Listener{Sock: sock}
	l.Init(id, KindListener)
	return l
}

// OpenListener transitions the listener to OPEN and registers it with the loop.
func (l *Listener) OpenListener(loop Submitter, onClose CloseFunc) {
	l.Open(loop, onClose)
}

// Accept posts an accept Request, per spec §4.3/§4.5. Accept reordering is permitted
// (spec §4.3/§9 "preserve, don't tighten"): unlike read/write, accepted connections are
// independent of each other, so the per-handle queue here may be served head-first by
// the loop without the strict per-kind FIFO read/write requires.
func (l *Listener) Accept(req *reqpool.Request, loop Submitter) error {
	req.Kind = reqpool.KindAccept
	req.Owner = l
	l.IncFly()
	if err := loop.Submit(&l.Handle, req); err != nil {
		l.DecFly()
		return err
	}
	return nil
}

func (l *Listener) Close(loop Submitter) bool {
	return l.RequestClose()
}

// PerformIO accepts a single pending connection once the readiness family reports the
// listening socket readable (spec §4.6 step 4). EAGAIN (no connection actually pending,
// e.g. after the thundering-herd case of several listeners sharing one FD) is returned
// unchanged for the loop to classify as retryable and requeue.
func (l *Listener) PerformIO(req *reqpool.Request) error {
	sock, addr, err := l.Sock.Accept()
	if err != nil {
		return err
	}
	req.NewSock = sock
	req.PeerAddr = addr
	return nil
}
