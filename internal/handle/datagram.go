package handle

import (
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
)

// Datagram is a UDP-family handle (spec §4.3) distinguishing "connected" (Send/Recv,
// no per-call address) from "unconnected" (SendTo/RecvFrom) via its connected field.
type Datagram struct {
	Handle
	Sock      *netutil.Socket
	connected bool
}

func NewDatagram(id uint64, sock *netutil.Socket) *Datagram {
	d := &Datagram{Sock: sock}
	d.Init(id, KindDatagram)
	return d
}

func (d *Datagram) OpenDatagram(loop Submitter, onClose CloseFunc) {
	d.Open(loop, onClose)
}

func (d *Datagram) SetConnected(v bool) { d.connected = v }
func (d *Datagram) Connected() bool     { return d.connected }

// Read/Write are used once Connected(); ReadFrom/WriteTo carry an explicit peer
// address for the unconnected case.
func (d *Datagram) Read(req *reqpool.Request, loop Submitter) error {
	req.Kind = reqpool.KindRead
	req.Owner = d
	d.IncFly()
	if err := loop.Submit(&d.Handle, req); err != nil {
		d.DecFly()
		return err
	}
	return nil
}

func (d *Datagram) Write(req *reqpool.Request, loop Submitter) error {
	req.Kind = reqpool.KindWrite
	req.Owner = d
	d.IncFly()
	if err := loop.Submit(&d.Handle, req); err != nil {
		d.DecFly()
		return err
	}
	return nil
}

func (d *Datagram) ReadFrom(req *reqpool.Request, loop Submitter) error {
	return d.Read(req, loop)
}

func (d *Datagram) WriteTo(req *reqpool.Request, addr netutil.NetAddress, loop Submitter) error {
	req.UserData = addr
	return d.Write(req, loop)
}

func (d *Datagram) Close() bool { return d.RequestClose() }

// PerformIO runs the actual recv/send for req once the readiness family reports the
// socket ready (spec §4.6 step 4). Datagram sockets have no partial-transfer concept: a
// single syscall either completes the request or returns EAGAIN, which the loop
// classifies as retryable and requeues unchanged.
func (d *Datagram) PerformIO(req *reqpool.Request) error {
	switch req.Kind {
	case reqpool.KindRead:
		if d.connected {
			n, err := d.Sock.Recv(req.WritableSlice())
			if err != nil {
				return err
			}
			req.SetUsed(n)
			return nil
		}
		n, addr, err := d.Sock.RecvFrom(req.WritableSlice())
		if err != nil {
			return err
		}
		req.SetUsed(n)
		req.PeerAddr = addr
		return nil

	case reqpool.KindWrite:
		if d.connected {
			n, err := d.Sock.Send(req.ReadableSlice())
			if err != nil {
				return err
			}
			req.SetUsed(n)
			return nil
		}
		addr, _ := req.UserData.(netutil.NetAddress)
		n, err := d.Sock.SendTo(req.ReadableSlice(), addr)
		if err != nil {
			return err
		}
		req.SetUsed(n)
		return nil

	default:
		return nil
	}
}
