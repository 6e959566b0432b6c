package cmdchannel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/antmuse/AntEngine-sub001/cmdchannel"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/poller"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
	"github.com/antmuse/AntEngine-sub001/loop"
)

type testCounters struct {
	sent, acked, recv atomic.Int32
}

func (c *testCounters) HeartbeatSent()  { c.sent.Add(1) }
func (c *testCounters) HeartbeatAcked() { c.acked.Add(1) }
func (c *testCounters) HeartbeatRecv()  { c.recv.Add(1) }

func newTestLoop(t *testing.T) *loop.Loop {
	t.Helper()
	p, err := poller.New(poller.Config{})
	if err != nil {
		t.Fatalf("poller.New: %v", err)
	}
	l, err := loop.New(p, nil)
	if err != nil {
		t.Fatalf("loop.New: %v", err)
	}
	return l
}

// pump steps both loops until cond returns true or the deadline elapses.
func pump(t *testing.T, deadline time.Duration, loops []*loop.Loop, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		for _, l := range loops {
			l.Step()
		}
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestChannelHeartbeatRoundTrip(t *testing.T) {
	a, b, err := netutil.SocketPair()
	if err != nil {
		t.Fatalf("SocketPair: %v", err)
	}

	loopA := newTestLoop(t)
	loopB := newTestLoop(t)

	countersA := &testCounters{}
	countersB := &testCounters{}

	chA := cmdchannel.New(a, reqpool.NewPool(), countersA, nil)
	chB := cmdchannel.New(b, reqpool.NewPool(), countersB, nil)

	if err := chA.Open(loopA, nil); err != nil {
		t.Fatalf("chA.Open: %v", err)
	}
	if err := chB.Open(loopB, nil); err != nil {
		t.Fatalf("chB.Open: %v", err)
	}

	if err := chA.SendHeartbeat(); err != nil {
		t.Fatalf("SendHeartbeat: %v", err)
	}

	pump(t, 2*time.Second, []*loop.Loop{loopA, loopB}, func() bool {
		return countersA.acked.Load() == 1 && countersB.recv.Load() == 1
	})

	if countersA.sent.Load() != 1 {
		t.Fatalf("sent = %d, want 1", countersA.sent.Load())
	}
}

func TestChannelTaskDispatch(t *testing.T) {
	a, b, err := netutil.SocketPair()
	if err != nil {
		t.Fatalf("SocketPair: %v", err)
	}

	loopA := newTestLoop(t)
	loopB := newTestLoop(t)

	chA := cmdchannel.New(a, reqpool.NewPool(), nil, nil)
	chB := cmdchannel.New(b, reqpool.NewPool(), nil, nil)

	if err := chA.Open(loopA, nil); err != nil {
		t.Fatalf("chA.Open: %v", err)
	}
	if err := chB.Open(loopB, nil); err != nil {
		t.Fatalf("chB.Open: %v", err)
	}

	var received []byte
	var called atomic.Bool
	chB.RegisterTask("resize", func(payload []byte) {
		received = append([]byte(nil), payload...)
		called.Store(true)
	})

	if err := chA.SendTask("resize", []byte{10, 20, 30}); err != nil {
		t.Fatalf("SendTask: %v", err)
	}

	pump(t, 2*time.Second, []*loop.Loop{loopA, loopB}, called.Load)

	if len(received) != 3 || received[0] != 10 || received[1] != 20 || received[2] != 30 {
		t.Fatalf("received = %v, want [10 20 30]", received)
	}
}

func TestChannelExitTriggersCallback(t *testing.T) {
	a, b, err := netutil.SocketPair()
	if err != nil {
		t.Fatalf("SocketPair: %v", err)
	}

	loopA := newTestLoop(t)
	loopB := newTestLoop(t)

	chA := cmdchannel.New(a, reqpool.NewPool(), nil, nil)
	chB := cmdchannel.New(b, reqpool.NewPool(), nil, nil)

	if err := chA.Open(loopA, nil); err != nil {
		t.Fatalf("chA.Open: %v", err)
	}
	if err := chB.Open(loopB, nil); err != nil {
		t.Fatalf("chB.Open: %v", err)
	}

	var exitSN uint32
	var called atomic.Bool
	chB.OnExit = func(sn uint32) {
		exitSN = sn
		called.Store(true)
	}

	if err := chA.SendExit(); err != nil {
		t.Fatalf("SendExit: %v", err)
	}

	pump(t, 2*time.Second, []*loop.Loop{loopA, loopB}, called.Load)

	if exitSN != 1 {
		t.Fatalf("exitSN = %d, want 1", exitSN)
	}
}
