package cmdchannel

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Size: HeaderSize, Type: TypeExit, Version: ProtocolVersion, SN: 1},
		{Size: HeaderSize, Type: TypeExitResp, Version: ProtocolVersion, SN: 1},
		{Size: HeaderSize + 8, Type: TypeTask, Version: ProtocolVersion, SN: 0xFFFFFFFF},
		{Size: HeaderSize, Type: TypeRespawn, Version: ProtocolVersion, SN: 0},
	}
	for _, h := range cases {
		buf := make([]byte, HeaderSize)
		PutHeader(buf, h)
		got := GetHeader(buf)
		if got != h {
			t.Fatalf("round trip mismatch: put %+v, got %+v", h, got)
		}
	}
}

func TestHeaderPaddingIsZero(t *testing.T) {
	buf := make([]byte, HeaderSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	PutHeader(buf, Header{Size: HeaderSize, Type: TypeHeartbeat, Version: ProtocolVersion, SN: 7})
	for i := 12; i < HeaderSize; i++ {
		if buf[i] != 0 {
			t.Fatalf("reserved byte %d not zeroed: %#x", i, buf[i])
		}
	}
}

func TestRespBitRoundTrip(t *testing.T) {
	cases := []struct {
		req, resp Type
	}{
		{TypeExit, TypeExitResp},
		{TypeHeartbeat, TypeHeartbeatResp},
	}
	for _, c := range cases {
		h := Header{Type: c.resp}
		if !h.IsResponse() {
			t.Fatalf("%v: expected IsResponse", c.resp)
		}
		if h.Base() != c.req {
			t.Fatalf("%v: Base() = %v, want %v", c.resp, h.Base(), c.req)
		}
		req := Header{Type: c.req}
		if req.IsResponse() {
			t.Fatalf("%v: unexpectedly a response", c.req)
		}
	}
}

func TestFrameEncodeStampsSize(t *testing.T) {
	f := newFrame(TypeTask, 42, []byte("hello"))
	buf := f.Encode()
	if len(buf) != HeaderSize+5 {
		t.Fatalf("encoded length = %d, want %d", len(buf), HeaderSize+5)
	}
	got := GetHeader(buf)
	if int(got.Size) != len(buf) {
		t.Fatalf("Size field = %d, want %d", got.Size, len(buf))
	}
	if !bytes.Equal(buf[HeaderSize:], []byte("hello")) {
		t.Fatalf("payload mismatch: %q", buf[HeaderSize:])
	}
}

func TestTaskFrameRoundTrip(t *testing.T) {
	f := NewTask(9, "resize", []byte{1, 2, 3})
	opcode, data, ok := DecodeTask(f.Payload)
	if !ok {
		t.Fatal("DecodeTask reported not ok")
	}
	if opcode != "resize" {
		t.Fatalf("opcode = %q, want %q", opcode, "resize")
	}
	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("data = %v, want [1 2 3]", data)
	}
}

func TestTaskFrameEmptyPayload(t *testing.T) {
	f := NewTask(1, "ping", nil)
	opcode, data, ok := DecodeTask(f.Payload)
	if !ok || opcode != "ping" || len(data) != 0 {
		t.Fatalf("got opcode=%q data=%v ok=%v", opcode, data, ok)
	}
}

func TestDecodeTaskRejectsTruncated(t *testing.T) {
	if _, _, ok := DecodeTask(nil); ok {
		t.Fatal("expected DecodeTask(nil) to fail")
	}
	if _, _, ok := DecodeTask([]byte{5, 0}); ok {
		t.Fatal("expected DecodeTask to fail when opcode length exceeds payload")
	}
}

func TestNewFrameConstructors(t *testing.T) {
	cases := []struct {
		name string
		f    Frame
		want Type
	}{
		{"exit", NewExit(1), TypeExit},
		{"exitResp", NewExitResp(1), TypeExitResp},
		{"heartbeat", NewHeartbeat(1), TypeHeartbeat},
		{"heartbeatResp", NewHeartbeatResp(1), TypeHeartbeatResp},
		{"respawn", NewRespawn(1), TypeRespawn},
	}
	for _, c := range cases {
		if c.f.Type != c.want {
			t.Errorf("%s: Type = %v, want %v", c.name, c.f.Type, c.want)
		}
		if c.f.Version != ProtocolVersion {
			t.Errorf("%s: Version = %#x, want %#x", c.name, c.f.Version, ProtocolVersion)
		}
	}
}
