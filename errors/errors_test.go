package errors_test

import (
	"errors"
	"testing"

	engerr "github.com/antmuse/AntEngine-sub001/errors"
)

func TestNewAndKind(t *testing.T) {
	e := engerr.New(engerr.NoReadable, "")
	if e.Kind() != engerr.NoReadable {
		t.Fatalf("expected NoReadable, got %v", e.Kind())
	}
	if e.Error() != "NO_READABLE" {
		t.Fatalf("unexpected message: %s", e.Error())
	}
}

func TestIsKind(t *testing.T) {
	e := engerr.New(engerr.Closing, "handle closing")
	if !engerr.IsKind(e, engerr.Closing) {
		t.Fatalf("expected IsKind Closing to be true")
	}
	if engerr.IsKind(e, engerr.Timeout) {
		t.Fatalf("expected IsKind Timeout to be false")
	}
	if !engerr.IsKind(nil, engerr.OK) {
		t.Fatalf("nil error should report OK")
	}
}

func TestAddParents(t *testing.T) {
	base := errors.New("connection reset")
	e := engerr.New(engerr.ErrGeneric, "write failed", base)
	if len(e.Parents()) != 1 {
		t.Fatalf("expected 1 parent, got %d", len(e.Parents()))
	}
}

func TestFromErrno(t *testing.T) {
	if k := engerr.FromErrno(nil, false, false); k != engerr.OK {
		t.Fatalf("nil err should map to OK, got %v", k)
	}
	if k := engerr.FromErrno(errors.New("x"), false, true); k != engerr.Intr {
		t.Fatalf("expected Intr, got %v", k)
	}
	if k := engerr.FromErrno(errors.New("x"), true, false); k != engerr.Retry {
		t.Fatalf("expected Retry, got %v", k)
	}
	if k := engerr.FromErrno(errors.New("x"), false, false); k != engerr.ErrGeneric {
		t.Fatalf("expected ErrGeneric, got %v", k)
	}
}
