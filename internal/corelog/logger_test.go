package corelog_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/antmuse/AntEngine-sub001/internal/corelog"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := corelog.New(&buf, corelog.DebugLevel)
	l.Info("handle opened", corelog.F("fd", 7), corelog.F("kind", "stream"))
	out := buf.String()
	if !strings.Contains(out, "handle opened") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "fd=7") {
		t.Fatalf("expected field in output, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]corelog.Level{
		"debug":   corelog.DebugLevel,
		"warn":    corelog.WarnLevel,
		"warning": corelog.WarnLevel,
		"error":   corelog.ErrorLevel,
		"":        corelog.InfoLevel,
		"bogus":   corelog.InfoLevel,
	}
	for in, want := range cases {
		if got := corelog.ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
