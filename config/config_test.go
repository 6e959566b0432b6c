package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/antmuse/AntEngine-sub001/config"
	"github.com/antmuse/AntEngine-sub001/internal/corelog"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDefaultValidates(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []config.Config{
		{ProcessCount: 0, SharedMemorySize: 1 << 20},
		{ProcessCount: 1, SharedMemorySize: 0},
		{ProcessCount: 1, SharedMemorySize: 1 << 20, TLS: config.TLS{Enabled: true}},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestNewLoaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "antengine.yaml", `
process_count: 4
shared_memory_size: 1048576
log:
  level: debug
  output: stdout
tls:
  enabled: true
  cert_file: /tmp/cert.pem
  key_file: /tmp/key.pem
`)

	l, err := config.NewLoader(path, nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	got := l.Current()
	if got.ProcessCount != 4 {
		t.Errorf("ProcessCount = %d, want 4", got.ProcessCount)
	}
	if got.SharedMemorySize != 1048576 {
		t.Errorf("SharedMemorySize = %d, want 1048576", got.SharedMemorySize)
	}
	if got.LogLevel() != corelog.DebugLevel {
		t.Errorf("LogLevel = %v, want DebugLevel", got.LogLevel())
	}
	if !got.TLS.Enabled || got.TLS.CertFile != "/tmp/cert.pem" {
		t.Errorf("TLS = %+v, unexpected", got.TLS)
	}
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "antengine.yaml", `
process_count: 0
shared_memory_size: 1048576
`)
	if _, err := config.NewLoader(path, nil); err == nil {
		t.Fatal("expected NewLoader to reject an invalid process_count")
	}
}

func TestWatchAppliesLogLevelOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "antengine.yaml", `
process_count: 1
shared_memory_size: 1048576
log:
  level: info
`)

	l, err := config.NewLoader(path, nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	logger := corelog.New(os.Stderr, corelog.InfoLevel)
	config.ApplyLogLevel(l, logger)

	applied := make(chan config.Config, 1)
	l.OnChange(func(c config.Config) { applied <- c })
	l.Watch()

	writeFile(t, dir, "antengine.yaml", `
process_count: 1
shared_memory_size: 1048576
log:
  level: debug
`)

	select {
	case c := <-applied:
		if c.LogLevel() != corelog.DebugLevel {
			t.Errorf("reloaded level = %v, want DebugLevel", c.LogLevel())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
