package cmd

import (
	"bytes"
	"testing"
)

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()
	want := map[string]bool{"run": false, "version": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"version"})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.String() == "" {
		t.Error("expected version command to write output")
	}
}
