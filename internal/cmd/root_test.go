package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandHelp(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "specrunner") {
		t.Errorf("help output does not mention specrunner:\n%s", out.String())
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	root := NewRootCommand()

	want := []string{"run", "debug", "annotate", "regions", "interpret", "clear", "history", "watch"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"config", "workspace", "project-path", "shell", "debugger", "log-level", "log-dir", "no-history"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s not defined", name)
		}
	}
}
