package cmd

import "testing"

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "version": false}

	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered on root", name)
		}
	}
}

func TestRootHasNoRunAction(t *testing.T) {
	// The root command only dispatches; serving is explicit.
	if rootCmd.RunE != nil || rootCmd.Run != nil {
		t.Error("root command should not have a run action")
	}
}
