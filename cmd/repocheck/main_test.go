package main

import "testing"

func TestFlagSurface(t *testing.T) {
	for _, name := range []string{
		"output-dir", "format", "timeout-seconds", "tool-timeout",
		"enable-checklist", "checklist-config", "config", "max-repo-size",
		"revision",
	} {
		if rootCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
	if rootCmd.Flags().Lookup("timeout") != nil {
		t.Error("stale --timeout flag registered; the global deadline is --timeout-seconds")
	}
}
