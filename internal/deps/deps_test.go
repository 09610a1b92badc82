package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for blank command: %#v", results[2])
	}

	required, optional := Missing(results)
	if required != 1 || optional != 1 {
		t.Fatalf("Missing = %d/%d, want 1/1", required, optional)
	}
}

func TestCommandNames(t *testing.T) {
	got := CommandNames([]string{
		"ifconfig {iface} {address} netmask {netmask}",
		"  ",
		"ifconfig {iface} up",
		"iwconfig {iface} mode ad-hoc",
		"{custom} --flag",
	})
	if len(got) != 2 || got[0] != "ifconfig" || got[1] != "iwconfig" {
		t.Fatalf("unexpected command names %v", got)
	}
}
