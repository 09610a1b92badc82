package main

import (
	"fmt"
	"strings"
	"testing"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Proximad", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Proximad:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Proximad", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestStateLabel(t *testing.T) {
	cases := map[string]string{
		"running":     "Running",
		"configuring": "Configuring",
		"":            "Unknown",
		"no_arp":      "No Arp",
	}
	for in, want := range cases {
		if got := stateLabel(in); got != want {
			t.Fatalf("stateLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStateKind(t *testing.T) {
	cases := map[string]statusKind{
		"running":     statusOK,
		"configuring": statusWarn,
		"idle":        statusInfo,
		"exploded":    statusError,
		"":            statusError,
	}
	for in, want := range cases {
		if got := stateKind(in); got != want {
			t.Fatalf("stateKind(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"x"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "x") || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected table %q", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty render for no headers")
	}
}
