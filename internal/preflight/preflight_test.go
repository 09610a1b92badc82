package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"proxima/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %+v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFileReadable(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "olsrd.conf")
	if err := os.WriteFile(f, []byte("DebugLevel 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckFileReadable("cfg", f); !r.Passed {
		t.Fatalf("expected readable file to pass: %s", r.Detail)
	}
	if CheckFileReadable("cfg", dir).Passed {
		t.Fatal("expected directory to fail")
	}
	if CheckFileReadable("cfg", filepath.Join(dir, "absent")).Passed {
		t.Fatal("expected missing file to fail")
	}
}

func TestCheckInterface(t *testing.T) {
	if CheckInterface("").Passed {
		t.Fatal("blank interface should fail")
	}
	if CheckInterface("proxima-absent0").Passed {
		t.Fatal("missing interface should fail")
	}
}

func TestCheckIPForward(t *testing.T) {
	dir := t.TempDir()
	on := filepath.Join(dir, "on")
	if err := os.WriteFile(on, []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckIPForward(on); !r.Passed || r.Detail != "enabled" {
		t.Fatalf("unexpected result %+v", r)
	}
	off := filepath.Join(dir, "off")
	if err := os.WriteFile(off, []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if r := CheckIPForward(off); !r.Passed {
		t.Fatalf("writable disabled sysctl should pass: %+v", r)
	}
	if CheckIPForward(filepath.Join(dir, "absent")).Passed {
		t.Fatal("missing sysctl should fail")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll_SkipsDisabledChecks(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Routing.ConfigPath = ""
	cfg.Interface.EnableIPForward = false

	results := RunAll(&cfg)
	if len(results) != 2 {
		t.Fatalf("expected state dir and interface checks, got %+v", results)
	}
	if !results[0].Passed {
		t.Fatalf("state dir check failed: %s", results[0].Detail)
	}
}

func TestFailed(t *testing.T) {
	failed := Failed([]Result{{Name: "a", Passed: true}, {Name: "b"}})
	if len(failed) != 1 || failed[0].Name != "b" {
		t.Fatalf("unexpected failed set %+v", failed)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := config.Default()
	cfg.Routing.Binary = "clearly-not-present-olsrd"
	cfg.Interface.Commands = []string{"ifconfig {iface} up", "ifconfig {iface} down"}

	statuses := CheckSystemDeps(&cfg)
	if len(statuses) != 3 {
		t.Fatalf("expected routing, sh and ifconfig, got %+v", statuses)
	}
	if statuses[0].Available {
		t.Fatal("fake routing binary reported available")
	}
	if statuses[2].Name != "ifconfig" {
		t.Fatalf("unexpected step dependency %+v", statuses[2])
	}

	cfg.Interface.Commands = nil
	if got := CheckSystemDeps(&cfg); len(got) != 1 {
		t.Fatalf("expected only the routing binary without steps, got %+v", got)
	}
}
