package preflight

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"proxima/internal/config"
	"proxima/internal/deps"
)

const ipForwardPath = "/proc/sys/net/ipv4/ip_forward"

// CheckDirectoryAccess verifies path is a directory the process can use.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFileReadable verifies path is a regular file the process can read.
func CheckFileReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckInterface reports whether the mesh interface exists and is up.
func CheckInterface(name string) Result {
	const label = "Mesh interface"
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{Name: label, Detail: "not configured"}
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return Result{Name: label, Detail: fmt.Sprintf("%s (error: %v)", name, err)}
	}
	if ifi.Flags&net.FlagUp == 0 {
		// Discovery brings the link up, so a down interface still passes.
		return Result{Name: label, Passed: true, Detail: fmt.Sprintf("%s (down)", name)}
	}
	return Result{Name: label, Passed: true, Detail: fmt.Sprintf("%s (up)", name)}
}

// CheckIPForward verifies the forwarding sysctl can be written.
func CheckIPForward(path string) Result {
	const label = "IP forwarding"
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Name: label, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if strings.TrimSpace(string(data)) == "1" {
		return Result{Name: label, Passed: true, Detail: "enabled"}
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return Result{Name: label, Detail: "disabled and not writable (run proximad as root)"}
	}
	return Result{Name: label, Passed: true, Detail: "disabled (enabled on discover)"}
}

// CheckSystemDeps evaluates the programs the daemon runs. Both the daemon and
// the CLI status command use this so the requirement list lives in one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "Routing daemon",
			Command:     cfg.Routing.Binary,
			Description: "Required for mesh routing",
		},
	}
	if len(cfg.Interface.Commands) > 0 {
		requirements = append(requirements, deps.Requirement{
			Name:        "sh",
			Command:     "/bin/sh",
			Description: "Runs interface bring-up steps",
		})
	}
	for _, name := range deps.CommandNames(cfg.Interface.Commands) {
		requirements = append(requirements, deps.Requirement{
			Name:        name,
			Command:     name,
			Description: "Used by interface bring-up steps",
		})
	}
	return deps.CheckBinaries(requirements)
}
