package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external program proxima runs.
type Requirement struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CommandNames returns the program name of each shell step, first use order,
// without duplicates. Steps that start with a placeholder are skipped.
func CommandNames(steps []string) []string {
	seen := make(map[string]bool, len(steps))
	var names []string
	for _, step := range steps {
		fields := strings.Fields(step)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "{") {
			continue
		}
		if !seen[fields[0]] {
			seen[fields[0]] = true
			names = append(names, fields[0])
		}
	}
	return names
}

// Missing counts unavailable requirements, split by whether they are optional.
func Missing(statuses []Status) (required, optional int) {
	for _, s := range statuses {
		if s.Available {
			continue
		}
		if s.Optional {
			optional++
		} else {
			required++
		}
	}
	return required, optional
}
