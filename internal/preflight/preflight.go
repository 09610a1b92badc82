package preflight

import (
	"proxima/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the host checks that apply to cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckInterface(cfg.Interface.Name),
	}
	if cfg.Routing.ConfigPath != "" {
		results = append(results, CheckFileReadable("Routing config", cfg.Routing.ConfigPath))
	}
	if cfg.Interface.EnableIPForward {
		results = append(results, CheckIPForward(ipForwardPath))
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
