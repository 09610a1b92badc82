package ipc

import (
	"time"

	"proxima/internal/history"
)

// StartRequest asks a stopped daemon to start serving.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon and endpoint status.
type StatusResponse struct {
	Running     bool      `json:"running"`
	PID         int       `json:"pid"`
	SessionID   string    `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	State       string    `json:"state"`
	StateSince  time.Time `json:"state_since"`
	Clients     int       `json:"clients"`
	Waiters     int       `json:"waiters"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	RoutingUp   bool      `json:"routing_up"`
	LinkMonitor bool      `json:"link_monitor"`
	Interface   string    `json:"interface"`
	SocketPath  string    `json:"socket_path"`
	LockPath    string    `json:"lock_path"`
	HistoryPath string    `json:"history_path"`
	MetricsAddr string    `json:"metrics_addr"`
}

// HistoryRequest lists recorded sightings.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse carries sightings, most recent first.
type HistoryResponse struct {
	Sightings []history.Sighting `json:"sightings"`
}
