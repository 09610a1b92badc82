package protocol

import "fmt"

// Reason explains a failure delivered to a listener.
type Reason uint16

const (
	ReasonUnknown Reason = iota
	// ReasonInterface means the mesh interface could not be configured.
	ReasonInterface
	// ReasonDaemon means the routing daemon did not start or died.
	ReasonDaemon
	// ReasonNotConnected means the request was sent while the channel had no transport.
	ReasonNotConnected
	// ReasonTimeout means no reply arrived before the request deadline.
	ReasonTimeout
	// ReasonBusy means the channel already holds its maximum of pending requests.
	ReasonBusy
	// ReasonShutdown means the endpoint stopped before answering.
	ReasonShutdown
	// ReasonInternal covers unexpected failures inside the endpoint.
	ReasonInternal
)

func (r Reason) String() string {
	switch r {
	case ReasonInterface:
		return "interface configuration failed"
	case ReasonDaemon:
		return "routing daemon unavailable"
	case ReasonNotConnected:
		return "channel not connected"
	case ReasonTimeout:
		return "request timed out"
	case ReasonBusy:
		return "too many pending requests"
	case ReasonShutdown:
		return "service shutting down"
	case ReasonInternal:
		return "internal service error"
	case ReasonUnknown:
		return "unknown failure"
	default:
		return fmt.Sprintf("reason(%d)", uint16(r))
	}
}
