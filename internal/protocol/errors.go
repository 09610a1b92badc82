package protocol

import "errors"

var (
	// ErrTransport marks a send attempted without a usable connection.
	ErrTransport = errors.New("transport error")
	// ErrRemoteFailure marks a peer that went away mid-exchange.
	ErrRemoteFailure = errors.New("remote failure")
	// ErrConfiguration marks a collaborator that could not configure the interface or daemon.
	ErrConfiguration = errors.New("configuration failure")
	// ErrUnknownMessage marks an envelope whose kind or body is not part of the protocol.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
)
