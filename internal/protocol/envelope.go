package protocol

import (
	"fmt"

	"proxima/internal/registry"
)

// Route is the reply path attached to an envelope. Send answers a single
// request; Notify delivers out-of-band broadcasts.
type Route interface {
	ID() string
	Send(Envelope) error
	Notify(Envelope) error
}

// Envelope is the unit exchanged between a channel and the endpoint.
type Envelope struct {
	Kind  Kind
	Arg1  int64
	Key   registry.Key
	Body  Message
	Route Route
}

// NewEnvelope builds an envelope whose kind matches body.
func NewEnvelope(body Message, key registry.Key, route Route) Envelope {
	return Envelope{Kind: body.Kind(), Key: key, Body: body, Route: route}
}

// Validate checks that the envelope kind is known and agrees with its body.
func (e Envelope) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, e.Kind)
	}
	if e.Body == nil {
		return fmt.Errorf("%w: %s without body", ErrUnknownMessage, e.Kind)
	}
	if e.Body.Kind() != e.Kind {
		return fmt.Errorf("%w: kind %s carries %s body", ErrUnknownMessage, e.Kind, e.Body.Kind())
	}
	return nil
}

// RouteID returns the id of the reply route, or "" when there is none.
func (e Envelope) RouteID() string {
	if e.Route == nil {
		return ""
	}
	return e.Route.ID()
}

// ReplyTo builds the answer to req: same listener key and Arg1, no route.
func ReplyTo(req Envelope, body Message) Envelope {
	return Envelope{Kind: body.Kind(), Arg1: req.Arg1, Key: req.Key, Body: body}
}

type detachedRoute string

// DetachedRoute names a route that has no connection behind it. Decoded
// envelopes carry one until the transport rebinds them.
func DetachedRoute(id string) Route {
	return detachedRoute(id)
}

func (d detachedRoute) ID() string { return string(d) }

func (d detachedRoute) Send(Envelope) error {
	return fmt.Errorf("route %s is detached: %w", string(d), ErrTransport)
}

func (d detachedRoute) Notify(Envelope) error {
	return fmt.Errorf("route %s is detached: %w", string(d), ErrTransport)
}
