package protocol

import "fmt"

// Message is the body of an envelope. The set of implementations is closed:
// the unexported marker keeps other packages from adding kinds.
type Message interface {
	Kind() Kind
	isMessage()
}

// RegisterClient announces a new client route to the endpoint.
type RegisterClient struct{}

// UnregisterClient removes a client route from the endpoint.
type UnregisterClient struct{}

// DiscoverNeighbors asks the endpoint to bring up the mesh interface and the
// routing daemon.
type DiscoverNeighbors struct{}

// DiscoverNeighborsSucceeded reports that discovery is running.
type DiscoverNeighborsSucceeded struct{}

// DiscoverNeighborsFailed reports why discovery could not start.
type DiscoverNeighborsFailed struct {
	Reason Reason `cbor:"1,keyasint"`
}

// RequestNeighbors asks for the current neighbor set.
type RequestNeighbors struct{}

// ResponseNeighbors carries the neighbor set in source order.
type ResponseNeighbors struct {
	Neighbors []Neighbor `cbor:"1,keyasint"`
}

// ChannelDisconnected is posted by a transport to its own inbox when the
// connection it serves goes away.
type ChannelDisconnected struct {
	Cause error `cbor:"-"`
}

// NeighborsChanged is broadcast to every registered client when the endpoint
// state changes in a way that alters the neighbor set.
type NeighborsChanged struct {
	State string `cbor:"1,keyasint,omitempty"`
}

func (RegisterClient) Kind() Kind             { return KindRegisterClient }
func (UnregisterClient) Kind() Kind           { return KindUnregisterClient }
func (DiscoverNeighbors) Kind() Kind          { return KindDiscoverNeighbors }
func (DiscoverNeighborsSucceeded) Kind() Kind { return KindDiscoverNeighborsSucceeded }
func (DiscoverNeighborsFailed) Kind() Kind    { return KindDiscoverNeighborsFailed }
func (RequestNeighbors) Kind() Kind           { return KindRequestNeighbors }
func (ResponseNeighbors) Kind() Kind          { return KindResponseNeighbors }
func (ChannelDisconnected) Kind() Kind        { return KindChannelDisconnected }
func (NeighborsChanged) Kind() Kind           { return KindNeighborsChanged }

func (RegisterClient) isMessage()             {}
func (UnregisterClient) isMessage()           {}
func (DiscoverNeighbors) isMessage()          {}
func (DiscoverNeighborsSucceeded) isMessage() {}
func (DiscoverNeighborsFailed) isMessage()    {}
func (RequestNeighbors) isMessage()           {}
func (ResponseNeighbors) isMessage()          {}
func (ChannelDisconnected) isMessage()        {}
func (NeighborsChanged) isMessage()           {}

// EmptyBody returns the body for kinds that carry no payload. Kinds with a
// payload, and unknown kinds, report ErrUnknownMessage.
func EmptyBody(kind Kind) (Message, error) {
	switch kind {
	case KindRegisterClient:
		return RegisterClient{}, nil
	case KindUnregisterClient:
		return UnregisterClient{}, nil
	case KindDiscoverNeighbors:
		return DiscoverNeighbors{}, nil
	case KindDiscoverNeighborsSucceeded:
		return DiscoverNeighborsSucceeded{}, nil
	case KindRequestNeighbors:
		return RequestNeighbors{}, nil
	case KindChannelDisconnected:
		return ChannelDisconnected{}, nil
	case KindNeighborsChanged:
		return NeighborsChanged{}, nil
	default:
		return nil, fmt.Errorf("%w: %s has no empty body", ErrUnknownMessage, kind)
	}
}
