package channel

import "proxima/internal/protocol"

// FailureListener is the capability every request listener has.
type FailureListener interface {
	OnFailure(reason protocol.Reason)
}

// ActionListener receives the outcome of a request with no result value.
type ActionListener interface {
	FailureListener
	OnSuccess()
}

// NeighborListListener receives a neighbor list.
type NeighborListListener interface {
	FailureListener
	OnNeighbors(neighbors []protocol.Neighbor)
}

// ChannelListener observes the connection itself.
type ChannelListener interface {
	OnConnected()
	OnDisconnected(err error)
}

// ActionFuncs adapts two functions to ActionListener. Nil fields are skipped.
type ActionFuncs struct {
	Success func()
	Failure func(protocol.Reason)
}

func (f ActionFuncs) OnSuccess() {
	if f.Success != nil {
		f.Success()
	}
}

func (f ActionFuncs) OnFailure(reason protocol.Reason) {
	if f.Failure != nil {
		f.Failure(reason)
	}
}

// NeighborFuncs adapts two functions to NeighborListListener.
type NeighborFuncs struct {
	Neighbors func([]protocol.Neighbor)
	Failure   func(protocol.Reason)
}

func (f NeighborFuncs) OnNeighbors(neighbors []protocol.Neighbor) {
	if f.Neighbors != nil {
		f.Neighbors(neighbors)
	}
}

func (f NeighborFuncs) OnFailure(reason protocol.Reason) {
	if f.Failure != nil {
		f.Failure(reason)
	}
}

// ConnectionFuncs adapts two functions to ChannelListener.
type ConnectionFuncs struct {
	Connected    func()
	Disconnected func(error)
}

func (f ConnectionFuncs) OnConnected() {
	if f.Connected != nil {
		f.Connected()
	}
}

func (f ConnectionFuncs) OnDisconnected(err error) {
	if f.Disconnected != nil {
		f.Disconnected(err)
	}
}
