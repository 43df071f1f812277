package state

import "time"

// Datagram is a single advertisement as delivered by a Transport
type Datagram struct {
	From    NodeId
	Payload []byte
}

// Transport is an unreliable datagram link to every neighbour of a node.
// Sends are fire-and-forget: a nil error does not mean the datagram was delivered.
type Transport interface {
	SendTo(neigh NodeId, payload []byte) error
	// Receive waits at most timeout for a datagram from any neighbour. It returns
	// ErrTimedOut if none arrived, and net.ErrClosed once the transport is closed.
	Receive(timeout time.Duration) (Datagram, error)
	Close() error
}
