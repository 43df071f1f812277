package state

import "errors"

var (
	// ErrInvariantViolation is returned when a mutation would break a routing invariant,
	// such as a non-zero distance to self or a negative cost. Nothing is mutated.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrMalformedMessage is returned when an advertisement does not follow the wire grammar.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownSender is returned for advertisements that do not come from a configured neighbour.
	ErrUnknownSender = errors.New("unknown sender")
	// ErrTransport wraps failures reported by the datagram transport.
	ErrTransport = errors.New("transport error")
	// ErrTimedOut is returned by Transport.Receive when nothing arrived in time. It is not a failure.
	ErrTimedOut = errors.New("timed out")
)
