package impl

import (
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/dvnode/state"
)

const memInboxSize = 256

// MemLink is one direction of a simulated link
type MemLink struct {
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
}

func (l *MemLink) WithLatency(lat, jitter time.Duration) *MemLink {
	l.Latency = lat
	l.Jitter = jitter
	return l
}

func (l *MemLink) WithPacketLoss(loss float64) *MemLink {
	l.PacketLoss = loss
	return l
}

// MemNetwork is an in-memory datagram network. Datagrams are only delivered over links
// that were added, and a full inbox drops them like a congested socket would.
type MemNetwork struct {
	mu    sync.Mutex
	links map[state.Pair[state.NodeId, state.NodeId]]*MemLink
	nodes map[state.NodeId]*MemTransport
	// datagrams sent but not yet delivered or dropped at the receiver
	inflight atomic.Int64
}

func NewMemNetwork() *MemNetwork {
	return &MemNetwork{
		links: make(map[state.Pair[state.NodeId, state.NodeId]]*MemLink),
		nodes: make(map[state.NodeId]*MemTransport),
	}
}

// AddLink adds a one-way link, call it twice for a bidirectional one
func (n *MemNetwork) AddLink(from, to state.NodeId) *MemLink {
	n.mu.Lock()
	defer n.mu.Unlock()
	link := &MemLink{}
	n.links[state.Pair[state.NodeId, state.NodeId]{V1: from, V2: to}] = link
	return link
}

// Transport returns the endpoint of node id, creating it if needed
func (n *MemNetwork) Transport(id state.NodeId) *MemTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.nodes[id]; ok {
		return t
	}
	t := &MemTransport{
		net:   n,
		id:    id,
		inbox: make(chan state.Datagram, memInboxSize),
		done:  make(chan struct{}),
	}
	n.nodes[id] = t
	return t
}

// InFlight reports how many datagrams are still travelling over a link
func (n *MemNetwork) InFlight() int64 {
	return n.inflight.Load()
}

func (n *MemNetwork) route(from, to state.NodeId) (*MemLink, *MemTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links[state.Pair[state.NodeId, state.NodeId]{V1: from, V2: to}], n.nodes[to]
}

type MemTransport struct {
	net       *MemNetwork
	id        state.NodeId
	inbox     chan state.Datagram
	done      chan struct{}
	closeOnce sync.Once
}

func (t *MemTransport) SendTo(neigh state.NodeId, payload []byte) error {
	if t.closed() {
		return net.ErrClosed
	}
	link, dst := t.net.route(t.id, neigh)
	if link == nil {
		return fmt.Errorf("no link from %s to %s", t.id, neigh)
	}
	if rand.Float64() < link.PacketLoss || dst == nil {
		return nil
	}
	dg := state.Datagram{From: t.id, Payload: append([]byte(nil), payload...)}
	t.net.inflight.Add(1)
	if link.Latency == 0 {
		dst.deliver(dg)
		return nil
	}
	lat := link.Latency + time.Duration(rand.Float64()*float64(link.Jitter))
	time.AfterFunc(lat, func() {
		dst.deliver(dg)
	})
	return nil
}

func (t *MemTransport) deliver(dg state.Datagram) {
	defer t.net.inflight.Add(-1)
	if t.closed() {
		return
	}
	select {
	case t.inbox <- dg:
	default:
		// inbox full, dropped
	}
}

func (t *MemTransport) Receive(timeout time.Duration) (state.Datagram, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case dg := <-t.inbox:
		return dg, nil
	case <-t.done:
		return state.Datagram{}, net.ErrClosed
	case <-timer.C:
		return state.Datagram{}, state.ErrTimedOut
	}
}

func (t *MemTransport) closed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *MemTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	return nil
}
