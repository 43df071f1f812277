package core

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/encodeous/dvnode/perf"
	"github.com/encodeous/dvnode/protocol"
	"github.com/encodeous/dvnode/state"
	"github.com/gaissmai/bart"
	"github.com/jellydator/ttlcache/v3"
)

// NodeRouter runs the exchange protocol for one node. Every method is safe for concurrent
// use: advertisement, ingestion and reads are serialized by a single lock.
type NodeRouter struct {
	mu        sync.Mutex
	rs        *state.RouterState
	transport state.Transport
	log       *slog.Logger
	// heard records when each neighbour last sent us a valid advertisement
	heard    *ttlcache.Cache[state.NodeId, time.Time]
	prefixes map[state.NodeId][]netip.Prefix
	// ForwardTable maps node prefixes to the route toward the owning node
	forward *bart.Table[state.RouteEntry]
	// advertised is set once the node has sent its vector to its neighbours
	advertised bool
	// OnChange, if set, is called with a copy of the table after every change
	OnChange func(table state.RoutingTable)
}

func NewNodeRouter(cfg *state.NodeCfg, transport state.Transport, log *slog.Logger) (*NodeRouter, error) {
	rs, err := state.NewRouterState(cfg.Id, cfg.Neighbours)
	if err != nil {
		return nil, err
	}
	rs.PoisonReverse = cfg.PoisonReverse
	r := &NodeRouter{
		rs:        rs,
		transport: transport,
		log:       log,
		heard: ttlcache.New[state.NodeId, time.Time](
			ttlcache.WithTTL[state.NodeId, time.Time](state.NeighbourLivenessTTL),
			ttlcache.WithDisableTouchOnHit[state.NodeId, time.Time](),
		),
		prefixes: cfg.Prefixes,
	}
	r.forward = buildForwardTable(rs.Routes, r.prefixes)
	return r, nil
}

func (r *NodeRouter) Id() state.NodeId {
	return r.rs.Id
}

// Advertise sends the node's distance vector to every neighbour
func (r *NodeRouter) Advertise() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advertised = true
	return PushFullTable(r.rs, r)
}

// Ingest processes a single advertisement received from the transport. Records that are
// malformed or not from a neighbour are dropped without touching any state. If the table
// changes, the new vector is advertised before Ingest returns. A node that has never
// advertised does so on its first valid advertisement, so that the exchange reaches every
// node of a connected network even when only one of them initiates it.
func (r *NodeRouter) Ingest(payload []byte, from state.NodeId) (bool, error) {
	start := time.Now()
	defer func() {
		perf.IngestLatency.Add(float64(time.Since(start).Microseconds()))
	}()
	perf.AdvertisementsReceived.Add(1)

	sender, vec, err := protocol.Decode(payload)
	if err != nil {
		return false, r.drop("dropped malformed advertisement", from, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sender != from {
		return false, r.drop("dropped advertisement with mismatched sender", from,
			fmt.Errorf("%w: record received from %s claims to be from %s", state.ErrUnknownSender, from, sender))
	}
	if r.rs.GetNeighbour(sender) == nil {
		return false, r.drop("dropped advertisement from unknown sender", from,
			fmt.Errorf("%w: %s is not a neighbour of %s", state.ErrUnknownSender, sender, r.rs.Id))
	}
	r.heard.Set(sender, time.Now(), ttlcache.DefaultTTL)

	changed, err := HandleNeighbourUpdate(r.rs, r, sender, vec)
	if err == nil && !changed && !r.advertised {
		r.log.Debug("first advertisement received, waking up", "from", sender)
		err = PushFullTable(r.rs, r)
	}
	r.advertised = true
	if changed {
		perf.RouteChanges.Add(1)
		r.forward = buildForwardTable(r.rs.Routes, r.prefixes)
		r.log.Info("routing table updated", "from", sender, "active", r.activeNeighbours(),
			"table", "\n"+r.rs.Routes.String(), "forwarding", "\n"+r.forwarding())
		if r.OnChange != nil {
			r.OnChange(r.rs.Routes.Clone())
		}
	}
	return changed, err
}

func (r *NodeRouter) drop(msg string, from state.NodeId, err error) error {
	perf.DroppedRecords.Add(1)
	r.log.Warn(msg, "from", from, "err", err)
	return err
}

// Relax recomputes the routing table without any new input
func (r *NodeRouter) Relax() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := ComputeRoutes(r.rs, r)
	if changed {
		r.forward = buildForwardTable(r.rs.Routes, r.prefixes)
	}
	return changed
}

// Table returns a copy of the routing table
func (r *NodeRouter) Table() state.RoutingTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rs.Routes.Clone()
}

// Vector returns a copy of the node's distance vector
func (r *NodeRouter) Vector() *state.DistanceVector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rs.Vector.Clone()
}

// Lookup finds the route toward the node owning the longest prefix that contains addr
func (r *NodeRouter) Lookup(addr netip.Addr) (state.RouteEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forward.Lookup(addr)
}

// Forwarding describes where traffic to each configured prefix is sent
func (r *NodeRouter) Forwarding() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forwarding()
}

// forwarding resolves the network address of every prefix, longest match first
func (r *NodeRouter) forwarding() string {
	owners := slices.Sorted(maps.Keys(r.prefixes))
	sb := strings.Builder{}
	for _, owner := range owners {
		for _, prefix := range r.prefixes[owner] {
			prefix = prefix.Masked()
			entry, ok := r.forward.Lookup(prefix.Addr())
			if !ok {
				sb.WriteString(fmt.Sprintf("%s (%s): unreachable\n", prefix, owner))
				continue
			}
			sb.WriteString(fmt.Sprintf("%s (%s): %s\n", prefix, owner, entry))
		}
	}
	return sb.String()
}

// ActiveNeighbours lists the neighbours heard from recently, in configured order
func (r *NodeRouter) ActiveNeighbours() []state.NodeId {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeNeighbours()
}

func (r *NodeRouter) activeNeighbours() []state.NodeId {
	active := make([]state.NodeId, 0, len(r.rs.Neighbours))
	for _, neigh := range r.rs.Neighbours {
		if item := r.heard.Get(neigh.Id); item != nil && !item.IsExpired() {
			active = append(active, neigh.Id)
		}
	}
	return active
}

// SendVector is called with the lock held
func (r *NodeRouter) SendVector(neigh state.NodeId, vec *state.DistanceVector) error {
	pkt := protocol.Encode(r.rs.Id, vec)
	if len(pkt) > state.SafeMTU {
		r.log.Warn("advertisement exceeds safe mtu", "neigh", neigh, "len", len(pkt))
	}
	err := r.transport.SendTo(neigh, pkt)
	if err != nil {
		perf.SendFailures.Add(1)
		return fmt.Errorf("%w: send to %s: %w", state.ErrTransport, neigh, err)
	}
	perf.AdvertisementsSent.Add(1)
	r.log.Debug("advertisement sent", "to", neigh)
	return nil
}

func (r *NodeRouter) Log(event RouterEvent, desc string, args ...any) {
	r.log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
}

func (r *NodeRouter) Init(s *state.State) error {
	s.Log.Debug("init router", "neighbours", len(r.rs.Neighbours))

	if s.Initiator {
		s.Dispatch(advertiseTask)
	}
	if s.UpdateInterval > 0 {
		s.Log.Debug("schedule router tasks", "interval", s.UpdateInterval)
		s.Env.RepeatTask(advertiseTask, s.UpdateInterval)
	}
	go r.receiveLoop(s.Env)
	return nil
}

func (r *NodeRouter) Cleanup(s *state.State) error {
	r.heard.DeleteAll()
	return r.transport.Close()
}

// advertiseTask advertises from the dispatch goroutine. A failed send is not fatal to the
// node. Without periodic updates it is retried after AdvertiseRetryDelay.
func advertiseTask(s *state.State) error {
	err := Get[*NodeRouter](s).Advertise()
	if err != nil {
		s.Log.Warn("advertisement incomplete", "err", err)
		if s.UpdateInterval == 0 {
			s.ScheduleTask(advertiseTask, state.AdvertiseRetryDelay)
		}
	}
	return nil
}

func (r *NodeRouter) receiveLoop(e *state.Env) {
	for e.Context.Err() == nil {
		dg, err := r.transport.Receive(e.ReceiveTimeout)
		if errors.Is(err, state.ErrTimedOut) {
			e.Log.Debug("no advertisement received", "timeout", e.ReceiveTimeout)
			continue
		}
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			e.Log.Warn("receive failed", "err", err)
			continue
		}
		e.Dispatch(func(s *state.State) error {
			_, err := r.Ingest(dg.Payload, dg.From)
			if err != nil && !slices.ContainsFunc([]error{state.ErrMalformedMessage, state.ErrUnknownSender, state.ErrTransport}, func(target error) bool {
				return errors.Is(err, target)
			}) {
				return err
			}
			return nil
		})
	}
}
