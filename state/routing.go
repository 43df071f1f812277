package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// RouteEntry is the selected route to a destination
type RouteEntry struct {
	Dest   NodeId
	Nh     Optional[NodeId] // next hop, absent only for the route to ourselves
	Metric Metric
}

func (e RouteEntry) String() string {
	if nh, ok := e.Nh.Get(); ok {
		return fmt.Sprintf("(%s) -> %s via %s", e.Metric, e.Dest, nh)
	}
	return fmt.Sprintf("(%s) -> %s", e.Metric, e.Dest)
}

type RoutingTable map[NodeId]RouteEntry

// Destinations returns the table's destinations in id order
func (t RoutingTable) Destinations() []NodeId {
	return slices.Sorted(maps.Keys(t))
}

func (t RoutingTable) Clone() RoutingTable {
	return maps.Clone(t)
}

func (t RoutingTable) String() string {
	lines := make([]string, 0, len(t))
	for _, dest := range t.Destinations() {
		lines = append(lines, "- "+t[dest].String())
	}
	return strings.Join(lines, "\n")
}

// Neighbour is a directly connected node. Cost is fixed for the lifetime of the node.
type Neighbour struct {
	Id   NodeId
	Cost Metric
	// Vector is the latest distance vector advertised by this neighbour, nil until one arrives
	Vector *DistanceVector
}

// Advertised returns the distance this neighbour last advertised to dest.
// A neighbour is always at distance 0 from itself, even before it has advertised.
func (n *Neighbour) Advertised(dest NodeId) Metric {
	if dest == n.Id {
		return 0
	}
	if n.Vector == nil {
		return INF
	}
	return n.Vector.Get(dest)
}

// LinkMetric is the metric of the direct link to this neighbour
func (n *Neighbour) LinkMetric() Metric {
	return max(n.Cost, MinLinkMetric)
}

// RouterState must only be accessed while holding the owning router's lock
type RouterState struct {
	Id         NodeId
	Neighbours []*Neighbour
	Routes     RoutingTable
	Vector     *DistanceVector
	// PoisonReverse advertises routes as INF back to the neighbour they go through
	PoisonReverse bool
}

// NewRouterState builds the initial state: a zero-cost route to ourselves and a direct
// route to each neighbour at its link cost.
func NewRouterState(id NodeId, neighbours []NeighbourCfg) (*RouterState, error) {
	rs := &RouterState{
		Id:         id,
		Neighbours: make([]*Neighbour, 0, len(neighbours)),
		Routes:     make(RoutingTable),
		Vector:     NewDistanceVector(id),
	}
	rs.Routes[id] = RouteEntry{Dest: id, Nh: None[NodeId](), Metric: 0}
	for _, ncfg := range neighbours {
		if ncfg.Id == id {
			return nil, fmt.Errorf("%w: node %s cannot be its own neighbour", ErrInvariantViolation, id)
		}
		if rs.GetNeighbour(ncfg.Id) != nil {
			return nil, fmt.Errorf("%w: duplicate neighbour %s", ErrInvariantViolation, ncfg.Id)
		}
		cost := Metric(ncfg.Cost)
		if !cost.Valid() || cost.IsInf() {
			return nil, fmt.Errorf("%w: link cost to %s must be finite and non-negative, got %v", ErrInvariantViolation, ncfg.Id, ncfg.Cost)
		}
		neigh := &Neighbour{Id: ncfg.Id, Cost: cost}
		rs.Neighbours = append(rs.Neighbours, neigh)
		rs.Routes[neigh.Id] = RouteEntry{Dest: neigh.Id, Nh: Some(neigh.Id), Metric: neigh.LinkMetric()}
		if err := rs.Vector.Set(neigh.Id, neigh.LinkMetric()); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func (rs *RouterState) GetNeighbour(id NodeId) *Neighbour {
	nIdx := slices.IndexFunc(rs.Neighbours, func(neighbour *Neighbour) bool {
		return neighbour.Id == id
	})
	if nIdx == -1 {
		return nil
	}
	return rs.Neighbours[nIdx]
}

// AdvertisementFor returns the vector to send to neigh. With poison reverse, every
// destination routed through neigh is reported as unreachable.
func (rs *RouterState) AdvertisementFor(neigh NodeId) *DistanceVector {
	if !rs.PoisonReverse {
		return rs.Vector
	}
	adv := rs.Vector.Clone()
	for dest, route := range rs.Routes {
		if nh, ok := route.Nh.Get(); ok && nh == neigh && dest != neigh {
			adv.dist[dest] = INF
		}
	}
	return adv
}
