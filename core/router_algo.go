package core

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/encodeous/dvnode/state"
)

type RouterEvent int

// trace events

const (
	RouteAdded RouterEvent = iota
	RouteImproved
	RouteWorsened
	RouteSwitched
	RouteUnreachable
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	AdvertisementFailed
)

func (e RouterEvent) String() string {
	switch e {
	case RouteAdded:
		return "ROUTE_ADDED"
	case RouteImproved:
		return "ROUTE_IMPROVED"
	case RouteWorsened:
		return "ROUTE_WORSENED"
	case RouteSwitched:
		return "ROUTE_SWITCHED"
	case RouteUnreachable:
		return "ROUTE_UNREACHABLE"
	case InconsistentState:
		return "INCONSISTENT_STATE"
	case AdvertisementFailed:
		return "ADVERTISEMENT_FAILED"
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

// Router is an interface that defines the underlying router operations
type Router interface {
	SendVector(neigh state.NodeId, vec *state.DistanceVector) error
	Log(event RouterEvent, desc string, args ...any)
}

// ComputeRoutes relaxes every route in the table against the vectors the neighbours
// last advertised, and refreshes the node's own vector from the result. It reports
// whether any route changed its next hop or metric.
func ComputeRoutes(s *state.RouterState, r Router) bool {
	// every destination we already route to, plus anything a neighbour can reach
	dests := make(map[state.NodeId]struct{}, len(s.Routes))
	for dest := range s.Routes {
		dests[dest] = struct{}{}
	}
	for _, neigh := range s.Neighbours {
		if neigh.Vector == nil {
			continue
		}
		for _, dest := range neigh.Vector.Destinations() {
			if !neigh.Vector.Get(dest).IsInf() {
				dests[dest] = struct{}{}
			}
		}
	}
	delete(dests, s.Id)

	newTable := make(state.RoutingTable, len(dests)+1)
	newTable[s.Id] = state.RouteEntry{Dest: s.Id, Nh: state.None[state.NodeId](), Metric: 0}
	changed := false

	for _, dest := range slices.Sorted(maps.Keys(dests)) {
		oldRoute, exists := s.Routes[dest]

		// re-evaluate the incumbent through its current next hop first, so that it keeps
		// the route on ties
		best := state.RouteEntry{Dest: dest, Metric: state.INF}
		if exists {
			best.Nh = oldRoute.Nh
			if nh, ok := oldRoute.Nh.Get(); ok {
				if neigh := s.GetNeighbour(nh); neigh != nil {
					best.Metric = state.AddMetric(neigh.LinkMetric(), neigh.Advertised(dest))
				}
			}
		}

		for _, neigh := range s.Neighbours {
			if nh, ok := best.Nh.Get(); ok && nh == neigh.Id {
				continue
			}
			// Cost(A, N) + Cost(N, D)
			candidate := state.AddMetric(neigh.LinkMetric(), neigh.Advertised(dest))
			if candidate < best.Metric {
				best = state.RouteEntry{Dest: dest, Nh: state.Some(neigh.Id), Metric: candidate}
			}
		}

		newTable[dest] = best
		if err := s.Vector.Set(dest, best.Metric); err != nil {
			r.Log(InconsistentState, "failed to update distance vector", "dest", dest, "err", err)
		}

		if !exists {
			changed = true
			r.Log(RouteAdded, "learned new destination", "dest", dest, "route", best)
			continue
		}
		if oldRoute.Nh != best.Nh {
			changed = true
			r.Log(RouteSwitched, "switched next hop", "dest", dest, "old", oldRoute, "new", best)
		} else if oldRoute.Metric != best.Metric {
			changed = true
			switch {
			case best.Metric.IsInf():
				r.Log(RouteUnreachable, "destination became unreachable", "dest", dest, "old", oldRoute)
			case best.Metric < oldRoute.Metric:
				r.Log(RouteImproved, "route improved", "dest", dest, "old", oldRoute, "new", best)
			default:
				r.Log(RouteWorsened, "route worsened", "dest", dest, "old", oldRoute, "new", best)
			}
		}
	}

	s.Routes = newTable // update the route table
	return changed
}

// HandleNeighbourUpdate installs a vector received from a neighbour and recomputes the
// routing table. When the table changes, the new vector is pushed to every neighbour
// (a triggered update) only after the table is fully recomputed.
func HandleNeighbourUpdate(s *state.RouterState, r Router, neighId state.NodeId, vec *state.DistanceVector) (bool, error) {
	neigh := s.GetNeighbour(neighId)
	if neigh == nil {
		return false, fmt.Errorf("%w: %s is not a neighbour of %s", state.ErrUnknownSender, neighId, s.Id)
	}
	if vec.Self() != neighId {
		return false, fmt.Errorf("%w: vector from %s is owned by %s", state.ErrUnknownSender, neighId, vec.Self())
	}

	neigh.Vector = vec

	if !ComputeRoutes(s, r) {
		return false, nil
	}
	return true, PushFullTable(s, r)
}

// PushFullTable sends the node's vector to every neighbour. A failed send does not stop
// the remaining ones; all failures are returned together.
func PushFullTable(s *state.RouterState, r Router) error {
	var errs []error
	for _, neigh := range s.Neighbours {
		if neigh.Id == s.Id {
			continue
		}
		err := r.SendVector(neigh.Id, s.AdvertisementFor(neigh.Id))
		if err != nil {
			r.Log(AdvertisementFailed, "failed to advertise", "neigh", neigh.Id, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
